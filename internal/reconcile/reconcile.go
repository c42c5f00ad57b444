package reconcile

import (
	"streetlight_monitor/internal/model"
)

var tampereFillAttributes = []string{
	"intensity.L1", "intensity.L2", "intensity.L3",
	"voltage.L1", "voltage.L2", "voltage.L3",
}

// Reconcile completes one operating day of an entity: it inserts the hours
// in hours, fills the service's energy attributes and derives energy.
// Estimates from earlier passes (for example replayed from storage) are
// merged into the returned index.
func Reconcile(service model.Service, day *model.Day, hours []int, previous PreviousValue, prior model.Estimates) (*model.Day, model.Estimates) {
	day = AddMissingHours(day, hours)
	est := model.MergeEstimates(prior)

	switch service {
	case model.ServiceViinikka:
		est.Merge(FillAttributes(day, []string{model.AttrActivePower}, previous))
		if !HasAll(day, []string{model.AttrActivePower}) {
			est.Merge(FillAttributes(day, []string{model.AttrIlluminanceLevel}, previous))
		}
	case model.ServiceTampere:
		est.Merge(FillAttributes(day, tampereFillAttributes, previous))
		est.Merge(FillPhases(day, []string{model.AttrIntensity, model.AttrVoltage}))
	}

	DeriveAll(service, day, est)
	return day, est
}

// EnergyLevels extracts the energy value of every bucket with its confidence.
func EnergyLevels(day *model.Day, est model.Estimates) *model.OrderedMap[model.Confidence] {
	out := model.NewOrderedMap[model.Confidence]()
	for bucket, attrs := range day.All() {
		energy, ok := EnergyOf(attrs)
		if !ok {
			continue
		}
		out.Set(bucket, model.NewConfidence(model.Scalar(energy), est.Level(bucket, model.AttrEnergy)))
	}
	return out
}

// EnergyOf reads the energy of a bucket, stored either as a scalar or
// under the L0 phase.
func EnergyOf(attrs model.Attributes) (float64, bool) {
	v := attrs[model.AttrEnergy]
	if x, ok := v.Float(); ok {
		return x, true
	}
	return v.Phase(model.L0)
}
