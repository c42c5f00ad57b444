package reconcile

import (
	"streetlight_monitor/internal/model"
)

// DeriveEnergy computes a bucket's energy from whichever attributes are
// present, in priority order: active power, illuminance level times the
// full-illuminance constant, scalar current times voltage, then the sum of
// per-phase current times voltage. The returned level is the mean of the
// consumed attributes' confidences; the illuminance surrogate and the zero
// fallback are fully estimated.
func DeriveEnergy(attrs model.Attributes, levelOf func(attr string) float64) (energy, level float64) {
	if p, ok := attrs[model.AttrActivePower].Float(); ok {
		return p, levelOf(model.AttrActivePower)
	}

	if il, ok := attrs[model.AttrIlluminanceLevel].Float(); ok {
		return il * model.FullIlluminanceEnergy, 0
	}

	current, voltage := attrs[model.AttrIntensity], attrs[model.AttrVoltage]
	i, okI := current.Float()
	v, okV := voltage.Float()
	if okI && okV {
		return i * v, meanLevel(levelOf, model.AttrIntensity, model.AttrVoltage)
	}

	if current.HasAllPhases() && voltage.HasAllPhases() {
		var names []string
		for _, p := range model.Phases {
			ip, _ := current.Phase(p)
			vp, _ := voltage.Phase(p)
			energy += ip * vp
			names = append(names, model.PhaseName(model.AttrIntensity, p), model.PhaseName(model.AttrVoltage, p))
		}
		return energy, meanLevel(levelOf, names...)
	}

	return 0, 0
}

func meanLevel(levelOf func(string) float64, names ...string) float64 {
	sum := 0.0
	for _, n := range names {
		sum += levelOf(n)
	}
	return sum / float64(len(names))
}

// DeriveAll adds energy to every bucket that lacks it, stored under the
// service's energy attribute. The estimation level is folded into est under
// the energy attribute, keeping the minimum with any existing entry.
func DeriveAll(service model.Service, day *model.Day, est model.Estimates) {
	target := service.Info().EnergyAttribute
	for bucket, attrs := range day.All() {
		if attrs[model.AttrEnergy].Present() {
			continue
		}
		energy, level := DeriveEnergy(attrs, func(attr string) float64 {
			return est.Level(bucket, attr)
		})
		est.Lower(bucket, model.AttrEnergy, level)
		attrs.Put(target, energy, true)
	}
}
