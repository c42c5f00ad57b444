package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetlight_monitor/internal/model"
)

func phased(l1, l2, l3 float64) model.AttributeValue {
	return model.Phased(map[model.Phase]float64{model.L1: l1, model.L2: l2, model.L3: l3})
}

func TestMean_Scalar(t *testing.T) {
	v := Mean([]model.AttributeValue{model.Scalar(1), model.Scalar(2), model.Scalar(2.5)})
	x, ok := v.Float()
	require.True(t, ok)
	assert.InDelta(t, 1.833, x, 1e-9)
}

func TestMean_StatusKeepsFirst(t *testing.T) {
	v := Mean([]model.AttributeValue{model.Status("on"), model.Status("off")})
	assert.Equal(t, model.Status("on"), v)
}

func TestMean_PhasedPerPhase(t *testing.T) {
	v := Mean([]model.AttributeValue{
		phased(1, 2, 3),
		model.Phased(map[model.Phase]float64{model.L1: 3}),
	})
	l1, _ := v.Phase(model.L1)
	l2, _ := v.Phase(model.L2)
	assert.InDelta(t, 2.0, l1, 1e-9)
	assert.InDelta(t, 2.0, l2, 1e-9)
	assert.True(t, v.HasAllPhases())
}

func TestMean_Empty(t *testing.T) {
	assert.False(t, Mean(nil).Present())
}

func TestSummarize_SingleSampleHasNoStdev(t *testing.T) {
	s := Summarize([]model.AttributeValue{model.Scalar(4)})
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, model.Scalar(4), s.Avg)
	assert.False(t, s.Stdev.Present())
}

func TestSummarize_SampleStdev(t *testing.T) {
	s := Summarize([]model.AttributeValue{model.Scalar(2), model.Scalar(4), model.Scalar(4), model.Scalar(4),
		model.Scalar(5), model.Scalar(5), model.Scalar(7), model.Scalar(9)})
	assert.Equal(t, 8, s.Count)
	avg, _ := s.Avg.Float()
	sd, _ := s.Stdev.Float()
	assert.InDelta(t, 5.0, avg, 1e-9)
	assert.InDelta(t, 2.138, sd, 1e-9)
}

func TestSummarize_Phased(t *testing.T) {
	s := Summarize([]model.AttributeValue{phased(1, 2, 3), phased(3, 2, 5)})
	avg, ok := s.Avg.Phase(model.L3)
	require.True(t, ok)
	assert.InDelta(t, 4.0, avg, 1e-9)
	sd, ok := s.Stdev.Phase(model.L2)
	require.True(t, ok)
	assert.InDelta(t, 0.0, sd, 1e-9)
}

func TestSummarizeHistory_SkipsEmptyHours(t *testing.T) {
	samples := model.HistorySamples{}
	samples.Add(model.AttrActivePower, 3, model.Scalar(6))
	samples.Add(model.AttrActivePower, 3, model.Scalar(8))

	h := SummarizeHistory(samples)
	require.Len(t, h[model.AttrActivePower], 1)
	stat, ok := h.Hour(model.AttrActivePower, 3)
	require.True(t, ok)
	assert.Equal(t, 2, stat.Count)
	assert.Equal(t, model.Scalar(7), stat.Avg)
}
