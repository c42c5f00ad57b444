package model

import "math"

const confidenceTolerance = 1e-5

// Confidence pairs a value with how directly it was observed:
// 1.0 observed, 0.0 fully estimated.
type Confidence struct {
	Value AttributeValue `json:"value"`
	Level float64        `json:"is_actual"`
}

// NewConfidence clamps level into [0, 1].
func NewConfidence(v AttributeValue, level float64) Confidence {
	return Confidence{Value: v, Level: clampLevel(level)}
}

// Observed wraps a measured value.
func Observed(v AttributeValue) Confidence {
	return Confidence{Value: v, Level: 1.0}
}

// Estimated wraps a fully estimated value.
func Estimated(v AttributeValue) Confidence {
	return Confidence{Value: v, Level: 0.0}
}

func clampLevel(level float64) float64 {
	if math.IsNaN(level) {
		return 0
	}
	return math.Max(0, math.Min(1, level))
}

// Equal compares values exactly and levels within tolerance.
func (c Confidence) Equal(o Confidence) bool {
	return c.Value.Equal(o.Value) && math.Abs(c.Level-o.Level) < confidenceTolerance
}

// Combine keeps c's value with the lower of the two levels.
func (c Confidence) Combine(o Confidence) Confidence {
	return Confidence{Value: c.Value, Level: math.Min(c.Level, o.Level)}
}

// IsEstimated reports whether the level is below the estimation limit.
func (c Confidence) IsEstimated() bool {
	return c.Level < EstimationLimitHigh
}

func (c Confidence) String() string {
	if c.IsEstimated() {
		return c.Value.String() + " (estimated)"
	}
	return c.Value.String()
}
