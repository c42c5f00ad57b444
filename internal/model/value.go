package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// ValueKind discriminates the AttributeValue variants.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindScalar
	KindPhased
	KindStatus
)

func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindPhased:
		return "phased"
	case KindStatus:
		return "status"
	default:
		return "none"
	}
}

// AttributeValue is a scalar reading, a per-phase reading or a status string.
// The zero value means "absent".
type AttributeValue struct {
	kind   ValueKind
	scalar float64
	phases map[Phase]float64
	status string
}

func Scalar(v float64) AttributeValue {
	return AttributeValue{kind: KindScalar, scalar: v}
}

// Phased copies p. Phases missing from p are absent in the value.
func Phased(p map[Phase]float64) AttributeValue {
	cp := make(map[Phase]float64, len(p))
	maps.Copy(cp, p)
	return AttributeValue{kind: KindPhased, phases: cp}
}

func Status(s string) AttributeValue {
	return AttributeValue{kind: KindStatus, status: s}
}

func (v AttributeValue) Kind() ValueKind { return v.kind }

// Present reports whether the value holds any variant.
func (v AttributeValue) Present() bool { return v.kind != KindNone }

func (v AttributeValue) Float() (float64, bool) {
	return v.scalar, v.kind == KindScalar
}

func (v AttributeValue) Text() (string, bool) {
	return v.status, v.kind == KindStatus
}

// Phase returns one phase of a phased value.
func (v AttributeValue) Phase(p Phase) (float64, bool) {
	if v.kind != KindPhased {
		return 0, false
	}
	x, ok := v.phases[p]
	return x, ok
}

// PhaseMap returns a copy of the phase readings.
func (v AttributeValue) PhaseMap() map[Phase]float64 {
	if v.kind != KindPhased {
		return nil
	}
	cp := make(map[Phase]float64, len(v.phases))
	maps.Copy(cp, v.phases)
	return cp
}

// PresentPhases returns the phases that hold a reading, sorted.
func (v AttributeValue) PresentPhases() []Phase {
	if v.kind != KindPhased {
		return nil
	}
	out := make([]Phase, 0, len(v.phases))
	for p := range v.phases {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasAllPhases reports whether L1, L2 and L3 are all present.
func (v AttributeValue) HasAllPhases() bool {
	if v.kind != KindPhased {
		return false
	}
	for _, p := range Phases {
		if _, ok := v.phases[p]; !ok {
			return false
		}
	}
	return true
}

// WithPhase returns a phased copy of v with phase p set. An absent value
// becomes a phased value holding only p.
func (v AttributeValue) WithPhase(p Phase, x float64) AttributeValue {
	out := Phased(v.phases)
	out.phases[p] = x
	return out
}

// Equal compares kind and content exactly.
func (v AttributeValue) Equal(o AttributeValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindScalar:
		return v.scalar == o.scalar
	case KindStatus:
		return v.status == o.status
	case KindPhased:
		return maps.Equal(v.phases, o.phases)
	}
	return true
}

// Round rounds numeric content to the given decimals. Status values pass through.
func (v AttributeValue) Round(places int32) AttributeValue {
	switch v.kind {
	case KindScalar:
		return Scalar(Round(v.scalar, places))
	case KindPhased:
		out := Phased(nil)
		for p, x := range v.phases {
			out.phases[p] = Round(x, places)
		}
		return out
	}
	return v
}

func (v AttributeValue) String() string {
	switch v.kind {
	case KindScalar:
		return strconv.FormatFloat(v.scalar, 'f', -1, 64)
	case KindStatus:
		return v.status
	case KindPhased:
		var buf bytes.Buffer
		for i, p := range Phases {
			if i > 0 {
				buf.WriteByte(';')
			}
			if x, ok := v.phases[p]; ok {
				buf.WriteString(strconv.FormatFloat(x, 'f', -1, 64))
			}
		}
		return buf.String()
	}
	return ""
}

// MarshalJSON encodes scalars as numbers, phases as objects, statuses as
// strings and absent values as null.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindScalar:
		return json.Marshal(v.scalar)
	case KindStatus:
		return json.Marshal(v.status)
	case KindPhased:
		return json.Marshal(v.phases)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a number, a string, an object of phase readings or null.
// Null phase entries are skipped.
func (v *AttributeValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = AttributeValue{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Status(s)
	case '{':
		var raw map[Phase]*float64
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decoding phase values: %w", err)
		}
		phases := make(map[Phase]float64, len(raw))
		for p, x := range raw {
			if x != nil {
				phases[p] = *x
			}
		}
		*v = Phased(phases)
	default:
		var x float64
		if err := json.Unmarshal(data, &x); err != nil {
			return fmt.Errorf("decoding value: %w", err)
		}
		*v = Scalar(x)
	}
	return nil
}

// Round rounds x half away from zero to the given number of decimals.
func Round(x float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(x).Round(places).Float64()
	return f
}

// Sanitize validates v against the attribute's range and rounds it to three
// decimals. A phased value with any phase out of range is rejected as a whole.
// Attributes without a declared range are only rounded.
func Sanitize(attr string, v AttributeValue) (AttributeValue, bool) {
	switch v.kind {
	case KindScalar:
		if r, ok := ValueRanges[attr]; ok && !r.Contains(v.scalar) {
			return AttributeValue{}, false
		}
	case KindPhased:
		for p, x := range v.phases {
			if r, ok := ValueRanges[PhaseName(attr, p)]; ok && !r.Contains(x) {
				return AttributeValue{}, false
			}
		}
	case KindNone:
		return AttributeValue{}, false
	}
	return v.Round(3), true
}

// OutOfRange reports whether a present numeric value falls outside the
// attribute range. Phased values fail if any phase fails.
func OutOfRange(attr string, v AttributeValue) bool {
	switch v.kind {
	case KindScalar:
		r, ok := ValueRanges[attr]
		return ok && !r.Contains(v.scalar)
	case KindPhased:
		for p, x := range v.phases {
			if r, ok := ValueRanges[PhaseName(attr, p)]; ok && !r.Contains(x) {
				return true
			}
		}
	}
	return false
}
