// Package align retargets a driving skeleton onto the proportions of a
// reference skeleton: calibration of per-limb scale factors and the
// hierarchical per-frame warp.
package align

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUndefinedPivot is returned when the root joint needed as a pivot is absent.
var ErrUndefinedPivot = errors.New("root joint not detected")

// Limb names one calibrated body segment.
type Limb int

const (
	LimbNeck Limb = iota
	LimbFace
	LimbShoulder
	LimbArmUpper
	LimbArmLower
	LimbHand
	LimbBodyLen
	LimbLegUpper
	LimbLegLower
	NumLimbs
)

var limbNames = [NumLimbs]string{
	"neck", "face", "shoulder", "arm_upper", "arm_lower",
	"hand", "body_len", "leg_upper", "leg_lower",
}

func (l Limb) String() string {
	if l < 0 || l >= NumLimbs {
		return fmt.Sprintf("Limb(%d)", int(l))
	}
	return limbNames[l]
}

// ParseLimb returns the limb for a name as printed by String.
func ParseLimb(name string) (Limb, error) {
	for i, n := range limbNames {
		if strings.EqualFold(n, name) {
			return Limb(i), nil
		}
	}
	return 0, fmt.Errorf("unknown limb %q", name)
}

// ScaleTable holds one scale factor per limb.
type ScaleTable [NumLimbs]float64

// Uniform returns a table with every entry set to s.
func Uniform(s float64) ScaleTable {
	var t ScaleTable
	for i := range t {
		t[i] = s
	}
	return t
}

// Map returns the table keyed by the "scale_<limb>" names.
func (t ScaleTable) Map() map[string]float64 {
	m := make(map[string]float64, NumLimbs)
	for i, v := range t {
		m["scale_"+Limb(i).String()] = v
	}
	return m
}

// TableFromMap is the inverse of Map. Every limb must be present.
func TableFromMap(m map[string]float64) (ScaleTable, error) {
	var t ScaleTable
	seen := make(map[Limb]bool, NumLimbs)
	for k, v := range m {
		l, err := ParseLimb(strings.TrimPrefix(k, "scale_"))
		if err != nil {
			return t, err
		}
		t[l] = v
		seen[l] = true
	}
	if len(seen) != int(NumLimbs) {
		return t, fmt.Errorf("scale table has %d of %d limbs", len(seen), int(NumLimbs))
	}
	return t, nil
}
