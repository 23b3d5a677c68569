package align

import (
	"fmt"
	"math"

	"github.com/andresmejia3/posealign/internal/pose"
	"gonum.org/v1/gonum/stat"
)

// handPairs are the wrist-to-finger-base segments used for the hand scale.
var handPairs = [5][2]int{{0, 1}, {0, 5}, {0, 9}, {0, 13}, {0, 17}}

// Calibration is the per-run result of comparing the reference skeleton with
// the first aligned driving frame.
type Calibration struct {
	Scales ScaleTable
	// Offset moves the driving root onto the reference root.
	Offset pose.Vec
	// Degenerate lists the limbs whose ratio was back-filled.
	Degenerate []Limb
}

// Calibrate computes the nine limb scale factors and the root offset.
// Both records must already be aspect-normalized (see pose.Record.ScaleX).
func Calibrate(ref, drv pose.Record) (Calibration, error) {
	if !ref.HasRoot() {
		return Calibration{}, fmt.Errorf("reference: %w", ErrUndefinedPivot)
	}
	if !drv.HasRoot() {
		return Calibration{}, fmt.Errorf("driving frame: %w", ErrUndefinedPivot)
	}

	rb, db := ref.Body, drv.Body
	ratio := func(a, b int) float64 {
		return pose.Dist(rb[a], rb[b]) / pose.Dist(db[a], db[b])
	}

	var t ScaleTable
	t[LimbNeck] = ratio(pose.Neck, pose.Root)
	t[LimbFace] = ratio(pose.REar, pose.LEar)
	t[LimbShoulder] = ratio(pose.RShoulder, pose.LShoulder)
	t[LimbArmUpper] = (ratio(pose.RShoulder, pose.RElbow) + ratio(pose.LShoulder, pose.LElbow)) / 2
	t[LimbArmLower] = (ratio(pose.RElbow, pose.RWrist) + ratio(pose.LElbow, pose.LWrist)) / 2
	t[LimbHand] = handScale(ref, drv, t[LimbArmUpper], t[LimbArmLower])
	t[LimbBodyLen] = pose.Dist(rb[pose.Root], pose.Mid(rb[pose.RHip], rb[pose.LHip])) /
		pose.Dist(db[pose.Root], pose.Mid(db[pose.RHip], db[pose.LHip]))
	t[LimbLegUpper] = (ratio(pose.RHip, pose.RKnee) + ratio(pose.LHip, pose.LKnee)) / 2
	t[LimbLegLower] = (ratio(pose.RKnee, pose.RAnkle) + ratio(pose.LKnee, pose.LAnkle)) / 2

	degenerate := backfill(&t)

	return Calibration{
		Scales:     t,
		Offset:     rb[pose.Root].Sub(db[pose.Root]),
		Degenerate: degenerate,
	}, nil
}

// handScale averages the per-segment hand ratios and blends the result with
// the arm scales. Segments with a zero or undefined driving length are skipped.
func handScale(ref, drv pose.Record, armUpper, armLower float64) float64 {
	var sum float64
	count := 0
	for h := range drv.Hands {
		for _, p := range handPairs {
			d := pose.Dist(drv.Hands[h][p[0]], drv.Hands[h][p[1]])
			r := pose.Dist(ref.Hands[h][p[0]], ref.Hands[h][p[1]])
			if d == 0 || math.IsNaN(d) || math.IsNaN(r) {
				continue
			}
			sum += r / d
			count++
		}
	}
	if count == 0 {
		return (armUpper + armLower) / 2
	}
	return (sum/float64(count) + armUpper + armLower) / 3
}

// backfill replaces every non-finite entry with the mean of the finite ones,
// or with 1 when none is finite. It returns the limbs it replaced.
func backfill(t *ScaleTable) []Limb {
	var finite []float64
	var bad []Limb
	for i, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad = append(bad, Limb(i))
			continue
		}
		finite = append(finite, v)
	}
	if len(bad) == 0 {
		return nil
	}

	fill := 1.0
	if len(finite) > 0 {
		fill = stat.Mean(finite, nil)
	}
	for _, l := range bad {
		t[l] = fill
	}
	return bad
}
