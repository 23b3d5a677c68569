package align

import (
	"fmt"

	"github.com/andresmejia3/posealign/internal/pose"
)

// step rescales the segment between a parent joint and its children.
// hand >= 0 selects a whole hand set as the children instead of body joints.
type step struct {
	limb     Limb
	parent   int
	children []int
	hand     int
}

// hierarchy is walked in order; every parent is either the root or a child
// of an earlier step.
var hierarchy = []step{
	{limb: LimbNeck, parent: pose.Root, children: []int{pose.Neck}, hand: -1},
	{limb: LimbFace, parent: pose.Neck, children: []int{pose.REye, pose.LEye, pose.REar, pose.LEar}, hand: -1},
	{limb: LimbShoulder, parent: pose.Root, children: []int{pose.RShoulder, pose.LShoulder}, hand: -1},

	{limb: LimbArmUpper, parent: pose.RShoulder, children: []int{pose.RElbow}, hand: -1},
	{limb: LimbArmLower, parent: pose.RElbow, children: []int{pose.RWrist}, hand: -1},
	{limb: LimbHand, parent: pose.RWrist, hand: pose.HandOfRWrist},

	{limb: LimbArmUpper, parent: pose.LShoulder, children: []int{pose.LElbow}, hand: -1},
	{limb: LimbArmLower, parent: pose.LElbow, children: []int{pose.LWrist}, hand: -1},
	{limb: LimbHand, parent: pose.LWrist, hand: pose.HandOfLWrist},

	{limb: LimbBodyLen, parent: pose.Root, children: []int{pose.RHip, pose.LHip}, hand: -1},
	{limb: LimbLegUpper, parent: pose.RHip, children: []int{pose.RKnee}, hand: -1},
	{limb: LimbLegLower, parent: pose.RKnee, children: []int{pose.RAnkle}, hand: -1},
	{limb: LimbLegUpper, parent: pose.LHip, children: []int{pose.LKnee}, hand: -1},
	{limb: LimbLegLower, parent: pose.LKnee, children: []int{pose.LAnkle}, hand: -1},
}

func init() {
	if err := checkHierarchy(hierarchy); err != nil {
		panic(err)
	}
}

// checkHierarchy verifies that no step uses a parent before it was warped.
func checkHierarchy(steps []step) error {
	var placed [pose.BodyJoints]bool
	placed[pose.Root] = true
	for i, s := range steps {
		if !placed[s.parent] {
			return fmt.Errorf("step %d (%s): parent joint %d used before it is placed", i, s.limb, s.parent)
		}
		for _, c := range s.children {
			if placed[c] {
				return fmt.Errorf("step %d (%s): joint %d warped twice", i, s.limb, c)
			}
			placed[c] = true
		}
	}
	return nil
}

// Aligner applies a calibrated ScaleTable to driving frames.
type Aligner struct {
	Scales ScaleTable
}

// NewAligner returns an Aligner for the given scales.
func NewAligner(scales ScaleTable) *Aligner {
	return &Aligner{Scales: scales}
}

// Align returns a copy of in with every limb rescaled. Each child is placed
// at its parent's warped position plus its original offset from the parent,
// scaled about the new parent position. The root joint never moves.
//
// Joints absent in the input stay absent. A present child whose parent is
// absent keeps its input position. Face points are passed through.
func (a *Aligner) Align(in pose.Record) (pose.Record, error) {
	if !in.HasRoot() {
		return pose.Record{}, ErrUndefinedPivot
	}

	orig := in.Clone()
	out := in.Clone()

	for _, s := range hierarchy {
		parentOld := orig.Body[s.parent]
		parentNew := out.Body[s.parent]
		scale := a.Scales[s.limb]

		var pts []pose.Point
		if s.hand >= 0 {
			pts = make([]pose.Point, pose.HandJoints)
			copy(pts, orig.Hands[s.hand][:])
		} else {
			pts = make([]pose.Point, len(s.children))
			for i, c := range s.children {
				pts[i] = orig.Body[c]
			}
		}

		if parentOld.Valid && parentNew.Valid {
			for i := range pts {
				if pts[i].Valid {
					pts[i] = parentNew.Add(pts[i].Sub(parentOld))
				}
			}
			Warp(parentNew, scale, pts)
		}

		if s.hand >= 0 {
			copy(out.Hands[s.hand][:], pts)
		} else {
			for i, c := range s.children {
				out.Body[c] = pts[i]
			}
		}
	}

	out.Sanitize()
	return out, nil
}
