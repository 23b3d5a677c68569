package align

import (
	"errors"
	"math"
	"testing"

	"github.com/andresmejia3/posealign/internal/pose"
)

func TestCalibrateExactRatios(t *testing.T) {
	ref := skeleton(1.5)
	drv := skeleton(1.0)

	cal, err := Calibrate(ref, drv)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}

	for l := Limb(0); l < NumLimbs; l++ {
		if math.Abs(cal.Scales[l]-1.5) > 1e-9 {
			t.Errorf("%s = %v, want 1.5", l, cal.Scales[l])
		}
	}
	if len(cal.Degenerate) != 0 {
		t.Errorf("unexpected degenerate limbs: %v", cal.Degenerate)
	}
}

func TestCalibratePerLimbDistances(t *testing.T) {
	ref := skeleton(1.0)
	drv := skeleton(1.0)
	// Lengthen the reference neck and widen its shoulders independently
	ref.Body[pose.Neck] = pose.Pt(0.50, 0.30-0.106)
	drv.Body[pose.Neck] = pose.Pt(0.50, 0.30-0.078)
	ref.Body[pose.RShoulder] = pose.Pt(0.40, 0.30)
	ref.Body[pose.LShoulder] = pose.Pt(0.60, 0.30)

	cal, err := Calibrate(ref, drv)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}

	if want := 0.106 / 0.078; math.Abs(cal.Scales[LimbNeck]-want) > 1e-9 {
		t.Errorf("neck = %v, want %v", cal.Scales[LimbNeck], want)
	}
	if math.Abs(cal.Scales[LimbNeck]-1.359) > 1e-3 {
		t.Errorf("neck = %v, want ~1.359", cal.Scales[LimbNeck])
	}

	wantShoulder := pose.Dist(ref.Body[2], ref.Body[5]) / pose.Dist(drv.Body[2], drv.Body[5])
	if math.Abs(cal.Scales[LimbShoulder]-wantShoulder) > 1e-9 {
		t.Errorf("shoulder = %v, want %v", cal.Scales[LimbShoulder], wantShoulder)
	}

	s1 := pose.Dist(ref.Body[2], ref.Body[3]) / pose.Dist(drv.Body[2], drv.Body[3])
	s2 := pose.Dist(ref.Body[5], ref.Body[6]) / pose.Dist(drv.Body[5], drv.Body[6])
	if want := (s1 + s2) / 2; math.Abs(cal.Scales[LimbArmUpper]-want) > 1e-9 {
		t.Errorf("arm_upper = %v, want %v", cal.Scales[LimbArmUpper], want)
	}
}

func TestCalibrateRootOffset(t *testing.T) {
	ref := skeleton(1.0)
	drv := skeleton(1.0)
	drv.Translate(pose.Vec{X: -0.1, Y: 0.05})

	cal, err := Calibrate(ref, drv)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if math.Abs(cal.Offset.X-0.1) > 1e-12 || math.Abs(cal.Offset.Y+0.05) > 1e-12 {
		t.Errorf("offset = %+v, want (0.1, -0.05)", cal.Offset)
	}
}

func TestCalibrateSingleZeroBackfill(t *testing.T) {
	ref := skeleton(1.2)
	drv := skeleton(1.0)
	// Shorter reference legs so the finite entries are not all equal
	for _, j := range []int{pose.RAnkle, pose.LAnkle} {
		ref.Body[j].Y -= 0.05
	}
	// Zero-length driving neck
	drv.Body[pose.Neck] = drv.Body[pose.Root]

	cal, err := Calibrate(ref, drv)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}

	var sum float64
	for l := Limb(0); l < NumLimbs; l++ {
		if l != LimbNeck {
			sum += cal.Scales[l]
		}
	}
	want := sum / float64(NumLimbs-1)
	if math.Abs(cal.Scales[LimbNeck]-want) > 1e-9 {
		t.Errorf("neck = %v, want mean of others %v", cal.Scales[LimbNeck], want)
	}
	if len(cal.Degenerate) != 1 || cal.Degenerate[0] != LimbNeck {
		t.Errorf("Degenerate = %v, want [neck]", cal.Degenerate)
	}
}

func TestCalibrateHandFallback(t *testing.T) {
	ref := skeleton(1.0)
	// Longer reference forearms so arm_upper and arm_lower differ
	ref.Body[pose.RWrist].Y += 0.06
	ref.Body[pose.LWrist].Y += 0.06

	drv := skeleton(1.0)
	for h := range drv.Hands {
		for i := range drv.Hands[h] {
			drv.Hands[h][i] = drv.Hands[h][0]
		}
	}

	cal, err := Calibrate(ref, drv)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}

	au, al := cal.Scales[LimbArmUpper], cal.Scales[LimbArmLower]
	if math.Abs(au-al) < 1e-3 {
		t.Fatalf("fixture should give distinct arm scales, got %v and %v", au, al)
	}
	if want := (au + al) / 2; math.Abs(cal.Scales[LimbHand]-want) > 1e-12 {
		t.Errorf("hand = %v, want fallback %v", cal.Scales[LimbHand], want)
	}
}

func TestCalibrateHandBlend(t *testing.T) {
	ref := skeleton(1.0)
	ref.Body[pose.RWrist].Y += 0.06
	ref.Body[pose.LWrist].Y += 0.06
	drv := skeleton(1.0)

	cal, err := Calibrate(ref, drv)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}

	// Hand segments have identical lengths, so the hand average is 1
	au, al := cal.Scales[LimbArmUpper], cal.Scales[LimbArmLower]
	if want := (1 + au + al) / 3; math.Abs(cal.Scales[LimbHand]-want) > 1e-9 {
		t.Errorf("hand = %v, want blend %v", cal.Scales[LimbHand], want)
	}
}

func TestCalibrateAllDegenerate(t *testing.T) {
	ref := skeleton(1.0)
	var drv pose.Record
	for i := range drv.Body {
		drv.Body[i] = pose.Pt(0.5, 0.5)
	}

	cal, err := Calibrate(ref, drv)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	for l := Limb(0); l < NumLimbs; l++ {
		if cal.Scales[l] != 1 {
			t.Errorf("%s = %v, want 1", l, cal.Scales[l])
		}
	}
}

func TestCalibrateAbsentJointIsDegenerate(t *testing.T) {
	ref := skeleton(2.0)
	drv := skeleton(1.0)
	drv.Body[pose.REar] = pose.Absent()

	cal, err := Calibrate(ref, drv)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if math.Abs(cal.Scales[LimbFace]-2.0) > 1e-9 {
		t.Errorf("face = %v, want back-filled 2.0", cal.Scales[LimbFace])
	}
}

func TestCalibrateMissingRoot(t *testing.T) {
	ref := skeleton(1.0)
	drv := skeleton(1.0)
	drv.Body[pose.Root] = pose.Absent()

	if _, err := Calibrate(ref, drv); !errors.Is(err, ErrUndefinedPivot) {
		t.Errorf("expected ErrUndefinedPivot, got %v", err)
	}
	if _, err := Calibrate(drv, ref); !errors.Is(err, ErrUndefinedPivot) {
		t.Errorf("expected ErrUndefinedPivot for reference, got %v", err)
	}
}

func TestParseLimb(t *testing.T) {
	for l := Limb(0); l < NumLimbs; l++ {
		got, err := ParseLimb(l.String())
		if err != nil || got != l {
			t.Errorf("ParseLimb(%q) = %v, %v", l.String(), got, err)
		}
	}
	if _, err := ParseLimb("tail"); err == nil {
		t.Error("expected error for unknown limb")
	}
	if m := Uniform(2).Map(); m["scale_hand"] != 2 || len(m) != int(NumLimbs) {
		t.Errorf("unexpected map: %v", m)
	}
}

func TestTableFromMap(t *testing.T) {
	want := Uniform(1)
	want[LimbNeck] = 1.25
	got, err := TableFromMap(want.Map())
	if err != nil || got != want {
		t.Fatalf("TableFromMap round trip = %v, %v", got, err)
	}

	m := want.Map()
	delete(m, "scale_neck")
	if _, err := TableFromMap(m); err == nil {
		t.Error("expected error for missing limb")
	}
	m["scale_tail"] = 1
	if _, err := TableFromMap(m); err == nil {
		t.Error("expected error for unknown limb")
	}
}
