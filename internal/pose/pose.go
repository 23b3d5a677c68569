// Package pose holds the keypoint records produced by the detector and the
// conversions between the detector's wire format and the typed model.
package pose

import "math"

const (
	// BodyJoints is the number of body keypoints in a record.
	BodyJoints = 18
	// HandJoints is the number of keypoints per hand.
	HandJoints = 21
)

// Body joint indices.
const (
	Neck      = 0
	Root      = 1
	RShoulder = 2
	RElbow    = 3
	RWrist    = 4
	LShoulder = 5
	LElbow    = 6
	LWrist    = 7
	RHip      = 8
	RKnee     = 9
	RAnkle    = 10
	LHip      = 11
	LKnee     = 12
	LAnkle    = 13
	REye      = 14
	LEye      = 15
	REar      = 16
	LEar      = 17
)

// The detector emits the hand attached to body[4] second and the hand
// attached to body[7] first.
const (
	HandOfRWrist = 1
	HandOfLWrist = 0
)

// Sentinel is the coordinate the detector uses for an undetected joint.
const Sentinel = -1.0

// Vec is a 2D displacement.
type Vec struct {
	X, Y float64
}

// Point is a keypoint that may be absent.
type Point struct {
	X, Y  float64
	Valid bool
}

// Pt returns a present point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y, Valid: true}
}

// Absent returns the undetected point.
func Absent() Point {
	return Point{}
}

// Sub returns p - q. The result is meaningless unless both are present.
func (p Point) Sub(q Point) Vec {
	return Vec{X: p.X - q.X, Y: p.Y - q.Y}
}

// Add translates p by v. Absent points stay absent.
func (p Point) Add(v Vec) Point {
	if !p.Valid {
		return p
	}
	return Point{X: p.X + v.X, Y: p.Y + v.Y, Valid: true}
}

// Finite reports whether both coordinates are real numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Dist is the Euclidean distance between p and q, or NaN when either is absent.
func Dist(p, q Point) float64 {
	if !p.Valid || !q.Valid {
		return math.NaN()
	}
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Mid is the midpoint of p and q, absent when either is absent.
func Mid(p, q Point) Point {
	if !p.Valid || !q.Valid {
		return Absent()
	}
	return Pt((p.X+q.X)/2, (p.Y+q.Y)/2)
}

// Body is the 18-joint skeleton.
type Body [BodyJoints]Point

// Hand is one 21-joint hand.
type Hand [HandJoints]Point

// Record is one frame's detection result.
type Record struct {
	Body  Body
	Hands [2]Hand
	Face  []Point
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	if r.Face != nil {
		c.Face = make([]Point, len(r.Face))
		copy(c.Face, r.Face)
	}
	return c
}

// HasRoot reports whether the root joint was detected.
func (r Record) HasRoot() bool {
	return r.Body[Root].Valid
}

// each calls fn on every point of the record.
func (r *Record) each(fn func(p *Point)) {
	for i := range r.Body {
		fn(&r.Body[i])
	}
	for h := range r.Hands {
		for i := range r.Hands[h] {
			fn(&r.Hands[h][i])
		}
	}
	for i := range r.Face {
		fn(&r.Face[i])
	}
}

// ScaleX multiplies the x coordinate of every present point by ratio.
// Dividing the detector's output by frame height and multiplying by width
// (ratio = width/height) restores the frame's real aspect.
func (r *Record) ScaleX(ratio float64) {
	r.each(func(p *Point) {
		if p.Valid {
			p.X *= ratio
		}
	})
}

// Translate adds v to every present point.
func (r *Record) Translate(v Vec) {
	r.each(func(p *Point) {
		*p = p.Add(v)
	})
}

// Sanitize marks every point holding a NaN or infinite coordinate absent.
func (r *Record) Sanitize() {
	r.each(func(p *Point) {
		if p.Valid && !p.Finite() {
			*p = Absent()
		}
	})
}

// Count returns the number of present body joints.
func (r Record) Count() int {
	n := 0
	for _, p := range r.Body {
		if p.Valid {
			n++
		}
	}
	return n
}
