package pose

import (
	"math"

	"github.com/andresmejia3/posealign/internal/types"
)

// FromWire converts a worker result into a Record. Only the first person is
// kept: the first 18 candidates, the first two hands and the first face.
// Sentinel, null and NaN coordinates become absent points.
func FromWire(res types.PoseResult) Record {
	var r Record
	for i := range r.Body {
		r.Body[i] = Absent()
		if i < len(res.Bodies.Candidate) {
			r.Body[i] = fromCoord(res.Bodies.Candidate[i])
		}
	}
	for h := range r.Hands {
		for i := range r.Hands[h] {
			r.Hands[h][i] = Absent()
			if h < len(res.Hands) && i < len(res.Hands[h]) {
				r.Hands[h][i] = fromCoord(res.Hands[h][i])
			}
		}
	}
	if len(res.Faces) > 0 {
		r.Face = make([]Point, len(res.Faces[0]))
		for i, c := range res.Faces[0] {
			r.Face[i] = fromCoord(c)
		}
	}
	return r
}

func fromCoord(c types.Coord) Point {
	if c[0] == nil || c[1] == nil {
		return Absent()
	}
	x, y := *c[0], *c[1]
	if math.IsNaN(x) || math.IsNaN(y) || x == Sentinel || y == Sentinel {
		return Absent()
	}
	return Pt(x, y)
}

// ToWire converts a Record back into the detector's convention, writing
// absent points as the (-1, -1) sentinel.
func ToWire(r Record) types.PoseResult {
	res := types.PoseResult{
		Bodies: types.Bodies{Candidate: make([]types.Coord, BodyJoints)},
		Hands:  make([][]types.Coord, len(r.Hands)),
	}
	subset := make([]float64, BodyJoints)
	for i, p := range r.Body {
		res.Bodies.Candidate[i] = toCoord(p)
		subset[i] = float64(i)
		if !p.Valid {
			subset[i] = -1
		}
	}
	res.Bodies.Subset = [][]float64{subset}
	for h := range r.Hands {
		res.Hands[h] = make([]types.Coord, HandJoints)
		for i, p := range r.Hands[h] {
			res.Hands[h][i] = toCoord(p)
		}
	}
	face := make([]types.Coord, len(r.Face))
	for i, p := range r.Face {
		face[i] = toCoord(p)
	}
	res.Faces = [][]types.Coord{face}
	return res
}

func toCoord(p Point) types.Coord {
	x, y := Sentinel, Sentinel
	if p.Valid && p.Finite() {
		x, y = p.X, p.Y
	}
	return types.Coord{&x, &y}
}
