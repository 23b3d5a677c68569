package align

import (
	"math"

	"github.com/andresmejia3/posealign/internal/pose"
	"gonum.org/v1/gonum/mat"
)

// RotationMatrix2D builds the 2x3 affine matrix that rotates by angle degrees
// (counter-clockwise in image space) and scales by scale about center.
// It follows the layout of OpenCV's getRotationMatrix2D.
func RotationMatrix2D(center pose.Point, angle, scale float64) *mat.Dense {
	rad := angle * math.Pi / 180
	alpha := scale * math.Cos(rad)
	beta := scale * math.Sin(rad)
	cx, cy := center.X, center.Y

	return mat.NewDense(2, 3, []float64{
		alpha, beta, (1-alpha)*cx - beta*cy,
		-beta, alpha, beta*cx + (1-alpha)*cy,
	})
}

// WarpPoints applies the 2x3 affine m to every present point of pts in place.
func WarpPoints(pts []pose.Point, m *mat.Dense) {
	idx := make([]int, 0, len(pts))
	for i, p := range pts {
		if p.Valid {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return
	}

	// Homogeneous 3xN so a single product applies the whole transform
	h := mat.NewDense(3, len(idx), nil)
	for j, i := range idx {
		h.Set(0, j, pts[i].X)
		h.Set(1, j, pts[i].Y)
		h.Set(2, j, 1)
	}

	var out mat.Dense
	out.Mul(m, h)

	for j, i := range idx {
		pts[i] = pose.Pt(out.At(0, j), out.At(1, j))
	}
}

// Warp scales pts about pivot by s with no rotation: p' = pivot + s*(p - pivot).
// Absent points are left untouched. An absent pivot leaves pts unchanged.
func Warp(pivot pose.Point, s float64, pts []pose.Point) {
	if !pivot.Valid {
		return
	}
	WarpPoints(pts, RotationMatrix2D(pivot, 0, s))
}
