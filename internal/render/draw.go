package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/andresmejia3/posealign/internal/pose"
	"golang.org/x/image/vector"
)

// Style controls how a pose guide is drawn.
type Style struct {
	StickWidth  float64 // half-thickness of a body limb, in pixels
	JointRadius float64
	HandLine    float64
	Hands       bool
	Face        bool
}

// DefaultStyle is the usual DWpose look: body and hands, no face.
func DefaultStyle() Style {
	return Style{StickWidth: 4, JointRadius: 4, HandLine: 2, Hands: true}
}

// Body limbs as joint index pairs, in drawing order.
var limbSeq = [][2]int{
	{1, 2}, {1, 5}, {2, 3}, {3, 4}, {5, 6}, {6, 7}, {1, 8}, {8, 9}, {9, 10},
	{1, 11}, {11, 12}, {12, 13}, {1, 0}, {0, 14}, {14, 16}, {0, 15}, {15, 17},
}

var jointColors = []color.NRGBA{
	{255, 0, 0, 255}, {255, 85, 0, 255}, {255, 170, 0, 255}, {255, 255, 0, 255},
	{170, 255, 0, 255}, {85, 255, 0, 255}, {0, 255, 0, 255}, {0, 255, 85, 255},
	{0, 255, 170, 255}, {0, 255, 255, 255}, {0, 170, 255, 255}, {0, 85, 255, 255},
	{0, 0, 255, 255}, {85, 0, 255, 255}, {170, 0, 255, 255}, {255, 0, 255, 255},
	{255, 0, 170, 255}, {255, 0, 85, 255},
}

var handEdges = [][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 4}, {0, 5}, {5, 6}, {6, 7}, {7, 8}, {0, 9}, {9, 10},
	{10, 11}, {11, 12}, {0, 13}, {13, 14}, {14, 15}, {15, 16}, {0, 17}, {17, 18},
	{18, 19}, {19, 20},
}

var (
	handJointColor = color.NRGBA{0, 0, 255, 255}
	faceColor      = color.NRGBA{255, 255, 255, 255}
)

// DrawPose renders r on a black w x h canvas. Coordinates are normalized to
// the canvas; absent points and limbs touching them are not drawn.
func DrawPose(r pose.Record, w, h int, st Style) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	c := canvas{dst: dst, w: float64(w), h: float64(h)}

	for i, l := range limbSeq {
		a, b := r.Body[l[0]], r.Body[l[1]]
		if !a.Valid || !b.Valid {
			continue
		}
		c.ellipse(a, b, st.StickWidth, dim(jointColors[i], 0.6))
	}
	for i, p := range r.Body {
		if p.Valid {
			c.disc(p, st.JointRadius, jointColors[i])
		}
	}

	if st.Hands {
		for _, hand := range r.Hands {
			for e, edge := range handEdges {
				a, b := hand[edge[0]], hand[edge[1]]
				if !a.Valid || !b.Valid {
					continue
				}
				c.line(a, b, st.HandLine, hsv(float64(e)/float64(len(handEdges)), 1, 1))
			}
			for _, p := range hand {
				if p.Valid {
					c.disc(p, st.JointRadius, handJointColor)
				}
			}
		}
	}

	if st.Face {
		for _, p := range r.Face {
			if p.Valid {
				c.disc(p, 3, faceColor)
			}
		}
	}
	return dst
}

type canvas struct {
	dst  *image.NRGBA
	w, h float64
}

func (c canvas) px(p pose.Point) (float32, float32) {
	return float32(p.X * c.w), float32(p.Y * c.h)
}

func (c canvas) fill(pts [][2]float32, col color.Color) {
	if len(pts) < 3 {
		return
	}
	b := c.dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.DrawOp = draw.Over
	z.MoveTo(pts[0][0], pts[0][1])
	for _, p := range pts[1:] {
		z.LineTo(p[0], p[1])
	}
	z.ClosePath()
	z.Draw(c.dst, b, image.NewUniform(col), image.Point{})
}

// ellipse draws a limb as an ellipse spanning a..b with semi-minor axis width.
func (c canvas) ellipse(a, b pose.Point, width float64, col color.Color) {
	ax, ay := c.px(a)
	bx, by := c.px(b)
	mx, my := float64(ax+bx)/2, float64(ay+by)/2
	dx, dy := float64(bx-ax), float64(by-ay)
	semi := math.Hypot(dx, dy) / 2
	theta := math.Atan2(dy, dx)
	cos, sin := math.Cos(theta), math.Sin(theta)

	const n = 36
	pts := make([][2]float32, n)
	for k := range pts {
		t := 2 * math.Pi * float64(k) / n
		ex, ey := semi*math.Cos(t), width*math.Sin(t)
		pts[k] = [2]float32{float32(mx + ex*cos - ey*sin), float32(my + ex*sin + ey*cos)}
	}
	c.fill(pts, col)
}

func (c canvas) disc(p pose.Point, radius float64, col color.Color) {
	x, y := c.px(p)
	const n = 20
	pts := make([][2]float32, n)
	for k := range pts {
		t := 2 * math.Pi * float64(k) / n
		pts[k] = [2]float32{x + float32(radius*math.Cos(t)), y + float32(radius*math.Sin(t))}
	}
	c.fill(pts, col)
}

func (c canvas) line(a, b pose.Point, thickness float64, col color.Color) {
	ax, ay := c.px(a)
	bx, by := c.px(b)
	dx, dy := float64(bx-ax), float64(by-ay)
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	// Unit normal scaled to half the thickness
	nx, ny := float32(-dy/l*thickness/2), float32(dx/l*thickness/2)
	c.fill([][2]float32{{ax + nx, ay + ny}, {bx + nx, by + ny}, {bx - nx, by - ny}, {ax - nx, ay - ny}}, col)
}

func dim(c color.NRGBA, f float64) color.NRGBA {
	return color.NRGBA{uint8(float64(c.R) * f), uint8(float64(c.G) * f), uint8(float64(c.B) * f), c.A}
}

// hsv converts h in [0,1) with full saturation/value semantics to RGB.
func hsv(h, s, v float64) color.NRGBA {
	h = math.Mod(h, 1) * 6
	i := math.Floor(h)
	f := h - i
	p, q, t := v*(1-s), v*(1-s*f), v*(1-s*(1-f))
	var r, g, b float64
	switch int(i) {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return color.NRGBA{uint8(r * 255), uint8(g * 255), uint8(b * 255), 255}
}
