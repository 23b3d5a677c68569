package align

import "github.com/andresmejia3/posealign/internal/pose"

// template is an upright skeleton in normalized coordinates.
var template = pose.Body{
	pose.Pt(0.50, 0.20), // neck
	pose.Pt(0.50, 0.30), // root
	pose.Pt(0.42, 0.30),
	pose.Pt(0.38, 0.42),
	pose.Pt(0.36, 0.54),
	pose.Pt(0.58, 0.30),
	pose.Pt(0.62, 0.42),
	pose.Pt(0.64, 0.54),
	pose.Pt(0.45, 0.55),
	pose.Pt(0.45, 0.72),
	pose.Pt(0.45, 0.90),
	pose.Pt(0.55, 0.55),
	pose.Pt(0.55, 0.72),
	pose.Pt(0.55, 0.90),
	pose.Pt(0.48, 0.18),
	pose.Pt(0.52, 0.18),
	pose.Pt(0.46, 0.19),
	pose.Pt(0.54, 0.19),
}

// skeleton returns the template scaled by k about the root, with two hands
// hanging from the wrists and a small face.
func skeleton(k float64) pose.Record {
	var r pose.Record
	root := template[pose.Root]
	for i, p := range template {
		r.Body[i] = root.Add(pose.Vec{X: k * (p.X - root.X), Y: k * (p.Y - root.Y)})
	}

	wrists := map[int]int{pose.HandOfRWrist: pose.RWrist, pose.HandOfLWrist: pose.LWrist}
	for h, w := range wrists {
		base := r.Body[w]
		for i := range r.Hands[h] {
			dx := k * 0.002 * float64(i%5+1)
			dy := k * 0.003 * float64(i/5+1)
			r.Hands[h][i] = base.Add(pose.Vec{X: dx, Y: dy})
		}
		r.Hands[h][0] = base
	}

	r.Face = []pose.Point{pose.Pt(0.49, 0.19), pose.Pt(0.51, 0.19), pose.Absent()}
	return r
}
