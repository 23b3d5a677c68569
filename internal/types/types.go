package types

// Coord is an [x, y] pair as emitted by the pose worker. Either component may
// be null when the detector produced a NaN.
type Coord [2]*float64

// Bodies matches the "bodies" object of the DWpose output
type Bodies struct {
	Candidate []Coord     `json:"candidate"`
	Subset    [][]float64 `json:"subset,omitempty"`
}

// PoseResult matches the JSON structure coming back from the Python pose worker.
// All coordinates are normalized to [0,1] relative to the detect canvas.
type PoseResult struct {
	Bodies Bodies    `json:"bodies"`
	Hands  [][]Coord `json:"hands"`
	Faces  [][]Coord `json:"faces"`
}

// ErrorResult captures the error object returned by Python on failure
type ErrorResult struct {
	Error string `json:"error"`
}
