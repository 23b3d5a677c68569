package pipeline

import (
	"bufio"
	"io"

	"github.com/andresmejia3/posealign/internal/utils"
)

const megabyte = 1024 * 1024

// JPEGSource splits an MJPEG byte stream (ffmpeg image2pipe output) into frames.
type JPEGSource struct {
	scanner *bufio.Scanner
}

// NewJPEGSource wraps r, typically the decoder's stdout.
func NewJPEGSource(r io.Reader) *JPEGSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)
	return &JPEGSource{scanner: scanner}
}

// Next returns a copy of the next frame, or io.EOF.
func (s *JPEGSource) Next() ([]byte, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	buf := make([]byte, len(s.scanner.Bytes()))
	copy(buf, s.scanner.Bytes())
	return buf, nil
}
