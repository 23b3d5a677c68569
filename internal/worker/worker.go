package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/posealign/internal/pose"
	"github.com/andresmejia3/posealign/internal/types"
	"github.com/andresmejia3/posealign/internal/utils" // Using the SafeCommand wrapper
)

// Response status bytes written by the Python side.
const (
	statusOK    byte = 0
	statusError byte = 1
)

// maxResponse guards against a corrupted length header.
const maxResponse = 64 * 1024 * 1024

// ErrTimeout is returned when the worker does not answer within ReadTimeout.
var ErrTimeout = errors.New("python worker timed out")

// Config controls how the pose worker process is launched.
type Config struct {
	// Script is the Python entry point.
	Script string
	// DetectResolution is the short side the detector resizes frames to.
	DetectResolution int
	// ImageResolution is the short side of the rendered guide images.
	ImageResolution int
	// ReadTimeout bounds a single request. Zero waits forever.
	ReadTimeout time.Duration
}

// DefaultConfig matches the detector's usual settings.
func DefaultConfig() Config {
	return Config{
		Script:           "python/pose_worker.py",
		DetectResolution: 512,
		ImageResolution:  720,
		ReadTimeout:      30 * time.Second,
	}
}

// PythonPoseWorker owns one long-lived pose estimator process.
type PythonPoseWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	Timeout  time.Duration
}

func NewPythonPoseWorker(ctx context.Context, id int, cfg Config) (*PythonPoseWorker, error) {
	py := utils.NewSafeCommandContext(ctx, "python3", "-u", cfg.Script,
		"--detect-resolution", strconv.Itoa(cfg.DetectResolution),
		"--image-resolution", strconv.Itoa(cfg.ImageResolution))

	// Side-channel pipe (FD 3) keeps responses apart from library noise on stdout
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Only the child holds the write end now
	w.Close()

	return &PythonPoseWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		Timeout:  cfg.ReadTimeout,
	}, nil
}

// Communicate sends one [Length][Data] request and reads one [Length][Body] response.
func (w *PythonPoseWorker) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // A worker that died on import lands here
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("response too large: %d bytes", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Detect runs pose estimation on one encoded frame.
func (w *PythonPoseWorker) Detect(ctx context.Context, frame []byte) (pose.Record, error) {
	type reply struct {
		body []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		body, err := w.Communicate(frame)
		done <- reply{body, err}
	}()

	var timeout <-chan time.Time
	if w.Timeout > 0 {
		timer := time.NewTimer(w.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var body []byte
	select {
	case r := <-done:
		if r.err != nil {
			return pose.Record{}, r.err
		}
		body = r.body
	case <-timeout:
		return pose.Record{}, fmt.Errorf("worker %d: %w after %s", w.ID, ErrTimeout, w.Timeout)
	case <-ctx.Done():
		return pose.Record{}, ctx.Err()
	}

	res, err := decodeResponse(body)
	if err != nil {
		return pose.Record{}, err
	}
	return pose.FromWire(res), nil
}

// decodeResponse parses [Status][Payload]. OK carries pose JSON, error carries [MsgLen][Msg].
func decodeResponse(body []byte) (types.PoseResult, error) {
	var res types.PoseResult
	if len(body) == 0 {
		return res, errors.New("empty response from python worker")
	}

	switch body[0] {
	case statusOK:
		if err := json.Unmarshal(body[1:], &res); err != nil {
			// Logic errors may still arrive as {"error": "..."}
			var errorResult types.ErrorResult
			if json.Unmarshal(body[1:], &errorResult) == nil && errorResult.Error != "" {
				return res, fmt.Errorf("python worker error: %s", errorResult.Error)
			}
			return res, fmt.Errorf("malformed pose JSON: %w", err)
		}
		return res, nil
	case statusError:
		if len(body) < 5 {
			return res, errors.New("truncated error response from python worker")
		}
		n := binary.BigEndian.Uint32(body[1:5])
		if int(n) > len(body)-5 {
			return res, errors.New("truncated error response from python worker")
		}
		return res, fmt.Errorf("python worker error: %s", string(body[5:5+n]))
	}
	return res, fmt.Errorf("unknown response status %d", body[0])
}

func (w *PythonPoseWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
