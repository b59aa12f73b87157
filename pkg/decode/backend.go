// Package decode turns a video container into a time-sampled stream of
// planar YUV frames.
package decode

import (
	"context"
	"strings"

	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/tauraamui/xerror"
)

// Info is the container metadata the sampler needs up front. Both
// fields must be known before any frame is emitted; a container that
// cannot report them is rejected outright.
type Info struct {
	DurationSeconds float64
	FPS             float64
}

// Connection is an open decode session over a single video track.
type Connection interface {
	Info() Info
	// Read decodes the next frame into a YUV420P planar frame whose
	// data buffer is drawn from the pool. It returns io.EOF at stream
	// end.
	Read(pool *frame.Pool) (frame.Planar, error)
	Close() error
}

// Backend opens decode connections. Two implementations exist: FFmpeg
// (go-astiav) and OpenCV (gocv).
type Backend interface {
	Open(ctx context.Context, path string) (Connection, error)
}

// ResolveBackend maps a CLI/config name to a backend. The empty string
// selects FFmpeg.
func ResolveBackend(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "", "ffmpeg":
		return &ffmpegBackend{}, nil
	case "opencv":
		return &openCVBackend{}, nil
	}
	return nil, xerror.Errorf("unknown decoder backend: %s", name)
}
