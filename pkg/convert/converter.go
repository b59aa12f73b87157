// Package convert provides the interchangeable YUV420P to RGB
// converter implementations and their mode factory.
package convert

import (
	"time"

	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/subsnap/subsnap/pkg/gpu"
	"github.com/tauraamui/xerror"
)

// Converter is the single conversion capability every variant
// implements. Convert takes one planar frame and produces one RGB
// frame; implementations reject any pixel format other than 4:2:0
// planar.
type Converter interface {
	Convert(frame.Planar) (frame.RGB, error)
	Mode() Mode
	Close() error
}

// Mode names one member of the closed converter set.
type Mode string

const (
	// ModeReference is the explicit BT.601 pixel math implementation.
	ModeReference Mode = "reference"
	// ModeStdImage delegates to the standard library's optimized
	// YCbCr draw fast path.
	ModeStdImage Mode = "stdimage"
	// ModeOpenCV delegates to OpenCV's cvtColor.
	ModeOpenCV Mode = "opencv"
	// ModeSWScale delegates to FFmpeg's software scaler.
	ModeSWScale Mode = "swscale"
	// ModeGPU runs the batched WebGPU compute engine.
	ModeGPU Mode = "gpu"
)

// Modes lists every available conversion mode.
func Modes() []Mode {
	return []Mode{ModeReference, ModeStdImage, ModeOpenCV, ModeSWScale, ModeGPU}
}

func (m Mode) Description() string {
	switch m {
	case ModeReference:
		return "explicit BT.601 pixel math on the CPU"
	case ModeStdImage:
		return "standard library YCbCr fast path on the CPU"
	case ModeOpenCV:
		return "OpenCV cvtColor on the CPU"
	case ModeSWScale:
		return "FFmpeg swscale on the CPU"
	case ModeGPU:
		return "batched WebGPU compute kernel"
	}
	return "unknown"
}

// Options carries the GPU-path tuning handed through the factory; CPU
// variants ignore it.
type Options struct {
	BatchTarget  int
	MaxBatchWait time.Duration
	GPU          gpu.Config
}

// Factory constructs the converter for a mode. An unknown mode is an
// error; a GPU adapter acquisition failure surfaces here so the caller
// can fall back to a CPU mode.
func Factory(mode Mode, opts Options) (Converter, error) {
	switch mode {
	case ModeReference:
		return &referenceConverter{}, nil
	case ModeStdImage:
		return &stdImageConverter{}, nil
	case ModeOpenCV:
		return &openCVConverter{}, nil
	case ModeSWScale:
		return &swScaleConverter{}, nil
	case ModeGPU:
		engine, err := gpu.NewEngine(opts.GPU)
		if err != nil {
			return nil, err
		}
		return NewGPUConverter(engine, opts.BatchTarget, opts.MaxBatchWait), nil
	}
	return nil, xerror.Errorf("unknown conversion mode: %s", mode)
}
