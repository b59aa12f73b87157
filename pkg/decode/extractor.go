package decode

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/subsnap/subsnap/pkg/log"
)

// Result is the partial-progress report of an extraction run. A
// cancelled run still returns the frames emitted so far.
type Result struct {
	FramesEmitted uint32
	Elapsed       time.Duration
}

// Extractor drives a decode connection and emits a time-sampled
// subsequence of its frames onto a bounded channel. The blocking send
// on that channel is the pipeline's only backpressure point.
type Extractor struct {
	Backend Backend
	Pool    *frame.Pool

	// MaxFrames caps emissions; 0 means until stream end.
	MaxFrames uint32
	// SampleFPS sets the emission cadence; 0 means every decoded frame
	// (unless MaxFrames spreads them over the stream duration instead).
	SampleFPS float64
}

// Stream decodes path and sends sampled frames to out, closing out on
// return. Cancellation via ctx stops decoding within one step and is
// reported through the Result, not as an error. Setup failures (no
// video track, unreadable container, missing metadata) are fatal and
// happen before any frame is emitted.
func (e *Extractor) Stream(ctx context.Context, path string, out chan<- frame.Planar) (Result, error) {
	defer close(out)

	conn, err := e.Backend.Open(ctx, path)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	info := conn.Info()
	interval := e.sampleInterval(info)
	log.Info(
		"video info: duration=%.2fs native_fps=%.2f sample_interval=%.4fs max_frames=%d",
		info.DurationSeconds, info.FPS, interval, e.MaxFrames,
	)

	var (
		emitted         uint32
		nextExtractTime float64
		start           = time.Now()
	)

	for e.MaxFrames == 0 || emitted < e.MaxFrames {
		select {
		case <-ctx.Done():
			return Result{FramesEmitted: emitted, Elapsed: time.Since(start)}, nil
		default:
		}

		pf, err := conn.Read(e.Pool)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Result{FramesEmitted: emitted, Elapsed: time.Since(start)}, err
		}

		if interval > 0 && pf.Timestamp < nextExtractTime {
			e.Pool.Put(pf.Data)
			continue
		}
		if interval > 0 {
			nextExtractTime += interval
		}

		emitted++
		pf.Number = emitted

		select {
		case out <- pf:
		case <-ctx.Done():
			return Result{FramesEmitted: emitted - 1, Elapsed: time.Since(start)}, nil
		}
	}

	return Result{FramesEmitted: emitted, Elapsed: time.Since(start)}, nil
}

// sampleInterval derives the minimum inter-emission timestamp delta.
// Cadence is time based, not frame-count based, so variable frame rate
// content drifts correctly.
func (e *Extractor) sampleInterval(info Info) float64 {
	if e.SampleFPS > 0 {
		return 1 / e.SampleFPS
	}
	if e.MaxFrames > 0 {
		return info.DurationSeconds / float64(e.MaxFrames)
	}
	return 0
}
