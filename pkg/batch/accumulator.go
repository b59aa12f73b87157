// Package batch bridges the per-frame streaming interface to the
// batch-oriented GPU conversion engine.
package batch

import (
	"time"

	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/tauraamui/xerror"
)

var now = time.Now

// Accumulator collects same-resolution frames until a flush trigger
// fires: the batch target is reached, or the oldest buffered frame has
// waited past the configured deadline. The remainder at stream end is
// collected with Drain. Not safe for concurrent use; callers sharing
// one accumulator serialize externally.
type Accumulator struct {
	target  int
	maxWait time.Duration

	frames         []frame.Planar
	oldestBuffered time.Time
	width, height  uint32
}

// New creates an accumulator flushing at target frames. A non-zero
// maxWait additionally bounds how long any buffered frame can wait,
// for pooled use where frames arrive slower than the batch target.
func New(target int, maxWait time.Duration) *Accumulator {
	if target < 1 {
		target = 1
	}
	return &Accumulator{
		target:  target,
		maxWait: maxWait,
		frames:  make([]frame.Planar, 0, target),
	}
}

// Add appends a frame and returns a full batch when a flush trigger
// fires, nil otherwise. All frames passing through one accumulator
// must share a resolution; a mismatch is a contract violation, not a
// resize.
func (a *Accumulator) Add(f frame.Planar) ([]frame.Planar, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	if len(a.frames) == 0 {
		a.width, a.height = f.Width, f.Height
		a.oldestBuffered = now()
	} else if f.Width != a.width || f.Height != a.height {
		return nil, xerror.Errorf(
			"cannot mix resolutions within a batch: have %dx%d, got %dx%d",
			a.width, a.height, f.Width, f.Height,
		)
	}

	a.frames = append(a.frames, f)

	if len(a.frames) >= a.target {
		return a.flush(), nil
	}
	if a.maxWait > 0 && now().Sub(a.oldestBuffered) >= a.maxWait {
		return a.flush(), nil
	}
	return nil, nil
}

// Drain returns whatever is pending, or nil when empty. Used at stream
// end and by the single-frame forced flush path.
func (a *Accumulator) Drain() []frame.Planar {
	if len(a.frames) == 0 {
		return nil
	}
	return a.flush()
}

// Len reports the number of buffered frames.
func (a *Accumulator) Len() int {
	return len(a.frames)
}

func (a *Accumulator) flush() []frame.Planar {
	out := a.frames
	a.frames = make([]frame.Planar, 0, a.target)
	return out
}
