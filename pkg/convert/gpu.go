package convert

import (
	"sync"
	"time"

	"github.com/subsnap/subsnap/pkg/batch"
	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/subsnap/subsnap/pkg/gpu"
	"github.com/tauraamui/xerror"
)

// BatchConverter is the batched backend the single-frame GPU wrapper
// sits on; satisfied by *gpu.Engine.
type BatchConverter interface {
	ConvertBatch([]frame.Planar) ([]frame.RGB, error)
}

// gpuConverter presents the uniform one-frame-in/one-frame-out
// contract on top of the inherently batched engine: Convert adds the
// frame to an internal accumulator and, when the normal trigger does
// not flush, forces an immediate flush so the caller always gets its
// result synchronously. The whole add-and-flush sequence runs under
// one lock; callers sharing the engine are never interleaved at the
// device buffer level.
type gpuConverter struct {
	mu     sync.Mutex
	engine BatchConverter
	acc    *batch.Accumulator
	closer func()
}

// NewGPUConverter wraps a batched engine in the single-frame contract.
// batchTarget below one degrades to per-frame flushing.
func NewGPUConverter(engine BatchConverter, batchTarget int, maxWait time.Duration) Converter {
	conv := &gpuConverter{
		engine: engine,
		acc:    batch.New(batchTarget, maxWait),
	}
	if e, ok := engine.(*gpu.Engine); ok {
		conv.closer = e.Close
	}
	return conv
}

func (c *gpuConverter) Mode() Mode { return ModeGPU }

func (c *gpuConverter) Convert(f frame.Planar) (frame.RGB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	flushed, err := c.acc.Add(f)
	if err != nil {
		return frame.RGB{}, err
	}
	if flushed == nil {
		// no batch produced by the normal trigger; force one so this
		// caller gets an answer now
		flushed = c.acc.Drain()
	}

	results, err := c.engine.ConvertBatch(flushed)
	if err != nil {
		return frame.RGB{}, err
	}

	for i := range results {
		if results[i].Number == f.Number {
			return results[i], nil
		}
	}
	return frame.RGB{}, xerror.Errorf(
		"engine returned no result for frame %d", f.Number,
	)
}

func (c *gpuConverter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closer != nil {
		c.closer()
		c.closer = nil
	}
	return nil
}
