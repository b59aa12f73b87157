// Package gpu implements the batched YUV420P to RGB conversion engine
// on top of WebGPU compute.
package gpu

import (
	"encoding/binary"
	"time"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/subsnap/subsnap/pkg/log"
	"github.com/tauraamui/xerror"
)

const (
	// DefaultMemoryBudgetBytes caps any single device buffer. Device
	// buffer limits are hard allocation failures, not soft guidance.
	DefaultMemoryBudgetBytes = 128 << 20

	// DefaultSafetyFactor leaves headroom in the budget for the three
	// input plane buffers and the params uniform alongside the RGBA
	// output the budget is computed from.
	DefaultSafetyFactor = 0.9

	readbackTimeout = 10 * time.Second
)

// Config tunes the engine's memory budget. The defaults are empirical
// throughput knobs, not correctness constraints.
type Config struct {
	MemoryBudgetBytes uint64
	SafetyFactor      float64
}

func (c Config) withDefaults() Config {
	if c.MemoryBudgetBytes == 0 {
		c.MemoryBudgetBytes = DefaultMemoryBudgetBytes
	}
	if c.SafetyFactor <= 0 || c.SafetyFactor > 1 {
		c.SafetyFactor = DefaultSafetyFactor
	}
	return c
}

// bufferSet is the group of device allocations backing one batch
// shape. Owned exclusively by one engine; reallocated only when the
// (batchSize, width, height) triple changes and freed when the engine
// closes.
type bufferSet struct {
	y, u, v *wgpu.Buffer
	output  *wgpu.Buffer
	staging *wgpu.Buffer
	params  *wgpu.Buffer

	batchSize     int
	width, height uint32
}

func (b *bufferSet) matches(batchSize int, width, height uint32) bool {
	return b != nil && b.batchSize == batchSize && b.width == width && b.height == height
}

func (b *bufferSet) destroy() {
	for _, buf := range []*wgpu.Buffer{b.y, b.u, b.v, b.output, b.staging, b.params} {
		if buf != nil {
			buf.Destroy()
		}
	}
}

// Engine owns the device handles, the compiled conversion kernel and
// the cached buffer set. It is not safe for concurrent use; callers
// sharing one engine serialize around the whole convert sequence.
type Engine struct {
	ctx      *deviceContext
	pipeline *wgpu.ComputePipeline
	buffers  *bufferSet
	cfg      Config

	allocations uint64
}

// NewEngine acquires a device and compiles the conversion kernel.
// Failure here is fatal for this engine only; callers fall back to a
// CPU converter.
func NewEngine(cfg Config) (*Engine, error) {
	ctx, err := newDeviceContext()
	if err != nil {
		return nil, err
	}

	module, err := ctx.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "YuvToRgb_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: yuvToRGBShader},
	})
	if err != nil {
		ctx.release()
		return nil, xerror.Errorf("failed to compile conversion kernel: %v", err)
	}

	pipeline, err := ctx.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "YuvToRgb_Pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		ctx.release()
		return nil, xerror.Errorf("failed to create compute pipeline: %v", err)
	}

	return &Engine{ctx: ctx, pipeline: pipeline, cfg: cfg.withDefaults()}, nil
}

// MaxSingleBatch is the largest batch of width x height frames whose
// RGBA output fits the memory budget with safety headroom. Never less
// than one.
func (e *Engine) MaxSingleBatch(width, height uint32) int {
	return maxSingleBatch(e.cfg.MemoryBudgetBytes, e.cfg.SafetyFactor, width, height)
}

func maxSingleBatch(budget uint64, safety float64, width, height uint32) int {
	perFrame := uint64(width) * uint64(height) * 4
	if perFrame == 0 {
		return 1
	}
	max := int(float64(budget/perFrame) * safety)
	if max < 1 {
		return 1
	}
	return max
}

// splitSizes partitions total into consecutive chunks of at most max,
// the last possibly smaller.
func splitSizes(total, max int) []int {
	var sizes []int
	for total > 0 {
		n := max
		if total < n {
			n = total
		}
		sizes = append(sizes, n)
		total -= n
	}
	return sizes
}

// Allocations reports how many times the engine has (re)allocated its
// device buffer set.
func (e *Engine) Allocations() uint64 { return e.allocations }

// ConvertBatch converts an ordered batch of same-resolution frames,
// transparently splitting batches that exceed the device memory budget
// into consecutive sub-batches and concatenating results in order. All
// sub-batches are attempted even after a failure; any sub-batch error
// surfaces as a single error for the whole call with no partial
// results.
func (e *Engine) ConvertBatch(frames []frame.Planar) ([]frame.RGB, error) {
	if len(frames) == 0 {
		return nil, nil
	}

	width, height := frames[0].Width, frames[0].Height
	for i := range frames {
		if err := frames[i].Validate(); err != nil {
			return nil, err
		}
		if frames[i].Width != width || frames[i].Height != height {
			return nil, xerror.Errorf(
				"batch mixes resolutions: %dx%d and %dx%d",
				width, height, frames[i].Width, frames[i].Height,
			)
		}
	}

	max := e.MaxSingleBatch(width, height)
	results := make([]frame.RGB, 0, len(frames))

	var firstErr error
	offset := 0
	for _, size := range splitSizes(len(frames), max) {
		sub := frames[offset : offset+size]
		offset += size

		converted, err := e.convertSubBatch(sub, width, height)
		if err != nil {
			log.Error("sub-batch of %d frames failed: %v", size, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, converted...)
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func (e *Engine) convertSubBatch(frames []frame.Planar, width, height uint32) ([]frame.RGB, error) {
	batchSize := len(frames)
	ySize := int(width) * int(height)
	uvSize := ySize / 4

	if err := e.ensureBuffers(batchSize, width, height); err != nil {
		return nil, err
	}

	e.upload(frames, ySize, uvSize)

	if err := e.dispatch(batchSize, width, height); err != nil {
		return nil, err
	}

	rgba, err := e.readback(batchSize, ySize)
	if err != nil {
		return nil, err
	}

	return unpackRGBA(rgba, frames, ySize), nil
}

// ensureBuffers lazily (re)allocates the device buffer set whenever
// the requested shape differs from the cached one. Reuse across calls
// avoids the dominant device allocation cost when batch shape and
// resolution are stable.
func (e *Engine) ensureBuffers(batchSize int, width, height uint32) error {
	if e.buffers.matches(batchSize, width, height) {
		return nil
	}
	if e.buffers != nil {
		e.buffers.destroy()
		e.buffers = nil
	}

	ySize := int(width) * int(height)
	uvSize := ySize / 4
	rgbaSize := uint64(batchSize) * uint64(ySize) * 4

	set := &bufferSet{batchSize: batchSize, width: width, height: height}
	device := e.ctx.device

	mustStorage := func(label string, size uint64) (*wgpu.Buffer, error) {
		return device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label,
			Size:  size,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
	}

	var err error
	if set.y, err = mustStorage("YuvToRgb_Y", padded4(batchSize*ySize)); err != nil {
		return xerror.Errorf("failed to allocate Y plane buffer: %v", err)
	}
	if set.u, err = mustStorage("YuvToRgb_U", padded4(batchSize*uvSize)); err != nil {
		set.destroy()
		return xerror.Errorf("failed to allocate U plane buffer: %v", err)
	}
	if set.v, err = mustStorage("YuvToRgb_V", padded4(batchSize*uvSize)); err != nil {
		set.destroy()
		return xerror.Errorf("failed to allocate V plane buffer: %v", err)
	}

	set.output, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "YuvToRgb_Out",
		Size:  rgbaSize,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		set.destroy()
		return xerror.Errorf("failed to allocate output buffer: %v", err)
	}

	set.staging, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "YuvToRgb_Staging",
		Size:  rgbaSize,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		set.destroy()
		return xerror.Errorf("failed to allocate staging buffer: %v", err)
	}

	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:], width)
	binary.LittleEndian.PutUint32(params[4:], height)
	binary.LittleEndian.PutUint32(params[8:], uint32(ySize))
	binary.LittleEndian.PutUint32(params[12:], uint32(uvSize))
	set.params, err = device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Contents: params,
		Usage:    wgpu.BufferUsageUniform,
	})
	if err != nil {
		set.destroy()
		return xerror.Errorf("failed to allocate params buffer: %v", err)
	}

	e.buffers = set
	e.allocations++
	log.Debug(
		"allocated device buffers for batch=%d %dx%d (allocation #%d)",
		batchSize, width, height, e.allocations,
	)
	return nil
}

// upload concatenates all Y planes, then all U planes, then all V
// planes into flat host buffers, pads each to the 4 byte element
// alignment and writes them to the device. Pad bytes are zero and the
// kernel never reads them.
func (e *Engine) upload(frames []frame.Planar, ySize, uvSize int) {
	batch := len(frames)
	yHost := make([]byte, padded4(batch*ySize))
	uHost := make([]byte, padded4(batch*uvSize))
	vHost := make([]byte, padded4(batch*uvSize))

	for i := range frames {
		y, u, v := frames[i].Planes()
		copy(yHost[i*ySize:], y)
		copy(uHost[i*uvSize:], u)
		copy(vHost[i*uvSize:], v)
	}

	e.ctx.queue.WriteBuffer(e.buffers.y, 0, yHost)
	e.ctx.queue.WriteBuffer(e.buffers.u, 0, uHost)
	e.ctx.queue.WriteBuffer(e.buffers.v, 0, vHost)
}

func (e *Engine) dispatch(batchSize int, width, height uint32) error {
	device := e.ctx.device

	bindGroup, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "YuvToRgb_Bind",
		Layout: e.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: e.buffers.y, Size: e.buffers.y.GetSize()},
			{Binding: 1, Buffer: e.buffers.u, Size: e.buffers.u.GetSize()},
			{Binding: 2, Buffer: e.buffers.v, Size: e.buffers.v.GetSize()},
			{Binding: 3, Buffer: e.buffers.output, Size: e.buffers.output.GetSize()},
			{Binding: 4, Buffer: e.buffers.params, Size: e.buffers.params.GetSize()},
		},
	})
	if err != nil {
		return xerror.Errorf("failed to create bind group: %v", err)
	}
	defer bindGroup.Release()

	encoder, err := device.CreateCommandEncoder(nil)
	if err != nil {
		return xerror.Errorf("failed to create command encoder: %v", err)
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(e.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups((width+15)/16, (height+15)/16, uint32(batchSize))
	pass.End()

	encoder.CopyBufferToBuffer(
		e.buffers.output, 0,
		e.buffers.staging, 0,
		uint64(batchSize)*uint64(width)*uint64(height)*4,
	)

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return xerror.Errorf("failed to finish command encoding: %v", err)
	}
	e.ctx.queue.Submit(cmd)
	return nil
}

// readback maps the staging buffer for read and copies out the packed
// RGBA words. The wait is a channel receive fed by the map callback,
// with the device polled between checks; the calling goroutine never
// spins hot.
func (e *Engine) readback(batchSize, ySize int) ([]byte, error) {
	size := uint64(batchSize) * uint64(ySize) * 4

	done := make(chan struct{})
	var mapErr error
	err := e.buffers.staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = xerror.Errorf("buffer map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, xerror.Errorf("MapAsync failed: %v", err)
	}

	deadline := time.After(readbackTimeout)
	for {
		e.ctx.device.Poll(false, nil)
		select {
		case <-done:
			if mapErr != nil {
				return nil, mapErr
			}
			data := e.buffers.staging.GetMappedRange(0, uint(size))
			if data == nil {
				e.buffers.staging.Unmap()
				return nil, xerror.New("failed to get mapped range")
			}
			out := make([]byte, size)
			copy(out, data)
			e.buffers.staging.Unmap()
			return out, nil
		case <-deadline:
			return nil, xerror.Errorf("device readback timed out after %s", readbackTimeout)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

// unpackRGBA drops the unused alpha channel, turning each frame's
// packed little-endian RGBA words into tightly packed RGB bytes while
// preserving batch order.
func unpackRGBA(rgba []byte, frames []frame.Planar, ySize int) []frame.RGB {
	out := make([]frame.RGB, len(frames))
	for i := range frames {
		rgb := make([]byte, ySize*3)
		base := i * ySize * 4
		for p := 0; p < ySize; p++ {
			word := binary.LittleEndian.Uint32(rgba[base+p*4:])
			rgb[p*3] = byte(word)
			rgb[p*3+1] = byte(word >> 8)
			rgb[p*3+2] = byte(word >> 16)
		}
		out[i] = frame.RGB{
			Number:    frames[i].Number,
			Timestamp: frames[i].Timestamp,
			Width:     frames[i].Width,
			Height:    frames[i].Height,
			Data:      rgb,
		}
	}
	return out
}

func padded4(n int) uint64 {
	return uint64((n + 3) &^ 3)
}

// Close frees the cached buffer set and releases the kernel and device
// handles. The engine is unusable afterwards.
func (e *Engine) Close() {
	if e.buffers != nil {
		e.buffers.destroy()
		e.buffers = nil
	}
	if e.pipeline != nil {
		e.pipeline.Release()
		e.pipeline = nil
	}
	if e.ctx != nil {
		e.ctx.release()
		e.ctx = nil
	}
}
