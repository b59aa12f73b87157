package gpu

import (
	"github.com/openfluke/webgpu/wgpu"
	"github.com/subsnap/subsnap/pkg/log"
	"github.com/tauraamui/xerror"
)

// deviceContext bundles the WebGPU handles one engine owns. It is
// deliberately per-engine rather than a process-wide singleton so two
// engines can never alias each other's device buffers.
type deviceContext struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
}

func newDeviceContext() (*deviceContext, error) {
	ctx := &deviceContext{}

	ctx.instance = wgpu.CreateInstance(nil)
	if ctx.instance == nil {
		return nil, xerror.New("failed to create WebGPU instance")
	}

	tryAdapter := func(opts *wgpu.RequestAdapterOptions) error {
		if ctx.adapter != nil {
			return nil
		}
		var err error
		ctx.adapter, err = ctx.instance.RequestAdapter(opts)
		return err
	}

	err := tryAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil && ctx.adapter == nil {
		log.Warn("high performance adapter unavailable: %v, falling back", err)
		err = tryAdapter(&wgpu.RequestAdapterOptions{
			PowerPreference: wgpu.PowerPreferenceLowPower,
		})
	}
	if err != nil && ctx.adapter == nil {
		log.Warn("low power adapter unavailable: %v, trying default", err)
		err = tryAdapter(nil)
	}
	if ctx.adapter == nil {
		return nil, xerror.Errorf("all adapter attempts failed: %v", err)
	}

	info := ctx.adapter.GetInfo()
	log.Info("using GPU adapter: %s (vendor: %s)", info.Name, info.VendorName)

	ctx.device, err = ctx.adapter.RequestDevice(nil)
	if err != nil {
		return nil, xerror.Errorf("failed to acquire device: %v", err)
	}

	ctx.queue = ctx.device.GetQueue()
	if ctx.queue == nil {
		return nil, xerror.New("WebGPU device queue not initialized")
	}

	return ctx, nil
}

func (c *deviceContext) release() {
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
}
