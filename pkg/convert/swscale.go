package convert

import (
	"github.com/asticode/go-astiav"
	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/tauraamui/xerror"
)

// swScaleConverter delegates to FFmpeg's software scaler, the most
// battle-tested of the delegated variants. The scale context and its
// frames are created lazily and kept until the resolution changes.
type swScaleConverter struct {
	swsCtx        *astiav.SoftwareScaleContext
	src, dst      *astiav.Frame
	width, height uint32
}

func (c *swScaleConverter) Mode() Mode { return ModeSWScale }

func (c *swScaleConverter) ensureContext(width, height uint32) error {
	if c.swsCtx != nil && c.width == width && c.height == height {
		return nil
	}
	c.releaseContext()

	c.src = astiav.AllocFrame()
	c.src.SetWidth(int(width))
	c.src.SetHeight(int(height))
	c.src.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := c.src.AllocBuffer(1); err != nil {
		c.releaseContext()
		return xerror.Errorf("unable to allocate source frame buffer: %v", err)
	}

	c.dst = astiav.AllocFrame()
	c.dst.SetWidth(int(width))
	c.dst.SetHeight(int(height))
	c.dst.SetPixelFormat(astiav.PixelFormatRgb24)
	if err := c.dst.AllocBuffer(1); err != nil {
		c.releaseContext()
		return xerror.Errorf("unable to allocate destination frame buffer: %v", err)
	}

	swsCtx, err := astiav.CreateSoftwareScaleContext(
		int(width), int(height), astiav.PixelFormatYuv420P,
		int(width), int(height), astiav.PixelFormatRgb24,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		c.releaseContext()
		return xerror.Errorf("unable to create software scale context: %v", err)
	}

	c.swsCtx = swsCtx
	c.width, c.height = width, height
	return nil
}

func (c *swScaleConverter) Convert(f frame.Planar) (frame.RGB, error) {
	if err := f.Validate(); err != nil {
		return frame.RGB{}, err
	}
	if err := c.ensureContext(f.Width, f.Height); err != nil {
		return frame.RGB{}, err
	}

	total := int(f.Width) * int(f.Height) * 3 / 2
	if err := c.src.Data().SetBytes(f.Data[:total], 1); err != nil {
		return frame.RGB{}, xerror.Errorf("unable to fill source frame: %v", err)
	}

	if err := c.swsCtx.ScaleFrame(c.src, c.dst); err != nil {
		return frame.RGB{}, xerror.Errorf("swscale conversion failed: %v", err)
	}

	raw, err := c.dst.Data().Bytes(1)
	if err != nil {
		return frame.RGB{}, xerror.Errorf("unable to read converted frame: %v", err)
	}
	expected := int(f.Width) * int(f.Height) * 3
	if len(raw) < expected {
		return frame.RGB{}, xerror.Errorf(
			"swscale produced %d bytes, expected %d", len(raw), expected,
		)
	}

	rgb := make([]byte, expected)
	copy(rgb, raw)

	return frame.RGB{
		Number:    f.Number,
		Timestamp: f.Timestamp,
		Width:     f.Width,
		Height:    f.Height,
		Data:      rgb,
	}, nil
}

func (c *swScaleConverter) releaseContext() {
	if c.swsCtx != nil {
		c.swsCtx.Free()
		c.swsCtx = nil
	}
	if c.src != nil {
		c.src.Free()
		c.src = nil
	}
	if c.dst != nil {
		c.dst.Free()
		c.dst = nil
	}
	c.width, c.height = 0, 0
}

func (c *swScaleConverter) Close() error {
	c.releaseContext()
	return nil
}
