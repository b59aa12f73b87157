package frame

import (
	"github.com/tauraamui/xerror"
)

// PixelFormat identifies the pixel layout of a decoded frame's data.
type PixelFormat int

const (
	// YUV420P is one full resolution luma plane followed by two quarter
	// resolution chroma planes, concatenated with no row padding.
	YUV420P PixelFormat = iota
	Unknown
)

func (p PixelFormat) String() string {
	if p == YUV420P {
		return "yuv420p"
	}
	return "unknown"
}

// Planar is a single decoded video frame in planar form. Data holds the
// Y plane (w*h bytes) followed by the U and V planes (w*h/4 bytes each).
type Planar struct {
	Number    uint32
	Timestamp float64
	Width     uint32
	Height    uint32
	Format    PixelFormat
	Data      []byte
}

// PlaneSizes returns the luma and single-chroma plane byte sizes.
func (p Planar) PlaneSizes() (ySize, uvSize int) {
	ySize = int(p.Width) * int(p.Height)
	return ySize, ySize / 4
}

// Validate rejects frames whose data cannot back the declared layout.
// Short data is an error, never silently truncated.
func (p Planar) Validate() error {
	if p.Format != YUV420P {
		return xerror.Errorf("unsupported pixel format: %s", p.Format)
	}
	ySize, uvSize := p.PlaneSizes()
	if required := ySize + 2*uvSize; len(p.Data) < required {
		return xerror.Errorf(
			"invalid yuv420p data size for %dx%d: expected at least %d bytes, got %d",
			p.Width, p.Height, required, len(p.Data),
		)
	}
	return nil
}

// Planes slices Data into the Y, U and V planes. The frame must already
// have passed Validate.
func (p Planar) Planes() (y, u, v []byte) {
	ySize, uvSize := p.PlaneSizes()
	y = p.Data[:ySize]
	u = p.Data[ySize : ySize+uvSize]
	v = p.Data[ySize+uvSize : ySize+2*uvSize]
	return y, u, v
}

// RGB is a converted frame: row-major, no padding, channel order R,G,B.
type RGB struct {
	Number    uint32
	Timestamp float64
	Width     uint32
	Height    uint32
	Data      []byte
}
