package convert

import (
	"github.com/subsnap/subsnap/pkg/frame"
)

// referenceConverter is the explicit per-pixel BT.601 transform. It is
// the correctness baseline the delegated variants are compared
// against, not a performance contender.
type referenceConverter struct{}

func (c *referenceConverter) Mode() Mode { return ModeReference }

func (c *referenceConverter) Convert(f frame.Planar) (frame.RGB, error) {
	if err := f.Validate(); err != nil {
		return frame.RGB{}, err
	}

	width := int(f.Width)
	height := int(f.Height)
	y, u, v := f.Planes()

	rgb := make([]byte, width*height*3)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			yIdx := row*width + col
			uvIdx := (row/2)*(width/2) + col/2

			luma := float32(y[yIdx])
			cb := float32(u[uvIdx]) - 128
			cr := float32(v[uvIdx]) - 128

			out := yIdx * 3
			rgb[out] = clampByte(luma + 1.402*cr)
			rgb[out+1] = clampByte(luma - 0.344136*cb - 0.714136*cr)
			rgb[out+2] = clampByte(luma + 1.772*cb)
		}
	}

	return frame.RGB{
		Number:    f.Number,
		Timestamp: f.Timestamp,
		Width:     f.Width,
		Height:    f.Height,
		Data:      rgb,
	}, nil
}

func (c *referenceConverter) Close() error { return nil }

func clampByte(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v)
}
