package convert

import (
	"image"
	"image/draw"

	"github.com/subsnap/subsnap/pkg/frame"
)

// stdImageConverter delegates the pixel transform to the standard
// library's YCbCr draw path, which carries a hand-optimized fixed
// point conversion for the 4:2:0 subsample ratio. It fills the
// optimized-library role next to the reference math; output may
// differ from the reference by rounding, never more.
type stdImageConverter struct{}

func (c *stdImageConverter) Mode() Mode { return ModeStdImage }

func (c *stdImageConverter) Convert(f frame.Planar) (frame.RGB, error) {
	if err := f.Validate(); err != nil {
		return frame.RGB{}, err
	}

	width := int(f.Width)
	height := int(f.Height)
	y, u, v := f.Planes()

	src := &image.YCbCr{
		Y:              y,
		Cb:             u,
		Cr:             v,
		YStride:        width,
		CStride:        width / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, width, height),
	}

	dst := image.NewRGBA(src.Rect)
	draw.Draw(dst, src.Rect, src, image.Point{}, draw.Src)

	rgb := make([]byte, width*height*3)
	for p := 0; p < width*height; p++ {
		rgb[p*3] = dst.Pix[p*4]
		rgb[p*3+1] = dst.Pix[p*4+1]
		rgb[p*3+2] = dst.Pix[p*4+2]
	}

	return frame.RGB{
		Number:    f.Number,
		Timestamp: f.Timestamp,
		Width:     f.Width,
		Height:    f.Height,
		Data:      rgb,
	}, nil
}

func (c *stdImageConverter) Close() error { return nil }
