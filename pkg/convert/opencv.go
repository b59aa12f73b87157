package convert

import (
	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

// openCVConverter delegates to OpenCV's cvtColor I420 conversion.
type openCVConverter struct{}

func (c *openCVConverter) Mode() Mode { return ModeOpenCV }

func (c *openCVConverter) Convert(f frame.Planar) (frame.RGB, error) {
	if err := f.Validate(); err != nil {
		return frame.RGB{}, err
	}

	width := int(f.Width)
	height := int(f.Height)
	total := width * height * 3 / 2

	yuv, err := gocv.NewMatFromBytes(height*3/2, width, gocv.MatTypeCV8U, f.Data[:total])
	if err != nil {
		return frame.RGB{}, xerror.Errorf("unable to wrap yuv data in mat: %v", err)
	}
	defer yuv.Close()

	rgbMat := gocv.NewMat()
	defer rgbMat.Close()
	gocv.CvtColor(yuv, &rgbMat, gocv.ColorYUVToRGBI420)

	raw := rgbMat.ToBytes()
	expected := width * height * 3
	if len(raw) < expected {
		return frame.RGB{}, xerror.Errorf(
			"opencv conversion produced %d bytes, expected %d", len(raw), expected,
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

func (c *openCVConverter) Close() error { return nil }
