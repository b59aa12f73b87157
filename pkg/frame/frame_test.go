package frame_test

import (
	"testing"

	"github.com/matryer/is"
	"github.com/subsnap/subsnap/pkg/frame"
)

func TestValidateAcceptsWellFormedYUV420PFrame(t *testing.T) {
	is := is.New(t)
	f := frame.Planar{
		Number: 1, Width: 64, Height: 48, Format: frame.YUV420P,
		Data: make([]byte, 64*48*3/2),
	}
	is.NoErr(f.Validate())
}

func TestValidateRejectsShortData(t *testing.T) {
	is := is.New(t)
	f := frame.Planar{
		Number: 1, Width: 64, Height: 48, Format: frame.YUV420P,
		Data: make([]byte, 64*48),
	}
	is.True(f.Validate() != nil)
}

func TestValidateRejectsUnknownPixelFormat(t *testing.T) {
	is := is.New(t)
	f := frame.Planar{
		Number: 1, Width: 64, Height: 48, Format: frame.Unknown,
		Data: make([]byte, 64*48*3/2),
	}
	is.True(f.Validate() != nil)
}

func TestPlanesSliceIntoExpectedRegions(t *testing.T) {
	is := is.New(t)
	const w, h = 4, 4
	data := make([]byte, w*h*3/2)
	for i := range data {
		data[i] = byte(i)
	}
	f := frame.Planar{Width: w, Height: h, Format: frame.YUV420P, Data: data}
	is.NoErr(f.Validate())

	y, u, v := f.Planes()
	is.Equal(len(y), w*h)
	is.Equal(len(u), w*h/4)
	is.Equal(len(v), w*h/4)
	is.Equal(y[0], byte(0))
	is.Equal(u[0], byte(w*h))
	is.Equal(v[0], byte(w*h+w*h/4))
}
