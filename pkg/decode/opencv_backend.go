package decode

import (
	"context"
	"io"

	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

type openCVBackend struct{}

func (b *openCVBackend) Open(ctx context.Context, path string) (Connection, error) {
	connAndError := make(chan openVideoStreamResult)
	go openVideoStream(path, connAndError)
	select {
	case r := <-connAndError:
		if r.err != nil {
			return nil, r.err
		}
		return newOpenCVConnection(r.vc, path)
	case <-ctx.Done():
		return nil, xerror.New("connection cancelled")
	}
}

type openVideoStreamResult struct {
	vc  *gocv.VideoCapture
	err error
}

func openVideoStream(path string, d chan openVideoStreamResult) {
	vc, err := gocv.VideoCaptureFile(path)
	d <- openVideoStreamResult{vc: vc, err: err}
}

func newOpenCVConnection(vc *gocv.VideoCapture, path string) (*openCVConnection, error) {
	fps := vc.Get(gocv.VideoCaptureFPS)
	frames := vc.Get(gocv.VideoCaptureFrameCount)
	if fps <= 0 || frames <= 0 {
		vc.Close()
		return nil, xerror.Errorf("unable to resolve duration/frame rate for %s", path)
	}

	bgr := gocv.NewMat()
	yuv := gocv.NewMat()
	return &openCVConnection{
		vc: vc, bgr: &bgr, yuv: &yuv,
		info: Info{DurationSeconds: frames / fps, FPS: fps},
	}, nil
}

type openCVConnection struct {
	vc   *gocv.VideoCapture
	bgr  *gocv.Mat
	yuv  *gocv.Mat
	info Info
}

func (c *openCVConnection) Info() Info { return c.info }

// Read decodes the next frame. OpenCV hands back packed BGR, so the
// connection converts to I420 before compacting into a pooled buffer.
func (c *openCVConnection) Read(pool *frame.Pool) (frame.Planar, error) {
	if ok := c.vc.Read(c.bgr); !ok {
		return frame.Planar{}, io.EOF
	}
	if c.bgr.Empty() {
		return frame.Planar{}, io.EOF
	}

	timestamp := c.vc.Get(gocv.VideoCapturePosMsec) / 1000.0

	gocv.CvtColor(*c.bgr, c.yuv, gocv.ColorBGRToYUVI420)

	width := uint32(c.bgr.Cols())
	height := uint32(c.bgr.Rows())
	total := int(width) * int(height) * 3 / 2

	raw := c.yuv.ToBytes()
	if len(raw) < total {
		return frame.Planar{}, xerror.Errorf(
			"i420 conversion produced %d bytes for %dx%d frame, expected %d",
			len(raw), width, height, total,
		)
	}

	buf := pool.Get(total)
	buf = append(buf, raw[:total]...)

	return frame.Planar{
		Timestamp: timestamp,
		Width:     width,
		Height:    height,
		Format:    frame.YUV420P,
		Data:      buf,
	}, nil
}

func (c *openCVConnection) Close() error {
	if c.bgr != nil {
		c.bgr.Close()
	}
	if c.yuv != nil {
		c.yuv.Close()
	}
	return c.vc.Close()
}
