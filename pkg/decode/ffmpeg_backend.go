package decode

import (
	"context"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/pkg/errors"
	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/tauraamui/xerror"
)

// microseconds, the container-level duration unit
const avTimeBaseSeconds = 1e6

type ffmpegBackend struct{}

func (b *ffmpegBackend) Open(ctx context.Context, path string) (Connection, error) {
	conn := &ffmpegConnection{streamIndex: -1}
	if err := conn.open(path); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

type ffmpegConnection struct {
	formatCtx   *astiav.FormatContext
	codecCtx    *astiav.CodecContext
	streamIndex int
	timeBase    astiav.Rational

	pkt      *astiav.Packet
	fr       *astiav.Frame
	info     Info
	draining bool
}

func (c *ffmpegConnection) open(path string) error {
	c.formatCtx = astiav.AllocFormatContext()
	if c.formatCtx == nil {
		return xerror.New("unable to allocate format context")
	}

	if err := c.formatCtx.OpenInput(path, nil, nil); err != nil {
		return errors.Wrapf(err, "unable to open input %s", path)
	}

	if err := c.formatCtx.FindStreamInfo(nil); err != nil {
		return errors.Wrap(err, "unable to probe stream info")
	}

	var stream *astiav.Stream
	for _, s := range c.formatCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			stream = s
			break
		}
	}
	if stream == nil {
		return xerror.Errorf("no video track found in %s", path)
	}
	c.streamIndex = stream.Index()
	c.timeBase = stream.TimeBase()

	codec := astiav.FindDecoder(stream.CodecParameters().CodecID())
	if codec == nil {
		return xerror.Errorf("no decoder available for codec %s", stream.CodecParameters().CodecID())
	}

	c.codecCtx = astiav.AllocCodecContext(codec)
	if c.codecCtx == nil {
		return xerror.New("unable to allocate codec context")
	}
	if err := stream.CodecParameters().ToCodecContext(c.codecCtx); err != nil {
		return errors.Wrap(err, "unable to apply codec parameters")
	}
	// frame-level threading, auto thread count
	c.codecCtx.SetThreadCount(0)

	if err := c.codecCtx.Open(codec, nil); err != nil {
		return errors.Wrap(err, "unable to open decoder")
	}

	duration := float64(stream.Duration()) * c.timeBase.Float64()
	if duration <= 0 {
		duration = float64(c.formatCtx.Duration()) / avTimeBaseSeconds
	}
	if duration <= 0 {
		return xerror.Errorf("unable to resolve duration for %s", path)
	}

	fps := stream.AvgFrameRate().Float64()
	if fps <= 0 {
		return xerror.Errorf("unable to resolve frame rate for %s", path)
	}

	c.info = Info{DurationSeconds: duration, FPS: fps}
	c.pkt = astiav.AllocPacket()
	c.fr = astiav.AllocFrame()
	return nil
}

func (c *ffmpegConnection) Info() Info { return c.info }

func (c *ffmpegConnection) Read(pool *frame.Pool) (frame.Planar, error) {
	for {
		if err := c.codecCtx.ReceiveFrame(c.fr); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				return frame.Planar{}, io.EOF
			}
			if !errors.Is(err, astiav.ErrEagain) {
				return frame.Planar{}, errors.Wrap(err, "unable to receive decoded frame")
			}
			if c.draining {
				return frame.Planar{}, io.EOF
			}
			if err := c.pump(); err != nil {
				return frame.Planar{}, err
			}
			continue
		}

		pf, err := c.toPlanar(pool)
		c.fr.Unref()
		if err != nil {
			return frame.Planar{}, err
		}
		return pf, nil
	}
}

// pump feeds exactly one packet of the video stream into the decoder,
// switching to drain mode at container EOF.
func (c *ffmpegConnection) pump() error {
	for {
		if err := c.formatCtx.ReadFrame(c.pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				c.draining = true
				return c.codecCtx.SendPacket(nil)
			}
			return errors.Wrap(err, "unable to read packet")
		}
		if c.pkt.StreamIndex() != c.streamIndex {
			c.pkt.Unref()
			continue
		}
		err := c.codecCtx.SendPacket(c.pkt)
		c.pkt.Unref()
		if err != nil {
			return errors.Wrap(err, "unable to send packet to decoder")
		}
		return nil
	}
}

func (c *ffmpegConnection) toPlanar(pool *frame.Pool) (frame.Planar, error) {
	if c.fr.PixelFormat() != astiav.PixelFormatYuv420P {
		return frame.Planar{}, xerror.Errorf(
			"unsupported decoded pixel format: %s", c.fr.PixelFormat(),
		)
	}

	width := uint32(c.fr.Width())
	height := uint32(c.fr.Height())
	total := int(width) * int(height) * 3 / 2

	// Bytes(1) compacts the planes, stripping any decoder row padding.
	raw, err := c.fr.Data().Bytes(1)
	if err != nil {
		return frame.Planar{}, errors.Wrap(err, "unable to copy frame planes")
	}
	if len(raw) < total {
		return frame.Planar{}, xerror.Errorf(
			"decoder produced %d bytes for %dx%d frame, expected %d",
			len(raw), width, height, total,
		)
	}

	buf := pool.Get(total)
	buf = append(buf, raw[:total]...)

	var timestamp float64
	if pts := c.fr.Pts(); pts != astiav.NoPtsValue {
		timestamp = float64(pts) * c.timeBase.Float64()
	}

	return frame.Planar{
		Timestamp: timestamp,
		Width:     width,
		Height:    height,
		Format:    frame.YUV420P,
		Data:      buf,
	}, nil
}

func (c *ffmpegConnection) Close() error {
	if c.fr != nil {
		c.fr.Free()
		c.fr = nil
	}
	if c.pkt != nil {
		c.pkt.Free()
		c.pkt = nil
	}
	if c.codecCtx != nil {
		c.codecCtx.Free()
		c.codecCtx = nil
	}
	if c.formatCtx != nil {
		c.formatCtx.CloseInput()
		c.formatCtx.Free()
		c.formatCtx = nil
	}
	return nil
}
