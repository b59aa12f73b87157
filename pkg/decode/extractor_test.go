package decode_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/subsnap/subsnap/pkg/decode"
	"github.com/subsnap/subsnap/pkg/frame"
)

type fakeConnection struct {
	mu        sync.Mutex
	info      decode.Info
	frameGap  float64
	remaining int
	reads     int
}

func (c *fakeConnection) Info() decode.Info { return c.info }

func (c *fakeConnection) Read(pool *frame.Pool) (frame.Planar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining <= 0 {
		return frame.Planar{}, io.EOF
	}
	c.reads++
	c.remaining--

	const w, h = 16, 16
	buf := pool.Get(w * h * 3 / 2)
	buf = buf[:w*h*3/2]
	return frame.Planar{
		Timestamp: float64(c.reads-1) * c.frameGap,
		Width:     w, Height: h,
		Format: frame.YUV420P,
		Data:   buf,
	}, nil
}

func (c *fakeConnection) Close() error { return nil }

func (c *fakeConnection) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

type fakeBackend struct {
	conn *fakeConnection
}

func (b *fakeBackend) Open(ctx context.Context, path string) (decode.Connection, error) {
	return b.conn, nil
}

func newExtractor(conn *fakeConnection, maxFrames uint32, sampleFPS float64) *decode.Extractor {
	return &decode.Extractor{
		Backend:   &fakeBackend{conn: conn},
		Pool:      frame.NewPool(4, 16*16*3/2),
		MaxFrames: maxFrames,
		SampleFPS: sampleFPS,
	}
}

func TestExtractorEmitsEveryFrameWithoutSampling(t *testing.T) {
	is := is.New(t)
	conn := &fakeConnection{
		info:      decode.Info{DurationSeconds: 1, FPS: 10},
		frameGap:  0.1,
		remaining: 10,
	}
	out := make(chan frame.Planar, 16)

	result, err := newExtractor(conn, 0, 0).Stream(context.Background(), "input.mp4", out)
	is.NoErr(err)
	is.Equal(result.FramesEmitted, uint32(10))

	var numbers []uint32
	for f := range out {
		numbers = append(numbers, f.Number)
	}
	is.Equal(len(numbers), 10)
	for i, n := range numbers {
		is.Equal(n, uint32(i+1))
	}
}

func TestExtractorSamplesByTimestampDelta(t *testing.T) {
	is := is.New(t)
	// 30 fps source sampled at 2 fps over 1s should keep ~2 frames
	conn := &fakeConnection{
		info:      decode.Info{DurationSeconds: 1, FPS: 30},
		frameGap:  1.0 / 30,
		remaining: 30,
	}
	out := make(chan frame.Planar, 32)

	result, err := newExtractor(conn, 0, 2).Stream(context.Background(), "input.mp4", out)
	is.NoErr(err)
	is.Equal(result.FramesEmitted, uint32(2))
}

func TestExtractorSpreadsMaxFramesOverDuration(t *testing.T) {
	is := is.New(t)
	conn := &fakeConnection{
		info:      decode.Info{DurationSeconds: 2, FPS: 10},
		frameGap:  0.2,
		remaining: 10,
	}
	out := make(chan frame.Planar, 16)

	// maxFrames=4 over 2s derives a 0.5s interval
	result, err := newExtractor(conn, 4, 0).Stream(context.Background(), "input.mp4", out)
	is.NoErr(err)
	is.Equal(result.FramesEmitted, uint32(4))
}

func TestExtractorStopsAtMaxFrames(t *testing.T) {
	is := is.New(t)
	conn := &fakeConnection{
		info:      decode.Info{DurationSeconds: 100, FPS: 10},
		frameGap:  0.1,
		remaining: 1000,
	}
	out := make(chan frame.Planar, 16)

	result, err := newExtractor(conn, 5, 10).Stream(context.Background(), "input.mp4", out)
	is.NoErr(err)
	is.Equal(result.FramesEmitted, uint32(5))
	is.True(conn.readCount() < 1000)
}

func TestExtractorBlocksOnFullChannelInsteadOfDropping(t *testing.T) {
	is := is.New(t)
	conn := &fakeConnection{
		info:      decode.Info{DurationSeconds: 10, FPS: 10},
		frameGap:  0.1,
		remaining: 100,
	}
	// capacity 1 and a consumer that never reads
	out := make(chan frame.Planar, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan decode.Result)
	go func() {
		result, err := newExtractor(conn, 0, 0).Stream(ctx, "input.mp4", out)
		is.NoErr(err)
		done <- result
	}()

	// give the producer time to fill the channel and block on the send
	time.Sleep(50 * time.Millisecond)
	reads := conn.readCount()
	is.True(reads <= 2) // one buffered, one stuck in the blocking send

	cancel()
	result := <-done
	is.Equal(result.FramesEmitted, uint32(1))
}

func TestExtractorCancellationReturnsPartialProgressNotError(t *testing.T) {
	is := is.New(t)
	conn := &fakeConnection{
		info:      decode.Info{DurationSeconds: 10, FPS: 10},
		frameGap:  0.1,
		remaining: 100,
	}
	out := make(chan frame.Planar, 8)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// drain a few then walk away
		for i := 0; i < 3; i++ {
			<-out
		}
		cancel()
	}()

	result, err := newExtractor(conn, 0, 0).Stream(ctx, "input.mp4", out)
	is.NoErr(err)
	is.True(result.FramesEmitted < 100)
}
