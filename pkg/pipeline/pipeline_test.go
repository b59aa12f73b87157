package pipeline

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/matryer/is"
	"github.com/pkg/errors"
	"github.com/subsnap/subsnap/pkg/convert"
	"github.com/subsnap/subsnap/pkg/decode"
	"github.com/subsnap/subsnap/pkg/frame"
)

type fakeConnection struct {
	frames []frame.Planar
	cursor int
	closed bool
}

func (c *fakeConnection) Info() decode.Info {
	return decode.Info{DurationSeconds: float64(len(c.frames)) / 30.0, FPS: 30}
}

func (c *fakeConnection) Read(pool *frame.Pool) (frame.Planar, error) {
	if c.cursor >= len(c.frames) {
		return frame.Planar{}, io.EOF
	}
	f := c.frames[c.cursor]
	c.cursor++

	buf := pool.Get(len(f.Data))
	f.Data = append(buf, f.Data...)
	return f, nil
}

func (c *fakeConnection) Close() error {
	c.closed = true
	return nil
}

type fakeBackend struct {
	frames []frame.Planar
	err    error
}

func (b *fakeBackend) Open(ctx context.Context, path string) (decode.Connection, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &fakeConnection{frames: b.frames}, nil
}

func yuvFrames(n int, w, h uint32) []frame.Planar {
	frames := make([]frame.Planar, 0, n)
	size := int(w) * int(h) * 3 / 2
	for i := 0; i < n; i++ {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte((i + j) % 256)
		}
		frames = append(frames, frame.Planar{
			Number:    uint32(i + 1),
			Timestamp: float64(i) / 30.0,
			Width:     w,
			Height:    h,
			Format:    frame.YUV420P,
			Data:      data,
		})
	}
	return frames
}

type countingConverter struct {
	fail map[uint32]bool
}

func (c *countingConverter) Convert(f frame.Planar) (frame.RGB, error) {
	if c.fail[f.Number] {
		return frame.RGB{}, errors.New("bad frame")
	}
	return frame.RGB{
		Number: f.Number,
		Width:  f.Width,
		Height: f.Height,
		Data:   make([]byte, int(f.Width)*int(f.Height)*3),
	}, nil
}

func (c *countingConverter) Mode() convert.Mode { return convert.ModeReference }
func (c *countingConverter) Close() error       { return nil }

func TestConvertPreservesStreamOrder(t *testing.T) {
	is := is.New(t)
	session := Session{Backend: &fakeBackend{frames: yuvFrames(20, 16, 16)}}

	run, err := session.Convert(context.Background(), "test.mp4", &countingConverter{})
	is.NoErr(err)
	is.Equal(len(run.Results), 20)
	is.Equal(run.Extraction.FramesEmitted, uint32(20))
	for i, rgb := range run.Results {
		is.Equal(rgb.Number, uint32(i+1))
	}
}

func TestConvertSkipsRejectedFramesAndContinues(t *testing.T) {
	is := is.New(t)
	session := Session{Backend: &fakeBackend{frames: yuvFrames(10, 16, 16)}}
	conv := &countingConverter{fail: map[uint32]bool{3: true, 7: true}}

	run, err := session.Convert(context.Background(), "test.mp4", conv)
	is.NoErr(err)
	is.Equal(len(run.Results), 8)
	is.Equal(run.Stats.FramesProcessed, 8)
	is.Equal(run.Stats.FramesFailed, 2)
}

func TestConvertSurfacesOpenFailure(t *testing.T) {
	is := is.New(t)
	session := Session{Backend: &fakeBackend{err: errors.New("no such file")}}

	_, err := session.Convert(context.Background(), "missing.mp4", &countingConverter{})
	is.True(err != nil)
}

func TestCollectGathersEverySampledFrame(t *testing.T) {
	is := is.New(t)
	session := Session{Backend: &fakeBackend{frames: yuvFrames(12, 16, 16)}}

	frames, res, err := session.Collect(context.Background(), "test.mp4")
	is.NoErr(err)
	is.Equal(len(frames), 12)
	is.Equal(res.FramesEmitted, uint32(12))
	is.Equal(frames[0].Number, uint32(1))
	is.Equal(frames[11].Number, uint32(12))
}

func TestBenchmarkComparesCPUModes(t *testing.T) {
	is := is.New(t)
	session := Session{Backend: &fakeBackend{frames: yuvFrames(6, 32, 32)}}

	report, err := session.Benchmark(
		context.Background(), "test.mp4",
		[]convert.Mode{convert.ModeReference, convert.ModeStdImage},
		convert.Options{},
	)
	is.NoErr(err)

	var buf strings.Builder
	is.NoErr(report.WriteTable(&buf))
	is.True(strings.Contains(buf.String(), "reference"))
	is.True(strings.Contains(buf.String(), "stdimage"))
}

type recordingEngine struct {
	batches [][]frame.Planar
	fail    map[int]bool
}

func (e *recordingEngine) ConvertBatch(frames []frame.Planar) ([]frame.RGB, error) {
	idx := len(e.batches)
	e.batches = append(e.batches, frames)
	if e.fail[idx] {
		return nil, errors.New("device error")
	}
	out := make([]frame.RGB, 0, len(frames))
	for _, f := range frames {
		out = append(out, frame.RGB{
			Number: f.Number,
			Width:  f.Width,
			Height: f.Height,
			Data:   make([]byte, int(f.Width)*int(f.Height)*3),
		})
	}
	return out, nil
}

func TestConvertBatchedFlushesAtTargetAndDrainsRemainder(t *testing.T) {
	is := is.New(t)
	session := Session{Backend: &fakeBackend{frames: yuvFrames(12, 16, 16)}}
	engine := &recordingEngine{}

	run, err := session.ConvertBatched(context.Background(), "test.mp4", engine, 5, 0)
	is.NoErr(err)

	is.Equal(len(engine.batches), 3)
	is.Equal(len(engine.batches[0]), 5)
	is.Equal(len(engine.batches[1]), 5)
	is.Equal(len(engine.batches[2]), 2)

	// output order must match input order across every flush boundary
	is.Equal(len(run.Results), 12)
	for i, rgb := range run.Results {
		is.Equal(rgb.Number, uint32(i+1))
	}
	is.Equal(run.Stats.FramesProcessed, 12)
}

func TestConvertBatchedFailedBatchDoesNotPoisonTheRest(t *testing.T) {
	is := is.New(t)
	session := Session{Backend: &fakeBackend{frames: yuvFrames(12, 16, 16)}}
	engine := &recordingEngine{fail: map[int]bool{1: true}}

	run, err := session.ConvertBatched(context.Background(), "test.mp4", engine, 5, 0)
	is.NoErr(err)

	is.Equal(len(engine.batches), 3)
	is.Equal(run.Stats.FramesFailed, 5)
	is.Equal(run.Stats.FramesProcessed, 7)
	is.Equal(len(run.Results), 7)
	is.Equal(run.Results[4].Number, uint32(5))
	is.Equal(run.Results[5].Number, uint32(11))
}

func TestResolveConverterPassesThroughUnknownModeError(t *testing.T) {
	is := is.New(t)
	_, err := ResolveConverter(convert.Mode("cuda"), convert.Options{})
	is.True(err != nil)
}

func TestResolveConverterBuildsCPUModesDirectly(t *testing.T) {
	is := is.New(t)
	conv, err := ResolveConverter(convert.ModeOpenCV, convert.Options{})
	is.NoErr(err)
	is.Equal(conv.Mode(), convert.ModeOpenCV)
	is.NoErr(conv.Close())
}
