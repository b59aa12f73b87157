// Package pipeline wires the decode, conversion and benchmark stages
// together: a producer streams sampled frames into a bounded channel
// and a consumer drains it through a converter.
package pipeline

import (
	"context"
	"time"

	"github.com/subsnap/subsnap/pkg/batch"
	"github.com/subsnap/subsnap/pkg/bench"
	"github.com/subsnap/subsnap/pkg/convert"
	"github.com/subsnap/subsnap/pkg/decode"
	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/subsnap/subsnap/pkg/log"
)

const defaultChannelCapacity = 100

var now = time.Now

// Session is one configured pass over an input video.
type Session struct {
	Backend         decode.Backend
	Pool            *frame.Pool
	ChannelCapacity int
	MaxFrames       uint32
	SampleFPS       float64
}

func (s *Session) channelCapacity() int {
	if s.ChannelCapacity > 0 {
		return s.ChannelCapacity
	}
	return defaultChannelCapacity
}

func (s *Session) pool() *frame.Pool {
	if s.Pool == nil {
		s.Pool = frame.NewPool(0, 0)
	}
	return s.Pool
}

func (s *Session) extractor() *decode.Extractor {
	return &decode.Extractor{
		Backend:   s.Backend,
		Pool:      s.pool(),
		MaxFrames: s.MaxFrames,
		SampleFPS: s.SampleFPS,
	}
}

// Run is the outcome of pushing one video through one converter.
type Run struct {
	Stats      bench.Stats
	Results    []frame.RGB
	Extraction decode.Result
}

// Convert streams sampled frames from the video at path through conv.
// Decoding and converting overlap; the bounded channel between them
// applies backpressure when conversion cannot keep up. A frame the
// converter rejects is logged and dropped, never fatal. Results keep
// the frame order of the input stream.
func (s *Session) Convert(ctx context.Context, path string, conv convert.Converter) (Run, error) {
	frames := make(chan frame.Planar, s.channelCapacity())
	extracted := make(chan extractOutcome, 1)

	ext := s.extractor()
	go func() {
		res, err := ext.Stream(ctx, path, frames)
		extracted <- extractOutcome{res, err}
	}()

	run := Run{Stats: bench.Stats{Mode: conv.Mode()}}
	for f := range frames {
		start := now()
		rgb, err := conv.Convert(f)
		s.pool().Put(f.Data)
		if err != nil {
			log.Error("frame %d failed in %s mode: %v", f.Number, conv.Mode(), err)
			run.Stats.RecordFailure()
			continue
		}
		run.Stats.Record(now().Sub(start))
		run.Results = append(run.Results, rgb)
	}

	outcome := <-extracted
	run.Extraction = outcome.res
	if outcome.err != nil {
		return run, outcome.err
	}
	return run, nil
}

type extractOutcome struct {
	res decode.Result
	err error
}

// ConvertBatched streams sampled frames through a batch accumulator
// into a batched engine, flushing at the batch target and draining the
// remainder at stream end. A failed batch is logged and counted
// against every frame in it; the next batch still runs.
func (s *Session) ConvertBatched(
	ctx context.Context, path string, engine convert.BatchConverter,
	batchTarget int, maxWait time.Duration,
) (Run, error) {
	frames := make(chan frame.Planar, s.channelCapacity())
	extracted := make(chan extractOutcome, 1)

	ext := s.extractor()
	go func() {
		res, err := ext.Stream(ctx, path, frames)
		extracted <- extractOutcome{res, err}
	}()

	run := Run{Stats: bench.Stats{Mode: convert.ModeGPU}}
	acc := batch.New(batchTarget, maxWait)
	for f := range frames {
		flushed, err := acc.Add(f)
		if err != nil {
			log.Error("frame %d rejected: %v", f.Number, err)
			run.Stats.RecordFailure()
			s.pool().Put(f.Data)
			continue
		}
		if flushed != nil {
			s.convertFlush(engine, flushed, &run)
		}
	}
	if remainder := acc.Drain(); remainder != nil {
		s.convertFlush(engine, remainder, &run)
	}

	outcome := <-extracted
	run.Extraction = outcome.res
	if outcome.err != nil {
		return run, outcome.err
	}
	return run, nil
}

func (s *Session) convertFlush(engine convert.BatchConverter, flushed []frame.Planar, run *Run) {
	start := now()
	results, err := engine.ConvertBatch(flushed)
	elapsed := now().Sub(start)

	for _, f := range flushed {
		s.pool().Put(f.Data)
	}

	if err != nil {
		log.Error("batch of %d frames failed: %v", len(flushed), err)
		for range flushed {
			run.Stats.RecordFailure()
		}
		return
	}

	perFrame := elapsed / time.Duration(len(flushed))
	for range results {
		run.Stats.Record(perFrame)
	}
	run.Results = append(run.Results, results...)
}

// Collect decodes the sampled frames into memory in one pass so
// several converter modes can be benchmarked over identical input.
func (s *Session) Collect(ctx context.Context, path string) ([]frame.Planar, decode.Result, error) {
	frames := make(chan frame.Planar, s.channelCapacity())
	extracted := make(chan extractOutcome, 1)

	ext := s.extractor()
	go func() {
		res, err := ext.Stream(ctx, path, frames)
		extracted <- extractOutcome{res, err}
	}()

	collected := []frame.Planar{}
	for f := range frames {
		collected = append(collected, f)
	}

	outcome := <-extracted
	if outcome.err != nil {
		return nil, outcome.res, outcome.err
	}
	return collected, outcome.res, nil
}

// Benchmark runs every given mode over one decoded frame set and
// collects the per-mode stats. A mode whose converter cannot be
// constructed is logged and skipped so the remaining modes still run.
func (s *Session) Benchmark(
	ctx context.Context, path string, modes []convert.Mode, opts convert.Options,
) (*bench.Report, error) {
	frames, res, err := s.Collect(ctx, path)
	if err != nil {
		return nil, err
	}
	log.Info("decoded %d frames in %s", res.FramesEmitted, res.Elapsed)

	report := &bench.Report{}
	for _, mode := range modes {
		conv, err := ResolveConverter(mode, opts)
		if err != nil {
			log.Error("skipping %s mode: %v", mode, err)
			continue
		}

		stats, _ := bench.Run(conv, frames)
		report.Add(stats)

		if err := conv.Close(); err != nil {
			log.Warn("unable to close %s converter: %v", mode, err)
		}
	}
	return report, nil
}

// ResolveConverter builds the converter for a mode. When the GPU
// engine cannot be brought up, for example with no adapter present,
// conversion falls back to the reference CPU path rather than failing
// the session.
func ResolveConverter(mode convert.Mode, opts convert.Options) (convert.Converter, error) {
	conv, err := convert.Factory(mode, opts)
	if err == nil {
		return conv, nil
	}
	if mode != convert.ModeGPU {
		return nil, err
	}

	log.Warn("unable to initialise GPU converter: %v", err)
	log.Warn("falling back to %s mode", convert.ModeReference)
	return convert.Factory(convert.ModeReference, opts)
}
