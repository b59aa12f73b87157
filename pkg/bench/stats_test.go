package bench

import (
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/pkg/errors"
	"github.com/subsnap/subsnap/pkg/convert"
	"github.com/subsnap/subsnap/pkg/frame"
)

func TestStatsRecordTracksExtremesAndMean(t *testing.T) {
	is := is.New(t)
	s := Stats{Mode: convert.ModeReference}

	s.Record(4 * time.Millisecond)
	s.Record(2 * time.Millisecond)
	s.Record(6 * time.Millisecond)

	is.Equal(s.FramesProcessed, 3)
	is.Equal(s.Min, 2*time.Millisecond)
	is.Equal(s.Max, 6*time.Millisecond)
	is.Equal(s.Avg(), 4*time.Millisecond)
	is.Equal(s.Jitter(), 4*time.Millisecond)
}

func TestStatsFPSFromMeanFrameTime(t *testing.T) {
	is := is.New(t)
	s := Stats{}
	s.Record(10 * time.Millisecond)
	is.Equal(s.FPS(), 100.0)
}

func TestStatsZeroValueIsSafe(t *testing.T) {
	is := is.New(t)
	s := Stats{}
	is.Equal(s.Avg(), time.Duration(0))
	is.Equal(s.FPS(), 0.0)
}

func TestStatsFailuresDoNotSkewTimings(t *testing.T) {
	is := is.New(t)
	s := Stats{}
	s.Record(5 * time.Millisecond)
	s.RecordFailure()
	s.RecordFailure()

	is.Equal(s.FramesProcessed, 1)
	is.Equal(s.FramesFailed, 2)
	is.Equal(s.Avg(), 5*time.Millisecond)
}

type flakyConverter struct {
	calls int
}

func (c *flakyConverter) Convert(f frame.Planar) (frame.RGB, error) {
	c.calls++
	if c.calls%2 == 0 {
		return frame.RGB{}, errors.New("decode glitch")
	}
	return frame.RGB{
		Number: f.Number,
		Width:  f.Width,
		Height: f.Height,
		Data:   make([]byte, int(f.Width)*int(f.Height)*3),
	}, nil
}

func (c *flakyConverter) Mode() convert.Mode { return convert.ModeReference }
func (c *flakyConverter) Close() error       { return nil }

func testFrames(n int) []frame.Planar {
	frames := make([]frame.Planar, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, frame.Planar{
			Number: uint32(i + 1),
			Width:  8,
			Height: 8,
			Format: frame.YUV420P,
			Data:   make([]byte, 8*8*3/2),
		})
	}
	return frames
}

func TestRunSurvivesPerFrameFailures(t *testing.T) {
	is := is.New(t)

	stats, results := Run(&flakyConverter{}, testFrames(6))

	is.Equal(stats.FramesProcessed, 3)
	is.Equal(stats.FramesFailed, 3)
	is.Equal(len(results), 3)
	is.Equal(results[0].Number, uint32(1))
	is.Equal(results[1].Number, uint32(3))
	is.Equal(results[2].Number, uint32(5))
}

func TestReportTableListsEveryMode(t *testing.T) {
	is := is.New(t)

	var report Report
	slow := Stats{Mode: convert.ModeReference}
	slow.Record(20 * time.Millisecond)
	fast := Stats{Mode: convert.ModeGPU}
	fast.Record(2 * time.Millisecond)
	report.Add(slow)
	report.Add(fast)

	var buf strings.Builder
	is.NoErr(report.WriteTable(&buf))
	out := buf.String()
	is.True(strings.Contains(out, "reference"))
	is.True(strings.Contains(out, "gpu"))
	is.True(strings.Contains(out, "fastest: gpu"))
}

func TestReportFastestIgnoresEmptyRuns(t *testing.T) {
	is := is.New(t)

	var report Report
	report.Add(Stats{Mode: convert.ModeOpenCV})
	working := Stats{Mode: convert.ModeSWScale}
	working.Record(3 * time.Millisecond)
	report.Add(working)

	fastest, ok := report.Fastest()
	is.True(ok)
	is.Equal(fastest.Mode, convert.ModeSWScale)

	empty := Report{}
	_, ok = empty.Fastest()
	is.True(!ok)
}
