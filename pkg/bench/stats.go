// Package bench times converter variants over a common frame set and
// reports per-mode throughput.
package bench

import (
	"time"

	"github.com/subsnap/subsnap/pkg/convert"
)

// Stats accumulates per-frame conversion timings for one mode.
type Stats struct {
	Mode            convert.Mode
	FramesProcessed int
	FramesFailed    int
	Total           time.Duration
	Min             time.Duration
	Max             time.Duration
}

// Record folds one successful frame conversion into the running totals.
func (s *Stats) Record(d time.Duration) {
	if s.FramesProcessed == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.FramesProcessed++
	s.Total += d
}

// RecordFailure counts a frame the converter could not handle. Failed
// frames never contribute to the timing figures.
func (s *Stats) RecordFailure() {
	s.FramesFailed++
}

// Avg is the mean conversion time per successful frame.
func (s Stats) Avg() time.Duration {
	if s.FramesProcessed == 0 {
		return 0
	}
	return s.Total / time.Duration(s.FramesProcessed)
}

// FPS is the sustained conversion rate implied by the mean frame time.
func (s Stats) FPS() float64 {
	avg := s.Avg()
	if avg <= 0 {
		return 0
	}
	return float64(time.Second) / float64(avg)
}

// Jitter is the spread between the slowest and fastest frame, a rough
// stability signal for the mode.
func (s Stats) Jitter() time.Duration {
	if s.Max < s.Min {
		return 0
	}
	return s.Max - s.Min
}
