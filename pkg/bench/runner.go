package bench

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/subsnap/subsnap/pkg/convert"
	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/subsnap/subsnap/pkg/log"
)

var now = time.Now

// Run pushes every frame through the converter one at a time, timing
// each conversion. A frame the converter rejects is logged and counted
// as a failure; the run carries on.
func Run(conv convert.Converter, frames []frame.Planar) (Stats, []frame.RGB) {
	stats := Stats{Mode: conv.Mode()}
	results := make([]frame.RGB, 0, len(frames))

	for _, f := range frames {
		start := now()
		rgb, err := conv.Convert(f)
		if err != nil {
			log.Error("frame %d failed in %s mode: %v", f.Number, conv.Mode(), err)
			stats.RecordFailure()
			continue
		}
		stats.Record(now().Sub(start))
		results = append(results, rgb)
	}

	return stats, results
}

// Report collects the per-mode stats of one benchmark session.
type Report struct {
	stats []Stats
}

func (r *Report) Add(s Stats) {
	r.stats = append(r.stats, s)
}

// Each visits the recorded stats in insertion order.
func (r *Report) Each(visit func(Stats)) {
	for _, s := range r.stats {
		visit(s)
	}
}

// Fastest returns the mode with the highest conversion rate. The
// second return is false when nothing has been recorded yet.
func (r *Report) Fastest() (Stats, bool) {
	var best Stats
	found := false
	for _, s := range r.stats {
		if s.FramesProcessed == 0 {
			continue
		}
		if !found || s.FPS() > best.FPS() {
			best = s
			found = true
		}
	}
	return best, found
}

// WriteTable renders the mode comparison in insertion order.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tFRAMES\tFAILED\tAVG\tFPS\tMIN\tMAX")
	for _, s := range r.stats {
		fmt.Fprintf(
			tw, "%s\t%d\t%d\t%.2fms\t%.1f\t%.2fms\t%.2fms\n",
			s.Mode, s.FramesProcessed, s.FramesFailed,
			millis(s.Avg()), s.FPS(), millis(s.Min), millis(s.Max),
		)
	}
	if fastest, ok := r.Fastest(); ok {
		fmt.Fprintf(tw, "\nfastest: %s (%.1f fps)\n", fastest.Mode, fastest.FPS())
	}
	return tw.Flush()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
