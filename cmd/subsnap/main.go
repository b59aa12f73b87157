package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subsnap/subsnap/internal/config"
	"github.com/subsnap/subsnap/pkg/bench"
	"github.com/subsnap/subsnap/pkg/convert"
	db "github.com/subsnap/subsnap/pkg/database"
	"github.com/subsnap/subsnap/pkg/database/models"
	"github.com/subsnap/subsnap/pkg/database/repos"
	"github.com/subsnap/subsnap/pkg/decode"
	"github.com/subsnap/subsnap/pkg/frame"
	"github.com/subsnap/subsnap/pkg/gpu"
	"github.com/subsnap/subsnap/pkg/log"
	"github.com/subsnap/subsnap/pkg/pipeline"
	"github.com/subsnap/subsnap/pkg/snapshot"
)

const usage = "Usage: subsnap setup | remove-setup | [flags] -input <video>"

func main() {
	log.Setup()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "setup":
			if err := db.Setup(); err != nil && !errors.Is(err, db.ErrDBAlreadyExists) {
				log.Fatal(err.Error())
			}
			log.Info("Setup successful...")
			return
		case "remove-setup":
			if err := db.Destroy(); err != nil {
				log.Error("unable to delete database file: %s", err.Error())
				os.Exit(1)
			}
			log.Info("Removed setup...")
			return
		}
	}

	var (
		converterName = flag.String("converter", "gpu", "conversion mode, or 'all' to benchmark every mode")
		decoderName   = flag.String("decoder", "ffmpeg", "decode backend: ffmpeg or opencv")
		input         = flag.String("input", "", "path of the video to convert")
		maxFrames     = flag.Uint("frames", 0, "cap on extracted frames, 0 for no cap")
		sampleFPS     = flag.Float64("fps", 0, "frame sampling rate, 0 to take every frame")
		saveImages    = flag.Bool("save-images", false, "write converted frames as PNGs")
		outputDir     = flag.String("output", "frames", "directory for saved PNGs")
		storeResults  = flag.Bool("store-results", false, "persist run stats to the local database")
		listModes     = flag.Bool("list-modes", false, "list conversion modes and exit")
	)
	flag.Parse()

	if *listModes {
		for _, mode := range convert.Modes() {
			fmt.Printf("%-10s %s\n", mode, mode.Description())
		}
		return
	}

	if len(*input) == 0 {
		fmt.Println(usage)
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err.Error())
	}

	backend, err := decode.ResolveBackend(*decoderName)
	if err != nil {
		log.Fatal(err.Error())
	}

	session := pipeline.Session{
		Backend:         backend,
		Pool:            frame.NewPool(cfg.PoolSlots, 0),
		ChannelCapacity: cfg.ChannelCapacity,
		MaxFrames:       uint32(*maxFrames),
		SampleFPS:       *sampleFPS,
	}

	opts := convert.Options{
		BatchTarget:  cfg.BatchSize,
		MaxBatchWait: time.Duration(cfg.MaxBatchWaitMillis) * time.Millisecond,
		GPU: gpu.Config{
			MemoryBudgetBytes: uint64(cfg.GPUMemoryBudgetMiB) << 20,
			SafetyFactor:      cfg.GPUSafetyFactor,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		killSignal := <-interrupt
		fmt.Print("\r")
		log.Warn("Received signal: %s", killSignal)
		cancel()
	}()

	if *converterName == "all" {
		runBenchmark(ctx, &session, *input, opts, *storeResults)
		return
	}

	runSingle(ctx, &session, *input, convert.Mode(*converterName), opts, runOutput{
		saveImages:   *saveImages,
		outputDir:    *outputDir,
		storeResults: *storeResults,
	})
}

func runBenchmark(
	ctx context.Context, session *pipeline.Session, input string,
	opts convert.Options, storeResults bool,
) {
	report, err := session.Benchmark(ctx, input, convert.Modes(), opts)
	if err != nil {
		log.Fatal(err.Error())
	}

	if err := report.WriteTable(os.Stdout); err != nil {
		log.Fatal(err.Error())
	}

	if storeResults {
		report.Each(func(stats bench.Stats) {
			persistRun(input, stats)
		})
	}
}

type runOutput struct {
	saveImages   bool
	outputDir    string
	storeResults bool
}

func runSingle(
	ctx context.Context, session *pipeline.Session, input string,
	mode convert.Mode, opts convert.Options, out runOutput,
) {
	run, err := convertStream(ctx, session, input, mode, opts)
	if err != nil {
		log.Fatal(err.Error())
	}

	report := bench.Report{}
	report.Add(run.Stats)
	if err := report.WriteTable(os.Stdout); err != nil {
		log.Fatal(err.Error())
	}

	if out.saveImages {
		saver := snapshot.NewSaver(out.outputDir, true)
		saved := saver.SaveAll(run.Results)
		log.Info("saved %d/%d frames to %s", saved, len(run.Results), out.outputDir)
	}

	if out.storeResults {
		persistRun(input, run.Stats)
	}
}

// convertStream runs one mode over the input. The GPU mode consumes
// the frame channel through the batch accumulator so whole batches hit
// the device; every other mode converts frame by frame.
func convertStream(
	ctx context.Context, session *pipeline.Session, input string,
	mode convert.Mode, opts convert.Options,
) (pipeline.Run, error) {
	if mode == convert.ModeGPU {
		engine, err := gpu.NewEngine(opts.GPU)
		if err == nil {
			defer engine.Close()
			return session.ConvertBatched(ctx, input, engine, opts.BatchTarget, opts.MaxBatchWait)
		}
		log.Warn("unable to initialise GPU converter: %v", err)
		log.Warn("falling back to %s mode", convert.ModeReference)
		mode = convert.ModeReference
	}

	conv, err := convert.Factory(mode, opts)
	if err != nil {
		return pipeline.Run{}, err
	}
	defer conv.Close()

	return session.Convert(ctx, input, conv)
}

func persistRun(input string, stats bench.Stats) {
	conn, err := db.Connect()
	if err != nil {
		log.Error("unable to store results: %s", err.Error())
		return
	}

	repo := repos.RunRepository{DB: conn}
	run := models.ConversionRun{
		Mode:            string(stats.Mode),
		InputPath:       input,
		FramesProcessed: stats.FramesProcessed,
		FramesFailed:    stats.FramesFailed,
		AvgMillis:       float64(stats.Avg()) / float64(time.Millisecond),
		MinMillis:       float64(stats.Min) / float64(time.Millisecond),
		MaxMillis:       float64(stats.Max) / float64(time.Millisecond),
		FPS:             stats.FPS(),
	}
	if err := repo.Create(&run); err != nil {
		log.Error("unable to store %s run: %s", stats.Mode, err.Error())
		return
	}
	log.Info("stored %s run as %s", stats.Mode, run.UUID)
}
