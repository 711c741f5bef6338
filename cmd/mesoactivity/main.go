package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"mesoactivity/pkg/analysis"
	"mesoactivity/pkg/config"
	"mesoactivity/pkg/correlation"
	"mesoactivity/pkg/frames"
	"mesoactivity/pkg/reduce"
	"mesoactivity/pkg/report"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "YAML configuration file (defaults are used when empty)")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this path and exit")
	mode := flag.String("mode", "activity", "Analysis to run: activity, fft, complements or bregma")
	regionPointsFile := flag.String("region-points-file", "", "Region labeling of the 512x512 canonical space (.csv or binary)")
	imageFile := flag.String("image-file", "", "Raw frame stack, or a directory of JPEG/PNG frames")
	imageWidth := flag.Int("image-width", 0, "Frame width in pixels (overrides config)")
	imageHeight := flag.Int("image-height", 0, "Frame height in pixels (overrides config)")
	nFrames := flag.Int("n-frames", 0, "Number of frames to read (overrides config)")
	fps := flag.Float64("fps", 0, "Acquisition frame rate for spectrum frequencies (overrides config)")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (overrides config)")
	saveDir := flag.String("save-dir", "", "Directory to save results (overrides config)")
	landmarkFiles := flag.String("landmark-files", "", "Comma-separated landmark CSVs, one per recording (bregma mode)")
	regionPointsFiles := flag.String("region-points-files", "", "Comma-separated region labelings, one per recording (bregma mode)")
	printMatrix := flag.Bool("print-matrix", false, "Print the full correlation matrix")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *writeConfig)
		return
	}

	// Load configuration, then apply environment and flag overrides
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		log.Fatalf("Failed to apply environment: %v", err)
	}
	overrideInt(&cfg.Analysis.ImageWidth, *imageWidth)
	overrideInt(&cfg.Analysis.ImageHeight, *imageHeight)
	overrideInt(&cfg.Analysis.Frames, *nFrames)
	overrideInt(&cfg.Analysis.NumCores, *numCores)
	if *fps > 0 {
		cfg.Analysis.FPS = *fps
	}
	if *saveDir != "" {
		cfg.Output.SaveDir = *saveDir
	}
	if *printMatrix {
		cfg.Output.PrintMatrix = true
	}

	var logOut io.Writer = os.Stdout
	if !cfg.Output.Verbose {
		logOut = io.Discard
	}
	logger := log.New(logOut, "", 0)

	fmt.Println("================================")
	fmt.Println("MESOSCALE ACTIVITY ANALYSIS")
	fmt.Printf("Mode: %s\n", *mode)
	fmt.Println("================================")

	sink, err := newSink(cfg, *mode)
	if err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	startTime := time.Now()
	if err := run(ctx, cfg, *mode, runFiles{
		regionPoints:  *regionPointsFile,
		image:         *imageFile,
		landmarks:     splitList(*landmarkFiles),
		regionPointsN: splitList(*regionPointsFiles),
	}, sink.sink, logger); err != nil {
		sink.sink.Close()
		log.Fatalf("Analysis failed: %v", err)
	}
	if err := sink.sink.Close(); err != nil {
		log.Fatalf("Failed to finish results: %v", err)
	}

	fmt.Printf("\nAnalysis completed successfully in %.2f seconds!\n", time.Since(startTime).Seconds())
	fmt.Printf("Results saved to: %s (run %s)\n", sink.dir.Dir(), sink.dir.RunID())
}

type runFiles struct {
	regionPoints  string
	image         string
	landmarks     []string
	regionPointsN []string
}

type outputs struct {
	dir  *report.DirSink
	sink report.Sink
}

func newSink(cfg *config.Config, mode string) (*outputs, error) {
	dir, err := report.NewDirSink(cfg.Output.SaveDir, mode, map[string]string{
		"imageWidth":  strconv.Itoa(cfg.Analysis.ImageWidth),
		"imageHeight": strconv.Itoa(cfg.Analysis.ImageHeight),
		"frames":      strconv.Itoa(cfg.Analysis.Frames),
		"fps":         strconv.FormatFloat(cfg.Analysis.FPS, 'g', -1, 64),
		"lower":       strconv.FormatFloat(cfg.Correlation.Lower, 'g', -1, 64),
		"upper":       strconv.FormatFloat(cfg.Correlation.Upper, 'g', -1, 64),
	})
	if err != nil {
		return nil, err
	}
	table := report.NewTableSink(os.Stdout)
	table.PrintMatrix = cfg.Output.PrintMatrix
	return &outputs{dir: dir, sink: report.Multi(dir, table)}, nil
}

func run(ctx context.Context, cfg *config.Config, mode string, files runFiles, sink report.Sink, logger *log.Logger) error {
	if mode == "bregma" {
		if len(files.landmarks) != len(files.regionPointsN) {
			return fmt.Errorf("%d landmark files but %d region points files",
				len(files.landmarks), len(files.regionPointsN))
		}
		recordings := make([]analysis.Recording, len(files.landmarks))
		for i := range recordings {
			recordings[i] = analysis.Recording{
				LandmarkFile:     files.landmarks[i],
				RegionPointsFile: files.regionPointsN[i],
			}
		}
		layout := analysis.Layout{
			Row:     cfg.Landmarks.BregmaRow,
			XColumn: cfg.Landmarks.BregmaXColumn,
			YColumn: cfg.Landmarks.BregmaYColumn,
		}
		_, _, err := analysis.Bregma(recordings, layout, sink, logger)
		return err
	}

	emptyPolicy, err := reduce.ParseEmptyPolicy(cfg.Analysis.EmptyRegion)
	if err != nil {
		return err
	}
	sample, err := frames.ParseSampleType(cfg.Frames.Sample)
	if err != nil {
		return err
	}
	var order binary.ByteOrder = binary.LittleEndian
	if cfg.Frames.BigEndian {
		order = binary.BigEndian
	}

	params := &analysis.Params{
		RegionPointsFile: files.regionPoints,
		ImageFile:        files.image,
		ImageWidth:       cfg.Analysis.ImageWidth,
		ImageHeight:      cfg.Analysis.ImageHeight,
		Frames:           cfg.Analysis.Frames,
		FPS:              cfg.Analysis.FPS,
		NumCores:         cfg.Analysis.NumCores,
		EmptyRegion:      emptyPolicy,
		Correlation: correlation.Options{
			Lower:   cfg.Correlation.Lower,
			Upper:   cfg.Correlation.Upper,
			Workers: cfg.Analysis.NumCores,
		},
	}
	source := frames.Auto{Raw: &frames.Raw{Sample: sample, ByteOrder: order}, Image: &frames.ImageDir{}}
	session := analysis.NewSession(params, source, sink, logger)

	switch mode {
	case "activity":
		_, err = session.Activity(ctx)
	case "fft":
		_, err = session.FFT(ctx)
	case "complements":
		_, err = session.Complements(ctx)
	default:
		flag.Usage()
		err = fmt.Errorf("unknown mode %q", mode)
	}
	return err
}

func overrideInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
