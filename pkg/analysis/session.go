// Package analysis runs the activity pipeline end to end: it loads the region
// labeling, builds masks, reduces the frame sequence to per-region traces and
// hands the analysis products to a report sink.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"mesoactivity/pkg/correlation"
	"mesoactivity/pkg/frames"
	"mesoactivity/pkg/masks"
	"mesoactivity/pkg/reduce"
	"mesoactivity/pkg/regionmap"
	"mesoactivity/pkg/report"
	"mesoactivity/pkg/spectral"
)

// Params holds the inputs of one analysis session. Nothing is defaulted
// here; the caller supplies every dimension.
type Params struct {
	// RegionPointsFile is the point-to-region labeling
	RegionPointsFile string

	// ImageFile is the frame source: a raw stack or a directory of images
	ImageFile string

	// ImageWidth and ImageHeight are the frame dimensions in pixels
	ImageWidth  int
	ImageHeight int

	// Frames is the number of frames to read
	Frames int

	// FPS is the frame rate used to label spectrum bins; zero leaves them
	// unlabeled
	FPS float64

	// NumCores bounds the goroutines used for reduction and analysis
	NumCores int

	// EmptyRegion decides how regions without pixels are reduced
	EmptyRegion reduce.EmptyPolicy

	// Correlation holds the significant-pair thresholds
	Correlation correlation.Options
}

// Validate reports parameters the pipeline cannot run with
func (p *Params) Validate() error {
	var errs []error
	if p.RegionPointsFile == "" {
		errs = append(errs, errors.New("region points file is required"))
	}
	if p.ImageFile == "" {
		errs = append(errs, errors.New("image file is required"))
	}
	if p.ImageWidth <= 0 || p.ImageHeight <= 0 {
		errs = append(errs, fmt.Errorf("image dimensions %dx%d must be positive", p.ImageWidth, p.ImageHeight))
	}
	if p.Frames <= 0 {
		errs = append(errs, fmt.Errorf("frame count %d must be positive", p.Frames))
	}
	if p.Correlation.Lower >= p.Correlation.Upper {
		errs = append(errs, fmt.Errorf("correlation bounds (%g, %g) are empty", p.Correlation.Lower, p.Correlation.Upper))
	}
	return errors.Join(errs...)
}

// Session owns the masks and products of one analysis. Masks are built on
// first use and reused by every operation of the session.
type Session struct {
	params *Params
	source frames.Source
	sink   report.Sink
	log    *log.Logger

	masks *masks.Set
}

// NewSession creates a session. A nil sink discards products and a nil
// logger discards progress output.
func NewSession(params *Params, source frames.Source, sink report.Sink, logger *log.Logger) *Session {
	if sink == nil {
		sink = report.Discard
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{
		params: params,
		source: source,
		sink:   sink,
		log:    logger,
	}
}

// Masks loads the region labeling and builds the mask set, once
func (s *Session) Masks() (*masks.Set, error) {
	if s.masks != nil {
		return s.masks, nil
	}

	s.log.Println("Step 1: Loading region points...")
	regions, err := regionmap.Load(s.params.RegionPointsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load region points: %w", err)
	}
	s.log.Printf("Loaded %d points in %d regions\n", regions.Len(), regions.RegionCount())

	s.log.Println("Step 2: Building region masks...")
	set, err := masks.Build(regions, s.params.ImageWidth, s.params.ImageHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to build masks: %w", err)
	}
	for r, m := range set.All() {
		if m.Area() == 0 {
			s.log.Printf("Warning: region %d has no pixels at %dx%d\n", r, set.Width(), set.Height())
		}
	}

	if err := s.sink.WriteMasks(set); err != nil {
		return nil, fmt.Errorf("failed to write masks: %w", err)
	}

	s.masks = set
	return set, nil
}

// traces opens the frame sequence, reduces it and releases it on every path
func (s *Session) traces(ctx context.Context, method reduce.Method) (*reduce.TimeSeries, error) {
	if err := s.params.Validate(); err != nil {
		return nil, err
	}

	set, err := s.Masks()
	if err != nil {
		return nil, err
	}

	s.log.Printf("Step 3: Reducing %d frames (%s)...\n", s.params.Frames, method)
	seq, err := s.source.Open(s.params.ImageFile, s.params.ImageWidth, s.params.ImageHeight, s.params.Frames)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer seq.Close()

	start := time.Now()
	ts, err := reduce.Reduce(ctx, seq, set, method,
		reduce.WithWorkers(s.params.NumCores),
		reduce.WithEmptyRegionPolicy(s.params.EmptyRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to reduce frames: %w", err)
	}
	s.log.Printf("Reduced %d frames into %d traces in %.2f seconds\n",
		ts.Frames(), ts.Regions(), time.Since(start).Seconds())

	return ts, nil
}

// Activity reduces every region to its sum-over-area trace and reports it
func (s *Session) Activity(ctx context.Context) (*reduce.TimeSeries, error) {
	ts, err := s.traces(ctx, reduce.Sum)
	if err != nil {
		return nil, err
	}

	if err := s.sink.WriteTimeSeries("activity", ts); err != nil {
		return nil, fmt.Errorf("failed to write activity: %w", err)
	}
	return ts, nil
}

// FFT reduces every region to its mean trace and reports the power spectrum
// of each trace
func (s *Session) FFT(ctx context.Context) ([][]float64, error) {
	ts, err := s.traces(ctx, reduce.Mean)
	if err != nil {
		return nil, err
	}

	s.log.Println("Step 4: Computing power spectra...")
	spectra, err := spectral.Spectra(ctx, ts, s.params.NumCores)
	if err != nil {
		return nil, fmt.Errorf("failed to compute spectra: %w", err)
	}

	if err := s.sink.WriteTimeSeries("mean", ts); err != nil {
		return nil, fmt.Errorf("failed to write traces: %w", err)
	}
	if err := s.sink.WriteSpectra(spectra, report.SpectrumFrequencies(ts.Frames(), s.params.FPS)); err != nil {
		return nil, fmt.Errorf("failed to write spectra: %w", err)
	}
	return spectra, nil
}

// Complements correlates every region with its bilateral complement, finds
// significant pairs in the full correlation matrix and reports both. With an
// odd region count the matrix and significant pairs are still reported and
// returned along with correlation.ErrOddRegionCount.
func (s *Session) Complements(ctx context.Context) (*correlation.Result, error) {
	ts, err := s.traces(ctx, reduce.Sum)
	if err != nil {
		return nil, err
	}

	s.log.Println("Step 4: Correlating regions...")
	opts := s.params.Correlation
	if opts.Workers < 1 {
		opts.Workers = s.params.NumCores
	}
	res, analyzeErr := correlation.Analyze(ts, opts)
	if res == nil {
		return nil, fmt.Errorf("failed to correlate regions: %w", analyzeErr)
	}
	if analyzeErr != nil {
		s.log.Printf("Warning: %v; reporting the matrix without complement pairs\n", analyzeErr)
	}
	s.log.Printf("Found %d complement pairs and %d significant pairs\n",
		len(res.Complements), len(res.Significant))

	if err := s.sink.WriteTimeSeries("activity", ts); err != nil {
		return nil, fmt.Errorf("failed to write activity: %w", err)
	}
	if err := s.sink.WriteCorrelation(ts, res); err != nil {
		return nil, fmt.Errorf("failed to write correlation: %w", err)
	}
	if analyzeErr != nil {
		return res, fmt.Errorf("failed to pair complements: %w", analyzeErr)
	}
	return res, nil
}
