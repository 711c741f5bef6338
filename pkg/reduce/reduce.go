// Package reduce turns a frame sequence into per-region activity traces by
// aggregating the pixels of every region mask in every frame.
package reduce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"mesoactivity/pkg/frames"
	"mesoactivity/pkg/masks"
)

var (
	// ErrEmptyRegion is returned under EmptyFail when a region mask has no
	// pixels.
	ErrEmptyRegion = errors.New("reduce: empty region")

	// ErrDimensionMismatch is returned when a frame's shape differs from the
	// mask set's image size.
	ErrDimensionMismatch = errors.New("reduce: frame dimension mismatch")
)

// Method selects how the pixels of a region are aggregated
type Method int

const (
	// Mean is the arithmetic mean of the region's pixel values
	Mean Method = iota

	// Sum is the sum of the region's pixel values divided by its area
	Sum
)

func (m Method) String() string {
	switch m {
	case Mean:
		return "mean"
	case Sum:
		return "sum"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps "mean" or "sum" to a Method
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "mean":
		return Mean, nil
	case "sum":
		return Sum, nil
	default:
		return 0, fmt.Errorf("unknown reduction %q (must be mean or sum)", s)
	}
}

// EmptyPolicy decides what happens to regions whose mask has no pixels
type EmptyPolicy int

const (
	// EmptyNaN yields NaN for the region in every frame
	EmptyNaN EmptyPolicy = iota

	// EmptyFail rejects the reduction with ErrEmptyRegion
	EmptyFail
)

// ParseEmptyPolicy maps "nan" or "error" to an EmptyPolicy
func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch strings.ToLower(s) {
	case "", "nan":
		return EmptyNaN, nil
	case "error", "fail":
		return EmptyFail, nil
	default:
		return 0, fmt.Errorf("unknown empty region policy %q (must be nan or error)", s)
	}
}

type options struct {
	workers int
	empty   EmptyPolicy
}

// Option configures Reduce
type Option func(*options)

// WithWorkers reduces up to n frames concurrently. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.workers = n
	}
}

// WithEmptyRegionPolicy sets how zero-area regions are handled
func WithEmptyRegionPolicy(p EmptyPolicy) Option {
	return func(o *options) {
		o.empty = p
	}
}

// TimeSeries is the regions x frames activity matrix
type TimeSeries struct {
	data *mat.Dense
}

// NewTimeSeries wraps a regions x frames matrix
func NewTimeSeries(data *mat.Dense) *TimeSeries {
	return &TimeSeries{data: data}
}

// Regions returns the number of rows
func (ts *TimeSeries) Regions() int {
	r, _ := ts.data.Dims()
	return r
}

// Frames returns the number of columns
func (ts *TimeSeries) Frames() int {
	_, c := ts.data.Dims()
	return c
}

// Row returns a copy of a region's trace
func (ts *TimeSeries) Row(region int) []float64 {
	return mat.Row(nil, region, ts.data)
}

// At returns the value of a region in a frame
func (ts *TimeSeries) At(region, frame int) float64 {
	return ts.data.At(region, frame)
}

// Matrix returns the underlying matrix. It must not be modified.
func (ts *TimeSeries) Matrix() *mat.Dense {
	return ts.data
}

// Reduce reads every frame of seq in order and aggregates each region mask of
// set, producing one column per frame.
//
// The sequence is not closed; the caller that opened it owns it. With more
// than one worker, several frames are reduced concurrently while the reading
// itself stays sequential, so at most that many frames are held in memory.
func Reduce(ctx context.Context, seq frames.Sequence, set *masks.Set, method Method, opts ...Option) (*TimeSeries, error) {
	o := options{workers: 1, empty: EmptyNaN}
	for _, opt := range opts {
		opt(&o)
	}

	if method != Mean && method != Sum {
		return nil, fmt.Errorf("unknown reduction method %v", method)
	}

	regions := set.All()
	if len(regions) == 0 {
		return nil, fmt.Errorf("mask set has no regions")
	}
	if o.empty == EmptyFail {
		for r, m := range regions {
			if m.Area() == 0 {
				return nil, fmt.Errorf("%w: region %d has no pixels", ErrEmptyRegion, r)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	columns := make([][]float64, 0, seq.Len())

	for i := 0; ; i++ {
		if err := gctx.Err(); err != nil {
			break
		}

		frame, err := seq.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			g.Go(func() error { return fmt.Errorf("reading frame %d: %w", i, err) })
			break
		}

		rows, cols := frame.Dims()
		if rows != set.Height() || cols != set.Width() {
			g.Go(func() error {
				return fmt.Errorf("%w: frame %d is %dx%d, masks are %dx%d",
					ErrDimensionMismatch, i, cols, rows, set.Width(), set.Height())
			})
			break
		}

		column := make([]float64, len(regions))
		columns = append(columns, column)

		g.Go(func() error {
			reduceFrame(frame, regions, method, column)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("frame sequence yielded no frames")
	}

	data := mat.NewDense(len(regions), len(columns), nil)
	for f, column := range columns {
		data.SetCol(f, column)
	}
	return &TimeSeries{data: data}, nil
}

// reduceFrame fills out with one value per region for a single frame
func reduceFrame(frame *mat.Dense, regions []*masks.Mask, method Method, out []float64) {
	raw := frame.RawMatrix()
	width := raw.Cols

	for r, m := range regions {
		indices := m.Indices()
		if len(indices) == 0 {
			out[r] = math.NaN()
			continue
		}

		switch method {
		case Mean:
			// Incremental mean
			mean := 0.0
			for k, idx := range indices {
				v := raw.Data[(idx/width)*raw.Stride+idx%width]
				mean += (v - mean) / float64(k+1)
			}
			out[r] = mean
		case Sum:
			sum := 0.0
			for _, idx := range indices {
				sum += raw.Data[(idx/width)*raw.Stride+idx%width]
			}
			out[r] = sum / float64(len(indices))
		}
	}
}
