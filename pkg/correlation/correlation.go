// Package correlation computes Pearson correlation structure between region
// activity traces: the full correlation matrix, bilateral complement pairs
// and pairs whose correlation exceeds a significance threshold.
package correlation

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"mesoactivity/internal/models"
	"mesoactivity/pkg/reduce"
)

const (
	// DefaultLower is the exclusive lower bound for a significant pair
	DefaultLower = 0.95

	// DefaultUpper is the exclusive upper bound for a significant pair, so
	// identical traces from duplicated masks are not reported
	DefaultUpper = 1.0
)

// ErrOddRegionCount is returned when complement pairs are requested for an
// odd number of regions
var ErrOddRegionCount = errors.New("correlation: odd region count")

// Pearson returns the Pearson correlation coefficient of x and y. It is NaN
// when either series is constant, the series are shorter than two samples,
// or their lengths differ.
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return math.NaN()
	}
	if constant(x) || constant(y) {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// constant reports whether every value equals the first. The mean of a
// constant series may not round back to the value itself, so the variance
// is not a reliable test.
func constant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}

// Matrix computes the correlation of every pair of regions. The diagonal is
// 1 by definition; entries involving a constant trace are NaN. Rows are
// split across workers.
func Matrix(ts *reduce.TimeSeries, workers int) *mat.SymDense {
	n := ts.Regions()
	if n == 0 {
		return &mat.SymDense{}
	}
	rows := make([][]float64, n)
	for r := range rows {
		rows[r] = ts.Row(r)
	}

	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	cells := make([]float64, n*n)
	var wg sync.WaitGroup

	// Each worker owns a contiguous block of rows
	rowsPerWorker := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func(workerID int) {
			defer wg.Done()

			start := workerID * rowsPerWorker
			end := min(start+rowsPerWorker, n)
			for i := start; i < end; i++ {
				for j := 0; j < i; j++ {
					cells[i*n+j] = Pearson(rows[i], rows[j])
				}
			}
		}(w)
	}
	wg.Wait()

	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
		for j := 0; j < i; j++ {
			m.SetSym(i, j, cells[i*n+j])
		}
	}
	return m
}

// ComplementIndex returns the region paired with region i among n regions
func ComplementIndex(i, n int) int {
	return n - 1 - i
}

// ComplementPairs correlates every region i in [0, n/2) with its complement
// n-1-i. The region count must be even.
func ComplementPairs(ts *reduce.TimeSeries) ([]models.Pair, error) {
	n := ts.Regions()
	if n%2 != 0 {
		return nil, fmt.Errorf("%w: %d regions", ErrOddRegionCount, n)
	}

	pairs := make([]models.Pair, 0, n/2)
	for i := 0; i < n/2; i++ {
		j := ComplementIndex(i, n)
		pairs = append(pairs, models.Pair{A: i, B: j, R: Pearson(ts.Row(i), ts.Row(j))})
	}
	return pairs, nil
}

// SignificantPairs scans the strictly lower triangle of m row by row and
// returns every (r1, r2), r1 > r2, with lower < m[r1][r2] < upper. NaN
// entries never qualify.
func SignificantPairs(m mat.Symmetric, lower, upper float64) []models.Pair {
	var pairs []models.Pair
	n := m.SymmetricDim()
	for r1 := 0; r1 < n; r1++ {
		for r2 := 0; r2 < r1; r2++ {
			r := m.At(r1, r2)
			if r > lower && r < upper {
				pairs = append(pairs, models.Pair{A: r1, B: r2, R: r})
			}
		}
	}
	return pairs
}

// Options configures Analyze
type Options struct {
	// Lower and Upper bound significant correlations, both exclusive
	Lower float64
	Upper float64

	// Workers is the number of goroutines computing the matrix
	Workers int
}

// DefaultOptions returns the thresholds used by the activity analyzer
func DefaultOptions() Options {
	return Options{Lower: DefaultLower, Upper: DefaultUpper, Workers: 1}
}

// Result holds every correlation product of one analysis
type Result struct {
	// Matrix is the full region x region correlation matrix
	Matrix *mat.SymDense

	// Complements pairs each region with its bilateral complement
	Complements []models.Pair

	// Significant lists the lower-triangle pairs inside the thresholds
	Significant []models.Pair
}

// Analyze computes the correlation matrix, the complement pairs and the
// significant pairs of ts. Complement coefficients are read from the matrix.
//
// With an odd region count the matrix and significant pairs are still
// returned, without complements, together with ErrOddRegionCount.
func Analyze(ts *reduce.TimeSeries, opts Options) (*Result, error) {
	n := ts.Regions()
	m := Matrix(ts, opts.Workers)
	res := &Result{
		Matrix:      m,
		Significant: SignificantPairs(m, opts.Lower, opts.Upper),
	}

	if n%2 != 0 {
		return res, fmt.Errorf("%w: %d regions", ErrOddRegionCount, n)
	}

	res.Complements = make([]models.Pair, 0, n/2)
	for i := 0; i < n/2; i++ {
		j := ComplementIndex(i, n)
		res.Complements = append(res.Complements, models.Pair{A: i, B: j, R: m.At(i, j)})
	}
	return res, nil
}
