// Package landmark measures how far each region's center of mass lies from
// the bregma landmark, and how stable that distance is across sessions.
package landmark

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"mesoactivity/pkg/regionmap"
)

const (
	// BregmaRow is the landmark CSV row holding the bregma point
	BregmaRow = 3

	// BregmaXColumn and BregmaYColumn locate the bregma coordinates in that row
	BregmaXColumn = 13
	BregmaYColumn = 14
)

// ErrSessionMismatch is returned when sessions disagree on the region count
var ErrSessionMismatch = errors.New("landmark: session region counts differ")

// Point is a location in canonical coordinates
type Point struct {
	X, Y float64
}

// LoadBregma reads the bregma point from a landmark CSV at the given row and
// columns, counted from zero.
func LoadBregma(path string, row, xCol, yCol int) (Point, error) {
	file, err := os.Open(path)
	if err != nil {
		return Point{}, fmt.Errorf("failed to open landmark file: %w", err)
	}
	defer file.Close()

	p, err := ReadBregma(file, row, xCol, yCol)
	if err != nil {
		return Point{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ReadBregma reads the bregma point from landmark CSV data
func ReadBregma(r io.Reader, row, xCol, yCol int) (Point, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	for i := 0; ; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			return Point{}, fmt.Errorf("landmark row %d not found", row)
		}
		if err != nil {
			return Point{}, fmt.Errorf("failed to parse landmark csv: %w", err)
		}
		if i != row {
			continue
		}

		if xCol >= len(record) || yCol >= len(record) {
			return Point{}, fmt.Errorf("landmark row %d has %d columns", row, len(record))
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(record[xCol]), 64)
		if err != nil {
			return Point{}, fmt.Errorf("bregma x: %w", err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(record[yCol]), 64)
		if err != nil {
			return Point{}, fmt.Errorf("bregma y: %w", err)
		}
		return Point{X: x, Y: y}, nil
	}
}

// CentersOfMass returns the mean canonical coordinate of every region's
// points. Regions without points get NaN coordinates.
func CentersOfMass(m *regionmap.Map) []Point {
	n := m.RegionCount()
	sumX := make([]float64, n)
	sumY := make([]float64, n)
	count := make([]float64, n)

	for _, e := range m.Points() {
		sumX[e.Region] += float64(e.Point.X)
		sumY[e.Region] += float64(e.Point.Y)
		count[e.Region]++
	}

	centers := make([]Point, n)
	for r := range centers {
		if count[r] == 0 {
			centers[r] = Point{X: math.NaN(), Y: math.NaN()}
			continue
		}
		centers[r] = Point{X: sumX[r] / count[r], Y: sumY[r] / count[r]}
	}
	return centers
}

// Distances returns the Euclidean distance of every center from bregma
func Distances(bregma Point, centers []Point) []float64 {
	out := make([]float64, len(centers))
	for i, c := range centers {
		out[i] = floats.Distance([]float64{bregma.X, bregma.Y}, []float64{c.X, c.Y}, 2)
	}
	return out
}

// Summary aggregates one region's bregma distance over several sessions
type Summary struct {
	Region int

	// AbsDifference is the absolute mean of consecutive session differences.
	// It is NaN for a single session.
	AbsDifference float64

	// Mean and Std are the mean and population standard deviation
	Mean float64
	Std  float64
}

// Aggregate summarizes per-region distances, one slice per session
func Aggregate(sessions [][]float64) ([]Summary, error) {
	if len(sessions) == 0 {
		return nil, nil
	}
	n := len(sessions[0])
	for i, s := range sessions {
		if len(s) != n {
			return nil, fmt.Errorf("%w: session %d has %d regions, session 0 has %d",
				ErrSessionMismatch, i, len(s), n)
		}
	}

	out := make([]Summary, n)
	column := make([]float64, len(sessions))
	diffs := make([]float64, len(sessions)-1)
	for r := 0; r < n; r++ {
		for i, s := range sessions {
			column[i] = s[r]
		}
		for i := range diffs {
			diffs[i] = column[i+1] - column[i]
		}

		mean, std := stat.PopMeanStdDev(column, nil)
		absDiff := math.NaN()
		if len(diffs) > 0 {
			absDiff = math.Abs(stat.Mean(diffs, nil))
		}
		out[r] = Summary{Region: r, AbsDifference: absDiff, Mean: mean, Std: std}
	}
	return out, nil
}
