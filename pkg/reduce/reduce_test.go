package reduce

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"mesoactivity/internal/models"
	"mesoactivity/pkg/frames"
	"mesoactivity/pkg/masks"
	"mesoactivity/pkg/regionmap"
)

// fourRegionSet places one canonical point per region at 128x128.
// Region r lands on pixel (r*10, r*10).
func fourRegionSet(t *testing.T) *masks.Set {
	t.Helper()
	points := map[models.Coordinate]int{}
	for r := 0; r < 4; r++ {
		points[models.Coordinate{X: r * 40, Y: r * 40}] = r
	}
	m, err := regionmap.New(points)
	require.NoError(t, err)
	set, err := masks.Build(m, 128, 128)
	require.NoError(t, err)
	return set
}

func openMemory(t *testing.T, fs []*mat.Dense, width, height int) frames.Sequence {
	t.Helper()
	seq, err := (&frames.Memory{Frames: fs}).Open("", width, height, len(fs))
	require.NoError(t, err)
	t.Cleanup(func() { seq.Close() })
	return seq
}

func TestReduceKnownValues(t *testing.T) {
	set := fourRegionSet(t)

	// Frame f holds 10*(f+1) + r at region r's pixel and noise elsewhere
	var fs []*mat.Dense
	for f := 0; f < 3; f++ {
		frame := mat.NewDense(128, 128, nil)
		for y := 0; y < 128; y++ {
			for x := 0; x < 128; x++ {
				frame.Set(y, x, -1000)
			}
		}
		for r := 0; r < 4; r++ {
			frame.Set(r*10, r*10, float64(10*(f+1)+r))
		}
		fs = append(fs, frame)
	}

	for _, method := range []Method{Mean, Sum} {
		t.Run(method.String(), func(t *testing.T) {
			ts, err := Reduce(context.Background(), openMemory(t, fs, 128, 128), set, method)
			require.NoError(t, err)

			assert.Equal(t, 4, ts.Regions())
			assert.Equal(t, 3, ts.Frames())
			assert.Equal(t, []float64{10, 20, 30}, ts.Row(0))
			for r := 1; r < 4; r++ {
				want := []float64{float64(10 + r), float64(20 + r), float64(30 + r)}
				assert.Equal(t, want, ts.Row(r))
			}
		})
	}
}

func TestReduceMeanMatchesSum(t *testing.T) {
	points := map[models.Coordinate]int{}
	for x := 0; x < 64; x++ {
		points[models.Coordinate{X: x * 4, Y: 8}] = 0
		points[models.Coordinate{X: 8, Y: 256 + x*4}] = 1
	}
	m, err := regionmap.New(points)
	require.NoError(t, err)
	set, err := masks.Build(m, 128, 128)
	require.NoError(t, err)

	var fs []*mat.Dense
	for f := 0; f < 5; f++ {
		frame := mat.NewDense(128, 128, nil)
		for y := 0; y < 128; y++ {
			for x := 0; x < 128; x++ {
				frame.Set(y, x, math.Sin(float64(x*y+f))*100)
			}
		}
		fs = append(fs, frame)
	}

	mean, err := Reduce(context.Background(), openMemory(t, fs, 128, 128), set, Mean)
	require.NoError(t, err)
	sum, err := Reduce(context.Background(), openMemory(t, fs, 128, 128), set, Sum)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(mean.Matrix(), sum.Matrix(), 1e-9))
}

func TestReduceIdenticalFramesConstantRows(t *testing.T) {
	set := fourRegionSet(t)
	frame := mat.NewDense(128, 128, nil)
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			frame.Set(y, x, float64(x+y))
		}
	}
	fs := []*mat.Dense{frame, frame, frame, frame}

	ts, err := Reduce(context.Background(), openMemory(t, fs, 128, 128), set, Sum)
	require.NoError(t, err)

	for r := 0; r < ts.Regions(); r++ {
		row := ts.Row(r)
		for _, v := range row {
			assert.Equal(t, row[0], v, "region %d should be constant", r)
		}
	}
}

func TestReduceWorkersPreserveOrder(t *testing.T) {
	set := fourRegionSet(t)

	var fs []*mat.Dense
	for f := 0; f < 50; f++ {
		frame := mat.NewDense(128, 128, nil)
		for r := 0; r < 4; r++ {
			frame.Set(r*10, r*10, float64(f*4+r))
		}
		fs = append(fs, frame)
	}

	serial, err := Reduce(context.Background(), openMemory(t, fs, 128, 128), set, Mean)
	require.NoError(t, err)
	parallel, err := Reduce(context.Background(), openMemory(t, fs, 128, 128), set, Mean, WithWorkers(8))
	require.NoError(t, err)

	assert.True(t, mat.Equal(serial.Matrix(), parallel.Matrix()))
	for f := 0; f < 50; f++ {
		assert.Equal(t, float64(f*4+2), parallel.At(2, f))
	}
}

func TestReduceEmptyRegion(t *testing.T) {
	m, err := regionmap.New(map[models.Coordinate]int{{X: 0, Y: 0}: 0, {X: 100, Y: 100}: 2})
	require.NoError(t, err)
	set, err := masks.Build(m, 128, 128)
	require.NoError(t, err)

	fs := []*mat.Dense{mat.NewDense(128, 128, nil), mat.NewDense(128, 128, nil)}

	for _, method := range []Method{Mean, Sum} {
		ts, err := Reduce(context.Background(), openMemory(t, fs, 128, 128), set, method)
		require.NoError(t, err)
		for _, v := range ts.Row(1) {
			assert.True(t, math.IsNaN(v), "%s: gap region should be NaN", method)
		}
		assert.Equal(t, []float64{0, 0}, ts.Row(0))

		_, err = Reduce(context.Background(), openMemory(t, fs, 128, 128), set, method,
			WithEmptyRegionPolicy(EmptyFail))
		assert.True(t, errors.Is(err, ErrEmptyRegion), "%s: got %v", method, err)
	}
}

func TestReduceDimensionMismatch(t *testing.T) {
	set := fourRegionSet(t)
	fs := []*mat.Dense{mat.NewDense(128, 128, nil), mat.NewDense(64, 128, nil)}

	_, err := Reduce(context.Background(), &fixedSequence{frames: fs}, set, Mean)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestReduceSourceError(t *testing.T) {
	set := fourRegionSet(t)
	boom := errors.New("decoder failed")
	seq := &fixedSequence{frames: []*mat.Dense{mat.NewDense(128, 128, nil)}, err: boom}

	_, err := Reduce(context.Background(), seq, set, Mean, WithWorkers(2))
	assert.True(t, errors.Is(err, boom))
}

func TestReduceCanceled(t *testing.T) {
	set := fourRegionSet(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := []*mat.Dense{mat.NewDense(128, 128, nil)}
	_, err := Reduce(ctx, openMemory(t, fs, 128, 128), set, Mean)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestReduceNoFrames(t *testing.T) {
	_, err := Reduce(context.Background(), &fixedSequence{}, fourRegionSet(t), Mean)
	assert.Error(t, err)
}

func TestParseMethodAndPolicy(t *testing.T) {
	m, err := ParseMethod("SUM")
	require.NoError(t, err)
	assert.Equal(t, Sum, m)
	_, err = ParseMethod("median")
	assert.Error(t, err)

	p, err := ParseEmptyPolicy("error")
	require.NoError(t, err)
	assert.Equal(t, EmptyFail, p)
	p, err = ParseEmptyPolicy("")
	require.NoError(t, err)
	assert.Equal(t, EmptyNaN, p)
	_, err = ParseEmptyPolicy("skip")
	assert.Error(t, err)
}

// fixedSequence serves frames without shape checks, then err or io.EOF
type fixedSequence struct {
	frames []*mat.Dense
	next   int
	err    error
}

func (s *fixedSequence) Next() (*mat.Dense, error) {
	if s.next >= len(s.frames) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *fixedSequence) Len() int     { return len(s.frames) }
func (s *fixedSequence) Close() error { return nil }
