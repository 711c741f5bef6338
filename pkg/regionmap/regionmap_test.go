package regionmap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesoactivity/internal/models"
)

func TestNewRegionCount(t *testing.T) {
	m, err := New(map[models.Coordinate]int{
		{X: 0, Y: 0}:     0,
		{X: 10, Y: 4}:    1,
		{X: 511, Y: 511}: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, m.RegionCount(), "gap at id 2 still counts toward max+1")
	assert.Equal(t, 3, m.Len())

	r, ok := m.Region(models.Coordinate{X: 10, Y: 4})
	assert.True(t, ok)
	assert.Equal(t, 1, r)

	_, ok = m.Region(models.Coordinate{X: 1, Y: 1})
	assert.False(t, ok)
}

func TestNewRejectsInvalidEntries(t *testing.T) {
	cases := map[string]map[models.Coordinate]int{
		"negative region": {{X: 1, Y: 1}: -1},
		"negative x":      {{X: -1, Y: 1}: 0},
		"x too large":     {{X: CanonicalWidth, Y: 0}: 0},
		"y too large":     {{X: 0, Y: CanonicalHeight}: 0},
	}
	for name, points := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(points)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptInput))
		})
	}
}

func TestEmptyMap(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.RegionCount())
	assert.Empty(t, m.Points())
}

func TestPointsOrdering(t *testing.T) {
	m, err := New(map[models.Coordinate]int{
		{X: 5, Y: 2}: 0,
		{X: 1, Y: 2}: 1,
		{X: 9, Y: 0}: 2,
	})
	require.NoError(t, err)

	points := m.Points()
	require.Len(t, points, 3)
	assert.Equal(t, models.Coordinate{X: 9, Y: 0}, points[0].Point)
	assert.Equal(t, models.Coordinate{X: 1, Y: 2}, points[1].Point)
	assert.Equal(t, models.Coordinate{X: 5, Y: 2}, points[2].Point)
}

func TestEncodeDecode(t *testing.T) {
	original, err := New(map[models.Coordinate]int{
		{X: 0, Y: 0}:     0,
		{X: 200, Y: 100}: 1,
		{X: 300, Y: 511}: 2,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, original.Encode(&buf))
	assert.Equal(t, 4+4+3*12, buf.Len())

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, original.Points(), decoded.Points())
	assert.Equal(t, original.RegionCount(), decoded.RegionCount())
}

func TestDecodeCorrupt(t *testing.T) {
	valid := func() []byte {
		m, err := New(map[models.Coordinate]int{{X: 1, Y: 2}: 0, {X: 3, Y: 4}: 1})
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, m.Encode(&buf))
		return buf.Bytes()
	}

	negative := func() []byte {
		var buf bytes.Buffer
		buf.Write(magic[:])
		binary.Write(&buf, binary.LittleEndian, uint32(1))
		binary.Write(&buf, binary.LittleEndian, [3]int32{1, 1, -4})
		return buf.Bytes()
	}

	duplicate := func() []byte {
		var buf bytes.Buffer
		buf.Write(magic[:])
		binary.Write(&buf, binary.LittleEndian, uint32(2))
		binary.Write(&buf, binary.LittleEndian, [3]int32{1, 1, 0})
		binary.Write(&buf, binary.LittleEndian, [3]int32{1, 1, 1})
		return buf.Bytes()
	}

	cases := map[string][]byte{
		"empty":      {},
		"bad magic":  append([]byte("XXXX"), valid()[4:]...),
		"truncated":  valid()[:len(valid())-5],
		"trailing":   append(valid(), 0x01),
		"negative":   negative(),
		"duplicate":  duplicate(),
		"no count":   magic[:],
		"count only": valid()[:8],
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptInput), "got %v", err)
		})
	}
}

func TestDecodeCSV(t *testing.T) {
	input := "x,y,region\n0,0,0\n 12, 40, 1\n511,511,1\n"
	m, err := DecodeCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 2, m.RegionCount())

	_, err = DecodeCSV(strings.NewReader("0,0,0\n1,1,abc\n"))
	assert.True(t, errors.Is(err, ErrCorruptInput))

	_, err = DecodeCSV(strings.NewReader("0,0\n"))
	assert.True(t, errors.Is(err, ErrCorruptInput))

	// A numeric first row is data, never a header
	_, err = DecodeCSV(strings.NewReader("10,20,3.5\n1,1,0\n"))
	assert.True(t, errors.Is(err, ErrCorruptInput), "non-integer region id on line 1")

	_, err = DecodeCSV(strings.NewReader("x,10,region\n1,1,0\n"))
	assert.True(t, errors.Is(err, ErrCorruptInput), "partly numeric first row")
}

func TestRegionIDRange(t *testing.T) {
	_, err := DecodeCSV(strings.NewReader("x,y,region\n0,0,2147483648\n"))
	assert.True(t, errors.Is(err, ErrCorruptInput))

	m, err := DecodeCSV(strings.NewReader("0,0,2147483647\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Encode(&buf))
	decoded, err := Decode(&buf)
	require.NoError(t, err)
	region, ok := decoded.Region(models.Coordinate{X: 0, Y: 0})
	assert.True(t, ok)
	assert.Equal(t, 2147483647, region)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	m, err := New(map[models.Coordinate]int{{X: 7, Y: 8}: 0, {X: 9, Y: 10}: 1})
	require.NoError(t, err)

	path := filepath.Join(dir, "nested", "region_points.bin")
	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Points(), loaded.Points())

	csvPath := filepath.Join(dir, "region_points.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("7,8,0\n9,10,1\n"), 0644))
	fromCSV, err := Load(csvPath)
	require.NoError(t, err)
	assert.Equal(t, m.Points(), fromCSV.Points())

	_, err = Load(filepath.Join(dir, "missing.bin"))
	assert.Error(t, err)
}
