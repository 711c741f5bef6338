// Package regionmap reads and writes the point-to-region labeling produced by
// the atlas registration pipeline.
//
// A labeling assigns a non-negative region id to points of the 512x512
// canonical coordinate space. Regions are expected to be numbered densely from
// zero; a missing id is allowed and simply owns no points.
//
// The binary encoding is:
//
//	magic   [4]byte  "RPM1"
//	count   uint32   little endian
//	entries count * (x int32, y int32, region int32), little endian
//
// Files with a ".csv" extension are read as "x,y,region" rows instead.
package regionmap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mesoactivity/internal/models"
)

const (
	// CanonicalWidth is the width of the space region points are stored in
	CanonicalWidth = 512

	// CanonicalHeight is the height of the space region points are stored in
	CanonicalHeight = 512
)

var magic = [4]byte{'R', 'P', 'M', '1'}

// ErrCorruptInput is returned when a stored labeling cannot be decoded or
// holds invalid entries.
var ErrCorruptInput = errors.New("regionmap: corrupt input")

// Entry is a single labeled point
type Entry struct {
	Point  models.Coordinate
	Region int
}

// Map is an immutable mapping from canonical coordinates to region ids
type Map struct {
	regions  map[models.Coordinate]int
	maxLabel int
}

// New validates points and builds a Map from them. The input map is copied.
func New(points map[models.Coordinate]int) (*Map, error) {
	m := &Map{
		regions:  make(map[models.Coordinate]int, len(points)),
		maxLabel: -1,
	}
	for c, region := range points {
		if err := m.add(c, region); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Map) add(c models.Coordinate, region int) error {
	if region < 0 {
		return fmt.Errorf("%w: negative region id %d at %s", ErrCorruptInput, region, c)
	}
	if int64(region) > math.MaxInt32 {
		return fmt.Errorf("%w: region id %d at %s exceeds %d", ErrCorruptInput, region, c, math.MaxInt32)
	}
	if c.X < 0 || c.Y < 0 || c.X >= CanonicalWidth || c.Y >= CanonicalHeight {
		return fmt.Errorf("%w: point %s outside %dx%d canonical space",
			ErrCorruptInput, c, CanonicalWidth, CanonicalHeight)
	}
	if _, dup := m.regions[c]; dup {
		return fmt.Errorf("%w: duplicate point %s", ErrCorruptInput, c)
	}
	m.regions[c] = region
	if region > m.maxLabel {
		m.maxLabel = region
	}
	return nil
}

// RegionCount returns the maximum region id plus one. An empty map has no
// regions.
func (m *Map) RegionCount() int {
	return m.maxLabel + 1
}

// Len returns the number of labeled points
func (m *Map) Len() int {
	return len(m.regions)
}

// Region returns the region a point belongs to
func (m *Map) Region(c models.Coordinate) (int, bool) {
	r, ok := m.regions[c]
	return r, ok
}

// Points returns every labeled point ordered by row, then column
func (m *Map) Points() []Entry {
	entries := make([]Entry, 0, len(m.regions))
	for c, r := range m.regions {
		entries = append(entries, Entry{Point: c, Region: r})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Point, entries[j].Point
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return entries
}

// Load reads a labeling from disk. The encoding is chosen from the file
// extension: ".csv" for text rows, anything else for the binary form.
func Load(path string) (*Map, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open region points file: %w", err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return DecodeCSV(file)
	}
	return Decode(bufio.NewReader(file))
}

// Decode reads the binary encoding
func Decode(r io.Reader) (*Map, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrCorruptInput, err)
	}
	if header != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptInput, header[:])
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading entry count: %v", ErrCorruptInput, err)
	}

	m := &Map{
		regions:  make(map[models.Coordinate]int),
		maxLabel: -1,
	}
	var triple [3]int32
	for i := uint32(0); i < count; i++ {
		if err := binary.Read(r, binary.LittleEndian, &triple); err != nil {
			return nil, fmt.Errorf("%w: entry %d of %d: %v", ErrCorruptInput, i, count, err)
		}
		c := models.Coordinate{X: int(triple[0]), Y: int(triple[1])}
		if err := m.add(c, int(triple[2])); err != nil {
			return nil, err
		}
	}

	// Anything after the declared entries means the count is wrong
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("%w: trailing data after %d entries", ErrCorruptInput, count)
	}

	return m, nil
}

// DecodeCSV reads "x,y,region" rows. A first row in which no field is numeric
// is treated as a header; any other row that fails to parse is corrupt.
func DecodeCSV(r io.Reader) (*Map, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	m := &Map{
		regions:  make(map[models.Coordinate]int),
		maxLabel: -1,
	}
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
		}

		values, err := parseRecord(record)
		if err != nil {
			if line == 1 && isHeader(record) {
				continue
			}
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptInput, line, err)
		}
		if err := m.add(models.Coordinate{X: values[0], Y: values[1]}, values[2]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return m, nil
}

// isHeader reports whether no field of record is a number
func isHeader(record []string) bool {
	for _, field := range record {
		if _, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err == nil {
			return false
		}
	}
	return true
}

func parseRecord(record []string) ([3]int, error) {
	var values [3]int
	for i, field := range record {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return values, err
		}
		values[i] = v
	}
	return values, nil
}

// Encode writes the binary encoding. Entries are written in Points order so
// the output is deterministic.
func (m *Map) Encode(w io.Writer) error {
	var buf bytes.Buffer
	buf.Write(magic[:])
	binary.Write(&buf, binary.LittleEndian, uint32(len(m.regions)))
	for _, e := range m.Points() {
		triple := [3]int32{int32(e.Point.X), int32(e.Point.Y), int32(e.Region)}
		binary.Write(&buf, binary.LittleEndian, triple)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Save writes the binary encoding to path, creating parent directories
func (m *Map) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating region points directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating region points file: %w", err)
	}
	if err := m.Encode(file); err != nil {
		file.Close()
		return fmt.Errorf("error writing region points file: %w", err)
	}
	return file.Close()
}
