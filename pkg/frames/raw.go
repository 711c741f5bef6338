package frames

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// SampleType is the on-disk type of one raw sample
type SampleType string

const (
	Float32 SampleType = "float32"
	Float64 SampleType = "float64"
	Uint16  SampleType = "uint16"
)

// ParseSampleType maps a configuration value to a SampleType
func ParseSampleType(s string) (SampleType, error) {
	switch t := SampleType(strings.ToLower(s)); t {
	case Float32, Float64, Uint16:
		return t, nil
	case "":
		return Float32, nil
	default:
		return "", fmt.Errorf("unknown raw sample type %q", s)
	}
}

// Size returns the number of bytes per sample
func (t SampleType) Size() int {
	switch t {
	case Float64:
		return 8
	case Uint16:
		return 2
	default:
		return 4
	}
}

// Raw reads headerless frame stacks: frames stored back to back, each frame
// row-major, little endian unless ByteOrder says otherwise.
type Raw struct {
	// Sample is the sample type; Float32 when empty
	Sample SampleType

	// ByteOrder defaults to binary.LittleEndian
	ByteOrder binary.ByteOrder
}

// Open implements Source. The file must hold at least frameCount frames;
// extra trailing frames are ignored.
func (r *Raw) Open(path string, width, height, frameCount int) (Sequence, error) {
	if err := validate(width, height, frameCount); err != nil {
		return nil, err
	}

	sample := r.Sample
	if sample == "" {
		sample = Float32
	}
	order := r.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw frame file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat raw frame file: %w", err)
	}

	frameBytes := int64(width) * int64(height) * int64(sample.Size())
	available := info.Size() / frameBytes
	if available < int64(frameCount) {
		file.Close()
		return nil, fmt.Errorf("%w: %d frames of %dx%d %s requested, file holds %d",
			ErrFrameCount, frameCount, width, height, sample, available)
	}

	return &rawSequence{
		file:   file,
		reader: bufio.NewReaderSize(file, int(frameBytes)),
		width:  width,
		height: height,
		count:  frameCount,
		sample: sample,
		order:  order,
		buf:    make([]byte, frameBytes),
	}, nil
}

type rawSequence struct {
	file   *os.File
	reader *bufio.Reader
	width  int
	height int
	count  int
	next   int
	sample SampleType
	order  binary.ByteOrder
	buf    []byte
}

func (s *rawSequence) Next() (*mat.Dense, error) {
	if s.file == nil {
		return nil, os.ErrClosed
	}
	if s.next >= s.count {
		return nil, io.EOF
	}
	if _, err := io.ReadFull(s.reader, s.buf); err != nil {
		return nil, fmt.Errorf("failed to read frame %d: %w", s.next, err)
	}

	data := make([]float64, s.width*s.height)
	size := s.sample.Size()
	for i := range data {
		b := s.buf[i*size : (i+1)*size]
		switch s.sample {
		case Float64:
			data[i] = math.Float64frombits(s.order.Uint64(b))
		case Uint16:
			data[i] = float64(s.order.Uint16(b))
		default:
			data[i] = float64(math.Float32frombits(s.order.Uint32(b)))
		}
	}
	s.next++

	return mat.NewDense(s.height, s.width, data), nil
}

func (s *rawSequence) Len() int { return s.count }

func (s *rawSequence) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// WriteRaw writes frames in the layout Raw reads. It is used to export
// synthetic stacks and by tests.
func WriteRaw(w io.Writer, sample SampleType, order binary.ByteOrder, frames []*mat.Dense) error {
	if order == nil {
		order = binary.LittleEndian
	}
	bw := bufio.NewWriter(w)
	size := sample.Size()
	b := make([]byte, 8)
	for _, f := range frames {
		rows, cols := f.Dims()
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				v := f.At(y, x)
				switch sample {
				case Float64:
					order.PutUint64(b, math.Float64bits(v))
				case Uint16:
					order.PutUint16(b, uint16Sample(v))
				default:
					order.PutUint32(b, math.Float32bits(float32(v)))
				}
				if _, err := bw.Write(b[:size]); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// uint16Sample clamps v to [0, 65535] and truncates it; NaN maps to 0
func uint16Sample(v float64) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(v)
	}
}
