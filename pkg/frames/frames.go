// Package frames provides the frame-sequence sources the activity pipeline
// reads from.
//
// A Source opens a finite, ordered sequence of 2D frames. Every frame is a
// *mat.Dense with one row per image row and one column per image column. A
// sequence can be restarted by opening it again.
package frames

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// ErrFrameCount is returned when a source holds fewer frames than requested
var ErrFrameCount = errors.New("frames: frame count mismatch")

// Sequence is an open, ordered sequence of frames
type Sequence interface {
	// Next returns the next frame, or io.EOF once every frame has been read.
	// The returned frame is owned by the caller.
	Next() (*mat.Dense, error)

	// Len returns the number of frames the sequence yields
	Len() int

	// Close releases the underlying resource
	Close() error
}

// Source opens frame sequences
type Source interface {
	Open(path string, width, height, frameCount int) (Sequence, error)
}

// Auto picks the source by path: directories are read as numbered image
// files, anything else as a raw sample stream.
type Auto struct {
	Raw   *Raw
	Image *ImageDir
}

// Open implements Source
func (a Auto) Open(path string, width, height, frameCount int) (Sequence, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image file: %w", err)
	}
	if info.IsDir() {
		src := a.Image
		if src == nil {
			src = &ImageDir{}
		}
		return src.Open(path, width, height, frameCount)
	}
	src := a.Raw
	if src == nil {
		src = &Raw{}
	}
	return src.Open(path, width, height, frameCount)
}

func validate(width, height, frameCount int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("frame dimensions %dx%d must be positive", width, height)
	}
	if frameCount <= 0 {
		return fmt.Errorf("frame count %d must be positive", frameCount)
	}
	return nil
}

// Memory serves frames held in memory. Open ignores the path.
type Memory struct {
	Frames []*mat.Dense
}

// Open implements Source. Frames beyond frameCount are not served.
func (m *Memory) Open(_ string, width, height, frameCount int) (Sequence, error) {
	if err := validate(width, height, frameCount); err != nil {
		return nil, err
	}
	if len(m.Frames) < frameCount {
		return nil, fmt.Errorf("%w: %d frames requested, %d available",
			ErrFrameCount, frameCount, len(m.Frames))
	}
	return &memorySequence{frames: m.Frames[:frameCount]}, nil
}

type memorySequence struct {
	frames []*mat.Dense
	next   int
	closed bool
}

func (s *memorySequence) Next() (*mat.Dense, error) {
	if s.closed {
		return nil, os.ErrClosed
	}
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := mat.DenseCopyOf(s.frames[s.next])
	s.next++
	return f, nil
}

func (s *memorySequence) Len() int { return len(s.frames) }

func (s *memorySequence) Close() error {
	s.closed = true
	return nil
}
