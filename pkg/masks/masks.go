// Package masks derives per-region boolean masks at image resolution from a
// canonical-space region labeling.
package masks

import (
	"errors"
	"fmt"

	"mesoactivity/pkg/regionmap"
)

var (
	// ErrInvalidDimensions is returned when the canonical space cannot be
	// scaled to the requested image size by an exact integer quotient.
	ErrInvalidDimensions = errors.New("masks: invalid image dimensions")

	// ErrRegionOutOfRange is returned when a mask is requested for a region
	// id the set does not hold.
	ErrRegionOutOfRange = errors.New("masks: region out of range")
)

// Mask is a boolean pixel grid for one region
type Mask struct {
	width  int
	height int

	// pix holds the mask in row-major order
	pix []bool

	// indices lists the set pixels of pix in ascending order
	indices []int
}

func newMask(width, height int) *Mask {
	return &Mask{
		width:  width,
		height: height,
		pix:    make([]bool, width*height),
	}
}

// Width returns the width of the mask in pixels
func (m *Mask) Width() int { return m.width }

// Height returns the height of the mask in pixels
func (m *Mask) Height() int { return m.height }

// At reports whether pixel (x, y) belongs to the region. Out of bounds
// pixels never do.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return false
	}
	return m.pix[y*m.width+x]
}

// Area returns the number of set pixels
func (m *Mask) Area() int {
	return len(m.indices)
}

// Indices returns the row-major indices of the set pixels in ascending order.
// The returned slice must not be modified.
func (m *Mask) Indices() []int {
	return m.indices
}

// Grid returns a copy of the mask as rows of pixels
func (m *Mask) Grid() [][]bool {
	grid := make([][]bool, m.height)
	for y := range grid {
		grid[y] = make([]bool, m.width)
		copy(grid[y], m.pix[y*m.width:(y+1)*m.width])
	}
	return grid
}

// index rebuilds the list of set pixels from pix
func (m *Mask) index() {
	m.indices = m.indices[:0]
	for i, set := range m.pix {
		if set {
			m.indices = append(m.indices, i)
		}
	}
}

// Set is the ordered collection of region masks for one analysis. It is
// immutable once built.
type Set struct {
	width  int
	height int
	masks  []*Mask
}

// Build rescales every labeled point of m from the canonical space to a
// width x height image and sets the matching pixel of its region mask.
//
// Scaling truncates toward zero: a point (x, y) lands on
// (x*width/CanonicalWidth, y*height/CanonicalHeight). Several canonical
// points may land on the same pixel; the pixel is simply set.
//
// Parameters:
//   - m: the region labeling
//   - width, height: image size; each must divide the canonical size exactly
//
// Returns:
//   - the mask set, or ErrInvalidDimensions
func Build(m *regionmap.Map, width, height int) (*Set, error) {
	return build(m, width, height, regionmap.CanonicalWidth, regionmap.CanonicalHeight)
}

func build(m *regionmap.Map, width, height, canonicalWidth, canonicalHeight int) (*Set, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d must be positive", ErrInvalidDimensions, width, height)
	}
	if canonicalWidth%width != 0 || canonicalHeight%height != 0 {
		return nil, fmt.Errorf("%w: %dx%d does not evenly divide canonical %dx%d",
			ErrInvalidDimensions, width, height, canonicalWidth, canonicalHeight)
	}

	s := &Set{
		width:  width,
		height: height,
		masks:  make([]*Mask, m.RegionCount()),
	}
	for i := range s.masks {
		s.masks[i] = newMask(width, height)
	}

	for _, e := range m.Points() {
		x := clamp(e.Point.X*width/canonicalWidth, width)
		y := clamp(e.Point.Y*height/canonicalHeight, height)
		s.masks[e.Region].pix[y*width+x] = true
	}

	for _, mask := range s.masks {
		mask.index()
	}

	return s, nil
}

func clamp(v, size int) int {
	if v < 0 {
		return 0
	}
	if v >= size {
		return size - 1
	}
	return v
}

// RegionCount returns the number of masks in the set
func (s *Set) RegionCount() int {
	return len(s.masks)
}

// Width returns the image width the masks were built for
func (s *Set) Width() int { return s.width }

// Height returns the image height the masks were built for
func (s *Set) Height() int { return s.height }

// MaskFor returns the mask of a region
func (s *Set) MaskFor(region int) (*Mask, error) {
	if region < 0 || region >= len(s.masks) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrRegionOutOfRange, region, len(s.masks))
	}
	return s.masks[region], nil
}

// All returns the masks ordered by region id. The returned slice is a copy;
// the masks themselves are shared and read-only.
func (s *Set) All() []*Mask {
	out := make([]*Mask, len(s.masks))
	copy(out, s.masks)
	return out
}

// Union returns a mask holding every pixel that belongs to any region
func (s *Set) Union() *Mask {
	union := newMask(s.width, s.height)
	for _, mask := range s.masks {
		for _, i := range mask.indices {
			union.pix[i] = true
		}
	}
	union.index()
	return union
}
