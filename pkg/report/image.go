package report

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"mesoactivity/pkg/masks"
)

// nanColor marks undefined correlations in the heatmap
var nanColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// cellSize is the edge length in pixels of one heatmap cell
const cellSize = 8

// CorrelationImage renders a correlation matrix as a diverging heatmap:
// -1 is blue, 0 is white and 1 is red. NaN cells are grey.
func CorrelationImage(m mat.Symmetric) image.Image {
	n := m.SymmetricDim()
	img := image.NewRGBA(image.Rect(0, 0, n*cellSize, n*cellSize))

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c := divergingColor(m.At(i, j))
			for y := i * cellSize; y < (i+1)*cellSize; y++ {
				for x := j * cellSize; x < (j+1)*cellSize; x++ {
					img.SetRGBA(x, y, c)
				}
			}
		}
	}
	return img
}

func divergingColor(v float64) color.RGBA {
	if math.IsNaN(v) {
		return nanColor
	}
	v = math.Max(-1, math.Min(1, v))

	// Fade the opposite channels toward white as |v| drops to zero
	fade := uint8(math.Round(255 * (1 - math.Abs(v))))
	if v >= 0 {
		return color.RGBA{R: 255, G: fade, B: fade, A: 255}
	}
	return color.RGBA{R: fade, G: fade, B: 255, A: 255}
}

// MaskImage renders a mask as a white-on-black grayscale image
func MaskImage(m *masks.Mask) image.Image {
	img := image.NewGray(image.Rect(0, 0, m.Width(), m.Height()))
	for _, idx := range m.Indices() {
		img.SetGray(idx%m.Width(), idx/m.Width(), color.Gray{Y: 255})
	}
	return img
}

// LabelImage renders every region of a set with its own gray level so the
// layout of the atlas can be inspected. Region r gets level
// 255*(r+1)/RegionCount; background stays black.
func LabelImage(set *masks.Set) image.Image {
	img := image.NewGray(image.Rect(0, 0, set.Width(), set.Height()))
	n := set.RegionCount()
	for r, m := range set.All() {
		level := uint8(255 * (r + 1) / n)
		for _, idx := range m.Indices() {
			img.SetGray(idx%set.Width(), idx/set.Width(), color.Gray{Y: level})
		}
	}
	return img
}

// SaveImage saves an image as PNG
func SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
