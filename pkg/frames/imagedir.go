package frames

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ImageDir reads one grayscale frame per image file from a directory.
//
// Files are ordered by the number embedded in their name so that frame_2
// comes before frame_10. Pixel values are the red channel scaled to 0-1.
type ImageDir struct{}

// Open implements Source. Images are decoded lazily, one per Next call.
func (d *ImageDir) Open(dir string, width, height, frameCount int) (Sequence, error) {
	if err := validate(width, height, frameCount); err != nil {
		return nil, err
	}

	files, err := listImages(dir)
	if err != nil {
		return nil, err
	}
	if len(files) < frameCount {
		return nil, fmt.Errorf("%w: %d frames requested, %d images in %s",
			ErrFrameCount, frameCount, len(files), dir)
	}

	return &imageSequence{files: files[:frameCount]}, nil
}

// listImages returns the JPEG and PNG files of dir ordered by frame number
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return extractNumber(files[i]) < extractNumber(files[j])
	})
	return files, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	if digits.Len() > 0 {
		num, err := strconv.Atoi(digits.String())
		if err == nil {
			return num
		}
	}
	return 0
}

type imageSequence struct {
	files  []string
	next   int
	closed bool
}

func (s *imageSequence) Next() (*mat.Dense, error) {
	if s.closed {
		return nil, os.ErrClosed
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}

	img, err := loadImage(s.files[s.next])
	if err != nil {
		return nil, fmt.Errorf("failed to load frame %s: %w", s.files[s.next], err)
	}
	s.next++
	return imageToDense(img), nil
}

func (s *imageSequence) Len() int { return len(s.files) }

func (s *imageSequence) Close() error {
	s.closed = true
	return nil
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}

// imageToDense converts an image to a height x width matrix in 0-1 range.
// The frame keeps the image's own size; the reducer checks it.
func imageToDense(img image.Image) *mat.Dense {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	data := make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			data[y*width+x] = float64(r) / 65535.0
		}
	}

	return mat.NewDense(height, width, data)
}
