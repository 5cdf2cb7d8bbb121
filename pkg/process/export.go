package process

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/chewxy/math32"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/itohio/isc0901/pkg/stream"
)

// Gray renders the frame as 8-bit grayscale, normalised between the lo and hi
// percentiles.
func Gray(f *stream.Frame, lo, hi float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	norm := Normalize(f, lo, hi)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			img.Pix[img.PixOffset(x, y)] = uint8(math32.Floor(norm[y*f.Width+x]*255 + 0.5))
		}
	}
	return img
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// SavePNG writes img to path as PNG.
func SavePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WritePNG(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Histogram builds a pixel value histogram of the frame.
func Histogram(f *stream.Frame, bins int) (*plot.Plot, error) {
	if bins <= 0 {
		bins = 64
	}
	vals := make(plotter.Values, len(f.Pix))
	for i, v := range f.Pix {
		vals[i] = float64(v)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Frame %d", f.Seq)
	p.X.Label.Text = "Pixel value"
	p.Y.Label.Text = "Count"

	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return nil, fmt.Errorf("failed to build histogram: %w", err)
	}
	p.Add(h)
	return p, nil
}

// SaveHistogram renders the frame histogram to path. The image format follows
// the file extension.
func SaveHistogram(path string, f *stream.Frame, bins int) error {
	p, err := Histogram(f, bins)
	if err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save histogram: %w", err)
	}
	return nil
}
