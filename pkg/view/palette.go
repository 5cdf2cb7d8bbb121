package view

import (
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"

	"github.com/itohio/isc0901/pkg/process"
)

// Palette maps a normalised value in [0, 1] to a colour.
type Palette func(v float32) color.RGBA

// Iron is a black, purple, red, yellow ramp.
func Iron(v float32) color.RGBA {
	v = process.Clamp01(v)
	r := math32.Sqrt(v)
	g := v * v * v
	b := process.Clamp01(math32.Sin(2 * math32.Pi * v))
	return color.RGBA{R: to8(r), G: to8(g), B: to8(b), A: 255}
}

// Gray is a linear grayscale ramp.
func Gray(v float32) color.RGBA {
	c := to8(process.Clamp01(v))
	return color.RGBA{R: c, G: c, B: c, A: 255}
}

// PaletteByName returns the named palette.
func PaletteByName(name string) (Palette, error) {
	switch name {
	case "iron", "":
		return Iron, nil
	case "gray", "grey":
		return Gray, nil
	}
	return nil, fmt.Errorf("unknown palette %q", name)
}

// Colorize renders normalised values as a w x h image using p.
func Colorize(dst *image.RGBA, norm []float32, w, h int, p Palette) *image.RGBA {
	if dst == nil || dst.Bounds().Dx() != w || dst.Bounds().Dy() != h {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetRGBA(x, y, p(norm[y*w+x]))
		}
	}
	return dst
}

func to8(v float32) uint8 {
	return uint8(math32.Floor(v*255 + 0.5))
}
