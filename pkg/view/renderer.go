package view

import (
	"fmt"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
)

const (
	profileHeight = float32(80)
	infoHeight    = float32(20)
)

// frameRenderer renders the frame widget.
type frameRenderer struct {
	w *FrameWidget

	bg   *canvas.Rectangle
	img  *canvas.Image
	info *canvas.Text

	// Row profile segments, rebuilt on every refresh
	profileLines []*canvas.Line

	objects []fyne.CanvasObject
}

// MinSize returns the minimum size of the widget.
func (r *frameRenderer) MinSize() fyne.Size {
	return fyne.NewSize(340, 262+profileHeight+infoHeight)
}

// Layout arranges the image above the profile and the info line.
func (r *frameRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	imgHeight := max(size.Height-profileHeight-infoHeight, 0)
	r.img.Move(fyne.NewPos(0, infoHeight))
	r.img.Resize(fyne.NewSize(size.Width, imgHeight))
	r.info.Move(fyne.NewPos(5, 2))
}

// Refresh updates the widget display.
func (r *frameRenderer) Refresh() {
	r.w.mu.RLock()
	raster := r.w.raster
	profile := append([]float64(nil), r.w.profile...)
	stats := r.w.stats
	drift := r.w.drift
	frames := r.w.frames
	r.w.mu.RUnlock()

	r.img.Image = raster
	r.img.Refresh()
	r.info.Text = formatStats(frames, stats.Min, stats.Max, stats.Mean, stats.StdDev, drift, stats.Dropped)
	r.info.Refresh()

	size := r.w.Size()
	r.objects = []fyne.CanvasObject{r.bg, r.img, r.info}
	r.profileLines = r.profileLines[:0]
	if size.Width == 0 || size.Height == 0 || len(profile) < 2 {
		return
	}
	r.drawProfile(0, size.Height-profileHeight, size.Width, profileHeight, profile)
}

// drawProfile draws the centre row profile, auto-scaled to its own range.
func (r *frameRenderer) drawProfile(x0, y0, width, height float32, profile []float64) {
	lo, hi := profile[0], profile[0]
	for _, v := range profile {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	step := width / float32(len(profile)-1)
	pos := func(i int) fyne.Position {
		return fyne.NewPos(x0+float32(i)*step, y0+height-float32((profile[i]-lo)/span)*height)
	}
	for i := range len(profile) - 1 {
		line := canvas.NewLine(color.RGBA{R: 255, G: 165, B: 0, A: 255}) // Orange
		line.Position1 = pos(i)
		line.Position2 = pos(i + 1)
		line.StrokeWidth = 1.5
		r.profileLines = append(r.profileLines, line)
		r.objects = append(r.objects, line)
	}
}

// Objects returns all canvas objects for rendering.
func (r *frameRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *frameRenderer) Destroy() {}

func formatStats(frames int, lo, hi uint16, mean, std, drift float64, dropped int) string {
	s := fmt.Sprintf("#%d  min %d  max %d  mean %.1f  sd %.1f  drift %+.1f/s", frames, lo, hi, mean, std, drift)
	if dropped > 0 {
		s += fmt.Sprintf("  dropped %d", dropped)
	}
	return s
}
