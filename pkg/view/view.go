// Package view provides the live thermal frame widget.
package view

import (
	"image"
	"image/color"
	"log"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/monitor"
	"github.com/itohio/isc0901/pkg/process"
	"github.com/itohio/isc0901/pkg/stream"
)

// FrameWidget is a custom Fyne widget that displays the latest thermal frame,
// the centre row profile and frame statistics.
type FrameWidget struct {
	widget.BaseWidget

	cfg     *config.Config
	palette Palette

	// Data (protected by mu)
	mu      sync.RWMutex
	raster  *image.RGBA
	profile []float64
	stats   monitor.Stats
	drift   float64
	frames  int
}

// New creates a new FrameWidget instance.
func New(cfg *config.Config) *FrameWidget {
	p, err := PaletteByName(cfg.View.Palette)
	if err != nil {
		log.Printf("Falling back to iron palette: %v", err)
		p = Iron
	}
	w := &FrameWidget{
		cfg:     cfg,
		palette: p,
		raster:  image.NewRGBA(image.Rect(0, 0, cfg.Sensor.Width(), cfg.Sensor.Rows)),
		profile: make([]float64, 0, cfg.View.ProfilePoints),
	}
	w.ExtendBaseWidget(w)
	w.Refresh()
	return w
}

// UpdateData updates the widget with a new frame.
// This should be called from the monitor callback using fyne.Do().
func (w *FrameWidget) UpdateData(f *stream.Frame, stats []monitor.Stats, drift []float64) {
	if f == nil || f.Width == 0 || f.Height == 0 {
		return
	}
	norm := process.Normalize(f, w.cfg.Process.LowPercentile, w.cfg.Process.HighPercentile)

	w.mu.Lock()
	w.raster = Colorize(w.raster, norm, f.Width, f.Height, w.palette)
	w.profile = stream.RowProfile(w.profile, f, f.Height/2, w.cfg.View.ProfilePoints)
	if len(stats) > 0 {
		w.stats = stats[len(stats)-1]
	}
	w.drift = 0
	if len(drift) > 0 {
		w.drift = drift[len(drift)-1]
	}
	w.frames++
	w.mu.Unlock()

	// Refresh outside the lock
	w.Refresh()
}

// Snapshot returns the current raster, profile and statistics.
func (w *FrameWidget) Snapshot() (*image.RGBA, []float64, monitor.Stats) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.raster, append([]float64(nil), w.profile...), w.stats
}

// CreateRenderer creates the widget renderer.
func (w *FrameWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	w.mu.RLock()
	img := canvas.NewImageFromImage(w.raster)
	w.mu.RUnlock()
	img.FillMode = canvas.ImageFillContain
	img.ScaleMode = canvas.ImageScalePixels
	info := canvas.NewText("", color.RGBA{R: 200, G: 200, B: 200, A: 255})
	info.TextSize = 11
	return &frameRenderer{
		w:       w,
		bg:      bg,
		img:     img,
		info:    info,
		objects: []fyne.CanvasObject{bg, img, info},
	}
}
