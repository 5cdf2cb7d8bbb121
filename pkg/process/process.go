// Package process implements offline post-processing of captured frames:
// temporal averaging, outlier removal and percentile normalisation.
package process

import (
	"sort"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/stat"

	"github.com/itohio/isc0901/pkg/config"
	"github.com/itohio/isc0901/pkg/stream"
)

// Report describes what Apply did to a capture.
type Report struct {
	Averaged int // frames merged into the result
	Outliers int // pixels replaced
}

// Apply reduces frames to one processed frame according to cfg.
// The last AverageFrames frames are averaged (all of them when it is 0 or
// larger than the capture), then outliers are removed.
func Apply(cfg config.ProcessConfig, frames []*stream.Frame) (*stream.Frame, Report) {
	var rep Report
	if len(frames) == 0 {
		return nil, rep
	}

	window := frames
	if cfg.AverageFrames > 0 && cfg.AverageFrames < len(frames) {
		window = frames[len(frames)-cfg.AverageFrames:]
	}
	f := stream.Average(window)
	rep.Averaged = len(window)

	f, rep.Outliers = RemoveOutliers(f, cfg.OutlierSigma)
	return f, rep
}

// RemoveOutliers replaces every pixel further than sigma standard deviations
// from the frame mean with the mean of its inlier 8-neighbours, or with the
// frame mean when it has none. It returns a new frame and the number of
// replaced pixels. A non-positive sigma disables the filter.
func RemoveOutliers(f *stream.Frame, sigma float64) (*stream.Frame, int) {
	out := f.Clone()
	if sigma <= 0 || len(f.Pix) < 2 {
		return out, 0
	}

	vals := toFloat64(f.Pix)
	mean, std := stat.MeanStdDev(vals, nil)
	if std == 0 {
		return out, 0
	}
	limit := sigma * std

	bad := make([]bool, len(vals))
	for i, v := range vals {
		bad[i] = v-mean > limit || mean-v > limit
	}

	n := 0
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := y*f.Width + x
			if !bad[i] {
				continue
			}
			var sum float64
			var cnt int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= f.Width || ny >= f.Height {
						continue
					}
					if j := ny*f.Width + nx; !bad[j] {
						sum += vals[j]
						cnt++
					}
				}
			}
			repl := mean
			if cnt > 0 {
				repl = sum / float64(cnt)
			}
			out.Pix[i] = uint16(repl + 0.5)
			n++
		}
	}
	return out, n
}

// Bounds returns the lo and hi empirical quantiles of the frame pixels.
func Bounds(f *stream.Frame, lo, hi float64) (float64, float64) {
	if len(f.Pix) == 0 {
		return 0, 0
	}
	vals := toFloat64(f.Pix)
	sort.Float64s(vals)
	return stat.Quantile(lo, stat.Empirical, vals, nil), stat.Quantile(hi, stat.Empirical, vals, nil)
}

// Normalize maps the frame to [0, 1] between its lo and hi percentiles,
// clamping values outside that range. A flat frame maps to zeros.
func Normalize(f *stream.Frame, lo, hi float64) []float32 {
	out := make([]float32, len(f.Pix))
	vmin, vmax := Bounds(f, lo, hi)
	span := float32(vmax - vmin)
	if span <= 0 {
		return out
	}
	base := float32(vmin)
	for i, v := range f.Pix {
		out[i] = Clamp01((float32(v) - base) / span)
	}
	return out
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}

func toFloat64(pix []uint16) []float64 {
	vals := make([]float64, len(pix))
	for i, v := range pix {
		vals[i] = float64(v)
	}
	return vals
}
