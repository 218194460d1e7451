package main

import (
	"math"
	"math/cmplx"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/edp1096/toy-dsn/pkg/analysis"
	"github.com/edp1096/toy-dsn/pkg/poly"
)

// plotRange spans two decades past the outermost pole or zero (Hz).
func plotRange(tf poly.TF) (float64, float64) {
	lo, hi := math.Inf(1), 0.0
	for _, p := range []poly.Poly{tf.Num, tf.Den} {
		roots, err := poly.Roots(p)
		if err != nil {
			continue
		}
		for _, r := range roots {
			f := cmplx.Abs(r) / (2 * math.Pi)
			if f == 0 {
				continue
			}
			lo, hi = math.Min(lo, f), math.Max(hi, f)
		}
	}
	if hi == 0 {
		return 1, 1e9
	}
	return lo / 100, hi * 100
}

func series(freqs, values []float64) plotter.XYs {
	xys := make(plotter.XYs, 0, len(freqs))
	for i, f := range freqs {
		if math.IsInf(values[i], 0) || math.IsNaN(values[i]) {
			continue
		}
		xys = append(xys, plotter.XY{X: f, Y: values[i]})
	}
	return xys
}

func panel(title, ylabel string, xys plotter.XYs) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Label.Text = ylabel
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	l, err := plotter.NewLine(xys)
	if err != nil {
		return nil, errors.Wrap(err, ylabel)
	}
	l.LineStyle.Width = vg.Points(1.5)
	p.Add(l)
	return p, nil
}

// writeBode draws magnitude over phase for one AC result set.
func writeBode(path, title, name string, results map[string][]float64) error {
	freqs := results["FREQ"]
	if len(freqs) < 2 {
		return errors.New("bode: not enough frequency points")
	}
	unwrapped := analysis.UnwrapPhase(results[name+"_PHASE"])

	mag, err := panel(title, "Magnitude (dB)", series(freqs, results[name+"_DB"]))
	if err != nil {
		return err
	}
	phase, err := panel("", "Phase (deg)", series(freqs, unwrapped))
	if err != nil {
		return err
	}

	img := vgimg.New(8*vg.Inch, 6*vg.Inch)
	dc := draw.New(img)
	plots := [][]*plot.Plot{{mag}, {phase}}
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: vg.Millimeter * 4}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	w, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "bode")
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		w.Close()
		return errors.Wrap(err, "bode")
	}
	return errors.Wrap(w.Close(), "bode")
}
