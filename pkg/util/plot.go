package util

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// floor keeps exactly converged iterations visible on the log axis.
const floor = 1e-20

var ErrNoHistory = errors.New("no residual history to plot")

// PlotConvergence draws the residual norm per Newton iteration of each block
// on a log scale. The format follows the file extension (png, svg, pdf).
func PlotConvergence(histories map[string][]float64, title, path string) error {
	names := make([]string, 0, len(histories))
	for name, h := range histories {
		if len(h) > 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ErrNoHistory
	}
	sort.Strings(names)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "residual norm"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	for i, name := range names {
		h := histories[name]
		pts := make(plotter.XYs, len(h))
		for k, norm := range h {
			pts[k].X = float64(k)
			pts[k].Y = math.Max(norm, floor)
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("block %s: %w", name, err)
		}
		line.Color = plotutil.Color(i)
		points.Color = plotutil.Color(i)
		points.Shape = plotutil.Shape(i)
		p.Add(line, points)
		p.Legend.Add(name, line, points)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
