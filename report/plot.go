package report

import (
	"fmt"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/liftclass/model_selection"
	"github.com/YuminosukeSato/liftclass/pipeline"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// Plot size used by SavePlot.
const (
	PlotWidth  = 6 * vg.Inch
	PlotHeight = 4 * vg.Inch
)

// CVPlot draws cross-validated accuracy against the tuned parameter of tm.
// Candidates that differ in other parameters get one line each.
func CVPlot(tm *pipeline.TrainedModel) (*plot.Plot, error) {
	if tm == nil || len(tm.CVResults) == 0 {
		return nil, errors.NewValueError("report.CVPlot", "no cross-validation results")
	}

	series := make(map[string]plotter.XYs)
	for _, c := range tm.CVResults {
		x, err := toFloat(c.Params[tm.TuneParam])
		if err != nil {
			return nil, errors.Wrapf(err, "report.CVPlot: %s", tm.TuneParam)
		}
		key := others(c.Params, tm.TuneParam).String()
		series[key] = append(series[key], plotter.XY{X: x, Y: c.MeanScore})
	}
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: cross-validated accuracy", tm.Name)
	p.X.Label.Text = tm.TuneParam
	p.Y.Label.Text = "Accuracy (cross-validation)"
	p.Add(plotter.NewGrid())

	for i, k := range keys {
		pts := series[k]
		sort.Slice(pts, func(a, b int) bool { return pts[a].X < pts[b].X })
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, errors.Wrap(err, "report.CVPlot")
		}
		line.Color = plotutil.Color(i)
		points.Color = plotutil.Color(i)
		points.Shape = plotutil.Shape(i)
		p.Add(line, points)
		if k != "" {
			p.Legend.Add(k, line, points)
		}
	}
	p.Legend.Top = false
	p.Legend.Left = false
	return p, nil
}

// SavePlot writes the CV plot of tm to path. The extension picks the format
// (png, svg, pdf, ...).
func SavePlot(tm *pipeline.TrainedModel, path string) error {
	p, err := CVPlot(tm)
	if err != nil {
		return err
	}
	if err := p.Save(PlotWidth, PlotHeight, path); err != nil {
		return errors.Wrapf(err, "saving plot to %s", path)
	}
	return nil
}

func others(p model_selection.Params, skip string) model_selection.Params {
	out := make(model_selection.Params, len(p))
	for k, v := range p {
		if k != skip {
			out[k] = v
		}
	}
	return out
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	default:
		return 0, errors.NewValidationError("param", "not numeric", v)
	}
}
