package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/YuminosukeSato/liftclass/pipeline"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

// Title is the first heading of every report.
const Title = "Weight Lifting Exercise classification"

// Markdown renders res as a Markdown document.
func Markdown(res *pipeline.Result) (string, error) {
	var sb strings.Builder
	if err := Write(&sb, res); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Write writes the Markdown report of res to w.
func Write(w io.Writer, res *pipeline.Result) error {
	if res == nil || res.Best == nil || res.BestModel == nil {
		return errors.NewValueError("report.Write", "result is incomplete")
	}
	mw := &mdWriter{w: w}

	mw.printf("# %s\n\n", Title)
	mw.printf("- Run: `%s`\n", res.RunID)
	mw.printf("- Started: %s\n", res.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	mw.printf("- Duration: %s\n", res.Duration.Round(time.Millisecond))
	mw.printf("- Seed: %d\n\n", res.Seed)

	writeData(mw, res)
	mw.printf("## Cross-validation\n\n")
	for _, tm := range res.Models {
		writeCV(mw, tm)
	}
	mw.printf("## Holdout evaluation\n\n")
	writeSummary(mw, res)
	for _, ev := range res.Evaluations {
		writeEvaluation(mw, ev)
	}
	writeSelection(mw, res)
	writePredictions(mw, res.Predictions)
	writeImportances(mw, res)
	return mw.err
}

type mdWriter struct {
	w   io.Writer
	err error
}

func (m *mdWriter) printf(format string, args ...any) {
	if m.err != nil {
		return
	}
	_, m.err = fmt.Fprintf(m.w, format, args...)
}

func (m *mdWriter) row(cells ...string) {
	m.printf("| %s |\n", strings.Join(cells, " | "))
}

func (m *mdWriter) header(cells ...string) {
	m.row(cells...)
	seps := make([]string, len(cells))
	for i := range seps {
		seps[i] = "---"
	}
	m.row(seps...)
}

func writeData(mw *mdWriter, res *pipeline.Result) {
	mw.printf("## Data\n\n")
	mw.header("Subset", "Rows")
	mw.row("fit", fmt.Sprint(res.FitRows))
	mw.row("evaluation", fmt.Sprint(res.EvalRows))
	mw.row("examinable", fmt.Sprint(res.ExaminableRows))
	mw.printf("\n%d raw columns, %d features kept, %d dropped.\n\n",
		res.RawColumns, len(res.Features), len(res.Dropped))

	if len(res.Dropped) == 0 {
		return
	}
	byReason := make(map[string][]string)
	for col, reason := range res.Dropped {
		byReason[string(reason)] = append(byReason[string(reason)], col)
	}
	reasons := make([]string, 0, len(byReason))
	for r := range byReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	mw.header("Reason", "Count", "Columns")
	for _, r := range reasons {
		cols := byReason[r]
		sort.Strings(cols)
		mw.row(r, fmt.Sprint(len(cols)), "`"+strings.Join(cols, "`, `")+"`")
	}
	mw.printf("\n")
}

func writeCV(mw *mdWriter, tm *pipeline.TrainedModel) {
	mw.printf("### %s\n\n", tm.Name)
	mw.printf("Tuned `%s`, best %s (accuracy %.4f), %s.\n\n",
		tm.TuneParam, tm.BestParams.String(), tm.BestScore, tm.Duration.Round(time.Millisecond))
	if !math.IsNaN(tm.OOBAccuracy) {
		mw.printf("Out-of-bag accuracy of the refitted model: %.4f.\n\n", tm.OOBAccuracy)
	}
	mw.header("Parameters", "Accuracy", "Std")
	for _, c := range tm.CVResults {
		params := c.Params.String()
		if params == tm.BestParams.String() {
			params = "**" + params + "**"
		}
		mw.row(params, fmt.Sprintf("%.4f", c.MeanScore), fmt.Sprintf("%.4f", c.StdScore))
	}
	mw.printf("\n")
}

func writeSummary(mw *mdWriter, res *pipeline.Result) {
	mw.header("Model", "Accuracy", "95% CI", "Kappa", "Out-of-sample error")
	for _, ev := range res.Evaluations {
		mw.row(ev.Model,
			fmt.Sprintf("%.4f", ev.Accuracy),
			fmt.Sprintf("(%.4f, %.4f)", ev.CILower, ev.CIUpper),
			fmt.Sprintf("%.4f", ev.Kappa),
			fmt.Sprintf("%.2f%%", 100*ev.OutOfSampleError),
		)
	}
	mw.printf("\n")
}

func writeEvaluation(mw *mdWriter, ev *pipeline.Evaluation) {
	cm := ev.Confusion
	classes := cm.Classes()
	mw.printf("### %s\n\n", ev.Model)

	// Rows are predictions and columns are reference classes.
	mw.header(append([]string{"Prediction \\ Reference"}, classes...)...)
	for i, pred := range classes {
		cells := []string{pred}
		for j := range classes {
			cells = append(cells, fmt.Sprint(cm.At(j, i)))
		}
		mw.row(cells...)
	}
	mw.printf("\n")
	mw.printf("Accuracy %.4f, 95%% CI (%.4f, %.4f), no information rate %.4f, P-value [Acc > NIR] %.3g, kappa %.4f.\n\n",
		ev.Accuracy, ev.CILower, ev.CIUpper, ev.NoInformationRate, ev.PValue, ev.Kappa)

	mw.header("Class", "Sensitivity", "Specificity", "Pos Pred Value", "Neg Pred Value",
		"Prevalence", "Detection Rate", "Balanced Accuracy")
	for _, s := range ev.ClassStats {
		mw.row(s.Class,
			f4(s.Sensitivity), f4(s.Specificity), f4(s.PosPredValue), f4(s.NegPredValue),
			f4(s.Prevalence), f4(s.DetectionRate), f4(s.BalancedAccuracy))
	}
	mw.printf("\n```text\n%s\n```\n\n", strings.TrimRight(cm.Summary(), "\n"))
}

func writeSelection(mw *mdWriter, res *pipeline.Result) {
	mw.printf("## Selected model\n\n")
	mw.printf("**%s** with holdout accuracy %.4f and kappa %.4f (%s). Expected out-of-sample error %.2f%%.\n\n",
		res.Best.Model, res.Best.Accuracy, res.Best.Kappa,
		res.BestModel.BestParams.String(), 100*res.Best.OutOfSampleError)
}

func writePredictions(mw *mdWriter, preds []pipeline.Prediction) {
	mw.printf("## Predictions\n\n")
	mw.header("Problem_ID", "Prediction")
	for _, p := range preds {
		mw.row(p.ID, p.Class)
	}
	mw.printf("\n")
}

func writeImportances(mw *mdWriter, res *pipeline.Result) {
	if len(res.Importances) == 0 {
		return
	}
	mw.printf("## Feature importance (%s)\n\n", res.BestModel.Name)
	mw.header("Rank", "Feature", "Importance")
	for i, fi := range res.Importances {
		mw.row(fmt.Sprint(i+1), "`"+fi.Feature+"`", f4(fi.Importance))
	}
	mw.printf("\n")
}

func f4(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
