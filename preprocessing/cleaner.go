package preprocessing

import (
	"time"

	"github.com/go-gota/gota/dataframe"

	"github.com/YuminosukeSato/liftclass/core/model"
	"github.com/YuminosukeSato/liftclass/dataset"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
)

// DropReason explains why the cleaner removed a column.
type DropReason string

const (
	ReasonMissing          DropReason = "missing"
	ReasonPositional       DropReason = "positional"
	ReasonNearZeroVariance DropReason = "near_zero_variance"
)

// Cleaner decides the feature columns on the fit table and projects other
// tables onto them.
//
// Fit applies, in order: DropMissing, removal of the first PositionalDrop
// remaining columns, and NearZeroVariance. The label column takes part in none
// of them.
type Cleaner struct {
	Label          string
	PositionalDrop int
	FreqCut        float64
	UniqueCut      float64

	state    *model.StateManager
	logger   log.Logger
	features []string
	dropped  map[string]DropReason
	nzv      []NZVStat
}

// CleanerOption configures a Cleaner.
type CleanerOption func(*Cleaner)

// WithLabel sets the label column.
func WithLabel(label string) CleanerOption {
	return func(c *Cleaner) { c.Label = label }
}

// WithPositionalDrop sets how many leading columns are removed after the missing-value filter.
func WithPositionalDrop(n int) CleanerOption {
	return func(c *Cleaner) { c.PositionalDrop = n }
}

// WithFreqCut sets the near-zero-variance frequency ratio cutoff.
func WithFreqCut(v float64) CleanerOption {
	return func(c *Cleaner) { c.FreqCut = v }
}

// WithUniqueCut sets the near-zero-variance percent-unique cutoff.
func WithUniqueCut(v float64) CleanerOption {
	return func(c *Cleaner) { c.UniqueCut = v }
}

// WithCleanerLogger sets the logger.
func WithCleanerLogger(l log.Logger) CleanerOption {
	return func(c *Cleaner) { c.logger = l }
}

// NewCleaner は新しいCleanerを作成する
//
// デフォルト: ラベル "classe"、先頭2列の削除、freqCut 95/5、uniqueCut 10
//
// 使用例:
//
//	cleaner := preprocessing.NewCleaner(preprocessing.WithLabel("classe"))
//	if err := cleaner.Fit(fit); err != nil { ... }
//	evalClean, err := cleaner.Transform(eval, true)
func NewCleaner(opts ...CleanerOption) *Cleaner {
	c := &Cleaner{
		Label:          "classe",
		PositionalDrop: 2,
		FreqCut:        95.0 / 5.0,
		UniqueCut:      10,
		state:          model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.GetLoggerWithName("preprocessing")
	}
	return c
}

// Fit decides the surviving feature columns from the fit table.
func (c *Cleaner) Fit(df dataframe.DataFrame) error {
	start := time.Now()
	c.state.Reset()
	if c.PositionalDrop < 0 {
		return errors.NewValidationError("positional_drop", "must be >= 0", c.PositionalDrop)
	}
	if !dataset.HasColumn(df, c.Label) {
		return errors.NewColumnNotFoundError("Cleaner.Fit", c.Label)
	}

	dropped := make(map[string]DropReason)

	df, missing, err := DropMissing(df, c.Label)
	if err != nil {
		return err
	}
	for _, name := range missing {
		dropped[name] = ReasonMissing
	}

	var positional []string
	for _, name := range df.Names() {
		if len(positional) == c.PositionalDrop {
			break
		}
		if name != c.Label {
			positional = append(positional, name)
		}
	}
	if df, err = dropColumns(df, positional); err != nil {
		return err
	}
	for _, name := range positional {
		dropped[name] = ReasonPositional
	}

	df, stats, err := NearZeroVariance(df, c.FreqCut, c.UniqueCut, c.Label)
	if err != nil {
		return err
	}
	for _, st := range stats {
		if st.NZV {
			dropped[st.Column] = ReasonNearZeroVariance
		}
	}

	var features []string
	for _, name := range df.Names() {
		if name != c.Label {
			features = append(features, name)
		}
	}
	if len(features) == 0 {
		return errors.NewValueError("Cleaner.Fit", "no feature column survived cleaning")
	}

	c.features = features
	c.dropped = dropped
	c.nzv = stats
	c.state.SetDimensions(len(features), df.Nrow(), 0)
	c.state.SetFitted()

	for name, reason := range dropped {
		c.logger.Debug("column dropped", log.ColumnKey, name, log.ReasonKey, string(reason))
	}
	c.logger.Info("cleaning finished",
		log.PhaseKey, log.PhaseCleaning,
		log.OperationKey, log.OperationFit,
		"dropped_missing", len(missing),
		"dropped_positional", len(positional),
		"dropped_nzv", len(dropped)-len(missing)-len(positional),
		log.FeaturesKey, len(features),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// Transform projects df onto the surviving features, followed by the label
// when withLabel is true. Columns absent from df yield a ColumnNotFoundError.
func (c *Cleaner) Transform(df dataframe.DataFrame, withLabel bool) (dataframe.DataFrame, error) {
	if err := c.state.RequireFitted("Cleaner", "Transform"); err != nil {
		return dataframe.DataFrame{}, err
	}

	cols := append([]string(nil), c.features...)
	if withLabel {
		cols = append(cols, c.Label)
	}
	if missing := dataset.MissingColumns(df, cols); len(missing) > 0 {
		return dataframe.DataFrame{}, errors.NewColumnNotFoundError("Cleaner.Transform", missing...)
	}

	out := df.Select(cols)
	if out.Err != nil {
		return dataframe.DataFrame{}, errors.Wrap(out.Err, "Cleaner.Transform")
	}
	return out, nil
}

// FitTransform fits on df and returns its projection including the label.
func (c *Cleaner) FitTransform(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if err := c.Fit(df); err != nil {
		return dataframe.DataFrame{}, err
	}
	return c.Transform(df, true)
}

// Features returns the surviving feature columns in table order.
func (c *Cleaner) Features() []string {
	return append([]string(nil), c.features...)
}

// Dropped returns every removed column with the step that removed it.
func (c *Cleaner) Dropped() map[string]DropReason {
	out := make(map[string]DropReason, len(c.dropped))
	for k, v := range c.dropped {
		out[k] = v
	}
	return out
}

// NZVStats returns the near-zero-variance statistics computed during Fit.
func (c *Cleaner) NZVStats() []NZVStat {
	return append([]NZVStat(nil), c.nzv...)
}
