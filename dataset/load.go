// Package dataset reads the sensor tables and turns cleaned tables into
// feature matrices.
package dataset

import (
	"io"
	"os"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
)

// DefaultNAValues are the cell contents read as missing.
var DefaultNAValues = []string{"NA", "", "#DIV/0!"}

type loadConfig struct {
	naValues []string
	types    map[string]series.Type
}

// LoadOption configures Load and Read.
type LoadOption func(*loadConfig)

// WithNAValues replaces the missing-value markers.
func WithNAValues(values []string) LoadOption {
	return func(c *loadConfig) { c.naValues = values }
}

// WithColumnType forces the type of a column instead of detecting it.
func WithColumnType(column string, t series.Type) LoadOption {
	return func(c *loadConfig) { c.types[column] = t }
}

// Load reads a CSV file with a header row.
func Load(path string, opts ...LoadOption) (dataframe.DataFrame, error) {
	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(err, "dataset.Load %s", path)
	}
	defer f.Close()

	df, err := Read(f, opts...)
	if err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(err, "dataset.Load %s", path)
	}

	log.GetLoggerWithName("dataset").Info("table loaded",
		log.PhaseKey, log.PhaseLoading,
		log.PathKey, path,
		log.SamplesKey, df.Nrow(),
		log.FeaturesKey, df.Ncol(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return df, nil
}

// Read parses CSV content with a header row. Empty tables are an error.
func Read(r io.Reader, opts ...LoadOption) (dataframe.DataFrame, error) {
	cfg := loadConfig{
		naValues: DefaultNAValues,
		types:    make(map[string]series.Type),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(cfg.naValues),
		dataframe.WithTypes(cfg.types),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, errors.NewModelError("dataset.Read", "unreadable CSV", df.Err)
	}
	if df.Nrow() == 0 {
		return dataframe.DataFrame{}, errors.NewValueError("dataset.Read", "table has no rows")
	}
	return df, nil
}

// LoadPair loads the training and examinable tables. Training columns other
// than label that the examinable table lacks are only logged here; the
// cleaner's projection decides whether they matter.
func LoadPair(trainPath, testPath, label string, opts ...LoadOption) (train, test dataframe.DataFrame, err error) {
	opts = append([]LoadOption{WithColumnType(label, series.String)}, opts...)

	train, err = Load(trainPath, opts...)
	if err != nil {
		return train, test, err
	}
	if !HasColumn(train, label) {
		return train, test, errors.NewColumnNotFoundError("dataset.LoadPair", label)
	}
	test, err = Load(testPath, opts...)
	if err != nil {
		return train, test, err
	}

	if missing := MissingColumns(test, train.Names(), label); len(missing) > 0 {
		log.GetLoggerWithName("dataset").Warn("examinable table lacks training columns",
			log.PathKey, testPath,
			"missing", missing,
		)
	}
	return train, test, nil
}

// HasColumn reports whether df has a column called name.
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// MissingColumns lists the names absent from df, skipping the excluded ones.
func MissingColumns(df dataframe.DataFrame, names []string, exclude ...string) []string {
	have := make(map[string]struct{}, df.Ncol())
	for _, n := range df.Names() {
		have[n] = struct{}{}
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, n := range exclude {
		skip[n] = struct{}{}
	}

	var missing []string
	for _, n := range names {
		if _, ok := skip[n]; ok {
			continue
		}
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// IDs returns the row identifiers of df: the values of idColumn when present,
// otherwise 1-based row numbers.
func IDs(df dataframe.DataFrame, idColumn string) []string {
	if idColumn != "" && HasColumn(df, idColumn) {
		return df.Col(idColumn).Records()
	}
	ids := make([]string, df.Nrow())
	for i := range ids {
		ids[i] = itoa(i + 1)
	}
	return ids
}
