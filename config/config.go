// Package config holds the run configuration of the liftclass pipeline.
package config

import (
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

const fileMode = 0o600

// Config holds all liftclass configuration.
type Config struct {
	// Seed drives the partition, the CV folds and every estimator.
	Seed uint64 `yaml:"seed"`

	Data      DataConfig      `yaml:"data"`
	Partition PartitionConfig `yaml:"partition"`
	Cleaning  CleaningConfig  `yaml:"cleaning"`
	Training  TrainingConfig  `yaml:"training"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DataConfig describes the input tables.
type DataConfig struct {
	TrainPath string   `yaml:"train_path"`
	TestPath  string   `yaml:"test_path"`
	Label     string   `yaml:"label"`
	IDColumn  string   `yaml:"id_column"`
	NAValues  []string `yaml:"na_values"`
}

// PartitionConfig configures the fit/evaluation split.
type PartitionConfig struct {
	TrainFraction float64 `yaml:"train_fraction"`
}

// CleaningConfig configures the column filters.
type CleaningConfig struct {
	PositionalDrop int     `yaml:"positional_drop"`
	FreqCut        float64 `yaml:"freq_cut"`
	UniqueCut      float64 `yaml:"unique_cut"`
}

// TrainingConfig configures cross-validation and the three trainers.
type TrainingConfig struct {
	Folds int `yaml:"folds"`
	// NJobs bounds the number of concurrent fold fits. 0 means runtime.NumCPU().
	NJobs int `yaml:"n_jobs"`

	Forest   ForestConfig   `yaml:"forest"`
	Boosting BoostingConfig `yaml:"boosting"`
	Tree     TreeConfig     `yaml:"tree"`
}

// ForestConfig configures the random forest trainer.
type ForestConfig struct {
	NEstimators int `yaml:"n_estimators"`
	// MaxFeatures is the mtry grid. Empty means {2, (p+1)/2, p}.
	MaxFeatures []int `yaml:"max_features"`
}

// BoostingConfig configures the gradient-boosted trees trainer.
type BoostingConfig struct {
	MaxDepth      []int   `yaml:"max_depth"`
	NumIterations []int   `yaml:"num_iterations"`
	LearningRate  float64 `yaml:"learning_rate"`
	MinDataInLeaf int     `yaml:"min_data_in_leaf"`
	MaxBin        int     `yaml:"max_bin"`
}

// TreeConfig configures the decision tree trainer.
type TreeConfig struct {
	CCPAlpha       []float64 `yaml:"ccp_alpha"`
	MinSamplesLeaf int       `yaml:"min_samples_leaf"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is "auto", "console" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Seed: 12345,
		Data: DataConfig{
			TrainPath: "pml-training.csv",
			TestPath:  "pml-testing.csv",
			Label:     "classe",
			IDColumn:  "problem_id",
			NAValues:  []string{"NA", "", "#DIV/0!"},
		},
		Partition: PartitionConfig{
			TrainFraction: 0.7,
		},
		Cleaning: CleaningConfig{
			PositionalDrop: 2,
			FreqCut:        95.0 / 5.0,
			UniqueCut:      10,
		},
		Training: TrainingConfig{
			Folds: 5,
			NJobs: runtime.NumCPU(),
			Forest: ForestConfig{
				NEstimators: 100,
			},
			Boosting: BoostingConfig{
				MaxDepth:      []int{1, 2, 3},
				NumIterations: []int{50, 100, 150},
				LearningRate:  0.1,
				MinDataInLeaf: 10,
				MaxBin:        255,
			},
			Tree: TreeConfig{
				CCPAlpha:       []float64{0, 0.01, 0.03},
				MinSamplesLeaf: 1,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads a YAML file on top of DefaultConfig.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config %s", path)
	}
	return nil
}

// applyEnvOverrides lets LIFTCLASS_LOG_LEVEL and LIFTCLASS_SEED override the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LIFTCLASS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LIFTCLASS_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Seed = seed
		}
	}
}

// Validate reports the first invalid setting as a ValidationError.
func (c *Config) Validate() error {
	switch {
	case c.Data.Label == "":
		return errors.NewValidationError("data.label", "must not be empty", c.Data.Label)
	case c.Partition.TrainFraction <= 0 || c.Partition.TrainFraction >= 1:
		return errors.NewValidationError("partition.train_fraction", "must be in (0, 1)", c.Partition.TrainFraction)
	case c.Cleaning.PositionalDrop < 0:
		return errors.NewValidationError("cleaning.positional_drop", "must be >= 0", c.Cleaning.PositionalDrop)
	case c.Cleaning.FreqCut < 1:
		return errors.NewValidationError("cleaning.freq_cut", "must be >= 1", c.Cleaning.FreqCut)
	case c.Cleaning.UniqueCut < 0 || c.Cleaning.UniqueCut > 100:
		return errors.NewValidationError("cleaning.unique_cut", "must be in [0, 100]", c.Cleaning.UniqueCut)
	case c.Training.Folds < 2:
		return errors.NewValidationError("training.folds", "must be >= 2", c.Training.Folds)
	case c.Training.NJobs < 0:
		return errors.NewValidationError("training.n_jobs", "must be >= 0", c.Training.NJobs)
	case c.Training.Forest.NEstimators < 1:
		return errors.NewValidationError("training.forest.n_estimators", "must be >= 1", c.Training.Forest.NEstimators)
	case len(c.Training.Boosting.MaxDepth) == 0:
		return errors.NewValidationError("training.boosting.max_depth", "grid must not be empty", c.Training.Boosting.MaxDepth)
	case len(c.Training.Boosting.NumIterations) == 0:
		return errors.NewValidationError("training.boosting.num_iterations", "grid must not be empty", c.Training.Boosting.NumIterations)
	case c.Training.Boosting.LearningRate <= 0:
		return errors.NewValidationError("training.boosting.learning_rate", "must be > 0", c.Training.Boosting.LearningRate)
	case len(c.Training.Tree.CCPAlpha) == 0:
		return errors.NewValidationError("training.tree.ccp_alpha", "grid must not be empty", c.Training.Tree.CCPAlpha)
	}

	for _, m := range c.Training.Forest.MaxFeatures {
		if m < 1 {
			return errors.NewValidationError("training.forest.max_features", "entries must be >= 1", m)
		}
	}
	for _, d := range c.Training.Boosting.MaxDepth {
		if d < 1 {
			return errors.NewValidationError("training.boosting.max_depth", "entries must be >= 1", d)
		}
	}
	for _, n := range c.Training.Boosting.NumIterations {
		if n < 1 {
			return errors.NewValidationError("training.boosting.num_iterations", "entries must be >= 1", n)
		}
	}
	for _, a := range c.Training.Tree.CCPAlpha {
		if a < 0 {
			return errors.NewValidationError("training.tree.ccp_alpha", "entries must be >= 0", a)
		}
	}
	switch c.Logging.Format {
	case "", "auto", "console", "json":
	default:
		return errors.NewValidationError("logging.format", "must be auto, console or json", c.Logging.Format)
	}
	return nil
}
