package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/liftclass/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, uint64(12345), cfg.Seed)
	assert.Equal(t, "classe", cfg.Data.Label)
	assert.Equal(t, "problem_id", cfg.Data.IDColumn)
	assert.Equal(t, []string{"NA", "", "#DIV/0!"}, cfg.Data.NAValues)
	assert.InDelta(t, 0.7, cfg.Partition.TrainFraction, 1e-12)
	assert.Equal(t, 2, cfg.Cleaning.PositionalDrop)
	assert.InDelta(t, 19.0, cfg.Cleaning.FreqCut, 1e-12)
	assert.Equal(t, 5, cfg.Training.Folds)
	assert.Equal(t, 100, cfg.Training.Forest.NEstimators)
	assert.Empty(t, cfg.Training.Forest.MaxFeatures)
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("LIFTCLASS_LOG_LEVEL", "")
	t.Setenv("LIFTCLASS_SEED", "")

	path := filepath.Join(t.TempDir(), "liftclass.yaml")

	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.Training.Forest.MaxFeatures = []int{2, 27, 52}
	cfg.Logging.Level = "debug"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), loaded.Seed)
	assert.Equal(t, []int{2, 27, 52}, loaded.Training.Forest.MaxFeatures)
	assert.Equal(t, "debug", loaded.Logging.Level)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("partition:\n  train_fraction: 0.6\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, cfg.Partition.TrainFraction, 1e-12)
	assert.Equal(t, "classe", cfg.Data.Label)
	assert.Equal(t, []int{1, 2, 3}, cfg.Training.Boosting.MaxDepth)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("seed: [not, a, number"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LIFTCLASS_LOG_LEVEL", "warn")
	t.Setenv("LIFTCLASS_SEED", "99")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, uint64(99), cfg.Seed)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		param  string
	}{
		{"fraction zero", func(c *Config) { c.Partition.TrainFraction = 0 }, "partition.train_fraction"},
		{"fraction one", func(c *Config) { c.Partition.TrainFraction = 1 }, "partition.train_fraction"},
		{"empty label", func(c *Config) { c.Data.Label = "" }, "data.label"},
		{"one fold", func(c *Config) { c.Training.Folds = 1 }, "training.folds"},
		{"no trees", func(c *Config) { c.Training.Forest.NEstimators = 0 }, "training.forest.n_estimators"},
		{"bad mtry", func(c *Config) { c.Training.Forest.MaxFeatures = []int{0} }, "training.forest.max_features"},
		{"empty depth grid", func(c *Config) { c.Training.Boosting.MaxDepth = nil }, "training.boosting.max_depth"},
		{"negative cp", func(c *Config) { c.Training.Tree.CCPAlpha = []float64{-0.1} }, "training.tree.ccp_alpha"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.param, ve.ParamName)
		})
	}
}
