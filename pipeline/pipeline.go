// Package pipeline runs the liftclass analysis end to end: partition, clean,
// train three tuned tree classifiers, evaluate them on the holdout, select the
// best and predict the examinable rows.
package pipeline

import (
	"context"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/liftclass/config"
	"github.com/YuminosukeSato/liftclass/dataset"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
	"github.com/YuminosukeSato/liftclass/preprocessing"
)

// TopFeatures is the number of feature importances kept in a Result.
const TopFeatures = 20

// Result is everything a run produced.
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Seed      uint64

	FitRows        int
	EvalRows       int
	ExaminableRows int
	RawColumns     int
	Features       []string
	Dropped        map[string]preprocessing.DropReason

	// Models and Evaluations follow the order random forest, boosting, decision tree.
	Models      []*TrainedModel
	Evaluations []*Evaluation

	Best        *Evaluation
	BestModel   *TrainedModel
	Predictions []Prediction
	Importances []FeatureImportance
}

// RunOption configures a run.
type RunOption func(*runner)

type runner struct {
	runID    string
	logger   log.Logger
	trainers []Trainer
}

// WithRunID sets the identifier attached to every log line of the run.
func WithRunID(id string) RunOption {
	return func(r *runner) { r.runID = id }
}

// WithTrainers replaces the three default trainers.
func WithTrainers(trainers ...Trainer) RunOption {
	return func(r *runner) { r.trainers = trainers }
}

// Run loads the tables named in cfg and runs the whole analysis.
func Run(ctx context.Context, cfg *config.Config, opts ...RunOption) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	train, test, err := dataset.LoadPair(cfg.Data.TrainPath, cfg.Data.TestPath, cfg.Data.Label,
		dataset.WithNAValues(cfg.Data.NAValues))
	if err != nil {
		return nil, err
	}
	return RunTables(ctx, cfg, train, test, opts...)
}

// RunTables runs the analysis on tables that are already loaded.
func RunTables(ctx context.Context, cfg *config.Config, train, test dataframe.DataFrame, opts ...RunOption) (*Result, error) {
	r := &runner{
		trainers: []Trainer{TrainRandomForest, TrainBoosting, TrainDecisionTree},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	r.logger = log.GetLoggerWithName("pipeline").With(log.RunIDKey, r.runID)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:      r.runID,
		StartedAt:  time.Now(),
		Seed:       cfg.Seed,
		RawColumns: train.Ncol(),
	}
	if err := r.run(ctx, cfg, train, test, res); err != nil {
		r.logger.Error("run failed", err)
		return nil, err
	}
	res.Duration = time.Since(res.StartedAt)
	r.logger.Info("run finished",
		log.ModelNameKey, res.Best.Model,
		log.AccuracyKey, res.Best.Accuracy,
		log.PredsKey, len(res.Predictions),
		log.DurationMsKey, res.Duration.Milliseconds(),
	)
	return res, nil
}

func (r *runner) run(ctx context.Context, cfg *config.Config, train, test dataframe.DataFrame, res *Result) error {
	label := cfg.Data.Label

	fitDF, evalDF, err := dataset.Partition(train, label, cfg.Partition.TrainFraction, cfg.Seed)
	if err != nil {
		return err
	}
	res.FitRows, res.EvalRows, res.ExaminableRows = fitDF.Nrow(), evalDF.Nrow(), test.Nrow()

	cleaner := preprocessing.NewCleaner(
		preprocessing.WithLabel(label),
		preprocessing.WithPositionalDrop(cfg.Cleaning.PositionalDrop),
		preprocessing.WithFreqCut(cfg.Cleaning.FreqCut),
		preprocessing.WithUniqueCut(cfg.Cleaning.UniqueCut),
		preprocessing.WithCleanerLogger(r.logger.With(log.ComponentKey, "preprocessing")),
	)
	fitClean, err := cleaner.FitTransform(fitDF)
	if err != nil {
		return err
	}
	evalClean, err := cleaner.Transform(evalDF, true)
	if err != nil {
		return errors.Wrap(err, "projecting evaluation table")
	}
	testClean, err := cleaner.Transform(test, false)
	if err != nil {
		return errors.Wrap(err, "projecting examinable table")
	}
	res.Features = cleaner.Features()
	res.Dropped = cleaner.Dropped()

	enc := preprocessing.NewTableEncoder(label)
	if err := enc.Fit(fitClean, cleaner.Features()); err != nil {
		return err
	}
	fitM, err := enc.Transform(fitClean, true)
	if err != nil {
		return err
	}
	evalM, err := enc.Transform(evalClean, true)
	if err != nil {
		return err
	}
	testM, err := enc.Transform(testClean, false)
	if err != nil {
		return err
	}

	res.Models, err = r.train(ctx, cfg, fitM)
	if err != nil {
		return err
	}

	res.Evaluations = make([]*Evaluation, len(res.Models))
	for i, tm := range res.Models {
		if res.Evaluations[i], err = evaluateModel(tm, evalM, r.logger); err != nil {
			return err
		}
	}
	if res.Best, err = SelectBest(res.Evaluations); err != nil {
		return err
	}
	for _, tm := range res.Models {
		if tm.Name == res.Best.Model {
			res.BestModel = tm
		}
	}
	r.logger.Info("model selected",
		log.PhaseKey, log.PhaseEvaluation,
		log.ModelNameKey, res.Best.Model,
		log.AccuracyKey, res.Best.Accuracy,
		log.KappaKey, res.Best.Kappa,
	)

	if err := res.BestModel.Schema.Check("pipeline.Predict", testM.Schema); err != nil {
		return err
	}
	res.Predictions, err = Predict(res.BestModel.Classifier, testM, dataset.IDs(test, cfg.Data.IDColumn))
	if err != nil {
		return err
	}
	r.logger.Info("examinable rows predicted",
		log.PhaseKey, log.PhasePrediction,
		log.PredsKey, len(res.Predictions),
	)

	res.Importances, err = TopImportances(res.BestModel, TopFeatures)
	return err
}

// train runs every trainer concurrently. The first failure cancels the others.
func (r *runner) train(ctx context.Context, cfg *config.Config, fit dataset.Matrix) ([]*TrainedModel, error) {
	models := make([]*TrainedModel, len(r.trainers))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, trainer := range r.trainers {
		eg.Go(func() error {
			return errors.SafeExecute("pipeline.train", func() error {
				tm, err := trainer(egCtx, fit, cfg)
				if err != nil {
					return err
				}
				models[i] = tm
				return nil
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return models, nil
}
