package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/YuminosukeSato/liftclass/config"
	"github.com/YuminosukeSato/liftclass/core/model"
	"github.com/YuminosukeSato/liftclass/dataset"
	"github.com/YuminosukeSato/liftclass/model_selection"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
	"github.com/YuminosukeSato/liftclass/sklearn/ensemble"
	"github.com/YuminosukeSato/liftclass/sklearn/lightgbm"
	"github.com/YuminosukeSato/liftclass/sklearn/tree"
)

// Model names, in the order used to break selection ties.
const (
	ModelRandomForest = "random forest"
	ModelBoosting     = "boosting"
	ModelDecisionTree = "decision tree"
)

var modelOrder = map[string]int{
	ModelRandomForest: 0,
	ModelBoosting:     1,
	ModelDecisionTree: 2,
}

// TrainedModel is a classifier refitted on the fit subset with its best
// cross-validated parameters.
type TrainedModel struct {
	Name       string
	Classifier model.Classifier
	// TuneParam names the grid parameter shown on plots and tables.
	TuneParam  string
	CVResults  []model_selection.CandidateResult
	BestParams model_selection.Params
	BestScore  float64
	Schema     dataset.FeatureSchema
	Classes    []string
	Duration   time.Duration

	// OOBAccuracy is the out-of-bag accuracy of a bagged model, NaN otherwise.
	OOBAccuracy float64
}

// Trainer fits one model family on the fit matrix.
type Trainer func(ctx context.Context, fit dataset.Matrix, cfg *config.Config) (*TrainedModel, error)

// ForestGrid returns the mtry candidates for p features: the configured list,
// or {2, (p+1)/2, p}. Values are clamped to [1, p] and deduplicated.
func ForestGrid(p int, configured []int) []int {
	candidates := configured
	if len(candidates) == 0 {
		candidates = []int{2, (p + 1) / 2, p}
	}
	seen := make(map[int]struct{}, len(candidates))
	var out []int
	for _, m := range candidates {
		m = min(max(m, 1), p)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func search(ctx context.Context, name, tuneParam string, fit dataset.Matrix, cfg *config.Config,
	factory model_selection.EstimatorFactory, grid map[string][]interface{}, opts ...model_selection.SearchOption) (*TrainedModel, error) {
	start := time.Now()
	if !fit.Labelled() {
		return nil, errors.NewValueError("pipeline.Train", "fit matrix has no labels")
	}
	logger := log.GetLoggerWithName("pipeline").With(log.ModelNameKey, name)
	logger.Info("training started",
		log.PhaseKey, log.PhaseTraining,
		log.OperationKey, log.OperationSearch,
	)

	opts = append([]model_selection.SearchOption{
		model_selection.WithCV(model_selection.NewStratifiedKFold(cfg.Training.Folds, true, cfg.Seed)),
		model_selection.WithNJobs(cfg.Training.NJobs),
		model_selection.WithLogger(logger),
	}, opts...)
	gs := model_selection.NewGridSearchCV(factory, model_selection.ParameterGrid(grid), opts...)
	if err := gs.Fit(ctx, fit.X, fit.Y); err != nil {
		return nil, errors.Wrapf(err, "training %s", name)
	}

	tm := &TrainedModel{
		Name:        name,
		Classifier:  gs.BestEstimator,
		TuneParam:   tuneParam,
		CVResults:   gs.Results,
		BestParams:  gs.BestParams,
		BestScore:   gs.BestScore,
		Schema:      fit.Schema,
		Classes:     append([]string(nil), fit.Classes...),
		Duration:    time.Since(start),
		OOBAccuracy: math.NaN(),
	}
	logger.Info("training finished",
		log.PhaseKey, log.PhaseTraining,
		log.CandidateKey, gs.BestParams.String(),
		log.AccuracyKey, gs.BestScore,
		log.DurationMsKey, tm.Duration.Milliseconds(),
	)
	return tm, nil
}

func toInterfaces[T any](values []T) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// TrainRandomForest tunes mtry of a random forest with stratified CV.
func TrainRandomForest(ctx context.Context, fit dataset.Matrix, cfg *config.Config) (*TrainedModel, error) {
	_, p := fit.Dims()
	fc := cfg.Training.Forest
	logger := log.GetLoggerWithName("ensemble").With(log.ModelNameKey, "RandomForestClassifier")
	factory := func(params model_selection.Params) (model.Classifier, error) {
		rf := ensemble.NewRandomForestClassifier(
			ensemble.WithNEstimators(fc.NEstimators),
			ensemble.WithRandomState(cfg.Seed),
			ensemble.WithNJobs(cfg.Training.NJobs),
			ensemble.WithLogger(logger),
		)
		if err := rf.SetParams(params); err != nil {
			return nil, err
		}
		return rf, nil
	}
	grid := map[string][]interface{}{
		"max_features": toInterfaces(ForestGrid(p, fc.MaxFeatures)),
	}
	tm, err := search(ctx, ModelRandomForest, "max_features", fit, cfg, factory, grid)
	if err != nil {
		return nil, err
	}
	if rf, ok := tm.Classifier.(*ensemble.RandomForestClassifier); ok {
		if tm.OOBAccuracy, err = rf.OOBScore(); err != nil {
			return nil, err
		}
	}
	return tm, nil
}

// TrainBoosting tunes depth and rounds of gradient-boosted trees. Every depth
// is fitted once per fold with the largest round count and scored at each
// count through staged prediction.
func TrainBoosting(ctx context.Context, fit dataset.Matrix, cfg *config.Config) (*TrainedModel, error) {
	bc := cfg.Training.Boosting
	logger := log.GetLoggerWithName("lightgbm").With(log.ModelNameKey, "LGBMClassifier")
	factory := func(params model_selection.Params) (model.Classifier, error) {
		clf := lightgbm.NewLGBMClassifier().
			WithLearningRate(bc.LearningRate).
			WithMinChildSamples(bc.MinDataInLeaf).
			WithMaxBin(bc.MaxBin).
			WithRandomState(cfg.Seed).
			WithCallbacks(lightgbm.LogEvaluation(logger, 10)).
			WithLogger(logger)
		if err := clf.SetParams(params); err != nil {
			return nil, err
		}
		return clf, nil
	}
	grid := map[string][]interface{}{
		"max_depth":      toInterfaces(bc.MaxDepth),
		"num_iterations": toInterfaces(bc.NumIterations),
	}
	return search(ctx, ModelBoosting, "num_iterations", fit, cfg, factory, grid,
		model_selection.WithStagedParam("num_iterations"))
}

// TrainDecisionTree tunes the complexity parameter of a CART tree.
func TrainDecisionTree(ctx context.Context, fit dataset.Matrix, cfg *config.Config) (*TrainedModel, error) {
	tc := cfg.Training.Tree
	logger := log.GetLoggerWithName("tree").With(log.ModelNameKey, "DecisionTreeClassifier")
	factory := func(params model_selection.Params) (model.Classifier, error) {
		t := tree.NewDecisionTreeClassifier(
			tree.WithCriterion("gini"),
			tree.WithMinSamplesLeaf(tc.MinSamplesLeaf),
			tree.WithRandomState(cfg.Seed),
			tree.WithLogger(logger),
		)
		if err := t.SetParams(params); err != nil {
			return nil, err
		}
		return t, nil
	}
	grid := map[string][]interface{}{
		"ccp_alpha": toInterfaces(tc.CCPAlpha),
	}
	return search(ctx, ModelDecisionTree, "ccp_alpha", fit, cfg, factory, grid)
}
