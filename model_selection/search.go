package model_selection

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/liftclass/core/model"
	"github.com/YuminosukeSato/liftclass/metrics"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
)

// Params is one hyperparameter assignment.
type Params map[string]interface{}

// String renders the parameters as "key=value" pairs in key order.
func (p Params) String() string {
	keys := p.keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, ", ")
}

func (p Params) keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParameterGrid expands a grid into the cartesian product of its values.
// Keys are visited in sorted order and the last key varies fastest.
func ParameterGrid(grid map[string][]interface{}) []Params {
	keys := Params{}
	for k := range grid {
		keys[k] = nil
	}
	out := []Params{{}}
	for _, k := range keys.keys() {
		var next []Params
		for _, base := range out {
			for _, v := range grid[k] {
				p := base.clone()
				p[k] = v
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}

// EstimatorFactory builds an unfitted classifier for a parameter assignment.
type EstimatorFactory func(params Params) (model.Classifier, error)

// CandidateResult holds the cross-validated scores of one candidate.
type CandidateResult struct {
	Params     Params
	FoldScores []float64
	MeanScore  float64
	StdScore   float64
}

// GridSearchCV scores every candidate of a grid with cross-validated accuracy
// and refits the best one on the whole data.
type GridSearchCV struct {
	Factory EstimatorFactory
	Grid    []Params
	CV      Splitter
	NJobs   int
	Refit   bool
	// StagedParam names an integer parameter that an estimator implementing
	// model.StagedPredictor can score for every value from a single fit.
	StagedParam string

	logger log.Logger

	Results       []CandidateResult
	BestIndex     int
	BestParams    Params
	BestScore     float64
	BestEstimator model.Classifier
}

// SearchOption configures a GridSearchCV.
type SearchOption func(*GridSearchCV)

// WithCV sets the cross-validation splitter.
func WithCV(cv Splitter) SearchOption {
	return func(g *GridSearchCV) { g.CV = cv }
}

// WithNJobs bounds the number of concurrent fold fits.
func WithNJobs(n int) SearchOption {
	return func(g *GridSearchCV) { g.NJobs = n }
}

// WithRefit controls whether the best candidate is refitted on all rows.
func WithRefit(refit bool) SearchOption {
	return func(g *GridSearchCV) { g.Refit = refit }
}

// WithStagedParam enables staged scoring for the named parameter.
func WithStagedParam(name string) SearchOption {
	return func(g *GridSearchCV) { g.StagedParam = name }
}

// WithLogger sets the logger used for per-candidate progress.
func WithLogger(l log.Logger) SearchOption {
	return func(g *GridSearchCV) { g.logger = l }
}

// NewGridSearchCV creates a search with 5-fold stratified CV and refit enabled.
func NewGridSearchCV(factory EstimatorFactory, grid []Params, opts ...SearchOption) *GridSearchCV {
	g := &GridSearchCV{
		Factory:   factory,
		Grid:      grid,
		CV:        NewStratifiedKFold(5, true, 0),
		NJobs:     runtime.NumCPU(),
		Refit:     true,
		BestIndex: -1,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.GetLoggerWithName("model_selection")
	}
	return g
}

// fitGroup is a set of candidates that share one fit per fold.
type fitGroup struct {
	params     Params
	candidates []int
	stages     []int
}

func (g *GridSearchCV) groups() ([]fitGroup, error) {
	if g.StagedParam == "" {
		out := make([]fitGroup, len(g.Grid))
		for i, p := range g.Grid {
			out[i] = fitGroup{params: p, candidates: []int{i}}
		}
		return out, nil
	}

	var out []fitGroup
	byKey := make(map[string]int)
	for i, p := range g.Grid {
		stage, ok := p[g.StagedParam].(int)
		if !ok {
			return nil, errors.NewValidationError(g.StagedParam, "staged parameter must be an int in every candidate", p[g.StagedParam])
		}
		rest := p.clone()
		delete(rest, g.StagedParam)
		key := rest.String()

		gi, seen := byKey[key]
		if !seen {
			gi = len(out)
			byKey[key] = gi
			out = append(out, fitGroup{params: rest})
		}
		out[gi].candidates = append(out[gi].candidates, i)
		out[gi].stages = append(out[gi].stages, stage)
	}
	for i := range out {
		maxStage := 0
		for _, s := range out[i].stages {
			if s > maxStage {
				maxStage = s
			}
		}
		out[i].params[g.StagedParam] = maxStage
	}
	return out, nil
}

// Fit runs the search. Fold fits are spread over an errgroup limited to
// NJobs; the first failure cancels the remaining ones.
func (g *GridSearchCV) Fit(ctx context.Context, X, y mat.Matrix) error {
	if len(g.Grid) == 0 {
		return errors.NewValidationError("grid", "must contain at least one candidate", 0)
	}
	if g.Factory == nil {
		return errors.NewValueError("GridSearchCV.Fit", "estimator factory is nil")
	}

	start := time.Now()
	folds, err := g.CV.Split(X, y)
	if err != nil {
		return errors.Wrap(err, "GridSearchCV.Fit")
	}
	groups, err := g.groups()
	if err != nil {
		return err
	}

	scores := make([][]float64, len(g.Grid))
	for i := range scores {
		scores[i] = make([]float64, len(folds))
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if g.NJobs > 0 {
		eg.SetLimit(g.NJobs)
	}
	for gi := range groups {
		for fi := range folds {
			grp, fold, foldIdx := groups[gi], folds[fi], fi
			eg.Go(func() error {
				return errors.SafeExecute("GridSearchCV.fold", func() error {
					if err := egCtx.Err(); err != nil {
						return err
					}
					return g.scoreFold(grp, fold, foldIdx, X, y, scores)
				})
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.Results = make([]CandidateResult, len(g.Grid))
	g.BestIndex = -1
	for i, p := range g.Grid {
		mean, std := stat.MeanStdDev(scores[i], nil)
		if len(scores[i]) < 2 {
			std = 0
		}
		g.Results[i] = CandidateResult{Params: p, FoldScores: scores[i], MeanScore: mean, StdScore: std}
		g.logger.Debug("candidate scored",
			log.CandidateKey, p.String(),
			log.AccuracyKey, mean,
		)
		// 同点の場合はグリッドの先頭側を残す
		if g.BestIndex < 0 || mean > g.BestScore {
			g.BestIndex, g.BestScore = i, mean
		}
	}
	g.BestParams = g.Grid[g.BestIndex]
	g.logger.Info("grid search finished",
		log.OperationKey, log.OperationSearch,
		"candidates", len(g.Grid),
		"folds", len(folds),
		log.CandidateKey, g.BestParams.String(),
		log.AccuracyKey, g.BestScore,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if !g.Refit {
		return nil
	}
	best, err := g.Factory(g.BestParams)
	if err != nil {
		return errors.Wrap(err, "GridSearchCV refit")
	}
	if err := best.Fit(X, y); err != nil {
		return errors.Wrap(err, "GridSearchCV refit")
	}
	g.BestEstimator = best
	return nil
}

func (g *GridSearchCV) scoreFold(grp fitGroup, fold Fold, foldIdx int, X, y mat.Matrix, scores [][]float64) error {
	est, err := g.Factory(grp.params)
	if err != nil {
		return err
	}
	xTrain, yTrain := TakeRows(X, fold.TrainIndices), TakeRows(y, fold.TrainIndices)
	xTest, yTest := TakeRows(X, fold.TestIndices), TakeRows(y, fold.TestIndices)

	if err := est.Fit(xTrain, yTrain); err != nil {
		return errors.Wrapf(err, "fold %d, %s", foldIdx, grp.params)
	}

	if g.StagedParam == "" {
		pred, err := est.Predict(xTest)
		if err != nil {
			return err
		}
		acc, err := metrics.AccuracyScore(yTest, pred)
		if err != nil {
			return err
		}
		scores[grp.candidates[0]][foldIdx] = acc
		return nil
	}

	staged, ok := est.(model.StagedPredictor)
	if !ok {
		return errors.NewValueError("GridSearchCV", fmt.Sprintf("%T does not support staged prediction", est))
	}
	preds, err := staged.StagedPredict(xTest, grp.stages)
	if err != nil {
		return err
	}
	for k, ci := range grp.candidates {
		acc, err := metrics.AccuracyScore(yTest, preds[k])
		if err != nil {
			return err
		}
		scores[ci][foldIdx] = acc
	}
	return nil
}
