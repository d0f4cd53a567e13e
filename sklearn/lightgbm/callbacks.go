package lightgbm

import (
	"math"
	"time"

	"github.com/YuminosukeSato/liftclass/pkg/log"
)

// CallbackEnv contains the environment for callbacks
type CallbackEnv struct {
	Model        *Model
	Iteration    int
	BeginTime    time.Time
	EndTime      time.Time
	EvalResults  map[string]float64
	StopTraining bool
}

// Callback is called after every boosting round.
type Callback func(env *CallbackEnv) error

// TrainingLossMetric is the EvalResults key of the mean training log loss.
const TrainingLossMetric = "training_multi_logloss"

// LogEvaluation logs evaluation results every period rounds at debug level.
func LogEvaluation(logger log.Logger, period int) Callback {
	return func(env *CallbackEnv) error {
		if period <= 0 || (env.Iteration+1)%period != 0 {
			return nil
		}
		fields := []any{log.IterationKey, env.Iteration + 1}
		for name, value := range env.EvalResults {
			fields = append(fields, name, value)
		}
		logger.Debug("boosting round", fields...)
		return nil
	}
}

// RecordEvaluation records evaluation history
func RecordEvaluation(history *map[string][]float64) Callback {
	return func(env *CallbackEnv) error {
		if *history == nil {
			*history = make(map[string][]float64)
		}
		for name, value := range env.EvalResults {
			(*history)[name] = append((*history)[name], value)
		}
		return nil
	}
}

// EarlyStoppingCallback stops training once metric has not improved by more
// than minDelta for rounds consecutive rounds.
func EarlyStoppingCallback(rounds int, metric string, minDelta float64, logger log.Logger) Callback {
	bestScore := math.Inf(1)
	bestIteration := 0
	roundsNoImprove := 0

	return func(env *CallbackEnv) error {
		value, exists := env.EvalResults[metric]
		if !exists {
			return nil
		}
		if value < bestScore-minDelta {
			bestScore = value
			bestIteration = env.Iteration
			roundsNoImprove = 0
			return nil
		}
		roundsNoImprove++
		if roundsNoImprove >= rounds {
			logger.Info("early stopping",
				log.IterationKey, env.Iteration+1,
				"best_iteration", bestIteration+1,
				metric, bestScore,
			)
			env.StopTraining = true
		}
		return nil
	}
}

// TimeLimit stops training after a specified duration
func TimeLimit(maxDuration time.Duration) Callback {
	var startTime time.Time
	return func(env *CallbackEnv) error {
		if startTime.IsZero() {
			startTime = env.BeginTime
		}
		if env.EndTime.Sub(startTime) > maxDuration {
			env.StopTraining = true
		}
		return nil
	}
}

// CallbackList manages multiple callbacks
type CallbackList struct {
	callbacks []Callback
	env       *CallbackEnv
}

// NewCallbackList creates a new callback list
func NewCallbackList(callbacks ...Callback) *CallbackList {
	return &CallbackList{
		callbacks: callbacks,
		env:       &CallbackEnv{EvalResults: make(map[string]float64)},
	}
}

// BeforeIteration records the start time of a round.
func (cl *CallbackList) BeforeIteration(iteration int, model *Model) {
	cl.env.Iteration = iteration
	cl.env.Model = model
	cl.env.BeginTime = time.Now()
}

// AfterIteration calls callbacks after each iteration
func (cl *CallbackList) AfterIteration(iteration int, model *Model, evalResults map[string]float64) error {
	cl.env.Iteration = iteration
	cl.env.Model = model
	cl.env.EndTime = time.Now()
	cl.env.EvalResults = evalResults

	for _, cb := range cl.callbacks {
		if err := cb(cl.env); err != nil {
			return err
		}
	}
	return nil
}

// ShouldStop returns whether training should stop
func (cl *CallbackList) ShouldStop() bool {
	return cl.env.StopTraining
}
