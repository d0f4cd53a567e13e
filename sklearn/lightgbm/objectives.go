package lightgbm

import (
	"math"

	"github.com/YuminosukeSato/liftclass/core/parallel"
)

// minParallelRows is the row count below which per-row loops run on the
// calling goroutine.
const minParallelRows = 512

// MulticlassLogLossObjective implements multiclass cross-entropy loss with softmax.
// Scores, gradients and hessians are flattened row major: index i*numClasses+k.
type MulticlassLogLossObjective struct {
	numClasses int
	workers    int
}

// NewMulticlassLogLoss creates the softmax objective for numClasses classes.
func NewMulticlassLogLoss(numClasses, workers int) *MulticlassLogLossObjective {
	return &MulticlassLogLossObjective{numClasses: numClasses, workers: workers}
}

// Name returns the name of the objective
func (m *MulticlassLogLossObjective) Name() string { return "multiclass" }

// InitScores returns the log class priors of yTrue, the raw score every
// sample starts from.
func (m *MulticlassLogLossObjective) InitScores(yTrue []int) []float64 {
	counts := make([]float64, m.numClasses)
	for _, c := range yTrue {
		counts[c]++
	}
	init := make([]float64, m.numClasses)
	for k, c := range counts {
		p := c / float64(len(yTrue))
		init[k] = math.Log(math.Max(p, 1e-15))
	}
	return init
}

// stableSoftmax writes the softmax of logits into dst.
func stableSoftmax(logits, dst []float64) {
	maxLogit := logits[0]
	for _, logit := range logits[1:] {
		if logit > maxLogit {
			maxLogit = logit
		}
	}
	expSum := 0.0
	for i, logit := range logits {
		dst[i] = math.Exp(logit - maxLogit)
		expSum += dst[i]
	}
	for i := range dst {
		dst[i] /= expSum
	}
}

// CalculateGradientsAndHessians fills grad and hess from the current raw scores.
func (m *MulticlassLogLossObjective) CalculateGradientsAndHessians(yTrue []int, scores, grad, hess []float64) {
	k := m.numClasses
	parallel.ParallelizeWithThreshold(len(yTrue), minParallelRows, m.workers, func(s, e int) {
		prob := make([]float64, k)
		for i := s; i < e; i++ {
			stableSoftmax(scores[i*k:(i+1)*k], prob)
			for c := 0; c < k; c++ {
				g := prob[c]
				if c == yTrue[i] {
					g -= 1
				}
				h := prob[c] * (1 - prob[c])
				if h < 1e-16 {
					h = 1e-16
				}
				grad[i*k+c], hess[i*k+c] = g, h
			}
		}
	})
}

// CalculateLoss returns the mean negative log likelihood of yTrue.
func (m *MulticlassLogLossObjective) CalculateLoss(yTrue []int, scores []float64) float64 {
	k := m.numClasses
	prob := make([]float64, k)
	total := 0.0
	for i, c := range yTrue {
		stableSoftmax(scores[i*k:(i+1)*k], prob)
		total -= math.Log(math.Max(prob[c], 1e-15))
	}
	return total / float64(len(yTrue))
}
