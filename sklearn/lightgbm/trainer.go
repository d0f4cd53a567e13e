package lightgbm

import (
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/core/parallel"
	"github.com/YuminosukeSato/liftclass/pkg/errors"
	"github.com/YuminosukeSato/liftclass/pkg/log"
)

// Trainer implements leaf-wise histogram boosting for the multiclass softmax
// objective. Every round grows one tree per class on that class's gradients.
type Trainer struct {
	params    TrainingParams
	logger    log.Logger
	callbacks *CallbackList

	data      *binnedData
	objective *MulticlassLogLossObjective
}

// SplitInfo contains information about a potential split
type SplitInfo struct {
	Feature   int
	Bin       int
	NaNLeft   bool
	Gain      float64
	LeftGrad  float64
	LeftHess  float64
	LeftCount int
}

func (s SplitInfo) valid() bool { return s.Feature >= 0 }

// kEpsilon absorbs rounding noise in split gains of leaves with equal gradients.
const kEpsilon = 1e-12

// leaf is a growing leaf: the rows it holds and its best candidate split.
type leaf struct {
	node    int
	rows    []int32
	sumGrad float64
	sumHess float64
	depth   int
	best    SplitInfo
}

// NewTrainer creates a new trainer. A nil logger uses the package logger.
func NewTrainer(params TrainingParams, logger log.Logger) *Trainer {
	if logger == nil {
		logger = log.GetLoggerWithName("lightgbm.trainer")
	}
	return &Trainer{params: params, logger: logger}
}

// WithCallbacks sets the callbacks for training
func (t *Trainer) WithCallbacks(callbacks ...Callback) *Trainer {
	t.callbacks = NewCallbackList(callbacks...)
	return t
}

// gradients refreshes grad and hess from scores and rejects NaN or Inf values.
func (t *Trainer) gradients(labels []int, scores, grad, hess []float64, round int) error {
	const op = "lightgbm.gradients"
	t.objective.CalculateGradientsAndHessians(labels, scores, grad, hess)
	if err := errors.CheckValues(op, grad, round); err != nil {
		return err
	}
	return errors.CheckValues(op, hess, round)
}

// Train fits numClass trees per round. labels holds class indices in [0, numClass).
func (t *Trainer) Train(X mat.Matrix, labels []int, numClass int) (*Model, error) {
	const op = "lightgbm.Train"
	start := time.Now()
	if err := t.params.Validate(); err != nil {
		return nil, err
	}
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, op)
	}
	if len(labels) != n {
		return nil, errors.NewDimensionError(op, n, len(labels), 0)
	}
	if numClass < 2 {
		return nil, errors.Wrap(errors.ErrSingleClass, op)
	}

	workers := t.params.workers()
	t.data = newBinnedData(X, t.params.MaxBin, workers)
	t.objective = NewMulticlassLogLoss(numClass, workers)

	m := &Model{
		NumClass:     numClass,
		NumFeatures:  p,
		LearningRate: t.params.LearningRate,
		InitScores:   t.objective.InitScores(labels),
	}
	scores := make([]float64, n*numClass)
	for i := 0; i < n; i++ {
		copy(scores[i*numClass:], m.InitScores)
	}
	grad := make([]float64, n*numClass)
	hess := make([]float64, n*numClass)
	rng := rand.New(rand.NewPCG(t.params.Seed, t.params.Seed))

	var loss float64
	for iter := 0; iter < t.params.NumIterations; iter++ {
		if t.callbacks != nil {
			t.callbacks.BeforeIteration(iter, m)
		}
		if err := t.gradients(labels, scores, grad, hess, iter+1); err != nil {
			return nil, err
		}

		// feature subsets are drawn up front so results do not depend on scheduling
		subsets := make([][]int, numClass)
		for k := range subsets {
			subsets[k] = t.sampleFeatures(rng)
		}

		trees := make([]Tree, numClass)
		err := parallel.ParallelizeErr(op, numClass, workers, func(s, e int) error {
			g := make([]float64, n)
			h := make([]float64, n)
			for k := s; k < e; k++ {
				for i := 0; i < n; i++ {
					g[i], h[i] = grad[i*numClass+k], hess[i*numClass+k]
				}
				tree, leaves := t.growTree(g, h, subsets[k])
				tree.Class = k
				for _, lf := range leaves {
					v := tree.Nodes[lf.node].LeafValue
					for _, r := range lf.rows {
						scores[int(r)*numClass+k] += v
					}
				}
				trees[k] = tree
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "round %d", iter+1)
		}
		m.Trees = append(m.Trees, trees...)

		loss = t.objective.CalculateLoss(labels, scores)
		if err := errors.CheckScalar(op, loss, iter+1); err != nil {
			return nil, err
		}
		if t.callbacks != nil {
			results := map[string]float64{TrainingLossMetric: loss}
			if err := t.callbacks.AfterIteration(iter, m, results); err != nil {
				return nil, errors.Wrapf(err, "callback at round %d", iter+1)
			}
			if t.callbacks.ShouldStop() {
				break
			}
		}
	}

	t.logger.Debug("boosting finished",
		log.IterationKey, m.NumIterations(),
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.ClassesKey, numClass,
		log.LossKey, loss,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return m, nil
}

func (t *Trainer) sampleFeatures(rng *rand.Rand) []int {
	p := t.data.p
	features := make([]int, p)
	for j := range features {
		features[j] = j
	}
	if t.params.FeatureFraction >= 1 {
		return features
	}
	k := max(1, int(t.params.FeatureFraction*float64(p)))
	for i := 0; i < k; i++ {
		j := i + rng.IntN(p-i)
		features[i], features[j] = features[j], features[i]
	}
	chosen := features[:k]
	// keep ascending order so ties resolve the same way as without sampling
	for i := 1; i < len(chosen); i++ {
		for j := i; j > 0 && chosen[j] < chosen[j-1]; j-- {
			chosen[j], chosen[j-1] = chosen[j-1], chosen[j]
		}
	}
	return chosen
}

// growTree grows a tree leaf by leaf, always splitting the leaf with the
// largest gain, until NumLeaves is reached or no leaf can be split.
func (t *Trainer) growTree(grad, hess []float64, features []int) (Tree, []*leaf) {
	n := t.data.n
	root := &leaf{rows: make([]int32, n)}
	for i := range root.rows {
		root.rows[i] = int32(i)
		root.sumGrad += grad[i]
		root.sumHess += hess[i]
	}
	nodes := []Node{{LeftChild: -1, RightChild: -1, Count: n}}
	root.best = t.findBestSplit(root, grad, hess, features)
	leaves := []*leaf{root}

	for len(leaves) < t.params.NumLeaves {
		bestIdx := -1
		for i, lf := range leaves {
			if lf.best.valid() && (bestIdx < 0 || lf.best.Gain > leaves[bestIdx].best.Gain) {
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}

		parent := leaves[bestIdx]
		sp := parent.best
		left, right := t.split(parent, sp)
		left.node, right.node = len(nodes), len(nodes)+1

		nodes[parent.node].LeftChild = left.node
		nodes[parent.node].RightChild = right.node
		nodes[parent.node].SplitFeature = sp.Feature
		nodes[parent.node].Threshold = t.data.mappers[sp.Feature].UpperBounds[sp.Bin]
		nodes[parent.node].DefaultLeft = sp.NaNLeft
		nodes[parent.node].Gain = sp.Gain
		nodes = append(nodes,
			Node{LeftChild: -1, RightChild: -1, Count: len(left.rows), Depth: left.depth},
			Node{LeftChild: -1, RightChild: -1, Count: len(right.rows), Depth: right.depth},
		)

		left.best = t.findBestSplit(left, grad, hess, features)
		right.best = t.findBestSplit(right, grad, hess, features)
		leaves[bestIdx] = left
		leaves = append(leaves, right)
	}

	for _, lf := range leaves {
		nodes[lf.node].LeafValue = -lf.sumGrad / (lf.sumHess + t.params.Lambda) * t.params.LearningRate
	}
	return Tree{Nodes: nodes}, leaves
}

func (t *Trainer) split(parent *leaf, sp SplitInfo) (*leaf, *leaf) {
	bins := t.data.bins[sp.Feature]
	nanBin := t.data.mappers[sp.Feature].NaNBin()
	left := &leaf{rows: make([]int32, 0, sp.LeftCount), depth: parent.depth + 1}
	right := &leaf{rows: make([]int32, 0, len(parent.rows)-sp.LeftCount), depth: parent.depth + 1}
	for _, r := range parent.rows {
		b := int(bins[r])
		if (b == nanBin && sp.NaNLeft) || (b != nanBin && b <= sp.Bin) {
			left.rows = append(left.rows, r)
		} else {
			right.rows = append(right.rows, r)
		}
	}
	left.sumGrad, left.sumHess = sp.LeftGrad, sp.LeftHess
	right.sumGrad, right.sumHess = parent.sumGrad-sp.LeftGrad, parent.sumHess-sp.LeftHess
	return left, right
}

// findBestSplit scans the histogram of every candidate feature. Missing
// values are tried on both sides; features without missing values send
// unseen NaNs to the larger child.
func (t *Trainer) findBestSplit(lf *leaf, grad, hess []float64, features []int) SplitInfo {
	best := SplitInfo{Feature: -1, Gain: t.params.MinGainToSplit + kEpsilon}
	if t.params.MaxDepth > 0 && lf.depth >= t.params.MaxDepth {
		return best
	}
	minData := t.params.MinDataInLeaf
	total := len(lf.rows)
	if total < 2*minData {
		return best
	}
	lambda := t.params.Lambda
	parentScore := lf.sumGrad * lf.sumGrad / (lf.sumHess + lambda)

	var histG, histH []float64
	var histN []int
	for _, f := range features {
		mapper := t.data.mappers[f]
		nb := mapper.NumBins()
		if nb < 2 && !mapper.HasNaN {
			continue
		}
		histG = resize(histG, nb+1)
		histH = resize(histH, nb+1)
		histN = resizeInt(histN, nb+1)
		bins := t.data.bins[f]
		for _, r := range lf.rows {
			b := bins[r]
			histG[b] += grad[r]
			histH[b] += hess[r]
			histN[b]++
		}
		nanG, nanH, nanN := histG[nb], histH[nb], histN[nb]

		var accG, accH float64
		accN := 0
		for b := 0; b < nb; b++ {
			accG += histG[b]
			accH += histH[b]
			accN += histN[b]
			for _, nanLeft := range [2]bool{false, true} {
				if nanLeft && nanN == 0 {
					continue
				}
				lg, lh, ln := accG, accH, accN
				if nanLeft {
					lg, lh, ln = lg+nanG, lh+nanH, ln+nanN
				}
				rg, rh, rn := lf.sumGrad-lg, lf.sumHess-lh, total-ln
				if ln < minData || rn < minData {
					continue
				}
				if lh < t.params.MinSumHessian || rh < t.params.MinSumHessian {
					continue
				}
				gain := 0.5 * (lg*lg/(lh+lambda) + rg*rg/(rh+lambda) - parentScore)
				if gain <= best.Gain {
					continue
				}
				defaultLeft := nanLeft
				if nanN == 0 {
					defaultLeft = ln >= rn
				}
				best = SplitInfo{
					Feature:   f,
					Bin:       b,
					NaNLeft:   defaultLeft,
					Gain:      gain,
					LeftGrad:  lg,
					LeftHess:  lh,
					LeftCount: ln,
				}
			}
		}
	}
	return best
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	s = s[:n]
	clear(s)
	return s
}

func resizeInt(s []int, n int) []int {
	if cap(s) < n {
		return make([]int, n)
	}
	s = s[:n]
	clear(s)
	return s
}
