package lightgbm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/liftclass/core/parallel"
)

// Node represents a single node in a decision tree
type Node struct {
	LeftChild  int // Left child node ID (-1 if leaf)
	RightChild int // Right child node ID (-1 if leaf)

	// Split information (for non-leaf nodes)
	SplitFeature int
	Threshold    float64
	DefaultLeft  bool    // Default direction for missing values
	Gain         float64 // Split gain (reduction in loss)

	// Leaf information (for leaf nodes). LeafValue already includes shrinkage.
	LeafValue float64
	Count     int
	Depth     int
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree represents a single regression tree fitted to one class's gradients.
type Tree struct {
	Class int
	Nodes []Node
}

// Predict makes a prediction for a single sample using this tree
func (t *Tree) Predict(features []float64) float64 {
	id := 0
	for {
		node := &t.Nodes[id]
		if node.IsLeaf() {
			return node.LeafValue
		}
		v := features[node.SplitFeature]
		switch {
		case math.IsNaN(v):
			if node.DefaultLeft {
				id = node.LeftChild
			} else {
				id = node.RightChild
			}
		case v <= node.Threshold:
			id = node.LeftChild
		default:
			id = node.RightChild
		}
	}
}

// NumLeaves returns the number of leaves.
func (t *Tree) NumLeaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// Model is a trained multiclass boosting ensemble.
// Trees are stored iteration major: tree k of iteration it is Trees[it*NumClass+k].
type Model struct {
	NumClass     int
	NumFeatures  int
	LearningRate float64
	InitScores   []float64
	Trees        []Tree
}

// NumIterations returns the number of boosting rounds in the model.
func (m *Model) NumIterations() int {
	if m.NumClass == 0 {
		return 0
	}
	return len(m.Trees) / m.NumClass
}

// PredictRaw returns the raw class scores after the first iterations rounds.
// A non-positive or too large count uses every round.
func (m *Model) PredictRaw(X mat.Matrix, iterations int, workers int) *mat.Dense {
	out := m.stagedRaw(X, []int{iterations}, workers)
	return out[0]
}

// stagedRaw returns the raw scores after each requested number of rounds,
// walking every row through the trees once.
func (m *Model) stagedRaw(X mat.Matrix, iterations []int, workers int) []*mat.Dense {
	rows, cols := X.Dims()
	total := m.NumIterations()
	stops := make([]int, len(iterations))
	out := make([]*mat.Dense, len(iterations))
	for i, it := range iterations {
		if it <= 0 || it > total {
			it = total
		}
		stops[i] = it
		out[i] = mat.NewDense(rows, m.NumClass, nil)
	}

	parallel.ParallelizeWithThreshold(rows, minParallelRows, workers, func(s, e int) {
		x := make([]float64, cols)
		score := make([]float64, m.NumClass)
		for r := s; r < e; r++ {
			for j := 0; j < cols; j++ {
				x[j] = X.At(r, j)
			}
			copy(score, m.InitScores)
			done := 0
			for {
				for q, stop := range stops {
					if stop == done {
						out[q].SetRow(r, score)
					}
				}
				if done == total {
					break
				}
				for k := 0; k < m.NumClass; k++ {
					score[k] += m.Trees[done*m.NumClass+k].Predict(x)
				}
				done++
			}
		}
	})
	return out
}

// GetFeatureImportance returns per-feature "split" counts or summed "gain",
// normalized to sum to one. Unknown types return nil.
func (m *Model) GetFeatureImportance(importanceType string) []float64 {
	if importanceType != "split" && importanceType != "gain" {
		return nil
	}
	importance := make([]float64, m.NumFeatures)
	for _, tree := range m.Trees {
		for _, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			if importanceType == "split" {
				importance[node.SplitFeature]++
			} else {
				importance[node.SplitFeature] += node.Gain
			}
		}
	}

	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for i := range importance {
			importance[i] /= total
		}
	}
	return importance
}

// probabilities turns raw scores into softmax rows in place.
func probabilities(raw *mat.Dense) {
	rows, cols := raw.Dims()
	buf := make([]float64, cols)
	for i := 0; i < rows; i++ {
		row := raw.RawRowView(i)
		stableSoftmax(row, buf)
		copy(row, buf)
	}
}
