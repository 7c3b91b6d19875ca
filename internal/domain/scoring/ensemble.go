package scoring

import (
	"fmt"
	"math"
	"slices"
)

// EnsembleFormat names the serialized tree ensemble layout.
const EnsembleFormat = "tree-ensemble/v1"

// Node is one node of a regression tree. A node with a Leaf value is
// terminal; otherwise it splits on Feature. Numeric splits send x <=
// Threshold left, categorical splits send x in Categories left. Missing
// (NaN) values follow MissingLeft.
type Node struct {
	Feature     int       `json:"feature"`
	Threshold   float64   `json:"threshold,omitempty"`
	Categories  []float64 `json:"categories,omitempty"`
	MissingLeft bool      `json:"missing_left,omitempty"`
	Left        int       `json:"left,omitempty"`
	Right       int       `json:"right,omitempty"`
	Leaf        *float64  `json:"leaf,omitempty"`
}

// IsLeaf reports whether n is terminal.
func (n Node) IsLeaf() bool { return n.Leaf != nil }

func (n Node) goLeft(x float64) bool {
	switch {
	case math.IsNaN(x):
		return n.MissingLeft
	case len(n.Categories) > 0:
		return slices.Contains(n.Categories, x)
	default:
		return x <= n.Threshold
	}
}

// Tree is a flat list of nodes rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// TreeEnsemble is a gradient-boosted binary classifier. The probability of
// the positive class is sigmoid(BaseScore + sum of leaf values).
type TreeEnsemble struct {
	BaseScore float64 `json:"base_score"`
	Trees     []Tree  `json:"trees"`
}

// Validate checks that the ensemble can be evaluated on vectors of
// nFeatures values. Children must come after their parent, which rules
// out cycles.
func (e *TreeEnsemble) Validate(nFeatures int) error {
	if e == nil || len(e.Trees) == 0 {
		return fmt.Errorf("%w: no trees", ErrInvalidEnsemble)
	}
	if !finite(e.BaseScore) {
		return fmt.Errorf("%w: base score is not finite", ErrInvalidEnsemble)
	}
	for ti, t := range e.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("%w: tree %d is empty", ErrInvalidEnsemble, ti)
		}
		for ni, n := range t.Nodes {
			if err := n.validate(ni, len(t.Nodes), nFeatures); err != nil {
				return fmt.Errorf("%w: tree %d node %d: %s", ErrInvalidEnsemble, ti, ni, err)
			}
		}
	}
	return nil
}

func (n Node) validate(idx, size, nFeatures int) error {
	if n.IsLeaf() {
		if !finite(*n.Leaf) {
			return fmt.Errorf("leaf value is not finite")
		}
		return nil
	}
	if n.Feature < 0 || n.Feature >= nFeatures {
		return fmt.Errorf("feature index %d outside [0,%d)", n.Feature, nFeatures)
	}
	if len(n.Categories) == 0 && !finite(n.Threshold) {
		return fmt.Errorf("threshold is not finite")
	}
	for _, child := range []int{n.Left, n.Right} {
		if child <= idx || child >= size {
			return fmt.Errorf("child %d must be in (%d,%d)", child, idx, size)
		}
	}
	return nil
}

// PredictProbability evaluates the ensemble. Callers are expected to have
// validated it against len(x).
func (e *TreeEnsemble) PredictProbability(x []float64) (float64, error) {
	margin := e.BaseScore
	for ti := range e.Trees {
		leaf, err := e.Trees[ti].eval(x)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", ti, err)
		}
		margin += leaf
	}
	return sigmoid(margin), nil
}

func (t Tree) eval(x []float64) (float64, error) {
	i := 0
	for {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return *n.Leaf, nil
		}
		if n.Feature >= len(x) {
			return 0, fmt.Errorf("feature index %d outside vector of %d", n.Feature, len(x))
		}
		if n.goLeft(x[n.Feature]) {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
