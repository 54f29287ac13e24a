package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// RandomForestConfig controls classifier training.
type RandomForestConfig struct {
	Trees int
	// MaxDepth limits tree depth; zero grows trees until leaves are pure.
	MaxDepth int
	// MinSamplesSplit is the smallest node that may be split.
	MinSamplesSplit int
	// MaxFeatures is the number of features tried per split; zero means sqrt(features).
	MaxFeatures int
	Seed        int64
}

// DefaultRandomForestConfig returns the classifier settings used for labelled samples.
func DefaultRandomForestConfig() RandomForestConfig {
	return RandomForestConfig{
		Trees:           100,
		MinSamplesSplit: 2,
		Seed:            42,
	}
}

// RandomForest is a bagged ensemble of gini CART trees.
type RandomForest struct {
	Classes  []string       `json:"classes"`
	Features int            `json:"features"`
	Trees    []DecisionTree `json:"trees"`
}

// DecisionTree is a flattened CART tree; node 0 is the root.
type DecisionTree struct {
	Nodes []DecisionNode `json:"nodes"`
}

// DecisionNode routes x[Feature] <= Threshold to Left. Leaves have Left == -1
// and carry the class distribution of their training rows.
type DecisionNode struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t"`
	Left      int       `json:"l"`
	Right     int       `json:"r"`
	Proba     []float64 `json:"p,omitempty"`
}

// FitRandomForest trains a classifier on rows X with labels y.
func FitRandomForest(X [][]float64, y []string, cfg RandomForestConfig) (*RandomForest, error) {
	width, err := matrixWidth(X)
	if err != nil {
		return nil, err
	}
	if len(y) != len(X) {
		return nil, fmt.Errorf("got %d labels for %d rows", len(y), len(X))
	}
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	if cfg.MaxFeatures <= 0 || cfg.MaxFeatures > width {
		cfg.MaxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(width)))))
	}

	classes := uniqueSorted(y)
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	targets := make([]int, len(y))
	for i, label := range y {
		targets[i] = index[label]
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	forest := &RandomForest{
		Classes:  classes,
		Features: width,
		Trees:    make([]DecisionTree, 0, cfg.Trees),
	}
	for t := 0; t < cfg.Trees; t++ {
		rows := make([]int, len(X))
		for i := range rows {
			rows[i] = rng.Intn(len(X))
		}
		b := &cartBuilder{
			X:       X,
			y:       targets,
			classes: len(classes),
			width:   width,
			cfg:     cfg,
			rng:     rng,
		}
		b.build(rows, 0)
		forest.Trees = append(forest.Trees, DecisionTree{Nodes: b.nodes})
	}
	return forest, nil
}

// Predict returns the most probable class and the averaged vote share for it.
func (f *RandomForest) Predict(row []float64) (string, float64) {
	proba := f.PredictProba(row)
	best := 0
	for i, p := range proba {
		if p > proba[best] {
			best = i
		}
	}
	return f.Classes[best], proba[best]
}

// PredictProba averages leaf class distributions across trees, indexed like Classes.
func (f *RandomForest) PredictProba(row []float64) []float64 {
	proba := make([]float64, len(f.Classes))
	for _, tree := range f.Trees {
		for i, p := range tree.leaf(row).Proba {
			proba[i] += p
		}
	}
	for i := range proba {
		proba[i] /= float64(len(f.Trees))
	}
	return proba
}

// Validate checks a decoded forest for structural consistency.
func (f *RandomForest) Validate() error {
	if f == nil || len(f.Trees) == 0 {
		return fmt.Errorf("random forest has no trees")
	}
	if len(f.Classes) == 0 || f.Features <= 0 {
		return fmt.Errorf("random forest has invalid shape")
	}
	for i, tree := range f.Trees {
		err := validateNodes(len(tree.Nodes), func(n int) (int, int, int) {
			node := tree.Nodes[n]
			return node.Left, node.Right, node.Feature
		}, f.Features)
		if err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		for n, node := range tree.Nodes {
			if node.Left < 0 && len(node.Proba) != len(f.Classes) {
				return fmt.Errorf("tree %d leaf %d has %d probabilities for %d classes", i, n, len(node.Proba), len(f.Classes))
			}
		}
	}
	return nil
}

func (t DecisionTree) leaf(row []float64) DecisionNode {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Left < 0 {
			return node
		}
		if row[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

type cartBuilder struct {
	X       [][]float64
	y       []int
	classes int
	width   int
	cfg     RandomForestConfig
	rng     *rand.Rand
	nodes   []DecisionNode
}

func (b *cartBuilder) build(rows []int, depth int) int {
	idx := len(b.nodes)
	counts := make([]float64, b.classes)
	for _, r := range rows {
		counts[b.y[r]]++
	}
	b.nodes = append(b.nodes, DecisionNode{Left: -1, Right: -1})

	if !b.splittable(rows, counts, depth) {
		b.nodes[idx].Proba = normalise(counts, len(rows))
		return idx
	}
	feature, threshold, ok := b.bestSplit(rows, counts)
	if !ok {
		b.nodes[idx].Proba = normalise(counts, len(rows))
		return idx
	}

	i := 0
	for j := range rows {
		if b.X[rows[j]][feature] <= threshold {
			rows[i], rows[j] = rows[j], rows[i]
			i++
		}
	}
	left := b.build(rows[:i], depth+1)
	right := b.build(rows[i:], depth+1)
	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = threshold
	b.nodes[idx].Left = left
	b.nodes[idx].Right = right
	return idx
}

func (b *cartBuilder) splittable(rows []int, counts []float64, depth int) bool {
	if len(rows) < b.cfg.MinSamplesSplit {
		return false
	}
	if b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth {
		return false
	}
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero > 1
}

// bestSplit minimises weighted gini impurity. MaxFeatures candidates are drawn
// first; remaining features are only searched when none of those can split.
func (b *cartBuilder) bestSplit(rows []int, counts []float64) (int, float64, bool) {
	var (
		bestFeature   int
		bestThreshold float64
		bestCost      = math.Inf(1)
		found         bool
	)
	sorted := make([]int, len(rows))
	left := make([]float64, b.classes)

	for k, f := range b.rng.Perm(b.width) {
		if k >= b.cfg.MaxFeatures && found {
			break
		}
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool { return b.X[sorted[i]][f] < b.X[sorted[j]][f] })
		for c := range left {
			left[c] = 0
		}

		n := float64(len(sorted))
		for i := 0; i < len(sorted)-1; i++ {
			left[b.y[sorted[i]]]++
			lo, hi := b.X[sorted[i]][f], b.X[sorted[i+1]][f]
			if lo == hi {
				continue
			}
			nl := float64(i + 1)
			nr := n - nl
			var sqL, sqR float64
			for c := range left {
				r := counts[c] - left[c]
				sqL += left[c] * left[c]
				sqR += r * r
			}
			cost := (nl - sqL/nl) + (nr - sqR/nr)
			if cost < bestCost {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				bestCost, bestFeature, bestThreshold, found = cost, f, threshold, true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func normalise(counts []float64, total int) []float64 {
	out := make([]float64, len(counts))
	if total == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = c / float64(total)
	}
	return out
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
