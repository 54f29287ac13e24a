package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const eulerGamma = 0.5772156649015329

// IsolationForestConfig controls isolation forest training.
type IsolationForestConfig struct {
	// Trees is the ensemble size.
	Trees int
	// MaxSamples is the fraction of rows drawn per tree; zero means min(256, n).
	MaxSamples float64
	// Contamination is the expected proportion of outliers in the training data.
	Contamination float64
	// Seed makes training reproducible.
	Seed int64
}

// DefaultIsolationForestConfig mirrors the settings used for the historical dataset.
func DefaultIsolationForestConfig() IsolationForestConfig {
	return IsolationForestConfig{
		Trees:         100,
		MaxSamples:    0.5,
		Contamination: 0.01,
		Seed:          42,
	}
}

// IsolationForest scores points by how quickly random partitioning isolates them.
type IsolationForest struct {
	Trees         []IsolationTree `json:"trees"`
	SampleSize    int             `json:"sample_size"`
	Features      int             `json:"features"`
	Contamination float64         `json:"contamination"`
	Offset        float64         `json:"offset"`
}

// IsolationTree is a flattened tree; node 0 is the root.
type IsolationTree struct {
	Nodes []IsolationNode `json:"nodes"`
}

// IsolationNode is an internal split or, when Left is -1, a leaf holding Size rows.
type IsolationNode struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Left    int     `json:"l"`
	Right   int     `json:"r"`
	Size    int     `json:"n"`
}

// FitIsolationForest trains a forest on data assumed to be mostly normal.
func FitIsolationForest(data [][]float64, cfg IsolationForestConfig) (*IsolationForest, error) {
	width, err := matrixWidth(data)
	if err != nil {
		return nil, err
	}
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.Contamination <= 0 || cfg.Contamination >= 0.5 {
		return nil, fmt.Errorf("contamination must be in (0, 0.5), got %v", cfg.Contamination)
	}

	sampleSize := sampleSizeFor(len(data), cfg.MaxSamples)
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(sampleSize), 2))))
	rng := rand.New(rand.NewSource(cfg.Seed))

	forest := &IsolationForest{
		Trees:         make([]IsolationTree, 0, cfg.Trees),
		SampleSize:    sampleSize,
		Features:      width,
		Contamination: cfg.Contamination,
	}
	for t := 0; t < cfg.Trees; t++ {
		rows := rng.Perm(len(data))[:sampleSize]
		b := &isolationBuilder{data: data, rng: rng, maxDepth: maxDepth, width: width}
		b.build(rows, 0)
		forest.Trees = append(forest.Trees, IsolationTree{Nodes: b.nodes})
	}

	scores := make([]float64, len(data))
	for i, row := range data {
		scores[i] = forest.rawScore(row)
	}
	forest.Offset = percentile(scores, 100*cfg.Contamination)
	return forest, nil
}

// Decision returns the shifted anomaly score (negative means outlier) and the outlier flag.
func (f *IsolationForest) Decision(row []float64) (float64, bool) {
	score := f.rawScore(row) - f.Offset
	return score, score < 0
}

// Validate checks a decoded forest for structural consistency.
func (f *IsolationForest) Validate() error {
	if f == nil || len(f.Trees) == 0 {
		return fmt.Errorf("isolation forest has no trees")
	}
	if f.Features <= 0 || f.SampleSize <= 0 {
		return fmt.Errorf("isolation forest has invalid shape")
	}
	for i, tree := range f.Trees {
		if err := validateNodes(len(tree.Nodes), func(n int) (int, int, int) {
			node := tree.Nodes[n]
			return node.Left, node.Right, node.Feature
		}, f.Features); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// rawScore follows the usual convention: -2^(-E[h(x)]/c(psi)), lower is more anomalous.
func (f *IsolationForest) rawScore(row []float64) float64 {
	total := 0.0
	for _, tree := range f.Trees {
		total += tree.pathLength(row)
	}
	mean := total / float64(len(f.Trees))
	return -math.Pow(2, -mean/averagePathLength(f.SampleSize))
}

func (t IsolationTree) pathLength(row []float64) float64 {
	idx, depth := 0, 0
	for {
		node := t.Nodes[idx]
		if node.Left < 0 {
			return float64(depth) + averagePathLength(node.Size)
		}
		if row[node.Feature] < node.Split {
			idx = node.Left
		} else {
			idx = node.Right
		}
		depth++
	}
}

type isolationBuilder struct {
	data     [][]float64
	rng      *rand.Rand
	maxDepth int
	width    int
	nodes    []IsolationNode
}

func (b *isolationBuilder) build(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, IsolationNode{Left: -1, Right: -1, Size: len(rows)})
	if depth >= b.maxDepth || len(rows) <= 1 {
		return idx
	}

	feature, lo, hi, ok := b.pickFeature(rows)
	if !ok {
		return idx
	}
	split := lo + b.rng.Float64()*(hi-lo)
	if split <= lo {
		split = lo + (hi-lo)/2
	}

	i := 0
	for j := range rows {
		if b.data[rows[j]][feature] < split {
			rows[i], rows[j] = rows[j], rows[i]
			i++
		}
	}

	left := b.build(rows[:i], depth+1)
	right := b.build(rows[i:], depth+1)
	b.nodes[idx].Feature = feature
	b.nodes[idx].Split = split
	b.nodes[idx].Left = left
	b.nodes[idx].Right = right
	return idx
}

// pickFeature chooses a random non-constant feature among rows.
func (b *isolationBuilder) pickFeature(rows []int) (int, float64, float64, bool) {
	for _, f := range b.rng.Perm(b.width) {
		lo, hi := b.data[rows[0]][f], b.data[rows[0]][f]
		for _, r := range rows[1:] {
			v := b.data[r][f]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			return f, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

func sampleSizeFor(n int, fraction float64) int {
	size := n
	if fraction > 0 && fraction <= 1 {
		size = int(fraction * float64(n))
	} else if n > 256 {
		size = 256
	}
	if size < 2 {
		size = 2
	}
	if size > n {
		size = n
	}
	return size
}

// averagePathLength is c(n), the expected path length of an unsuccessful BST search.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

// percentile is the linearly interpolated p-th percentile (0-100) at rank
// p/100·(n-1). stat.LinInterp interpolates at rank q·n-1, so q is shifted.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := float64(len(sorted))
	q := (p/100*(n-1) + 1) / n
	return stat.Quantile(math.Min(math.Max(q, 0), 1), stat.LinInterp, sorted, nil)
}

func validateNodes(count int, node func(int) (left, right, feature int), features int) error {
	if count == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i := 0; i < count; i++ {
		left, right, feature := node(i)
		if left < 0 {
			continue
		}
		if left <= i || right <= i || left >= count || right >= count {
			return fmt.Errorf("node %d has invalid children", i)
		}
		if feature < 0 || feature >= features {
			return fmt.Errorf("node %d splits on unknown feature %d", i, feature)
		}
	}
	return nil
}
