package forest

import (
	"math/rand/v2"
	"slices"
)

// node is one split or leaf of a fitted tree. Leaves have Feature -1 and
// carry the index of their class in Model.classes.
type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Class     int     `json:"c,omitempty"`
}

// tree stores its nodes flat, the root first.
type tree []node

func (t tree) classify(features []float64) int {
	i := 0
	for t[i].Feature >= 0 {
		if features[t[i].Feature] <= t[i].Threshold {
			i = t[i].Left
		} else {
			i = t[i].Right
		}
	}
	return t[i].Class
}

// trainingSet is the validated design matrix: one row per sample, the
// labels as indices into the sorted class list.
type trainingSet struct {
	rows    [][]float64
	labels  []int
	classes int
}

type grower struct {
	data  trainingSet
	cfg   config
	rng   *rand.Rand
	nodes tree
}

// fitTree grows one CART tree on a bootstrap resample drawn from rng.
func fitTree(data trainingSet, cfg config, rng *rand.Rand) tree {
	n := len(data.labels)
	sample := make([]int, n)
	for i := range sample {
		sample[i] = rng.IntN(n)
	}
	g := &grower{data: data, cfg: cfg, rng: rng}
	g.grow(sample, 0)
	return g.nodes
}

func (g *grower) grow(sample []int, depth int) int {
	counts := g.count(sample)
	id := len(g.nodes)
	g.nodes = append(g.nodes, node{Feature: -1, Class: majority(counts)})

	if pure(counts) || len(sample) < 2*g.cfg.minLeaf {
		return id
	}
	if g.cfg.maxDepth > 0 && depth >= g.cfg.maxDepth {
		return id
	}

	feature, threshold, ok := g.bestSplit(sample, counts)
	if !ok {
		return id
	}

	var left, right []int
	for _, s := range sample {
		if g.data.rows[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[id] = node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return id
}

// bestSplit scans a random subset of features for the midpoint threshold
// with the lowest weighted Gini impurity. Constant features are skipped
// without using up the subset.
func (g *grower) bestSplit(sample []int, parent []int) (int, float64, bool) {
	features := g.rng.Perm(len(g.data.rows[0]))
	minLeaf := g.cfg.minLeaf

	bestFeature, bestThreshold := -1, 0.0
	// Score is Σc²/n summed over both sides; maximising it minimises Gini.
	bestScore := purity(parent, len(sample))

	order := slices.Clone(sample)
	left := make([]int, g.data.classes)
	right := make([]int, g.data.classes)
	tried := 0
	for _, f := range features {
		if tried == g.cfg.variablesPerSplit {
			break
		}
		slices.SortStableFunc(order, func(a, b int) int {
			va, vb := g.data.rows[a][f], g.data.rows[b][f]
			switch {
			case va < vb:
				return -1
			case va > vb:
				return 1
			}
			return 0
		})
		lo, hi := g.data.rows[order[0]][f], g.data.rows[order[len(order)-1]][f]
		if lo == hi {
			continue
		}
		tried++

		clear(left)
		copy(right, parent)
		for k := 1; k < len(order); k++ {
			c := g.data.labels[order[k-1]]
			left[c]++
			right[c]--
			if k < minLeaf || len(order)-k < minLeaf {
				continue
			}
			prev, next := g.data.rows[order[k-1]][f], g.data.rows[order[k]][f]
			if prev == next {
				continue
			}
			score := purity(left, k) + purity(right, len(order)-k)
			if score > bestScore+1e-12 {
				bestScore = score
				bestFeature = f
				bestThreshold = midpoint(prev, next)
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (g *grower) count(sample []int) []int {
	counts := make([]int, g.data.classes)
	for _, s := range sample {
		counts[g.data.labels[s]]++
	}
	return counts
}

func purity(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	var sum float64
	for _, c := range counts {
		sum += float64(c) * float64(c)
	}
	return sum / float64(n)
}

// midpoint stays strictly below next so that next always goes right.
func midpoint(prev, next float64) float64 {
	t := prev + (next-prev)/2
	if t >= next {
		return prev
	}
	return t
}

func pure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// majority returns the most frequent class, the lowest index on ties.
func majority(counts []int) int {
	best := 0
	for c, n := range counts {
		if n > counts[best] {
			best = c
		}
	}
	return best
}
