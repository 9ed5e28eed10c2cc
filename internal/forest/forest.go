// Package forest trains and applies a seeded random-forest classifier.
// Every tree draws from its own PCG stream keyed by (seed, tree index), so
// fitting on a worker pool gives the same model as fitting serially.
package forest

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"

	"github.com/forest-guardian/slidescan/internal/raster"
	"github.com/forest-guardian/slidescan/internal/samples"
	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
)

type config struct {
	variablesPerSplit int
	minLeaf           int
	maxDepth          int
	workers           int
	progress          bool
}

type Option func(*config)

// WithVariablesPerSplit sets how many non-constant features each split
// considers. Zero or less means ⌊√features⌋.
func WithVariablesPerSplit(n int) Option {
	return func(c *config) { c.variablesPerSplit = n }
}

// WithMinLeafPopulation sets the smallest number of samples a leaf may hold.
func WithMinLeafPopulation(n int) Option {
	return func(c *config) { c.minLeaf = n }
}

// WithMaxDepth bounds tree depth; zero means unlimited.
func WithMaxDepth(n int) Option {
	return func(c *config) { c.maxDepth = n }
}

func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithProgress shows a progress bar while trees are fitted.
func WithProgress(show bool) Option {
	return func(c *config) { c.progress = show }
}

// Model is a trained ensemble. It is never modified after Train returns.
type Model struct {
	featureBands []string
	classes      []float64
	trees        []tree
}

func (m *Model) FeatureBands() []string { return slices.Clone(m.featureBands) }

// Classes returns the class labels in ascending order.
func (m *Model) Classes() []float64 { return slices.Clone(m.classes) }

func (m *Model) TreeCount() int { return len(m.trees) }

// Vote returns the majority label for a feature vector ordered like
// FeatureBands. Ties go to the lowest label.
func (m *Model) Vote(features []float64) float64 {
	counts := make([]int, len(m.classes))
	for _, t := range m.trees {
		counts[t.classify(features)]++
	}
	return m.classes[majority(counts)]
}

type modelJSON struct {
	FeatureBands []string  `json:"feature_bands"`
	Classes      []float64 `json:"classes"`
	Trees        []tree    `json:"trees"`
}

func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelJSON{FeatureBands: m.featureBands, Classes: m.classes, Trees: m.trees})
}

func (m *Model) UnmarshalJSON(data []byte) error {
	var v modelJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v.Classes) == 0 || len(v.Trees) == 0 {
		return fmt.Errorf("%w: model has no classes or trees", raster.ErrEmptyInput)
	}
	for i, t := range v.Trees {
		if err := t.check(len(v.FeatureBands), len(v.Classes)); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	m.featureBands, m.classes, m.trees = v.FeatureBands, v.Classes, v.Trees
	return nil
}

func (t tree) check(features, classes int) error {
	if len(t) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t {
		if n.Feature < 0 {
			if n.Class < 0 || n.Class >= classes {
				return fmt.Errorf("node %d: class %d out of range", i, n.Class)
			}
			continue
		}
		// children are always stored after their parent
		if n.Feature >= features || n.Left <= i || n.Right <= i || n.Left >= len(t) || n.Right >= len(t) {
			return fmt.Errorf("node %d: malformed split", i)
		}
	}
	return nil
}

// Train fits treeCount trees on bootstrap resamples of the samples whose
// class property and every feature band are present and finite. Samples
// with a non-integral class are excluded too.
func Train(data []samples.Sample, classProperty string, featureBands []string, treeCount int, seed uint64, opts ...Option) (*Model, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no training samples", raster.ErrEmptyInput)
	}
	if len(featureBands) == 0 {
		return nil, fmt.Errorf("%w: no feature bands", raster.ErrSchemaMismatch)
	}
	if treeCount < 1 {
		return nil, fmt.Errorf("tree count must be positive, got %d", treeCount)
	}
	if err := checkSchema(data, classProperty, featureBands); err != nil {
		return nil, err
	}

	cfg := config{minLeaf: 1, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.variablesPerSplit <= 0 {
		cfg.variablesPerSplit = max(1, int(math.Sqrt(float64(len(featureBands)))))
	}
	cfg.variablesPerSplit = min(cfg.variablesPerSplit, len(featureBands))
	cfg.minLeaf = max(1, cfg.minLeaf)
	cfg.workers = max(1, cfg.workers)

	set, classes, err := buildTrainingSet(data, classProperty, featureBands)
	if err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	if cfg.progress {
		bar = progressbar.Default(int64(treeCount), "Training forest")
	} else {
		bar = progressbar.DefaultSilent(int64(treeCount))
	}

	trees := make([]tree, treeCount)
	var mu sync.Mutex
	wp := workerpool.New(cfg.workers)
	for i := range treeCount {
		wp.Submit(func() {
			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			trees[i] = fitTree(set, cfg, rng)
			mu.Lock()
			bar.Add(1)
			mu.Unlock()
		})
	}
	wp.StopWait()

	return &Model{
		featureBands: slices.Clone(featureBands),
		classes:      classes,
		trees:        trees,
	}, nil
}

// checkSchema fails when a feature band or the class property appears in
// no sample at all.
func checkSchema(data []samples.Sample, classProperty string, featureBands []string) error {
	for _, name := range append([]string{classProperty}, featureBands...) {
		found := false
		for _, s := range data {
			if _, ok := s.Properties[name]; ok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: property %q is in no training sample", raster.ErrSchemaMismatch, name)
		}
	}
	return nil
}

func buildTrainingSet(data []samples.Sample, classProperty string, featureBands []string) (trainingSet, []float64, error) {
	var (
		rows   [][]float64
		labels []float64
	)
	for _, s := range data {
		label, ok := s.Value(classProperty)
		if !ok || math.IsInf(label, 0) || label != math.Trunc(label) {
			continue
		}
		row := make([]float64, len(featureBands))
		for f, name := range featureBands {
			v, ok := s.Value(name)
			if !ok || math.IsInf(v, 0) {
				row = nil
				break
			}
			row[f] = v
		}
		if row == nil {
			continue
		}
		rows = append(rows, row)
		labels = append(labels, label)
	}

	classes := slices.Clone(labels)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	if len(classes) < 2 {
		return trainingSet{}, nil, fmt.Errorf("%w: %d valid samples cover %d class(es)", raster.ErrInsufficientSamples, len(rows), len(classes))
	}

	set := trainingSet{rows: rows, labels: make([]int, len(labels)), classes: len(classes)}
	for i, l := range labels {
		set.labels[i], _ = slices.BinarySearch(classes, l)
	}
	return set, classes, nil
}
