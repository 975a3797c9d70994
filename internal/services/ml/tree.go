package ml

import (
	"math"
	"sync"
)

// Node is a tree node. Internal nodes send x <= Threshold (and missing
// values) to Left; leaves carry an already shrunk margin contribution.
type Node struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// Tree is a flat regression tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node
}

func (t *Tree) predict(row []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		v := row[n.Feature]
		if math.IsNaN(v) || v <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Leaf {
			return 0
		}
		l, r := walk(n.Left), walk(n.Right)
		if r > l {
			l = r
		}
		return l + 1
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

type candidate struct {
	feature int
	bin     int
	gain    float64
	ok      bool
}

// treeBuilder grows one depth-wise tree from gradient statistics.
type treeBuilder struct {
	data    *binnedMatrix
	grad    []float64
	hess    []float64
	cols    []int
	params  Params
	workers int
	tree    *Tree
}

func (b *treeBuilder) build(rows []int) Tree {
	b.tree = &Tree{}
	b.grow(rows, 0)
	return *b.tree
}

func (b *treeBuilder) leafValue(g, h float64) float64 {
	return -g / (h + b.params.Lambda) * b.params.LearningRate
}

func (b *treeBuilder) grow(rows []int, depth int) int {
	var g, h float64
	for _, i := range rows {
		g += b.grad[i]
		h += b.hess[i]
	}
	idx := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{Leaf: true, Value: b.leafValue(g, h)})

	if depth >= b.params.MaxDepth || len(rows) < 2 || h < 2*b.params.MinChildWeight {
		return idx
	}
	best := b.bestSplit(rows, g, h)
	if !best.ok {
		return idx
	}

	col := b.data.bins[best.feature]
	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, i := range rows {
		if int(col[i]) <= best.bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Nodes[idx] = Node{
		Feature:   best.feature,
		Threshold: b.data.cuts[best.feature][best.bin],
		Left:      l,
		Right:     r,
	}
	return idx
}

// bestSplit scans per-feature histograms concurrently. Each worker owns a
// disjoint slice of candidates, and the winner is chosen in column order, so
// the result does not depend on the worker count.
func (b *treeBuilder) bestSplit(rows []int, g, h float64) candidate {
	found := make([]candidate, len(b.cols))
	workers := b.workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(b.cols) {
		workers = len(b.cols)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for k := w; k < len(b.cols); k += workers {
				found[k] = b.scanFeature(b.cols[k], rows, g, h)
			}
		}(w)
	}
	wg.Wait()

	var best candidate
	for _, c := range found {
		if c.ok && (!best.ok || c.gain > best.gain) {
			best = c
		}
	}
	return best
}

func (b *treeBuilder) scanFeature(f int, rows []int, g, h float64) candidate {
	nb := len(b.data.cuts[f])
	if nb < 2 {
		return candidate{}
	}
	hg := make([]float64, nb)
	hh := make([]float64, nb)
	col := b.data.bins[f]
	for _, i := range rows {
		hg[col[i]] += b.grad[i]
		hh[col[i]] += b.hess[i]
	}

	lambda := b.params.Lambda
	mcw := b.params.MinChildWeight
	parent := g * g / (h + lambda)
	best := candidate{feature: f}
	var gl, hl float64
	for k := 0; k < nb-1; k++ {
		gl += hg[k]
		hl += hh[k]
		gr, hr := g-gl, h-hl
		if hl < mcw || hr < mcw {
			continue
		}
		gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
		if gain > 1e-12 && gain > best.gain {
			best.bin, best.gain, best.ok = k, gain, true
		}
	}
	return best
}
