package tree

import (
	"math"
	"math/rand/v2"
)

// node is one entry of the flat tree. Leaves have left == -1.
type node struct {
	left, right int
	feature     int
	threshold   float64
	nanLeft     bool
	weight      float64
	impurity    float64
	nSamples    int
	value       []float64
}

type split struct {
	feature   int
	threshold float64
	nanLeft   bool
	childRisk float64
	wl, wr    float64
	impL      float64
	impR      float64
	lc, rc    []float64
}

// builder grows one tree depth first over segments of the presorted orders.
// After a split, the samples of a node occupy order[f][s:e] for every feature f.
type builder struct {
	t        *DecisionTreeClassifier
	d        *Data
	y        []int
	w        []float64
	k        int
	impurity impurityFunc

	order    [][]int32
	goLeft   []bool
	buf      []int32
	features []int
	rng      *rand.Rand

	nodes     []node
	rootRisk  float64
	rootTotal float64

	// scratch class counts
	lc, rc, tc, nc, tl, tr []float64
}

func newBuilder(t *DecisionTreeClassifier, d *Data, y []int, w []float64, k int, imp impurityFunc) *builder {
	b := &builder{
		t: t, d: d, y: y, w: w, k: k, impurity: imp,
		goLeft:   make([]bool, d.n),
		features: make([]int, d.p),
		rng:      rand.New(rand.NewPCG(t.randomState, t.randomState)),
	}
	for j := range b.features {
		b.features[j] = j
	}
	b.order = make([][]int32, d.p)
	for j, ord := range d.order {
		if w == nil {
			b.order[j] = append([]int32(nil), ord...)
			continue
		}
		kept := make([]int32, 0, len(ord))
		for _, i := range ord {
			if w[i] > 0 {
				kept = append(kept, i)
			}
		}
		b.order[j] = kept
	}
	b.buf = make([]int32, len(b.order[0]))
	for _, s := range []*[]float64{&b.lc, &b.rc, &b.tc, &b.nc, &b.tl, &b.tr} {
		*s = make([]float64, k)
	}
	return b
}

func (b *builder) weight(i int32) float64 {
	if b.w == nil {
		return 1
	}
	return b.w[i]
}

func (b *builder) run() []node {
	m := len(b.order[0])
	counts := make([]float64, b.k)
	total := 0.0
	for _, i := range b.order[0] {
		w := b.weight(i)
		counts[b.y[i]] += w
		total += w
	}
	b.rootTotal = total
	b.rootRisk = total * b.impurity(counts, total)
	b.grow(0, m, 0, counts, total)
	return b.nodes
}

func (b *builder) grow(s, e, depth int, counts []float64, total float64) int {
	imp := b.impurity(counts, total)
	value := make([]float64, b.k)
	for c := range counts {
		value[c] = counts[c] / total
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, node{
		left: -1, right: -1, feature: -1,
		weight: total, impurity: imp, nSamples: e - s, value: value,
	})

	t := b.t
	if imp <= 1e-12 ||
		(t.maxDepth > 0 && depth >= t.maxDepth) ||
		total < float64(t.minSamplesSplit) ||
		total < 2*float64(t.minSamplesLeaf) {
		return id
	}

	sp, ok := b.bestSplit(s, e, total)
	if !ok {
		return id
	}
	decrease := total*imp - sp.childRisk
	if decrease/b.rootTotal+1e-12 < t.minImpurityDecrease {
		return id
	}
	if t.ccpAlpha > 0 && b.rootRisk > 0 && decrease/b.rootRisk < t.ccpAlpha {
		return id
	}

	nl := b.partition(s, e, sp)
	if nl == 0 || nl == e-s {
		return id
	}
	left := b.grow(s, s+nl, depth+1, sp.lc, sp.wl)
	right := b.grow(s+nl, e, depth+1, sp.rc, sp.wr)

	nd := &b.nodes[id]
	nd.left, nd.right = left, right
	nd.feature, nd.threshold, nd.nanLeft = sp.feature, sp.threshold, sp.nanLeft
	return id
}

// sampleFeatures returns the features examined at one node: all of them, or
// maxFeatures drawn without replacement.
func (b *builder) sampleFeatures() []int {
	p := len(b.features)
	m := b.t.maxFeatures
	if m <= 0 || m >= p {
		return b.features
	}
	for i := 0; i < m; i++ {
		j := i + b.rng.IntN(p-i)
		b.features[i], b.features[j] = b.features[j], b.features[i]
	}
	return b.features[:m]
}

func (b *builder) bestSplit(s, e int, total float64) (split, bool) {
	best := split{feature: -1, childRisk: math.Inf(1)}
	minLeaf := float64(b.t.minSamplesLeaf)

	for _, f := range b.sampleFeatures() {
		ord := b.order[f][s:e]
		col := b.d.col(f)

		m := len(ord)
		clear(b.nc)
		wNaN := 0.0
		for m > 0 && math.IsNaN(col[ord[m-1]]) {
			m--
			w := b.weight(ord[m])
			b.nc[b.y[ord[m]]] += w
			wNaN += w
		}
		if m < 2 {
			continue
		}

		clear(b.tc)
		for _, i := range ord[:m] {
			b.tc[b.y[i]] += b.weight(i)
		}
		wValid := total - wNaN

		clear(b.lc)
		wl := 0.0
		for q := 0; q < m-1; q++ {
			i := ord[q]
			w := b.weight(i)
			b.lc[b.y[i]] += w
			wl += w

			v, next := col[i], col[ord[q+1]]
			if next <= v {
				continue
			}
			for c := range b.rc {
				b.rc[c] = b.tc[c] - b.lc[c]
			}
			wr := wValid - wl

			// missing values go right
			for c := range b.tr {
				b.tr[c] = b.rc[c] + b.nc[c]
			}
			// without missing values here, unseen NaNs follow the heavier child
			b.consider(&best, f, v, next, wNaN == 0 && wl >= wr, b.lc, wl, b.tr, wr+wNaN, minLeaf)

			if wNaN > 0 {
				for c := range b.tl {
					b.tl[c] = b.lc[c] + b.nc[c]
				}
				b.consider(&best, f, v, next, true, b.tl, wl+wNaN, b.rc, wr, minLeaf)
			}
		}
	}
	return best, best.feature >= 0
}

func (b *builder) consider(best *split, f int, v, next float64, nanLeft bool, lc []float64, wl float64, rc []float64, wr, minLeaf float64) {
	if wl < minLeaf || wr < minLeaf {
		return
	}
	impL := b.impurity(lc, wl)
	impR := b.impurity(rc, wr)
	risk := wl*impL + wr*impR
	if risk >= best.childRisk {
		return
	}
	thr := v + (next-v)/2
	if thr >= next {
		thr = v
	}
	best.feature, best.threshold, best.childRisk = f, thr, risk
	best.wl, best.wr, best.impL, best.impR = wl, wr, impL, impR
	best.lc = append(best.lc[:0], lc...)
	best.rc = append(best.rc[:0], rc...)
	best.nanLeft = nanLeft
}

// partition reorders every feature's segment so that samples going left come
// first, keeping the sorted order within each side. It returns the left size.
func (b *builder) partition(s, e int, sp split) int {
	col := b.d.col(sp.feature)
	nl := 0
	for _, i := range b.order[sp.feature][s:e] {
		v := col[i]
		left := v <= sp.threshold
		if math.IsNaN(v) {
			left = sp.nanLeft
		}
		b.goLeft[i] = left
		if left {
			nl++
		}
	}
	for f := range b.order {
		seg := b.order[f][s:e]
		l, r := 0, nl
		for _, i := range seg {
			if b.goLeft[i] {
				b.buf[l] = i
				l++
			} else {
				b.buf[r] = i
				r++
			}
		}
		copy(seg, b.buf[:len(seg)])
	}
	return nl
}

// prune collapses, bottom up, every internal node whose impurity reduction
// per extra leaf, relative to the root, is below alpha.
func prune(nodes []node, id int, rootRisk, alpha float64) (risk float64, leaves int) {
	nd := &nodes[id]
	leafRisk := nd.weight * nd.impurity / rootRisk
	if nd.left < 0 {
		return leafRisk, 1
	}
	rl, ll := prune(nodes, nd.left, rootRisk, alpha)
	rr, lr := prune(nodes, nd.right, rootRisk, alpha)
	sub, n := rl+rr, ll+lr
	if (leafRisk-sub)/float64(n-1) < alpha {
		nd.left, nd.right, nd.feature = -1, -1, -1
		return leafRisk, 1
	}
	return sub, n
}

// compact drops unreachable nodes and renumbers the rest in depth-first order.
func compact(nodes []node) []node {
	out := make([]node, 0, len(nodes))
	var visit func(id int) int
	visit = func(id int) int {
		nd := nodes[id]
		at := len(out)
		out = append(out, nd)
		if nd.left >= 0 {
			l := visit(nd.left)
			r := visit(nd.right)
			out[at].left, out[at].right = l, r
		}
		return at
	}
	visit(0)
	return out
}
