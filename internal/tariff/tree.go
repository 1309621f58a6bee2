package tariff

import (
	"github.com/Veraticus/tariff-receipt/internal/model"
)

type node struct {
	parent         *node
	children       []*node
	childWeights   []float64
	path           Path
	level          Level
	weight         float64
	original       float64
	current        float64
	hasCurrent     bool
	directOriginal bool
	directCurrent  bool
}

func (n *node) value(kind Kind) float64 {
	if kind == KindOriginal || !n.hasCurrent {
		return n.original
	}
	return n.current
}

func (n *node) isDirect(kind Kind) bool {
	if kind == KindOriginal {
		return n.directOriginal
	}
	return n.directCurrent
}

// walkDescendants calls fn for every node below n, depth first.
func (n *node) walkDescendants(fn func(*node)) {
	for _, c := range n.children {
		fn(c)
		c.walkDescendants(fn)
	}
}

// average is the weighted mean of the children's values, falling back to
// the plain mean when the children carry no weight.
func (n *node) average(kind Kind) float64 {
	if len(n.children) == 0 {
		return n.value(kind)
	}

	var sum float64
	for i, c := range n.children {
		sum += n.childWeights[i] * c.value(kind)
	}
	return sum
}

// countryTree is the full forest of sections for one country.
type countryTree struct {
	index    map[Path]*node
	iso      string
	sections []*node
}

func buildTree(iso string, sections []model.Section, rates model.RateTable, hs4Weights map[string]float64) *countryTree {
	t := &countryTree{
		iso:   iso,
		index: make(map[Path]*node),
	}
	weighted := len(hs4Weights) > 0

	for _, sec := range sections {
		sn := &node{path: SectionPath(sec.ID), level: LevelSection}
		secRate, _ := rates.SectionRate(sec.ID)

		for _, ch := range sec.Chapters {
			cn := &node{parent: sn, path: ChapterPath(sec.ID, ch.ID), level: LevelChapter}
			chRate, hasChRate := rates.ChapterRate(ch.ID)
			if !hasChRate {
				chRate = secRate
			}

			for _, h := range ch.HS4 {
				hn := &node{parent: cn, path: HS4Path(sec.ID, ch.ID, h.ID), level: LevelHS4, weight: 1}
				if weighted {
					hn.weight = hs4Weights[h.ID]
				}
				if r, ok := rates.HS4Rate(h.ID); ok {
					hn.original = r
				} else {
					hn.original = chRate
				}
				hn.original = clamp(hn.original, 0, 100)
				cn.children = append(cn.children, hn)
				cn.weight += hn.weight
				t.index[hn.path] = hn
			}

			cn.original = clamp(chRate, 0, 100)
			if hasChRate {
				cn.directOriginal = true
			}
			sn.children = append(sn.children, cn)
			sn.weight += cn.weight
			t.index[cn.path] = cn
		}

		sn.original = clamp(secRate, 0, 100)
		if _, ok := rates.SectionRate(sec.ID); ok {
			sn.directOriginal = true
		}
		t.sections = append(t.sections, sn)
		t.index[sn.path] = sn
	}

	for _, sn := range t.sections {
		sn.walkDescendants(cacheChildWeights)
		cacheChildWeights(sn)
	}

	// Parents without an explicit statutory rate take the weighted average
	// of their children, bottom-up.
	for _, sn := range t.sections {
		for _, cn := range sn.children {
			if !cn.directOriginal && len(cn.children) > 0 {
				cn.original = cn.average(KindOriginal)
			}
		}
		if !sn.directOriginal && len(sn.children) > 0 {
			sn.original = sn.average(KindOriginal)
		}
	}

	// Statutory rates loaded from reference data are a baseline, not a user
	// entry.
	for _, n := range t.index {
		n.directOriginal = false
	}

	return t
}

func cacheChildWeights(n *node) {
	n.childWeights = make([]float64, len(n.children))
	if len(n.children) == 0 {
		return
	}

	var total float64
	for _, c := range n.children {
		total += c.weight
	}
	for i, c := range n.children {
		if total > 0 {
			n.childWeights[i] = c.weight / total
		} else {
			n.childWeights[i] = 1 / float64(len(n.children))
		}
	}
}

func (t *countryTree) lookup(level Level, p Path) (*node, bool) {
	k, ok := p.key(level)
	if !ok {
		return nil, false
	}
	n, ok := t.index[k]
	return n, ok
}

// clone deep-copies the tree, preserving structure and parent links.
func (t *countryTree) clone() *countryTree {
	c := &countryTree{
		iso:   t.iso,
		index: make(map[Path]*node, len(t.index)),
	}
	var copyNode func(n, parent *node) *node
	copyNode = func(n, parent *node) *node {
		cp := *n
		cp.parent = parent
		cp.children = make([]*node, len(n.children))
		cp.childWeights = append([]float64(nil), n.childWeights...)
		for i, ch := range n.children {
			cp.children[i] = copyNode(ch, &cp)
		}
		c.index[cp.path] = &cp
		return &cp
	}
	for _, sn := range t.sections {
		c.sections = append(c.sections, copyNode(sn, nil))
	}
	return c
}
