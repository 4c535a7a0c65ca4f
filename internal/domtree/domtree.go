// Package domtree computes the dominator tree of a function's control flow
// graph using the Cooper, Harvey and Kennedy "engineered" algorithm: a reverse
// postorder walk iterated to a fixed point over an intersection of dominator
// chains. It also caches the CFG postorder, which branch relaxation reuses.
package domtree

import (
	"github.com/gantry-go/gantry/internal/flowgraph"
	"github.com/gantry-go/gantry/internal/ir"
)

type visitState byte

const (
	notVisited visitState = iota
	visited
	done
)

// DominatorTree holds immediate dominators and traversal orders for the
// reachable blocks of one function. It is reused across computations.
type DominatorTree struct {
	idom      []ir.Block
	rpoNum    []int32
	postorder []ir.Block
	rpo       []ir.Block
	valid     bool

	state []visitState
	stack []ir.Block
}

// New returns an empty tree.
func New() *DominatorTree { return &DominatorTree{} }

// IsValid reports whether the tree matches the function it was last computed
// from.
func (d *DominatorTree) IsValid() bool { return d.valid }

// Invalidate marks the tree stale.
func (d *DominatorTree) Invalidate() { d.valid = false }

// Compute rebuilds the tree from f and its flow graph.
func (d *DominatorTree) Compute(f *ir.Function, cfg *flowgraph.ControlFlowGraph) {
	n := f.NumBlocks() + 1
	d.idom = resizeBlocks(d.idom, n)
	d.rpoNum = resizeInt32(d.rpoNum, n)
	d.state = resizeStates(d.state, n)
	d.postorder = d.postorder[:0]
	d.rpo = d.rpo[:0]

	entry := f.Layout.Entry()
	if !entry.Valid() {
		d.valid = true
		return
	}

	// Depth first walk collecting the postorder, with an explicit stack.
	d.stack = append(d.stack[:0], entry)
	d.state[entry] = visited
	for len(d.stack) > 0 {
		b := d.stack[len(d.stack)-1]
		if d.state[b] == done {
			d.stack = d.stack[:len(d.stack)-1]
			d.postorder = append(d.postorder, b)
			continue
		}
		d.state[b] = done
		for _, s := range cfg.Succs(b) {
			if d.state[s] == notVisited {
				d.state[s] = visited
				d.stack = append(d.stack, s)
			}
		}
	}

	for i := len(d.postorder) - 1; i >= 0; i-- {
		b := d.postorder[i]
		d.rpoNum[b] = int32(len(d.rpo))
		d.rpo = append(d.rpo, b)
	}

	// Iterate to the fixed point. The entry dominates itself; that sentinel
	// is what terminates intersect's chain walks.
	d.idom[entry] = entry
	for changed := true; changed; {
		changed = false
		for _, b := range d.rpo[1:] {
			var newIdom ir.Block
			for _, p := range cfg.Preds(b) {
				pb := p.Block
				if d.state[pb] != done || !d.idom[pb].Valid() {
					continue
				}
				if !newIdom.Valid() {
					newIdom = pb
				} else {
					newIdom = d.intersect(newIdom, pb)
				}
			}
			if newIdom.Valid() && d.idom[b] != newIdom {
				d.idom[b] = newIdom
				changed = true
			}
		}
	}
	d.valid = true
}

func (d *DominatorTree) intersect(b1, b2 ir.Block) ir.Block {
	for b1 != b2 {
		for d.rpoNum[b1] > d.rpoNum[b2] {
			b1 = d.idom[b1]
		}
		for d.rpoNum[b2] > d.rpoNum[b1] {
			b2 = d.idom[b2]
		}
	}
	return b1
}

// IsReachable reports whether b was reached from the entry in the last
// Compute.
func (d *DominatorTree) IsReachable(b ir.Block) bool {
	return int(b) < len(d.state) && d.state[b] == done
}

// Idom returns the immediate dominator of b, or BlockInvalid for the entry and
// for unreachable blocks.
func (d *DominatorTree) Idom(b ir.Block) ir.Block {
	if !d.IsReachable(b) || d.rpoNum[b] == 0 {
		return ir.BlockInvalid
	}
	return d.idom[b]
}

// Dominates reports whether a dominates b. A block dominates itself. Both
// blocks must be reachable for a true result.
func (d *DominatorTree) Dominates(a, b ir.Block) bool {
	if !d.IsReachable(a) || !d.IsReachable(b) {
		return false
	}
	for d.rpoNum[b] > d.rpoNum[a] {
		b = d.idom[b]
	}
	return a == b
}

// CFGPostorder returns the reachable blocks in postorder. The slice aliases
// tree storage and is valid until the next Compute.
func (d *DominatorTree) CFGPostorder() []ir.Block { return d.postorder }

// ReversePostorder returns the reachable blocks in reverse postorder.
func (d *DominatorTree) ReversePostorder() []ir.Block { return d.rpo }

func resizeBlocks(s []ir.Block, n int) []ir.Block {
	if cap(s) < n {
		return make([]ir.Block, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = ir.BlockInvalid
	}
	return s
}

func resizeInt32(s []int32, n int) []int32 {
	if cap(s) < n {
		return make([]int32, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}

func resizeStates(s []visitState, n int) []visitState {
	if cap(s) < n {
		return make([]visitState, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = notVisited
	}
	return s
}
