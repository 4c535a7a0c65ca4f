// Package flowgraph computes the control flow graph of a function: which
// blocks can transfer to which, and through which branch instruction. The
// graph is a reusable scratch structure; passes that change branches must
// recompute it, either whole or block by block.
package flowgraph

import "github.com/gantry-go/gantry/internal/ir"

// BlockPredecessor names one incoming edge: the predecessor block and the
// branch instruction inside it that takes the edge.
type BlockPredecessor struct {
	Block ir.Block
	Inst  ir.Inst
}

// ControlFlowGraph holds predecessor and successor lists per block.
type ControlFlowGraph struct {
	nodes []node
	valid bool
}

type node struct {
	preds []BlockPredecessor
	succs []ir.Block
}

// New returns an empty graph.
func New() *ControlFlowGraph { return &ControlFlowGraph{} }

// IsValid reports whether the graph matches the function it was last computed
// from. The compilation context flips this off when a pass mutates branches
// without recomputing.
func (c *ControlFlowGraph) IsValid() bool { return c.valid }

// Invalidate marks the graph stale.
func (c *ControlFlowGraph) Invalidate() { c.valid = false }

// Compute rebuilds the whole graph from f's layout.
func (c *ControlFlowGraph) Compute(f *ir.Function) {
	n := f.NumBlocks() + 1
	if cap(c.nodes) < n {
		c.nodes = make([]node, n)
	} else {
		c.nodes = c.nodes[:n]
		for i := range c.nodes {
			c.nodes[i].preds = c.nodes[i].preds[:0]
			c.nodes[i].succs = c.nodes[i].succs[:0]
		}
	}
	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		c.computeBlock(f, b)
	}
	c.valid = true
}

// RecomputeBlock updates the edges leaving b after its branches changed. Edges
// into b from elsewhere are left alone.
func (c *ControlFlowGraph) RecomputeBlock(f *ir.Function, b ir.Block) {
	c.ensure(int(b))
	// Detach b from its old successors' predecessor lists.
	for _, s := range c.nodes[b].succs {
		preds := c.nodes[s].preds[:0]
		for _, p := range c.nodes[s].preds {
			if p.Block != b {
				preds = append(preds, p)
			}
		}
		c.nodes[s].preds = preds
	}
	c.nodes[b].succs = c.nodes[b].succs[:0]
	if f.Layout.IsBlockInserted(b) {
		c.computeBlock(f, b)
	}
}

func (c *ControlFlowGraph) computeBlock(f *ir.Function, b ir.Block) {
	for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
		d := f.InstData(i)
		switch d.BranchKind() {
		case ir.BranchKindSingleDest:
			c.addEdge(b, i, d.Dest)
		case ir.BranchKindTable:
			for _, target := range f.JumpTables[d.Table].Targets() {
				c.addEdge(b, i, target)
			}
		}
	}
}

func (c *ControlFlowGraph) addEdge(from ir.Block, inst ir.Inst, to ir.Block) {
	c.ensure(int(to))
	c.ensure(int(from))
	fn := &c.nodes[from]
	found := false
	for _, s := range fn.succs {
		if s == to {
			found = true
			break
		}
	}
	if !found {
		fn.succs = append(fn.succs, to)
	}
	tn := &c.nodes[to]
	for _, p := range tn.preds {
		if p.Block == from && p.Inst == inst {
			return
		}
	}
	tn.preds = append(tn.preds, BlockPredecessor{Block: from, Inst: inst})
}

func (c *ControlFlowGraph) ensure(idx int) {
	for len(c.nodes) <= idx {
		c.nodes = append(c.nodes, node{})
	}
}

// Preds returns the incoming edges of b. The slice aliases graph storage.
func (c *ControlFlowGraph) Preds(b ir.Block) []BlockPredecessor {
	if int(b) >= len(c.nodes) {
		return nil
	}
	return c.nodes[b].preds
}

// Succs returns the successor blocks of b. The slice aliases graph storage.
func (c *ControlFlowGraph) Succs(b ir.Block) []ir.Block {
	if int(b) >= len(c.nodes) {
		return nil
	}
	return c.nodes[b].succs
}

// NumPreds returns how many edges enter b.
func (c *ControlFlowGraph) NumPreds(b ir.Block) int { return len(c.Preds(b)) }

// NumSuccs returns how many distinct blocks b can transfer to.
func (c *ControlFlowGraph) NumSuccs(b ir.Block) int { return len(c.Succs(b)) }
