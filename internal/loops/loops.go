// Package loops finds natural loops: headers by back edge detection on the
// dominator tree, members by a reverse flow walk from each back edge. The
// result feeds loop invariant code motion.
package loops

import (
	"github.com/gantry-go/gantry/internal/domtree"
	"github.com/gantry-go/gantry/internal/flowgraph"
	"github.com/gantry-go/gantry/internal/ir"
)

// Loop is one natural loop. Blocks with multiple back edges to the same header
// are merged into a single loop.
type Loop struct {
	Header ir.Block
	// members is indexed by block; it includes the header.
	members []bool
	// blocks lists the members in discovery order, header first.
	blocks []ir.Block
}

// Contains reports whether b belongs to the loop.
func (l *Loop) Contains(b ir.Block) bool {
	return int(b) < len(l.members) && l.members[b]
}

// Blocks returns the member blocks, header first.
func (l *Loop) Blocks() []ir.Block { return l.blocks }

// LoopAnalysis holds every natural loop of a function, discovered in reverse
// postorder of headers, so outer loops come before the loops they contain.
type LoopAnalysis struct {
	loops []Loop
	depth []int32
	valid bool

	stack []ir.Block
}

// New returns an empty analysis.
func New() *LoopAnalysis { return &LoopAnalysis{} }

// IsValid reports whether the analysis matches the function it was computed
// from.
func (la *LoopAnalysis) IsValid() bool { return la.valid }

// Invalidate marks the analysis stale.
func (la *LoopAnalysis) Invalidate() { la.valid = false }

// NumLoops returns the number of loops found.
func (la *LoopAnalysis) NumLoops() int { return len(la.loops) }

// Loop returns the ith loop, outermost first.
func (la *LoopAnalysis) Loop(i int) *Loop { return &la.loops[i] }

// Depth returns how many loops contain b; 0 means b is not in any loop.
func (la *LoopAnalysis) Depth(b ir.Block) int {
	if int(b) >= len(la.depth) {
		return 0
	}
	return int(la.depth[b])
}

// Compute rebuilds the analysis.
func (la *LoopAnalysis) Compute(f *ir.Function, cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree) {
	la.loops = la.loops[:0]
	n := f.NumBlocks() + 1
	if cap(la.depth) < n {
		la.depth = make([]int32, n)
	} else {
		la.depth = la.depth[:n]
		for i := range la.depth {
			la.depth[i] = 0
		}
	}

	for _, header := range dt.ReversePostorder() {
		var backPreds []ir.Block
		for _, p := range cfg.Preds(header) {
			if dt.Dominates(header, p.Block) {
				backPreds = append(backPreds, p.Block)
			}
		}
		if len(backPreds) == 0 {
			continue
		}
		la.loops = append(la.loops, Loop{Header: header})
		l := &la.loops[len(la.loops)-1]
		l.members = make([]bool, n)
		l.members[header] = true
		l.blocks = append(l.blocks, header)

		// Walk predecessors backwards from the back edges; everything that
		// reaches a back edge without passing the header is in the loop.
		la.stack = la.stack[:0]
		for _, p := range backPreds {
			if !l.members[p] {
				l.members[p] = true
				la.stack = append(la.stack, p)
			}
		}
		for len(la.stack) > 0 {
			b := la.stack[len(la.stack)-1]
			la.stack = la.stack[:len(la.stack)-1]
			l.blocks = append(l.blocks, b)
			for _, p := range cfg.Preds(b) {
				if dt.IsReachable(p.Block) && !l.members[p.Block] {
					l.members[p.Block] = true
					la.stack = append(la.stack, p.Block)
				}
			}
		}
		for _, b := range l.blocks {
			la.depth[b]++
		}
	}
	la.valid = true
}
