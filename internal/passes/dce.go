package passes

import (
	"github.com/gantry-go/gantry/internal/domtree"
	"github.com/gantry-go/gantry/internal/flowgraph"
	"github.com/gantry-go/gantry/internal/ir"
)

// DCE removes pure instructions whose results nothing uses. Liveness is
// rooted at the instructions that must stay: branches, terminators, and
// anything with a side effect or a trap site. Their operands are marked live
// transitively; everything unmarked and pure is unlinked from the layout.
func DCE(f *ir.Function) {
	live := make([]bool, f.NumValues()+1)
	var stack []ir.Value

	mark := func(v ir.Value) {
		v = f.ResolveAlias(v)
		if !live[v] {
			live[v] = true
			stack = append(stack, v)
		}
	}

	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
			if mustKeep(f.InstData(i).Opcode) {
				for _, a := range f.InstArgs(i) {
					mark(a)
				}
			}
		}
	}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		kind, inst, _, _ := f.ValueDef(v)
		if kind == ir.ValueDefResult {
			for _, a := range f.InstArgs(inst) {
				mark(a)
			}
		}
	}

	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		for i := f.Layout.FirstInst(b); i.Valid(); {
			next := f.Layout.NextInst(i)
			if !mustKeep(f.InstData(i).Opcode) {
				if v := f.Results[i]; !v.Valid() || !live[f.ResolveAlias(v)] {
					f.Layout.RemoveInst(i)
				}
			}
			i = next
		}
	}
}

func mustKeep(op ir.Opcode) bool {
	return op.HasSideEffects() || op.IsBranch() || op.IsTerminator() || op.CanTrap()
}

// EliminateUnreachableCode drops every layout block the entry cannot reach
// according to the dominator tree, and rebuilds the flow graph when anything
// was dropped. The dominator tree itself is left stale; the caller recomputes
// it before the next pass that needs one.
func EliminateUnreachableCode(f *ir.Function, cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree) {
	removed := false
	for b := f.Layout.FirstBlock(); b.Valid(); {
		next := f.Layout.NextBlock(b)
		if !dt.IsReachable(b) {
			for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.FirstInst(b) {
				f.Layout.RemoveInst(i)
			}
			f.Layout.RemoveBlock(b)
			removed = true
		}
		b = next
	}
	if removed {
		cfg.Compute(f)
		dt.Invalidate()
	}
}
