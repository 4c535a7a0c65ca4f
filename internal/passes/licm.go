package passes

import (
	"github.com/gantry-go/gantry/internal/domtree"
	"github.com/gantry-go/gantry/internal/flowgraph"
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/loops"
)

// LICM hoists pure loop-invariant instructions out of each natural loop, into
// the loop's unique predecessor outside it, just above that block's first
// branch. Loops entered from more than one outside block are left alone:
// building a preheader would mean rewriting branches mid-pipeline. Hoisting
// runs to a fixed point per loop, so an invariant chain moves as a whole.
//
// The block structure is untouched, so the analyses stay valid.
//
// Hoisting moves a definition out of the loop body while its uses stay
// inside, which the baseline allocator only accepts when the value reaches
// those uses as a block argument. Until a fuller allocator lands, programs
// that survive the whole pipeline see this pass as a no-op; it is exercised
// directly by its own tests.
func LICM(f *ir.Function, cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree, la *loops.LoopAnalysis) {
	for n := 0; n < la.NumLoops(); n++ {
		l := la.Loop(n)
		pre := uniqueEntryPred(cfg, dt, l)
		if !pre.Valid() {
			continue
		}
		ip := firstBranch(f, pre)
		if !ip.Valid() {
			continue
		}
		for changed := true; changed; {
			changed = false
			for _, blk := range l.Blocks() {
				for i := f.Layout.FirstInst(blk); i.Valid(); {
					next := f.Layout.NextInst(i)
					if hoistable(f, l, pre, ip, i) {
						f.Layout.RemoveInst(i)
						f.Layout.InsertInstBefore(i, ip)
						changed = true
					}
					i = next
				}
			}
		}
	}
}

// uniqueEntryPred returns the single reachable block outside the loop that
// branches to its header, or BlockInvalid when the loop has no such unique
// entry.
func uniqueEntryPred(cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree, l *loops.Loop) ir.Block {
	pre := ir.BlockInvalid
	for _, p := range cfg.Preds(l.Header) {
		if l.Contains(p.Block) {
			continue // back edge
		}
		if pre.Valid() && pre != p.Block {
			return ir.BlockInvalid
		}
		pre = p.Block
	}
	if pre.Valid() && !dt.IsReachable(pre) {
		return ir.BlockInvalid
	}
	return pre
}

// firstBranch returns the first branch or terminator of b, the point hoisted
// instructions are inserted before.
func firstBranch(f *ir.Function, b ir.Block) ir.Inst {
	for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
		op := f.InstData(i).Opcode
		if op.IsBranch() || op.IsTerminator() {
			return i
		}
	}
	return ir.InstInvalid
}

// hoistable reports whether i is pure and every operand is defined outside
// the loop and available at the insertion point.
func hoistable(f *ir.Function, l *loops.Loop, pre ir.Block, ip ir.Inst, i ir.Inst) bool {
	op := f.InstData(i).Opcode
	if op.HasSideEffects() || op.IsBranch() || op.IsTerminator() || op.CanTrap() || !op.HasResult() {
		return false
	}
	for _, a := range f.InstArgs(i) {
		a = f.ResolveAlias(a)
		kind, inst, blk, _ := f.ValueDef(a)
		if kind == ir.ValueDefResult {
			blk = f.Layout.InstBlock(inst)
		}
		if l.Contains(blk) {
			return false
		}
		// A definition inside the entry block must precede the insertion
		// point; anything defined elsewhere already dominates it.
		if blk == pre && kind == ir.ValueDefResult && !precedes(f, inst, ip) {
			return false
		}
	}
	return true
}

func precedes(f *ir.Function, i, than ir.Inst) bool {
	for j := f.Layout.PrevInst(than); j.Valid(); j = f.Layout.PrevInst(j) {
		if j == i {
			return true
		}
	}
	return false
}
