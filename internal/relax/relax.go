// Package relax computes the final code layout of a compiled function. It
// folds redundant jump chains, turns jumps to the next block into zero byte
// fallthroughs, and then iterates over the layout re-picking branch encodings
// until every branch reaches its destination and no block offset moves. The
// iteration terminates because re-picking only ever grows an instruction, so
// offsets are monotonically non-decreasing across passes.
//
// Once the code region is stable the jump tables and the constant pool are
// placed behind it and the size breakdown is returned as a binemit.CodeInfo.
package relax

import (
	"fmt"

	"github.com/gantry-go/gantry/internal/binemit"
	"github.com/gantry-go/gantry/internal/domtree"
	"github.com/gantry-go/gantry/internal/flowgraph"
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// Branches relaxes f in place and returns the final size breakdown. Every
// instruction must already carry a legal encoding; cfg and dt must describe f.
// The only data-driven failure at this stage is a branch no encoding can
// cover, and that aborts rather than returning: it means the target ISA
// cannot express the function at all, not that the input was invalid.
func Branches(f *ir.Function, cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree, target isa.TargetISA) (binemit.CodeInfo, error) {
	if FoldRedundantJumps(f, cfg, dt) {
		// Folding rewrites edges and may drop blocks; the tree is stale.
		dt.Compute(f, cfg)
	}
	convertFallthroughs(f, target)

	info := target.EncodingInfo()
	var divert regalloc.RegDiversions

	// Initial offset pass: sum every instruction under its currently assigned
	// encoding, replaying diversions exactly as emission will.
	f.Offsets.Resize(f.NumBlocks())
	offset := uint32(0)
	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		f.Offsets.Set(b, offset)
		divert.Clear()
		for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
			offset += info.ByteSize(f.Encodings[i], f, i, &divert)
			divert.Apply(f, f.InstData(i))
		}
	}

	// Iterate until a pass is a pure sum: no offset overwritten, no encoding
	// re-picked. Destination offsets read during a pass may be one pass stale
	// for forward branches; the re-pass sees them settle.
	for changed := true; changed; {
		changed = false
		offset = 0
		for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
			if f.Offsets.Get(b) != offset {
				f.Offsets.Set(b, offset)
				changed = true
			}
			divert.Clear()
			for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
				d := f.InstData(i)
				size := info.ByteSize(f.Encodings[i], f, i, &divert)
				if r, ok := info.BranchRange(f.Encodings[i]); ok &&
					d.BranchKind() == ir.BranchKindSingleDest && d.Opcode != ir.OpcodeFallthrough {
					if dest := f.Offsets.Get(d.Dest); !r.Contains(offset, dest) {
						size = reselectBranch(f, info, target, i, &divert, offset, dest)
						changed = true
					}
				}
				offset += size
				divert.Apply(f, d)
			}
		}
	}

	codeSize := offset
	for jt := ir.JumpTable(1); int(jt) < len(f.JumpTables); jt++ {
		f.JTOffsets.Set(jt, offset)
		offset += uint32(f.JumpTables[jt].Len()) * 4
	}
	jtSize := offset - codeSize
	f.ConstPool.ClearOffsets()
	for c := ir.Constant(1); int(c) <= f.ConstPool.Len(); c++ {
		f.ConstPool.SetOffset(c, offset)
		offset += uint32(len(f.ConstPool.Data(c)))
	}

	return binemit.CodeInfo{
		CodeSize:       codeSize,
		JumpTablesSize: jtSize,
		RodataSize:     offset - codeSize - jtSize,
		TotalSize:      offset,
	}, nil
}

// reselectBranch picks a new encoding for a branch whose current one cannot
// reach its destination: the smallest legal encoding that covers the distance
// and keeps the exact operand constraints the register allocator already
// satisfied. Encodings with different constraint shapes are never substituted
// here, since there is no allocation context left to re-validate the operands.
func reselectBranch(f *ir.Function, info *isa.EncodingInfo, target isa.TargetISA,
	i ir.Inst, divert *regalloc.RegDiversions, from, to uint32) uint32 {
	d := f.InstData(i)
	cons := info.OperandConstraints(f.Encodings[i])

	best := ir.Encoding{}
	bestSize := ^uint32(0)
	for _, cand := range target.LegalEncodings(f, d, d.Typ) {
		r, ok := info.BranchRange(cand)
		if !ok || !r.Contains(from, to) {
			continue
		}
		if info.OperandConstraints(cand) != cons {
			continue
		}
		if size := info.ByteSize(cand, f, i, divert); size < bestSize {
			best, bestSize = cand, size
		}
	}
	if !best.IsLegal() {
		panic(fmt.Sprintf(
			"FATAL: %s has no %s encoding reaching offset %#x from %#x: inserting a "+
				"branch-over-jump sequence would need a block split, which is unsafe "+
				"under active register diversions",
			ir.FormatInst(f, i), target.Name(), to, from))
	}
	f.Encodings[i] = best
	return bestSize
}

// FoldRedundantJumps redirects branches that land on a block containing only
// an unconditional jump, retargeting them past the intermediate block. Blocks
// are visited in CFG postorder so a chain folds from the tail and one sweep
// settles it; running the fold again right away finds nothing. Orphaned
// intermediate blocks are removed from the layout. Reports whether anything
// was folded, in which case the dominator tree no longer matches f.
func FoldRedundantJumps(f *ir.Function, cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree) bool {
	folded := false
	for _, b := range dt.CFGPostorder() {
		if !f.Layout.IsBlockInserted(b) {
			continue // orphaned by an earlier fold
		}
		term := f.Layout.LastInst(b)
		if !term.Valid() {
			continue
		}
		// A conditional branch just before the terminator takes an edge too.
		changed := foldBranch(f, cfg, term)
		if prev := f.Layout.PrevInst(term); prev.Valid() {
			changed = foldBranch(f, cfg, prev) || changed
		}
		if !changed {
			continue
		}
		folded = true
		cfg.RecomputeBlock(f, b)
	}
	return folded
}

// foldBranch rewrites one branch if its destination is a jump-only block.
// Returns whether the branch changed; the caller recomputes the flow graph.
func foldBranch(f *ir.Function, cfg *flowgraph.ControlFlowGraph, branch ir.Inst) bool {
	d := f.InstData(branch)
	if d.BranchKind() != ir.BranchKindSingleDest || d.Opcode == ir.OpcodeFallthrough {
		return false
	}
	inter := d.Dest
	mid := f.Layout.FirstInst(inter)
	if !mid.Valid() || mid == branch || f.InstData(mid).Opcode != ir.OpcodeJump {
		return false
	}
	final := f.InstData(mid).Dest
	if final == inter {
		return false // a jump-to-self block folds to nothing
	}

	// Splice the argument lists: where the intermediate jump forwards one of
	// its own block's parameters, substitute what the folding branch passed
	// into that parameter slot; anything else already dominates the branch
	// site and passes through unchanged.
	all := f.InstArgs(branch)
	branchArgs := f.BranchArgs(branch)
	fixed := all[:len(all)-len(branchArgs)]
	midArgs := f.BranchArgs(mid)
	newArgs := make([]ir.Value, 0, len(fixed)+len(midArgs))
	newArgs = append(newArgs, fixed...)
	for _, a := range midArgs {
		if n, ok := f.ValueIsParamOf(a, inter); ok {
			a = branchArgs[n]
		}
		newArgs = append(newArgs, a)
	}

	// One atomic rewrite: destination and argument list switch together.
	d.Args = f.Pool.Make(newArgs...)
	d.ChangeBranchDestination(final)

	// If nothing reaches the intermediate block anymore, take it out of the
	// layout entirely. The entry block stays even when unreferenced.
	home := f.Layout.InstBlock(branch)
	cfg.RecomputeBlock(f, home)
	if inter != f.Entry() && cfg.NumPreds(inter) == 0 {
		for i := f.Layout.FirstInst(inter); i.Valid(); i = f.Layout.FirstInst(inter) {
			f.Layout.RemoveInst(i)
		}
		f.Layout.RemoveBlock(inter)
		cfg.RecomputeBlock(f, inter)
	}
	return true
}

// convertFallthroughs turns every jump whose destination is the next block in
// layout order into a fallthrough, which emits no bytes. A fallthrough that is
// already present must agree with the layout; anything else is a bug in
// whatever pass reordered the blocks.
func convertFallthroughs(f *ir.Function, target isa.TargetISA) {
	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		next := f.Layout.NextBlock(b)
		term := f.Layout.LastInst(b)
		if !term.Valid() {
			continue
		}
		d := f.InstData(term)
		switch d.Opcode {
		case ir.OpcodeJump:
			if d.Dest != next {
				continue
			}
			d.ChangeToFallthrough()
			encs := target.LegalEncodings(f, d, d.Typ)
			if len(encs) == 0 {
				panic("BUG: target has no fallthrough encoding")
			}
			f.Encodings[term] = encs[0]
		case ir.OpcodeFallthrough:
			if d.Dest != next {
				panic(fmt.Sprintf("BUG: fallthrough in %s targets %s, layout successor is %s",
					b, d.Dest, next))
			}
		}
	}
}
