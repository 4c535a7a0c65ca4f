package passes

import (
	"github.com/gantry-go/gantry/internal/flowgraph"
	"github.com/gantry-go/gantry/internal/ir"
)

const (
	canonicalNaN32 = 0x7fc00000
	canonicalNaN64 = 0x7ff8000000000000
)

func canonicalNaNBits(t ir.Type) uint64 {
	if t == ir.TypeF32 {
		return canonicalNaN32
	}
	return canonicalNaN64
}

// CanonicalizeNaNs rewrites every float arithmetic result so that a NaN it
// produces continues as the single canonical quiet NaN bit pattern. Neither
// target has a float conditional move, so each result is routed through a
// branch diamond: the defining block tests the result against itself with an
// unordered compare, a NaN detours through a block materializing the
// canonical pattern, and both sides meet in a continuation block whose
// parameter replaces the original result everywhere downstream.
//
// The pass rebuilds the flow graph before returning; the dominator tree and
// loop analysis are stale after it.
func CanonicalizeNaNs(f *ir.Function, cfg *flowgraph.ControlFlowGraph) {
	bld := ir.NewBuilder(f)
	changed := false
	for blk := f.Layout.FirstBlock(); blk.Valid(); {
		rewrote := false
		for i := f.Layout.FirstInst(blk); i.Valid(); i = f.Layout.NextInst(i) {
			switch f.InstData(i).Opcode {
			case ir.OpcodeFadd, ir.OpcodeFsub, ir.OpcodeFmul, ir.OpcodeFdiv:
			default:
				continue
			}
			blk = splitForNaNCheck(f, bld, blk, i)
			changed, rewrote = true, true
			break
		}
		if !rewrote {
			blk = f.Layout.NextBlock(blk)
		}
	}
	if changed {
		cfg.Compute(f)
	}
}

// splitForNaNCheck wraps the float arithmetic instruction i, which lives in
// blk, in a NaN check diamond. Returns the continuation block holding the
// instructions that followed i, where scanning resumes.
func splitForNaNCheck(f *ir.Function, bld *ir.Builder, blk ir.Block, i ir.Inst) ir.Block {
	v := f.Results[i]
	t := f.InstData(i).Typ

	cont := f.MakeBlock()
	p := f.AppendBlockParam(cont, t)
	nan := f.MakeBlock()

	// Move everything after the definition into the continuation.
	for j := f.Layout.NextInst(i); j.Valid(); j = f.Layout.NextInst(i) {
		f.Layout.RemoveInst(j)
		f.Layout.AppendInst(j, cont)
	}
	// All existing uses read the merged value. The check instructions built
	// below are the only remaining readers of the raw result.
	replaceUses(f, v, p)

	f.Layout.InsertBlockAfter(cont, blk)
	f.Layout.AppendBlock(nan)

	bld.SetBlock(blk)
	isNaN := bld.Fcmp(ir.FloatCCUno, t, v, v)
	bld.Brnz(isNaN, nan)
	bld.Jump(cont, v)

	bld.SetBlock(nan)
	q := bld.Fconst(t, canonicalNaNBits(t))
	bld.Jump(cont, q)
	return cont
}

// replaceUses rewrites every instruction argument resolving to old so it
// reads new instead.
func replaceUses(f *ir.Function, old, new ir.Value) {
	for i := ir.Inst(1); int(i) <= f.NumInsts(); i++ {
		args := f.InstArgs(i)
		for n, a := range args {
			if f.ResolveAlias(a) == old {
				args[n] = new
			}
		}
	}
}
