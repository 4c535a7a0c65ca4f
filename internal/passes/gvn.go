package passes

import (
	"github.com/gantry-go/gantry/internal/domtree"
	"github.com/gantry-go/gantry/internal/ir"
)

type gvnKey struct {
	op   ir.Opcode
	typ  ir.Type
	bits uint64
	args [3]ir.Value
}

type gvnDef struct {
	value ir.Value
	block ir.Block
}

// gvnInstKey builds the numbering key for i, or false when i's opcode is not
// value-numbered. Only pure, total instructions participate; anything with a
// side effect, a trap, or no result keeps its identity.
func gvnInstKey(f *ir.Function, i ir.Inst) (gvnKey, bool) {
	d := f.InstData(i)
	k := gvnKey{op: d.Opcode, typ: d.Typ}
	switch d.Opcode {
	case ir.OpcodeIconst, ir.OpcodeFconst:
		k.bits = uint64(d.Imm)
	case ir.OpcodeIadd, ir.OpcodeIsub, ir.OpcodeImul,
		ir.OpcodeBand, ir.OpcodeBor, ir.OpcodeBxor,
		ir.OpcodeFadd, ir.OpcodeFsub, ir.OpcodeFmul, ir.OpcodeFdiv,
		ir.OpcodeSelect, ir.OpcodeCopy:
	case ir.OpcodeIcmp:
		k.bits = uint64(d.IntCC)
	case ir.OpcodeFcmp:
		k.bits = uint64(d.FloatCC)
	default:
		return gvnKey{}, false
	}
	for n, a := range f.InstArgs(i) {
		k.args[n] = f.ResolveAlias(a)
	}
	return k, true
}

// SimpleGVN deduplicates pure instructions: when two compute the same
// operation over the same operands and the earlier one's block dominates the
// later one's, the later result becomes an alias and its instruction leaves
// the layout. Blocks are visited in reverse postorder so a dominating
// definition is always seen before the instructions it can replace.
func SimpleGVN(f *ir.Function, dt *domtree.DominatorTree) {
	seen := make(map[gvnKey]gvnDef)
	for _, blk := range dt.ReversePostorder() {
		for i := f.Layout.FirstInst(blk); i.Valid(); {
			next := f.Layout.NextInst(i)
			if k, ok := gvnInstKey(f, i); ok {
				if prev, dup := seen[k]; dup && dt.Dominates(prev.block, blk) {
					f.ChangeToAlias(f.Results[i], prev.value)
					f.Layout.RemoveInst(i)
				} else {
					seen[k] = gvnDef{value: f.Results[i], block: blk}
				}
			}
			i = next
		}
	}
	f.ResolveAliases()
}
