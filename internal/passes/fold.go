package passes

import (
	"github.com/gantry-go/gantry/internal/flowgraph"
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
)

// constValue reports whether v (following aliases) is the result of an
// integer constant and returns the immediate.
func constValue(f *ir.Function, v ir.Value) (int64, bool) {
	v = f.ResolveAlias(v)
	kind, inst, _, _ := f.ValueDef(v)
	if kind != ir.ValueDefResult {
		return 0, false
	}
	d := f.InstData(inst)
	if d.Opcode != ir.OpcodeIconst {
		return 0, false
	}
	return d.Imm, true
}

func foldBinary(op ir.Opcode, t ir.Type, x, y int64) (int64, bool) {
	var r int64
	switch op {
	case ir.OpcodeIadd:
		r = x + y
	case ir.OpcodeIsub:
		r = x - y
	case ir.OpcodeImul:
		r = x * y
	case ir.OpcodeBand:
		r = x & y
	case ir.OpcodeBor:
		r = x | y
	case ir.OpcodeBxor:
		r = x ^ y
	default:
		return 0, false
	}
	if t == ir.TypeI32 {
		r = int64(int32(r))
	}
	return r, true
}

func evalIntCC(cc ir.IntCC, t ir.Type, x, y int64) bool {
	if t == ir.TypeI32 {
		x, y = int64(int32(x)), int64(int32(y))
	}
	ux, uy := uint64(x), uint64(y)
	switch cc {
	case ir.IntCCEq:
		return x == y
	case ir.IntCCNe:
		return x != y
	case ir.IntCCLtS:
		return x < y
	case ir.IntCCGeS:
		return x >= y
	case ir.IntCCGtS:
		return x > y
	case ir.IntCCLeS:
		return x <= y
	case ir.IntCCLtU:
		return ux < uy
	case ir.IntCCGeU:
		return ux >= uy
	case ir.IntCCGtU:
		return ux > uy
	case ir.IntCCLeU:
		return ux <= uy
	}
	panic("BUG: unhandled condition " + cc.String())
}

// intoIconst rewrites i in place into an integer constant with the given
// immediate, keeping its result value.
func intoIconst(f *ir.Function, i ir.Inst, t ir.Type, imm int64) {
	*f.InstData(i) = ir.InstructionData{Opcode: ir.OpcodeIconst, Typ: t, Imm: imm}
}

// Preopt folds integer constant expressions and applies the algebraic
// identities, to a fixed point: a fold can expose another fold one use
// further down. Float arithmetic is never folded, since reproducing the
// target's rounding and NaN behavior at compile time is exactly what the
// NaN canonicalization pass exists to avoid. Simplified instructions keep
// their result as an alias; the pass resolves all aliases before returning.
func Preopt(f *ir.Function) {
	for changed := true; changed; {
		changed = false
		for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
			for i := f.Layout.FirstInst(b); i.Valid(); {
				next := f.Layout.NextInst(i)
				if simplifyInst(f, i) {
					changed = true
				}
				i = next
			}
		}
	}
	f.ResolveAliases()
}

func simplifyInst(f *ir.Function, i ir.Inst) bool {
	d := f.InstData(i)
	switch d.Opcode {
	case ir.OpcodeIadd, ir.OpcodeIsub, ir.OpcodeImul, ir.OpcodeBand, ir.OpcodeBor, ir.OpcodeBxor:
		args := f.InstArgs(i)
		x, y := f.ResolveAlias(args[0]), f.ResolveAlias(args[1])
		cx, xok := constValue(f, x)
		cy, yok := constValue(f, y)
		if xok && yok {
			r, ok := foldBinary(d.Opcode, d.Typ, cx, cy)
			if ok {
				intoIconst(f, i, d.Typ, r)
				return true
			}
		}
		if to, ok := identity(d.Opcode, x, y, cx, xok, cy, yok); ok {
			return aliasAway(f, i, to)
		}
		if d.Opcode == ir.OpcodeBxor && x == y {
			intoIconst(f, i, d.Typ, 0)
			return true
		}
		if d.Opcode == ir.OpcodeImul && ((xok && cx == 0) || (yok && cy == 0)) {
			intoIconst(f, i, d.Typ, 0)
			return true
		}
	case ir.OpcodeIcmp:
		args := f.InstArgs(i)
		cx, xok := constValue(f, args[0])
		cy, yok := constValue(f, args[1])
		if xok && yok {
			var r int64
			if evalIntCC(d.IntCC, d.Typ, cx, cy) {
				r = 1
			}
			intoIconst(f, i, d.Typ, r)
			return true
		}
	case ir.OpcodeSelect:
		args := f.InstArgs(i)
		if c, ok := constValue(f, args[0]); ok {
			if c != 0 {
				return aliasAway(f, i, f.ResolveAlias(args[1]))
			}
			return aliasAway(f, i, f.ResolveAlias(args[2]))
		}
	case ir.OpcodeCopy:
		return aliasAway(f, i, f.ResolveAlias(f.InstArgs(i)[0]))
	}
	return false
}

// identity reports the value an instruction reduces to when one operand is
// the operation's neutral element, or when both operands are the same value
// for the idempotent bitwise operations.
func identity(op ir.Opcode, x, y ir.Value, cx int64, xok bool, cy int64, yok bool) (ir.Value, bool) {
	switch op {
	case ir.OpcodeIadd, ir.OpcodeBor, ir.OpcodeBxor:
		if yok && cy == 0 {
			return x, true
		}
		if xok && cx == 0 {
			return y, true
		}
	case ir.OpcodeIsub:
		if yok && cy == 0 {
			return x, true
		}
	case ir.OpcodeImul:
		if yok && cy == 1 {
			return x, true
		}
		if xok && cx == 1 {
			return y, true
		}
	}
	if (op == ir.OpcodeBand || op == ir.OpcodeBor) && x == y {
		return x, true
	}
	return ir.ValueInvalid, false
}

// aliasAway replaces i's result with to and unlinks i from the layout.
func aliasAway(f *ir.Function, i ir.Inst, to ir.Value) bool {
	v := f.Results[i]
	if !v.Valid() || v == to {
		return false
	}
	f.ChangeToAlias(v, to)
	f.Layout.RemoveInst(i)
	return true
}

// Postopt replaces conditional branches whose condition is a known constant:
// a branch always taken becomes a jump and truncates its block there, a
// branch never taken becomes a nop. It runs on legalized code, so every
// rewritten instruction gets a fresh encoding from the target. The flow graph
// is recomputed for every block that changed.
func Postopt(f *ir.Function, cfg *flowgraph.ControlFlowGraph, target isa.TargetISA) {
	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		changed := false
		for i := f.Layout.FirstInst(b); i.Valid(); {
			next := f.Layout.NextInst(i)
			d := f.InstData(i)
			if d.Opcode == ir.OpcodeBrz || d.Opcode == ir.OpcodeBrnz {
				if c, ok := constValue(f, f.InstArgs(i)[0]); ok {
					taken := (c != 0) == (d.Opcode == ir.OpcodeBrnz)
					if taken {
						args := append([]ir.Value(nil), f.BranchArgs(i)...)
						dest := d.Dest
						*d = ir.InstructionData{
							Opcode: ir.OpcodeJump,
							Dest:   dest,
							Args:   f.Pool.Make(args...),
						}
						// The jump terminates the block; whatever followed
						// the branch is unreachable.
						for j := f.Layout.LastInst(b); j != i; j = f.Layout.LastInst(b) {
							f.Layout.RemoveInst(j)
						}
						next = ir.InstInvalid
					} else {
						d.ChangeToNop()
					}
					f.Encodings[i] = target.LegalEncodings(f, d, d.Typ)[0]
					changed = true
				}
			}
			i = next
		}
		if changed {
			cfg.RecomputeBlock(f, b)
		}
	}
}
