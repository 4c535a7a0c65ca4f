package ir

import (
	"fmt"
	"strings"
)

// functionPrinter renders a Function in the text format understood by the
// reader package.
type functionPrinter struct {
	f *Function
}

// String implements fmt.Stringer.
func (p functionPrinter) String() string {
	f := p.f
	var b strings.Builder
	fmt.Fprintf(&b, "function %%%s%s {\n", f.Name, f.Sig)
	for ss := StackSlot(1); int(ss) < len(f.StackSlots); ss++ {
		fmt.Fprintf(&b, "    %s = stack_slot %d\n", ss, f.StackSlots[ss].Size)
	}
	for fr := FuncRef(1); int(fr) < len(f.ExtFuncs); fr++ {
		d := &f.ExtFuncs[fr]
		fmt.Fprintf(&b, "    %s = func %%%s%s\n", fr, d.Name, d.Sig)
	}
	for jt := JumpTable(1); int(jt) < len(f.JumpTables); jt++ {
		targets := f.JumpTables[jt].Targets()
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = t.String()
		}
		fmt.Fprintf(&b, "    %s = jump_table [%s]\n", jt, strings.Join(names, ", "))
	}

	first := true
	for blk := f.Layout.FirstBlock(); blk.Valid(); blk = f.Layout.NextBlock(blk) {
		if !first {
			b.WriteByte('\n')
		}
		first = false
		b.WriteString(blk.String())
		if params := f.BlockParams(blk); len(params) > 0 {
			b.WriteByte('(')
			for i, v := range params {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s: %s", v, f.ValueType(v))
			}
			b.WriteByte(')')
		}
		b.WriteString(":\n")
		for i := f.Layout.FirstInst(blk); i.Valid(); i = f.Layout.NextInst(i) {
			b.WriteString("    ")
			b.WriteString(formatInst(f, i))
			b.WriteByte('\n')
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func formatValues(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func formatDest(dest Block, args []Value) string {
	if len(args) == 0 {
		return dest.String()
	}
	return fmt.Sprintf("%s(%s)", dest, formatValues(args))
}

func formatInst(f *Function, i Inst) string {
	d := f.InstData(i)
	args := f.InstArgs(i)
	res := ""
	if r := f.Results[i]; r.Valid() {
		res = r.String() + " = "
	}
	switch d.Opcode {
	case OpcodeIconst:
		return fmt.Sprintf("%s%s.%s %d", res, d.Opcode, d.Typ, d.Imm)
	case OpcodeFconst:
		return fmt.Sprintf("%s%s.%s 0x%016x", res, d.Opcode, d.Typ, uint64(d.Imm))
	case OpcodeIadd, OpcodeIsub, OpcodeImul, OpcodeBand, OpcodeBor, OpcodeBxor,
		OpcodeFadd, OpcodeFsub, OpcodeFmul, OpcodeFdiv:
		return fmt.Sprintf("%s%s.%s %s", res, d.Opcode, d.Typ, formatValues(args))
	case OpcodeIcmp:
		return fmt.Sprintf("%s%s.%s %s %s", res, d.Opcode, d.Typ, d.IntCC, formatValues(args))
	case OpcodeFcmp:
		return fmt.Sprintf("%s%s.%s %s %s", res, d.Opcode, d.Typ, d.FloatCC, formatValues(args))
	case OpcodeSelect:
		return fmt.Sprintf("%s%s.%s %s", res, d.Opcode, d.Typ, formatValues(args))
	case OpcodeJump, OpcodeFallthrough:
		return fmt.Sprintf("%s %s", d.Opcode, formatDest(d.Dest, args))
	case OpcodeBrz, OpcodeBrnz:
		return fmt.Sprintf("%s %s, %s", d.Opcode, args[0], formatDest(d.Dest, args[1:]))
	case OpcodeBrTable:
		return fmt.Sprintf("%s %s, %s", d.Opcode, args[0], d.Table)
	case OpcodeCall:
		return fmt.Sprintf("%s%s %s(%s)", res, d.Opcode, d.FnRef, formatValues(args))
	case OpcodeReturn:
		if len(args) == 0 {
			return d.Opcode.String()
		}
		return fmt.Sprintf("%s %s", d.Opcode, formatValues(args))
	case OpcodeTrap:
		return fmt.Sprintf("%s %s", d.Opcode, d.Trap)
	case OpcodeCopy, OpcodeFill:
		return fmt.Sprintf("%s%s.%s %s", res, d.Opcode, d.Typ, args[0])
	case OpcodeRegmove:
		return fmt.Sprintf("%s %s, r%d -> r%d", d.Opcode, args[0], d.SrcReg, d.DstReg)
	case OpcodeSpill:
		return fmt.Sprintf("%s%s.%s %s, %s", res, d.Opcode, d.Typ, args[0], d.Slot)
	case OpcodeAdjustSpDown, OpcodeAdjustSpUp:
		return fmt.Sprintf("%s %d", d.Opcode, d.Imm)
	case OpcodeNop:
		return d.Opcode.String()
	}
	return fmt.Sprintf("%s ???", d.Opcode)
}

// FormatInst renders one instruction in the text format.
func FormatInst(f *Function, i Inst) string { return formatInst(f, i) }
