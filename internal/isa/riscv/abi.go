package riscv

import (
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// Calling convention of generated code: integer arguments travel in a0
// through a7 and float arguments in fa0 through fa7, by class in argument
// order. A single result comes back in a0 or fa0. Callees named by
// relocation are expected to preserve the caller's other live registers;
// that contract sits with the embedder resolving the symbols.
var (
	intArgRegs = []ir.RegUnit{
		regA0, regA0 + 1, regA0 + 2, regA0 + 3,
		regA0 + 4, regA0 + 5, regA0 + 6, regA0 + 7,
	}
	floatArgRegs = []ir.RegUnit{
		floatBank + 10, floatBank + 11, floatBank + 12, floatBank + 13,
		floatBank + 14, floatBank + 15, floatBank + 16, floatBank + 17,
	}
)

// abiMove stages one argument into its ABI register. src is the register
// currently holding the value, or RegUnitInvalid for a value living in slot.
type abiMove struct {
	dst, src ir.RegUnit
	slot     ir.StackSlot
	typ      ir.Type
}

func (e *enc) abiMove(f *ir.Function, m abiMove) {
	if m.src == ir.RegUnitInvalid {
		e.loadSlot(f, m.typ, m.slot, m.dst)
		return
	}
	if m.typ.IsFloat() {
		e.fmv(m.typ, hwReg(m.src), hwReg(m.dst))
	} else {
		e.mv(hwReg(m.src), hwReg(m.dst))
	}
}

// callArgMoves resolves the parallel move of call arguments into their ABI
// registers. Moves are ordered so no source is overwritten before it is
// read; a cycle is broken by parking one source in the scratch register of
// its class. The result depends only on the diversion state, so sizing and
// emission see the same sequence.
func callArgMoves(f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) []abiMove {
	args := f.InstArgs(i)
	pending := make([]abiMove, 0, len(args))
	ints, floats := 0, 0
	for _, a := range args {
		a = f.ResolveAlias(a)
		t := f.ValueType(a)
		var dst ir.RegUnit
		if t.IsFloat() {
			dst = floatArgRegs[floats]
			floats++
		} else {
			dst = intArgRegs[ints]
			ints++
		}
		if r := divert.Reg(f, a); r != ir.RegUnitInvalid {
			if r != dst {
				pending = append(pending, abiMove{dst: dst, src: r, typ: t})
			}
		} else if loc := f.Locations[a]; loc.Kind == ir.ValueLocStack {
			pending = append(pending, abiMove{dst: dst, src: ir.RegUnitInvalid, slot: loc.Slot, typ: t})
		} else {
			panic("BUG: call argument " + a.String() + " has no location")
		}
	}

	out := make([]abiMove, 0, len(pending))
	for len(pending) > 0 {
		ready := -1
		for n := range pending {
			blocked := false
			for k := range pending {
				if k != n && pending[k].src == pending[n].dst {
					blocked = true
					break
				}
			}
			if !blocked {
				ready = n
				break
			}
		}
		if ready >= 0 {
			out = append(out, pending[ready])
			pending = append(pending[:ready], pending[ready+1:]...)
			continue
		}
		sc := scratchInt
		if pending[0].typ.IsFloat() {
			sc = scratchF
		}
		out = append(out, abiMove{dst: sc, src: pending[0].src, typ: pending[0].typ})
		old := pending[0].src
		for k := range pending {
			if pending[k].src == old {
				pending[k].src = sc
			}
		}
	}
	return out
}

// PrologueEpilogue implements isa.TargetISA. It assigns every stack slot a
// frame offset, rounds the frame to the 16 byte stack alignment, and
// brackets the body with adjust_sp instructions addressing slots as
// [sp+offset]. The whole frame must stay within the 12 bit addi immediate.
func (t *target) PrologueEpilogue(f *ir.Function) error {
	var offset uint32
	for s := 1; s < len(f.StackSlots); s++ {
		slot := &f.StackSlots[s]
		slot.Offset = int32(offset)
		offset += (slot.Size + 7) &^ 7
	}
	f.FrameSize = (offset + 15) &^ 15
	if f.FrameSize == 0 {
		return nil
	}
	if f.FrameSize > 2032 {
		return ErrFrameTooLarge
	}

	entry := f.Entry()
	first := f.Layout.FirstInst(entry)
	down := f.MakeInst(ir.InstructionData{
		Opcode: ir.OpcodeAdjustSpDown,
		Imm:    int64(f.FrameSize),
	})
	f.Layout.InsertInstBefore(down, first)
	f.SrcLocs[down] = f.SrcLocs[first]
	f.Encodings[down] = ir.Encoding{Recipe: recipeAdjustSp}

	for b := f.Layout.FirstBlock(); b != ir.BlockInvalid; b = f.Layout.NextBlock(b) {
		last := f.Layout.LastInst(b)
		if f.InstData(last).Opcode != ir.OpcodeReturn {
			continue
		}
		up := f.MakeInst(ir.InstructionData{
			Opcode: ir.OpcodeAdjustSpUp,
			Imm:    int64(f.FrameSize),
		})
		f.Layout.InsertInstBefore(up, last)
		f.SrcLocs[up] = f.SrcLocs[last]
		f.Encodings[up] = ir.Encoding{Recipe: recipeAdjustSp}
	}
	return nil
}
