package amd64

import (
	"fmt"

	"github.com/gantry-go/gantry/internal/binemit"
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// enc writes encoded bytes to a sink, or only counts them when the sink is
// nil. Sizing runs the same emitter bodies as emission through this type, so
// the size a recipe reports and the bytes it writes cannot drift apart. The
// emitters guard every offset dependent field behind emitting(), writing
// zeros while counting; field widths never depend on the offsets themselves.
type enc struct {
	sink  binemit.CodeSink
	start uint32 // absolute offset of the instruction; emission only
	n     uint32
}

func (e *enc) emitting() bool { return e.sink != nil }

func (e *enc) put(bs ...byte) {
	if e.sink != nil {
		for _, b := range bs {
			e.sink.Put1(b)
		}
	}
	e.n += uint32(len(bs))
}

func (e *enc) d32(v uint32) {
	if e.sink != nil {
		e.sink.Put4(v)
	}
	e.n += 4
}

func (e *enc) d64(v uint64) {
	if e.sink != nil {
		e.sink.Put8(v)
	}
	e.n += 8
}

// rex emits a REX prefix when operand size, extended registers or force ask
// for one. reg extends the ModRM reg field, rm the rm field.
func (e *enc) rex(w bool, reg, rm ir.RegUnit, force bool) {
	b := byte(0x40)
	if w {
		b |= 0x08
	}
	if isExt(reg) {
		b |= 0x04
	}
	if isExt(rm) {
		b |= 0x01
	}
	if b != 0x40 || force {
		e.put(b)
	}
}

func modrm(mod, reg, rm byte) byte { return mod<<6 | (reg&7)<<3 | rm&7 }

func modrmRR(reg, rm ir.RegUnit) byte { return modrm(3, hwReg(reg), hwReg(rm)) }

func sib(scale, index, base byte) byte { return scale<<6 | (index&7)<<3 | base&7 }

func ssePrefix(t ir.Type) byte {
	if t == ir.TypeF32 {
		return 0xf3
	}
	return 0xf2
}

// movRR copies between integer registers.
func (e *enc) movRR(w bool, src, dst ir.RegUnit) {
	e.rex(w, src, dst, false)
	e.put(0x89, modrmRR(src, dst))
}

// movAps copies between float registers.
func (e *enc) movAps(src, dst ir.RegUnit) {
	e.rex(false, dst, src, false)
	e.put(0x0f, 0x28, modrmRR(dst, src))
}

// memSpDisp writes the ModRM, SIB and displacement of an [rsp+off] operand.
func (e *enc) memSpDisp(reg ir.RegUnit, off int32) {
	if off >= -128 && off <= 127 {
		e.put(modrm(1, hwReg(reg), 4), 0x24, byte(off))
	} else {
		e.put(modrm(2, hwReg(reg), 4), 0x24)
		e.d32(uint32(off))
	}
}

// loadSlot loads slot into dst.
func (e *enc) loadSlot(f *ir.Function, t ir.Type, slot ir.StackSlot, dst ir.RegUnit) {
	off := f.StackSlots[slot].Offset
	if t.IsFloat() {
		e.put(ssePrefix(t))
		e.rex(false, dst, 0, false)
		e.put(0x0f, 0x10)
		e.memSpDisp(dst, off)
	} else {
		e.rex(t == ir.TypeI64, dst, 0, false)
		e.put(0x8b)
		e.memSpDisp(dst, off)
	}
}

// storeSlot stores src into slot.
func (e *enc) storeSlot(f *ir.Function, t ir.Type, src ir.RegUnit, slot ir.StackSlot) {
	off := f.StackSlots[slot].Offset
	if t.IsFloat() {
		e.put(ssePrefix(t))
		e.rex(false, src, 0, false)
		e.put(0x0f, 0x11)
		e.memSpDisp(src, off)
	} else {
		e.rex(t == ir.TypeI64, src, 0, false)
		e.put(0x89)
		e.memSpDisp(src, off)
	}
}

// regOf returns the register currently holding v.
func regOf(f *ir.Function, divert *regalloc.RegDiversions, v ir.Value) ir.RegUnit {
	if r := divert.Reg(f, v); r != ir.RegUnitInvalid {
		return r
	}
	panic("BUG: " + v.String() + " is not in a register")
}

// resultReg returns the register assigned to i's result.
func resultReg(f *ir.Function, i ir.Inst) ir.RegUnit {
	loc := f.Locations[f.Results[i]]
	if loc.Kind != ir.ValueLocReg {
		panic("BUG: result of " + i.String() + " is not in a register")
	}
	return loc.Reg
}

type emitFn func(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions)

// sizeOf adapts an emitter into a size calculation by running it without a
// sink.
func sizeOf(emit emitFn) isa.SizeCalc {
	return func(f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) uint32 {
		var e enc
		emit(&e, f, i, divert)
		return e.n
	}
}

var emitters [numRecipes]emitFn

func init() {
	emitters = [numRecipes]emitFn{
		recipeStub:     func(*enc, *ir.Function, ir.Inst, *regalloc.RegDiversions) {},
		recipeRr:       emitRr,
		recipeCmp:      emitCmp,
		recipeFrr:      emitFrr,
		recipeFcmp:     emitFcmp,
		recipeSelect:   emitSelect,
		recipeCopy:     emitCopy,
		recipeRegmove:  emitRegmove,
		recipeIconst:   emitIconst,
		recipeFconst:   emitFconst,
		recipeJmpb:     emitJmpb,
		recipeJmpd:     emitJmpd,
		recipeBrb:      emitBrb,
		recipeBrd:      emitBrd,
		recipeBrTable:  emitBrTable,
		recipeCall:     emitCall,
		recipeRet:      emitRet,
		recipeTrap:     emitTrap,
		recipeSpill:    emitSpill,
		recipeFill:     emitFill,
		recipeAdjustSp: emitAdjustSp,
	}
}

// EmitInst implements isa.TargetISA. Every instruction self checks its
// emitted byte count against ByteSize, so a sizing bug aborts loudly instead
// of corrupting the layout.
func (t *target) EmitInst(f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions, sink binemit.CodeSink) {
	encoding := f.Encodings[i]
	if !encoding.IsLegal() {
		panic("BUG: emitting unencoded instruction " + ir.FormatInst(f, i))
	}
	e := enc{sink: sink, start: sink.Offset()}
	emitters[encoding.Recipe](&e, f, i, divert)
	if want := t.encInfo.ByteSize(encoding, f, i, divert); e.n != want {
		panic(fmt.Sprintf("BUG: %s emitted %d bytes, sized %d", recipeNames[encoding.Recipe], e.n, want))
	}
}

// emitRr handles the two operand integer ALU forms. The hardware ops write
// into their first operand, so the result register is loaded with the first
// argument and then combined with the second; a subtraction whose result
// register holds the subtrahend stages it through the scratch register first.
func emitRr(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	args := f.InstArgs(i)
	a, b := regOf(f, divert, args[0]), regOf(f, divert, args[1])
	r := resultReg(f, i)
	w := data.Typ == ir.TypeI64
	bits := f.Encodings[i].Bits

	if r == b && r != a {
		if data.Opcode == ir.OpcodeIsub {
			e.movRR(w, b, scratchInt)
			b = scratchInt
		} else {
			a, b = b, a
		}
	}
	if r != a {
		e.movRR(w, a, r)
	}
	if bits > 0xff {
		// two byte opcode, reg field is the destination
		e.rex(w, r, b, false)
		e.put(byte(bits>>8), byte(bits), modrmRR(r, b))
	} else {
		e.rex(w, b, r, false)
		e.put(byte(bits), modrmRR(b, r))
	}
}

// emitCmp lowers icmp as cmp, setcc, movzx.
func emitCmp(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	args := f.InstArgs(i)
	a, b := regOf(f, divert, args[0]), regOf(f, divert, args[1])
	r := resultReg(f, i)
	cc := byte(f.Encodings[i].Bits)

	e.rex(data.Typ == ir.TypeI64, b, a, false)
	e.put(0x39, modrmRR(b, a))
	// setcc wants a REX to reach sil/dil instead of the legacy high bytes
	e.rex(false, 0, r, hwReg(r) >= 4)
	e.put(0x0f, 0x90|cc, modrm(3, 0, hwReg(r)))
	// movzx widens the flag byte, clearing the rest of the register
	e.rex(false, r, r, hwReg(r) >= 4)
	e.put(0x0f, 0xb6, modrmRR(r, r))
}

// emitFrr handles the two operand SSE arithmetic forms, cracked like emitRr.
func emitFrr(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	args := f.InstArgs(i)
	a, b := regOf(f, divert, args[0]), regOf(f, divert, args[1])
	r := resultReg(f, i)

	if r == b && r != a {
		if data.Opcode == ir.OpcodeFsub || data.Opcode == ir.OpcodeFdiv {
			e.movAps(b, scratchF)
			b = scratchF
		} else {
			a, b = b, a
		}
	}
	if r != a {
		e.movAps(a, r)
	}
	e.put(ssePrefix(data.Typ))
	e.rex(false, r, b, false)
	e.put(0x0f, byte(f.Encodings[i].Bits), modrmRR(r, b))
}

// emitFcmp compares through the float scratch register: cmpss/cmpsd leaves an
// all ones or all zero mask, which a movq and an and reduce to 1 or 0.
func emitFcmp(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	args := f.InstArgs(i)
	a, b := regOf(f, divert, args[0]), regOf(f, divert, args[1])
	r := resultReg(f, i)
	bits := f.Encodings[i].Bits
	if bits&fcmpSwap != 0 {
		a, b = b, a
	}

	e.movAps(a, scratchF)
	e.put(ssePrefix(data.Typ))
	e.rex(false, scratchF, b, false)
	e.put(0x0f, 0xc2, modrmRR(scratchF, b), byte(bits))
	// movq r64, xmm
	e.put(0x66)
	e.rex(true, scratchF, r, false)
	e.put(0x0f, 0x7e, modrmRR(scratchF, r))
	// and r32, 1
	e.rex(false, 0, r, false)
	e.put(0x83, modrm(3, 4, hwReg(r)), 0x01)
}

// emitSelect tests the condition first; the plain moves below preserve the
// flags for the cmov.
func emitSelect(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	args := f.InstArgs(i)
	c := regOf(f, divert, args[0])
	rx, ry := regOf(f, divert, args[1]), regOf(f, divert, args[2])
	r := resultReg(f, i)
	w := data.Typ == ir.TypeI64

	e.rex(f.ValueType(args[0]) == ir.TypeI64, c, c, false)
	e.put(0x85, modrmRR(c, c))
	if r == rx {
		// x is already in place; a zero condition replaces it with y
		e.rex(w, r, ry, false)
		e.put(0x0f, 0x44, modrmRR(r, ry))
	} else {
		if r != ry {
			e.movRR(w, ry, r)
		}
		e.rex(w, r, rx, false)
		e.put(0x0f, 0x45, modrmRR(r, rx))
	}
}

func emitCopy(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	a := regOf(f, divert, f.InstArgs(i)[0])
	r := resultReg(f, i)
	if a == r {
		return
	}
	if data.Typ.IsFloat() {
		e.movAps(a, r)
	} else {
		e.movRR(data.Typ == ir.TypeI64, a, r)
	}
}

func emitRegmove(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	data := f.InstData(i)
	if data.Typ.IsFloat() {
		e.movAps(data.SrcReg, data.DstReg)
	} else {
		e.movRR(data.Typ == ir.TypeI64, data.SrcReg, data.DstReg)
	}
}

func emitIconst(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	data := f.InstData(i)
	r := resultReg(f, i)
	imm := data.Imm
	switch {
	case data.Typ == ir.TypeI32:
		e.rex(false, 0, r, false)
		e.put(0xb8 | hwReg(r)&7)
		e.d32(uint32(imm))
	case imm == int64(int32(imm)):
		e.rex(true, 0, r, false)
		e.put(0xc7, modrm(3, 0, hwReg(r)))
		e.d32(uint32(imm))
	default:
		e.rex(true, 0, r, false)
		e.put(0xb8 | hwReg(r)&7)
		e.d64(uint64(imm))
	}
}

// emitFconst loads the interned pool entry rip relative. The pool lands
// behind the code, so the displacement is known once relaxation has fixed the
// layout.
func emitFconst(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	data := f.InstData(i)
	r := resultReg(f, i)
	size := uint32(8)
	if isExt(r) {
		size++
	}
	var disp uint32
	if e.emitting() {
		disp = f.ConstPool.Offset(data.Const) - (e.start + size)
	}
	e.put(ssePrefix(data.Typ))
	e.rex(false, r, 0, false)
	e.put(0x0f, 0x10, modrm(0, hwReg(r), 5))
	e.d32(disp)
}

func emitJmpb(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	dest := f.Offsets.Get(f.InstData(i).Dest)
	e.put(0xeb, byte(int32(dest)-int32(e.start+2)))
}

func emitJmpd(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	dest := f.Offsets.Get(f.InstData(i).Dest)
	e.put(0xe9)
	e.d32(dest - (e.start + 5))
}

// emitBrb is test plus a short jcc. The test always carries a REX prefix so
// the recipe's size stays fixed for every register.
func emitBrb(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	c := regOf(f, divert, f.InstArgs(i)[0])
	e.rex(data.Typ == ir.TypeI64, c, c, true)
	e.put(0x85, modrmRR(c, c))
	dest := f.Offsets.Get(data.Dest)
	e.put(0x70|byte(f.Encodings[i].Bits), byte(int32(dest)-int32(e.start+5)))
}

func emitBrd(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	c := regOf(f, divert, f.InstArgs(i)[0])
	e.rex(data.Typ == ir.TypeI64, c, c, true)
	e.put(0x85, modrmRR(c, c))
	e.put(0x0f, 0x80|byte(f.Encodings[i].Bits))
	dest := f.Offsets.Get(data.Dest)
	e.d32(dest - (e.start + 9))
}

// emitBrTable bounds checks the index, loads the self relative entry and
// jumps through it. An out of range index falls through past the sequence.
func emitBrTable(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	idx := regOf(f, divert, f.InstArgs(i)[0])

	// cmp idx, entry count
	e.rex(data.Typ == ir.TypeI64, 0, idx, false)
	e.put(0x81, modrm(3, 7, hwReg(idx)))
	e.d32(uint32(f.JumpTables[data.Table].Len()))
	// jae past the remaining 17 bytes
	e.put(0x73, 17)
	// lea r10, [rip + table]
	var disp uint32
	if e.emitting() {
		disp = f.JTOffsets.Get(data.Table) - (e.start + e.n + 7)
	}
	e.put(0x4c, 0x8d, modrm(0, hwReg(scratchInt), 5))
	e.d32(disp)
	// movsxd r11, dword [r10 + idx*4]
	rx := byte(0x4d)
	if isExt(idx) {
		rx |= 0x02
	}
	e.put(rx, 0x63, modrm(0, hwReg(scratchInt2), 4), sib(2, hwReg(idx), hwReg(scratchInt)))
	// add r10, r11
	e.put(0x4d, 0x01, modrmRR(scratchInt2, scratchInt))
	// jmp r10
	e.put(0x41, 0xff, modrm(3, 4, hwReg(scratchInt)))
}

func emitCall(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	for _, m := range callArgMoves(f, i, divert) {
		e.abiMove(f, m)
	}
	e.put(0xe8)
	if e.emitting() {
		e.sink.Reloc(binemit.RelocX86CallPCRel4, f.ExtFuncs[data.FnRef].Name, -4)
	}
	e.d32(0)
	if e.emitting() {
		e.sink.CallSite(ir.OpcodeCall, f.SrcLocs[i])
	}
	if res := f.Results[i]; res.Valid() {
		r := resultReg(f, i)
		if t := f.ValueType(res); t.IsFloat() {
			if r != floatBank {
				e.movAps(floatBank, r)
			}
		} else if r != regRAX {
			e.movRR(t == ir.TypeI64, regRAX, r)
		}
	}
}

func emitRet(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	if args := f.InstArgs(i); len(args) == 1 {
		t := f.ValueType(args[0])
		r := regOf(f, divert, args[0])
		if t.IsFloat() {
			if r != floatBank {
				e.movAps(r, floatBank)
			}
		} else if r != regRAX {
			e.movRR(t == ir.TypeI64, r, regRAX)
		}
	}
	e.put(0xc3)
}

func emitTrap(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	if e.emitting() {
		e.sink.Trap(f.InstData(i).Trap, f.SrcLocs[i])
	}
	e.put(0x0f, 0x0b)
}

func emitSpill(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	a := regOf(f, divert, f.InstArgs(i)[0])
	e.storeSlot(f, data.Typ, a, data.Slot)
}

func emitFill(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	data := f.InstData(i)
	a := f.ResolveAlias(f.InstArgs(i)[0])
	slot := data.Slot
	if loc := f.Locations[a]; loc.Kind == ir.ValueLocStack {
		slot = loc.Slot
	}
	if !slot.Valid() {
		panic("BUG: fill of " + a.String() + " has no stack slot")
	}
	e.loadSlot(f, data.Typ, slot, resultReg(f, i))
}

func emitAdjustSp(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	digit := byte(f.Encodings[i].Bits)
	imm := f.InstData(i).Imm
	if imm >= -128 && imm <= 127 {
		e.put(0x48, 0x83, modrm(3, digit, 4), byte(imm))
	} else {
		e.put(0x48, 0x81, modrm(3, digit, 4))
		e.d32(uint32(imm))
	}
}
