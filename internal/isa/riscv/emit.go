package riscv

import (
	"fmt"
	"math"

	"github.com/gantry-go/gantry/internal/binemit"
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// Base opcode field of each instruction format in use.
const (
	opLoad    = 0x03
	opLoadFp  = 0x07
	opOpImm   = 0x13
	opAuipc   = 0x17
	opOpImm32 = 0x1b
	opStore   = 0x23
	opStoreFp = 0x27
	opOp      = 0x33
	opLui     = 0x37
	opOp32    = 0x3b
	opOpFp    = 0x53
	opBranch  = 0x63
	opJalr    = 0x67
	opJal     = 0x6f
)

const wordEbreak = 0x00100073

// enc writes instruction words to a sink, or only counts them when the sink
// is nil. Sizing runs the same emitter bodies as emission through this type;
// offset dependent immediates are guarded behind emitting() and never change
// an instruction count.
type enc struct {
	sink  binemit.CodeSink
	start uint32 // absolute offset of the instruction; emission only
	n     uint32
}

func (e *enc) emitting() bool { return e.sink != nil }

func (e *enc) word(w uint32) {
	if e.sink != nil {
		e.sink.Put4(w)
	}
	e.n += 4
}

func rWord(op, rd, f3, rs1, rs2, f7 uint32) uint32 {
	return f7<<25 | rs2<<20 | rs1<<15 | f3<<12 | rd<<7 | op
}

func iWord(op, rd, f3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xfff)<<20 | rs1<<15 | f3<<12 | rd<<7 | op
}

func sWord(op, f3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5&0x7f)<<25 | rs2<<20 | rs1<<15 | f3<<12 | (u&0x1f)<<7 | op
}

func bWord(op, f3, rs1, rs2 uint32, off int32) uint32 {
	u := uint32(off)
	return (u>>12&1)<<31 | (u>>5&0x3f)<<25 | rs2<<20 | rs1<<15 | f3<<12 |
		(u>>1&0xf)<<8 | (u>>11&1)<<7 | op
}

func uWord(op, rd, imm20 uint32) uint32 { return imm20<<12 | rd<<7 | op }

func jWord(op, rd uint32, off int32) uint32 {
	u := uint32(off)
	return (u>>20&1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&1)<<20 | (u>>12&0xff)<<12 | rd<<7 | op
}

// widthF3 is the load/store funct3 for t. 32 bit integer loads use lw, whose
// sign extension is the register convention for i32 values.
func widthF3(t ir.Type) uint32 {
	if t == ir.TypeI64 || t == ir.TypeF64 {
		return 3
	}
	return 2
}

// mv copies between integer registers.
func (e *enc) mv(src, dst uint32) { e.word(iWord(opOpImm, dst, 0, src, 0)) }

// fmv copies between float registers via fsgnj with both sources equal.
func (e *enc) fmv(t ir.Type, src, dst uint32) {
	f7 := uint32(0x10)
	if t == ir.TypeF64 {
		f7 = 0x11
	}
	e.word(rWord(opOpFp, dst, 0, src, src, f7))
}

// li materializes imm into rd: addi for 12 bits, lui+addiw for 32, and a
// recursive shift and add expansion beyond that. The expansion length depends
// only on the immediate, so sizing and emission agree.
func (e *enc) li(rd uint32, imm int64) {
	if imm >= -2048 && imm < 2048 {
		e.word(iWord(opOpImm, rd, 0, 0, int32(imm)))
		return
	}
	if imm >= math.MinInt32 && imm <= math.MaxInt32 {
		hi := uint32((imm+0x800)>>12) & 0xfffff
		lo := int32(imm - int64(int32(hi<<12)))
		e.word(uWord(opLui, rd, hi))
		if lo != 0 {
			e.word(iWord(opOpImm32, rd, 0, rd, lo))
		}
		return
	}
	lo := imm << 52 >> 52
	rest := int64(uint64(imm)-uint64(lo)) >> 12
	e.li(rd, rest)
	e.word(iWord(opOpImm, rd, 1, rd, 12)) // slli rd, rd, 12
	if lo != 0 {
		e.word(iWord(opOpImm, rd, 0, rd, int32(lo)))
	}
}

// loadSlot loads slot into dst. Slot offsets fit the 12 bit form because the
// prologue bounds the frame.
func (e *enc) loadSlot(f *ir.Function, t ir.Type, slot ir.StackSlot, dst ir.RegUnit) {
	off := f.StackSlots[slot].Offset
	op := uint32(opLoad)
	if t.IsFloat() {
		op = opLoadFp
	}
	e.word(iWord(op, hwReg(dst), widthF3(t), hwReg(regSP), off))
}

// storeSlot stores src into slot.
func (e *enc) storeSlot(f *ir.Function, t ir.Type, src ir.RegUnit, slot ir.StackSlot) {
	off := f.StackSlots[slot].Offset
	op := uint32(opStore)
	if t.IsFloat() {
		op = opStoreFp
	}
	e.word(sWord(op, widthF3(t), hwReg(regSP), hwReg(src), off))
}

func regOf(f *ir.Function, divert *regalloc.RegDiversions, v ir.Value) ir.RegUnit {
	if r := divert.Reg(f, v); r != ir.RegUnitInvalid {
		return r
	}
	panic("BUG: " + v.String() + " is not in a register")
}

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
		recipeR:        emitR,
		recipeIcmp:     emitIcmp,
		recipeFrr:      emitFrr,
		recipeFcmp:     emitFcmp,
		recipeSelect:   emitSelect,
		recipeMv:       emitMv,
		recipeFmv:      emitMv,
		recipeRegmove:  emitRegmove,
		recipeIconst:   emitIconst,
		recipeFconst:   emitFconst,
		recipeBr:       emitBr,
		recipeJal:      emitJal,
		recipeCall:     emitCall,
		recipeRet:      emitRet,
		recipeTrap:     emitTrap,
		recipeSpill:    emitSpill,
		recipeFill:     emitFill,
		recipeAdjustSp: emitAdjustSp,
	}
}

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

// emitR handles the three operand integer ALU forms. Encoding.Bits packs
// funct7 and funct3; the recipes with funct3 zero are add, sub and mul,
// which switch to their W forms for 32 bit operands.
func emitR(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	args := f.InstArgs(i)
	a, b := regOf(f, divert, args[0]), regOf(f, divert, args[1])
	r := resultReg(f, i)
	bits := uint32(f.Encodings[i].Bits)
	f3, f7 := bits&7, bits>>3

	op := uint32(opOp)
	if data.Typ == ir.TypeI32 && f3 == 0 {
		op = opOp32
	}
	e.word(rWord(op, hwReg(r), f3, hwReg(a), hwReg(b), f7))
}

// emitIcmp lowers a compare to slt/sltu sequences. Both banks hold i32
// values sign extended, which preserves signed and unsigned 32 bit order
// under the 64 bit compares.
func emitIcmp(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	args := f.InstArgs(i)
	a, b := hwReg(regOf(f, divert, args[0])), hwReg(regOf(f, divert, args[1]))
	r := hwReg(resultReg(f, i))
	t5 := hwReg(scratchInt)

	slt := func(rd, rs1, rs2, f3 uint32) { e.word(rWord(opOp, rd, f3, rs1, rs2, 0)) }
	xori1 := func() { e.word(iWord(opOpImm, r, 4, r, 1)) }

	switch cc := ir.IntCC(f.Encodings[i].Bits); cc {
	case ir.IntCCEq:
		e.word(rWord(opOp, t5, 4, a, b, 0)) // xor t5, a, b
		e.word(iWord(opOpImm, r, 3, t5, 1)) // sltiu r, t5, 1
	case ir.IntCCNe:
		e.word(rWord(opOp, t5, 4, a, b, 0))
		slt(r, 0, t5, 3) // sltu r, zero, t5
	case ir.IntCCLtS:
		slt(r, a, b, 2)
	case ir.IntCCGeS:
		slt(r, a, b, 2)
		xori1()
	case ir.IntCCGtS:
		slt(r, b, a, 2)
	case ir.IntCCLeS:
		slt(r, b, a, 2)
		xori1()
	case ir.IntCCLtU:
		slt(r, a, b, 3)
	case ir.IntCCGeU:
		slt(r, a, b, 3)
		xori1()
	case ir.IntCCGtU:
		slt(r, b, a, 3)
	case ir.IntCCLeU:
		slt(r, b, a, 3)
		xori1()
	default:
		panic("BUG: unhandled compare condition " + cc.String())
	}
}

func emitFrr(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	args := f.InstArgs(i)
	a, b := regOf(f, divert, args[0]), regOf(f, divert, args[1])
	r := resultReg(f, i)
	f7 := uint32(f.Encodings[i].Bits)
	if data.Typ == ir.TypeF64 {
		f7 |= 1
	}
	e.word(rWord(opOpFp, hwReg(r), 7, hwReg(a), hwReg(b), f7)) // rounding mode dyn
}

// emitFcmp builds the result from feq and flt. feq is false on NaN and its
// negation true, so eq/ne keep IEEE unordered semantics for free; ord and
// uno test each operand against itself.
func emitFcmp(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	args := f.InstArgs(i)
	a, b := hwReg(regOf(f, divert, args[0])), hwReg(regOf(f, divert, args[1]))
	r := hwReg(resultReg(f, i))
	t5 := hwReg(scratchInt)
	f7 := uint32(0x50)
	if data.Typ == ir.TypeF64 {
		f7 = 0x51
	}

	feq := func(rd, rs1, rs2 uint32) { e.word(rWord(opOpFp, rd, 2, rs1, rs2, f7)) }
	flt := func(rd, rs1, rs2 uint32) { e.word(rWord(opOpFp, rd, 1, rs1, rs2, f7)) }
	xori1 := func() { e.word(iWord(opOpImm, r, 4, r, 1)) }

	switch cc := ir.FloatCC(f.Encodings[i].Bits); cc {
	case ir.FloatCCEq:
		feq(r, a, b)
	case ir.FloatCCNe:
		feq(r, a, b)
		xori1()
	case ir.FloatCCLt:
		flt(r, a, b)
	case ir.FloatCCGt:
		flt(r, b, a)
	case ir.FloatCCOrd:
		feq(r, a, a)
		feq(t5, b, b)
		e.word(rWord(opOp, r, 7, r, t5, 0)) // and r, r, t5
	case ir.FloatCCUno:
		feq(r, a, a)
		feq(t5, b, b)
		e.word(rWord(opOp, r, 7, r, t5, 0))
		xori1()
	default:
		panic("BUG: unhandled compare condition " + cc.String())
	}
}

// emitSelect branches over two moves. The branch reads the condition before
// either move writes the result, so any aliasing between the result and the
// operands is harmless; a self move costs one instruction and keeps the
// recipe size fixed.
func emitSelect(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	args := f.InstArgs(i)
	c := hwReg(regOf(f, divert, args[0]))
	x := hwReg(regOf(f, divert, args[1]))
	y := hwReg(regOf(f, divert, args[2]))
	r := hwReg(resultReg(f, i))

	e.word(bWord(opBranch, 0, c, 0, 12)) // beq c, zero, over the true arm
	e.mv(x, r)
	e.word(jWord(opJal, 0, 8)) // past the false arm
	e.mv(y, r)
}

func emitMv(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	a := regOf(f, divert, f.InstArgs(i)[0])
	r := resultReg(f, i)
	if data.Typ.IsFloat() {
		e.fmv(data.Typ, hwReg(a), hwReg(r))
	} else {
		e.mv(hwReg(a), hwReg(r))
	}
}

func emitRegmove(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	data := f.InstData(i)
	if data.Typ.IsFloat() {
		e.fmv(data.Typ, hwReg(data.SrcReg), hwReg(data.DstReg))
	} else {
		e.mv(hwReg(data.SrcReg), hwReg(data.DstReg))
	}
}

func emitIconst(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	data := f.InstData(i)
	imm := data.Imm
	if data.Typ == ir.TypeI32 {
		// The register convention keeps i32 values sign extended.
		imm = int64(int32(imm))
	}
	e.li(hwReg(resultReg(f, i)), imm)
}

func emitFconst(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	data := f.InstData(i)
	r := resultReg(f, i)
	var delta int32
	if e.emitting() {
		delta = int32(f.ConstPool.Offset(data.Const)) - int32(e.start)
	}
	hi := uint32((delta+0x800)>>12) & 0xfffff
	lo := delta - int32(hi<<12)
	e.word(uWord(opAuipc, hwReg(scratchInt), hi))
	e.word(iWord(opLoadFp, hwReg(r), widthF3(data.Typ), hwReg(scratchInt), lo))
}

func emitBr(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	c := hwReg(regOf(f, divert, f.InstArgs(i)[0]))
	var off int32
	if e.emitting() {
		off = int32(f.Offsets.Get(data.Dest)) - int32(e.start)
	}
	e.word(bWord(opBranch, uint32(f.Encodings[i].Bits), c, 0, off))
}

func emitJal(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	data := f.InstData(i)
	var off int32
	if e.emitting() {
		off = int32(f.Offsets.Get(data.Dest)) - int32(e.start)
	}
	e.word(jWord(opJal, 0, off))
}

// emitCall stages the arguments into their ABI registers, emits the
// auipc+jalr pair covered by one riscv_call relocation, and moves a result
// out of a0 or fa0 when it was assigned elsewhere.
func emitCall(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	data := f.InstData(i)
	for _, m := range callArgMoves(f, i, divert) {
		e.abiMove(f, m)
	}
	if e.emitting() {
		e.sink.Reloc(binemit.RelocRiscvCall, f.ExtFuncs[data.FnRef].Name, 0)
	}
	ra := hwReg(regRA)
	e.word(uWord(opAuipc, ra, 0))
	e.word(iWord(opJalr, ra, 0, ra, 0))
	if e.emitting() {
		e.sink.CallSite(ir.OpcodeCall, f.SrcLocs[i])
	}
	if res := f.Results[i]; res.Valid() {
		t := f.ValueType(res)
		r := resultReg(f, i)
		if t.IsFloat() {
			if r != floatBank+10 {
				e.fmv(t, hwReg(floatBank+10), hwReg(r))
			}
		} else if r != regA0 {
			e.mv(hwReg(regA0), hwReg(r))
		}
	}
}

func emitRet(e *enc, f *ir.Function, i ir.Inst, divert *regalloc.RegDiversions) {
	if args := f.InstArgs(i); len(args) == 1 {
		t := f.ValueType(args[0])
		r := regOf(f, divert, args[0])
		if t.IsFloat() {
			if r != floatBank+10 {
				e.fmv(t, hwReg(r), hwReg(floatBank+10))
			}
		} else if r != regA0 {
			e.mv(hwReg(r), hwReg(regA0))
		}
	}
	e.word(iWord(opJalr, 0, 0, hwReg(regRA), 0))
}

func emitTrap(e *enc, f *ir.Function, i ir.Inst, _ *regalloc.RegDiversions) {
	if e.emitting() {
		e.sink.Trap(f.InstData(i).Trap, f.SrcLocs[i])
	}
	e.word(wordEbreak)
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
	data := f.InstData(i)
	imm := int32(data.Imm)
	if data.Opcode == ir.OpcodeAdjustSpDown {
		imm = -imm
	}
	sp := hwReg(regSP)
	e.word(iWord(opOpImm, sp, 0, sp, imm))
}
