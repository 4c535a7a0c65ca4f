package amd64

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gantry-go/gantry/internal/binemit"
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
	"github.com/gantry-go/gantry/internal/settings"
)

func newTestTarget() isa.TargetISA {
	return New(settings.NewBuilder().Finish())
}

// pickEnc assigns inst the n-th legal encoding.
func pickEnc(t *testing.T, tgt isa.TargetISA, f *ir.Function, inst ir.Inst, n int) {
	t.Helper()
	d := f.InstData(inst)
	encs := tgt.LegalEncodings(f, d, d.Typ)
	require.Greater(t, len(encs), n, "legal encodings of %s", ir.FormatInst(f, inst))
	f.Encodings[inst] = encs[n]
}

// emitOne encodes inst into a fresh section. EmitInst self checks the byte
// count against ByteSize, so a size mismatch fails the test by panicking.
func emitOne(t *testing.T, tgt isa.TargetISA, f *ir.Function, inst ir.Inst) *binemit.Section {
	t.Helper()
	sec := binemit.NewSection(0, 1024)
	var divert regalloc.RegDiversions
	tgt.EmitInst(f, inst, &divert, sec)
	return sec
}

func defInst(f *ir.Function, v ir.Value) ir.Inst {
	_, inst, _, _ := f.ValueDef(v)
	return inst
}

func TestIconstEncodings(t *testing.T) {
	tests := []struct {
		name string
		typ  ir.Type
		imm  int64
		reg  ir.RegUnit
		want []byte
	}{
		{name: "i32", typ: ir.TypeI32, imm: 7, reg: regRAX, want: []byte{0xb8, 7, 0, 0, 0}},
		{name: "i32_extended_reg", typ: ir.TypeI32, imm: 7, reg: regR8, want: []byte{0x41, 0xb8, 7, 0, 0, 0}},
		{name: "i64_imm32", typ: ir.TypeI64, imm: -1, reg: regRAX, want: []byte{0x48, 0xc7, 0xc0, 0xff, 0xff, 0xff, 0xff}},
		{name: "i64_imm64", typ: ir.TypeI64, imm: 0x123456789, reg: regRAX,
			want: []byte{0x48, 0xb8, 0x89, 0x67, 0x45, 0x23, 0x01, 0, 0, 0}},
	}
	tgt := newTestTarget()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := ir.NewFunction("f", ir.Signature{})
			b := ir.NewBuilder(f)
			b.Block()
			v := b.Iconst(tc.typ, tc.imm)
			f.Locations[v] = ir.RegLoc(tc.reg)
			inst := defInst(f, v)
			pickEnc(t, tgt, f, inst, 0)
			require.Equal(t, tc.want, emitOne(t, tgt, f, inst).Bytes())
		})
	}
}

func TestAluCracking(t *testing.T) {
	tests := []struct {
		name    string
		op      func(b *ir.Builder, x, y ir.Value) ir.Value
		typ     ir.Type
		ra, rb  ir.RegUnit
		rr      ir.RegUnit
		want    []byte
	}{
		{
			name: "add_in_place",
			op:   func(b *ir.Builder, x, y ir.Value) ir.Value { return b.Iadd(ir.TypeI32, x, y) },
			typ:  ir.TypeI32, ra: regRAX, rb: regRCX, rr: regRAX,
			want: []byte{0x01, 0xc8},
		},
		{
			name: "add_fresh_result",
			op:   func(b *ir.Builder, x, y ir.Value) ir.Value { return b.Iadd(ir.TypeI32, x, y) },
			typ:  ir.TypeI32, ra: regRAX, rb: regRCX, rr: regRDX,
			want: []byte{0x89, 0xc2, 0x01, 0xca},
		},
		{
			// The result register holds the second operand; addition commutes.
			name: "add_result_aliases_second",
			op:   func(b *ir.Builder, x, y ir.Value) ir.Value { return b.Iadd(ir.TypeI32, x, y) },
			typ:  ir.TypeI32, ra: regRAX, rb: regRCX, rr: regRCX,
			want: []byte{0x01, 0xc1},
		},
		{
			// Subtraction cannot commute: the subtrahend goes through r10.
			name: "sub_result_aliases_second",
			op:   func(b *ir.Builder, x, y ir.Value) ir.Value { return b.Isub(ir.TypeI32, x, y) },
			typ:  ir.TypeI32, ra: regRAX, rb: regRDX, rr: regRDX,
			want: []byte{0x41, 0x89, 0xd2, 0x89, 0xc2, 0x44, 0x29, 0xd2},
		},
		{
			name: "imul_i64",
			op:   func(b *ir.Builder, x, y ir.Value) ir.Value { return b.Imul(ir.TypeI64, x, y) },
			typ:  ir.TypeI64, ra: regRAX, rb: regRCX, rr: regRAX,
			want: []byte{0x48, 0x0f, 0xaf, 0xc1},
		},
	}
	tgt := newTestTarget()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := ir.NewFunction("f", ir.Signature{})
			b := ir.NewBuilder(f)
			b.Block()
			x := b.Param(tc.typ)
			y := b.Param(tc.typ)
			v := tc.op(b, x, y)
			f.Locations[x] = ir.RegLoc(tc.ra)
			f.Locations[y] = ir.RegLoc(tc.rb)
			f.Locations[v] = ir.RegLoc(tc.rr)
			inst := defInst(f, v)
			pickEnc(t, tgt, f, inst, 0)
			require.Equal(t, tc.want, emitOne(t, tgt, f, inst).Bytes())
		})
	}
}

func TestIcmpSetcc(t *testing.T) {
	tests := []struct {
		name string
		cc   ir.IntCC
		typ  ir.Type
		rr   ir.RegUnit
		want []byte
	}{
		{
			name: "eq_i32",
			cc:   ir.IntCCEq, typ: ir.TypeI32, rr: regRDX,
			want: []byte{0x39, 0xc8, 0x0f, 0x94, 0xc2, 0x0f, 0xb6, 0xd2},
		},
		{
			// rsi's byte form needs a REX prefix to avoid the legacy ah..dh
			// encodings.
			name: "ugt_i64_sil",
			cc:   ir.IntCCGtU, typ: ir.TypeI64, rr: regRSI,
			want: []byte{0x48, 0x39, 0xc8, 0x40, 0x0f, 0x97, 0xc6, 0x40, 0x0f, 0xb6, 0xf6},
		},
	}
	tgt := newTestTarget()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := ir.NewFunction("f", ir.Signature{})
			b := ir.NewBuilder(f)
			b.Block()
			x := b.Param(tc.typ)
			y := b.Param(tc.typ)
			v := b.Icmp(tc.cc, tc.typ, x, y)
			f.Locations[x] = ir.RegLoc(regRAX)
			f.Locations[y] = ir.RegLoc(regRCX)
			f.Locations[v] = ir.RegLoc(tc.rr)
			inst := defInst(f, v)
			pickEnc(t, tgt, f, inst, 0)
			require.Equal(t, tc.want, emitOne(t, tgt, f, inst).Bytes())
		})
	}
}

func TestFloatArith(t *testing.T) {
	tgt := newTestTarget()

	t.Run("fadd_in_place", func(t *testing.T) {
		f := ir.NewFunction("f", ir.Signature{})
		b := ir.NewBuilder(f)
		b.Block()
		x := b.Param(ir.TypeF64)
		y := b.Param(ir.TypeF64)
		v := b.Binary(ir.OpcodeFadd, ir.TypeF64, x, y)
		f.Locations[x] = ir.RegLoc(floatBank + 1)
		f.Locations[y] = ir.RegLoc(floatBank + 2)
		f.Locations[v] = ir.RegLoc(floatBank + 1)
		inst := defInst(f, v)
		pickEnc(t, tgt, f, inst, 0)
		require.Equal(t, []byte{0xf2, 0x0f, 0x58, 0xca}, emitOne(t, tgt, f, inst).Bytes())
	})

	t.Run("fsub_result_aliases_second", func(t *testing.T) {
		// The subtrahend is staged through xmm15.
		f := ir.NewFunction("f", ir.Signature{})
		b := ir.NewBuilder(f)
		b.Block()
		x := b.Param(ir.TypeF32)
		y := b.Param(ir.TypeF32)
		v := b.Binary(ir.OpcodeFsub, ir.TypeF32, x, y)
		f.Locations[x] = ir.RegLoc(floatBank + 1)
		f.Locations[y] = ir.RegLoc(floatBank + 2)
		f.Locations[v] = ir.RegLoc(floatBank + 2)
		inst := defInst(f, v)
		pickEnc(t, tgt, f, inst, 0)
		require.Equal(t,
			[]byte{0x44, 0x0f, 0x28, 0xfa, 0x0f, 0x28, 0xd1, 0xf3, 0x41, 0x0f, 0x5c, 0xd7},
			emitOne(t, tgt, f, inst).Bytes())
	})
}

func TestFcmp(t *testing.T) {
	tests := []struct {
		name string
		cc   ir.FloatCC
		want []byte
	}{
		{
			name: "lt",
			cc:   ir.FloatCCLt,
			want: []byte{
				0x44, 0x0f, 0x28, 0xf8, // movaps xmm15, xmm0
				0xf2, 0x44, 0x0f, 0xc2, 0xf9, 0x01, // cmpltsd xmm15, xmm1
				0x66, 0x4c, 0x0f, 0x7e, 0xf8, // movq rax, xmm15
				0x83, 0xe0, 0x01, // and eax, 1
			},
		},
		{
			// gt swaps the operands and compares with the lt predicate.
			name: "gt_swaps",
			cc:   ir.FloatCCGt,
			want: []byte{
				0x44, 0x0f, 0x28, 0xf9,
				0xf2, 0x44, 0x0f, 0xc2, 0xf8, 0x01,
				0x66, 0x4c, 0x0f, 0x7e, 0xf8,
				0x83, 0xe0, 0x01,
			},
		},
	}
	tgt := newTestTarget()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := ir.NewFunction("f", ir.Signature{})
			b := ir.NewBuilder(f)
			b.Block()
			x := b.Param(ir.TypeF64)
			y := b.Param(ir.TypeF64)
			v := b.Fcmp(tc.cc, ir.TypeF64, x, y)
			f.Locations[x] = ir.RegLoc(floatBank)
			f.Locations[y] = ir.RegLoc(floatBank + 1)
			f.Locations[v] = ir.RegLoc(regRAX)
			inst := defInst(f, v)
			pickEnc(t, tgt, f, inst, 0)
			require.Equal(t, tc.want, emitOne(t, tgt, f, inst).Bytes())
		})
	}
}

func TestSelectAliasing(t *testing.T) {
	tests := []struct {
		name string
		rr   ir.RegUnit
		want []byte
	}{
		// cond rax, x rcx, y rdx throughout. The test runs first; the moves
		// below preserve the flags.
		{name: "result_aliases_x", rr: regRCX, want: []byte{0x85, 0xc0, 0x0f, 0x44, 0xca}},
		{name: "result_fresh", rr: regRBX, want: []byte{0x85, 0xc0, 0x89, 0xd3, 0x0f, 0x45, 0xd9}},
		{name: "result_aliases_y", rr: regRDX, want: []byte{0x85, 0xc0, 0x0f, 0x45, 0xd1}},
	}
	tgt := newTestTarget()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := ir.NewFunction("f", ir.Signature{})
			b := ir.NewBuilder(f)
			b.Block()
			c := b.Param(ir.TypeI32)
			x := b.Param(ir.TypeI32)
			y := b.Param(ir.TypeI32)
			v := b.Select(ir.TypeI32, c, x, y)
			f.Locations[c] = ir.RegLoc(regRAX)
			f.Locations[x] = ir.RegLoc(regRCX)
			f.Locations[y] = ir.RegLoc(regRDX)
			f.Locations[v] = ir.RegLoc(tc.rr)
			inst := defInst(f, v)
			pickEnc(t, tgt, f, inst, 0)
			require.Equal(t, tc.want, emitOne(t, tgt, f, inst).Bytes())
		})
	}
}

func TestBranchEncodings(t *testing.T) {
	tgt := newTestTarget()

	build := func(t *testing.T) (*ir.Function, ir.Inst, ir.Inst) {
		f := ir.NewFunction("f", ir.Signature{})
		b := ir.NewBuilder(f)
		b.Block()
		cond := b.Param(ir.TypeI32)
		dest := b.RawBlock()
		f.Layout.AppendBlock(dest)
		br := b.Brnz(cond, dest)
		jmp := b.Jump(dest)
		f.Locations[cond] = ir.RegLoc(regRAX)
		f.Offsets.Resize(f.NumBlocks())
		f.Offsets.Set(dest, 0x10)
		return f, br, jmp
	}

	t.Run("brnz_short", func(t *testing.T) {
		f, br, _ := build(t)
		pickEnc(t, tgt, f, br, 0)
		require.Equal(t, []byte{0x40, 0x85, 0xc0, 0x75, 0x0b}, emitOne(t, tgt, f, br).Bytes())
	})
	t.Run("brnz_long", func(t *testing.T) {
		f, br, _ := build(t)
		pickEnc(t, tgt, f, br, 1)
		require.Equal(t, []byte{0x40, 0x85, 0xc0, 0x0f, 0x85, 0x07, 0, 0, 0},
			emitOne(t, tgt, f, br).Bytes())
	})
	t.Run("jump_short", func(t *testing.T) {
		f, _, jmp := build(t)
		pickEnc(t, tgt, f, jmp, 0)
		require.Equal(t, []byte{0xeb, 0x0e}, emitOne(t, tgt, f, jmp).Bytes())
	})
	t.Run("jump_long", func(t *testing.T) {
		f, _, jmp := build(t)
		pickEnc(t, tgt, f, jmp, 1)
		require.Equal(t, []byte{0xe9, 0x0b, 0, 0, 0}, emitOne(t, tgt, f, jmp).Bytes())
	})
	t.Run("jump_short_backward", func(t *testing.T) {
		f, _, jmp := build(t)
		pickEnc(t, tgt, f, jmp, 0)
		f.Offsets.Set(f.InstData(jmp).Dest, 0)
		sec := binemit.NewSection(0, 1024)
		for i := 0; i < 16; i++ {
			sec.Put1(0x90)
		}
		var divert regalloc.RegDiversions
		tgt.EmitInst(f, jmp, &divert, sec)
		require.Equal(t, []byte{0xeb, 0xee}, sec.Bytes()[16:])
	})
}

func TestBranchRangesMatchRecipes(t *testing.T) {
	tgt := newTestTarget()
	info := tgt.EncodingInfo()

	short, ok := info.BranchRange(ir.Encoding{Recipe: recipeJmpb})
	require.True(t, ok)
	require.True(t, short.Contains(0, 129))   // 129-2 = 127, the last reachable byte
	require.False(t, short.Contains(0, 130))

	long, ok := info.BranchRange(ir.Encoding{Recipe: recipeJmpd})
	require.True(t, ok)
	require.True(t, long.Contains(0, 1<<24))

	_, ok = info.BranchRange(ir.Encoding{Recipe: recipeRr})
	require.False(t, ok)
}

func TestBranchConstraintsShared(t *testing.T) {
	// Relaxation swaps a short branch for its long twin only when both point
	// at the same constraint table.
	tgt := newTestTarget()
	info := tgt.EncodingInfo()
	require.Same(t,
		info.OperandConstraints(ir.Encoding{Recipe: recipeBrb}),
		info.OperandConstraints(ir.Encoding{Recipe: recipeBrd}))
	require.Same(t,
		info.OperandConstraints(ir.Encoding{Recipe: recipeJmpb}),
		info.OperandConstraints(ir.Encoding{Recipe: recipeJmpd}))
	require.NotSame(t,
		info.OperandConstraints(ir.Encoding{Recipe: recipeBrb}),
		info.OperandConstraints(ir.Encoding{Recipe: recipeJmpb}))
}

func TestBrTableEncoding(t *testing.T) {
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	idx := b.Param(ir.TypeI32)
	dest := b.RawBlock()
	f.Layout.AppendBlock(dest)
	jt := f.MakeJumpTable(ir.NewJumpTableData([]ir.Block{dest}))
	inst := b.BrTable(idx, jt)
	b.Jump(dest)
	f.Locations[idx] = ir.RegLoc(regRCX)
	f.JTOffsets.Set(jt, 0x40)
	pickEnc(t, tgt, f, inst, 0)

	require.Equal(t, []byte{
		0x81, 0xf9, 0x01, 0, 0, 0, // cmp ecx, 1
		0x73, 0x11, // jae past the sequence
		0x4c, 0x8d, 0x15, 0x31, 0, 0, 0, // lea r10, [rip+0x31]
		0x4d, 0x63, 0x1c, 0x8a, // movsxd r11, dword [r10+rcx*4]
		0x4d, 0x01, 0xda, // add r10, r11
		0x41, 0xff, 0xe2, // jmp r10
	}, emitOne(t, tgt, f, inst).Bytes())
}

func TestCallEmission(t *testing.T) {
	tgt := newTestTarget()

	t.Run("args_in_place", func(t *testing.T) {
		f := ir.NewFunction("f", ir.Signature{})
		b := ir.NewBuilder(f)
		b.Block()
		x := b.Param(ir.TypeI64)
		fn := f.DeclareExtFunc("env.pow2", ir.Signature{Params: []ir.Type{ir.TypeI64}, Results: []ir.Type{ir.TypeI64}})
		b.SetSrcLoc(0x11)
		v := b.Call(fn, x)
		f.Locations[x] = ir.RegLoc(regRDI)
		f.Locations[v] = ir.RegLoc(regRAX)
		inst := defInst(f, v)
		pickEnc(t, tgt, f, inst, 0)
		sec := emitOne(t, tgt, f, inst)

		require.Equal(t, []byte{0xe8, 0, 0, 0, 0}, sec.Bytes())
		require.Equal(t, []binemit.RelocEntry{
			{Offset: 1, Kind: binemit.RelocX86CallPCRel4, Name: "env.pow2", Addend: -4},
		}, sec.Relocs())
		require.Equal(t, []binemit.CallSiteEntry{
			{RetAddr: 5, Opcode: ir.OpcodeCall, SrcLoc: 0x11},
		}, sec.CallSites())
	})

	t.Run("arg_moved_to_abi_register", func(t *testing.T) {
		f := ir.NewFunction("f", ir.Signature{})
		b := ir.NewBuilder(f)
		b.Block()
		x := b.Param(ir.TypeI64)
		fn := f.DeclareExtFunc("env.pow2", ir.Signature{Params: []ir.Type{ir.TypeI64}, Results: []ir.Type{ir.TypeI64}})
		v := b.Call(fn, x)
		f.Locations[x] = ir.RegLoc(regRAX)
		f.Locations[v] = ir.RegLoc(regRAX)
		inst := defInst(f, v)
		pickEnc(t, tgt, f, inst, 0)
		sec := emitOne(t, tgt, f, inst)

		require.Equal(t, []byte{0x48, 0x89, 0xc7, 0xe8, 0, 0, 0, 0}, sec.Bytes())
		require.Equal(t, uint32(4), sec.Relocs()[0].Offset)
		require.Equal(t, uint32(8), sec.CallSites()[0].RetAddr)
	})
}

func TestCallArgMoveCycle(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Param(ir.TypeI64)
	y := b.Param(ir.TypeI64)
	fn := f.DeclareExtFunc("env.swap", ir.Signature{Params: []ir.Type{ir.TypeI64, ir.TypeI64}})
	b.Call(fn, x, y)
	// x sits where y must go and vice versa: the resolver parks x in r10.
	f.Locations[x] = ir.RegLoc(regRSI)
	f.Locations[y] = ir.RegLoc(regRDI)

	var inst ir.Inst
	for i := f.Layout.FirstInst(f.Entry()); i.Valid(); i = f.Layout.NextInst(i) {
		if f.InstData(i).Opcode == ir.OpcodeCall {
			inst = i
		}
	}
	var divert regalloc.RegDiversions
	moves := callArgMoves(f, inst, &divert)
	require.Equal(t, []abiMove{
		{dst: scratchInt, src: regRSI, typ: ir.TypeI64},
		{dst: regRSI, src: regRDI, typ: ir.TypeI64},
		{dst: regRDI, src: scratchInt, typ: ir.TypeI64},
	}, moves)
}

func TestReturnMovesResult(t *testing.T) {
	tgt := newTestTarget()
	tests := []struct {
		name string
		typ  ir.Type
		reg  ir.RegUnit
		want []byte
	}{
		{name: "i32_moved", typ: ir.TypeI32, reg: regRCX, want: []byte{0x89, 0xc8, 0xc3}},
		{name: "f64_in_place", typ: ir.TypeF64, reg: floatBank, want: []byte{0xc3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := ir.NewFunction("f", ir.Signature{Results: []ir.Type{tc.typ}})
			b := ir.NewBuilder(f)
			b.Block()
			x := b.Param(tc.typ)
			inst := b.Return(x)
			f.Locations[x] = ir.RegLoc(tc.reg)
			pickEnc(t, tgt, f, inst, 0)
			require.Equal(t, tc.want, emitOne(t, tgt, f, inst).Bytes())
		})
	}
}

func TestTrapRecordsSite(t *testing.T) {
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	b.SetSrcLoc(0x2a)
	inst := b.Trap(ir.TrapUnreachable)
	pickEnc(t, tgt, f, inst, 0)
	sec := emitOne(t, tgt, f, inst)

	require.Equal(t, []byte{0x0f, 0x0b}, sec.Bytes())
	require.Equal(t, []binemit.TrapEntry{
		{Offset: 0, Code: ir.TrapUnreachable, SrcLoc: 0x2a},
	}, sec.Traps())
}

func TestSpillFillEncodings(t *testing.T) {
	tgt := newTestTarget()

	t.Run("spill_i64_small_offset", func(t *testing.T) {
		f := ir.NewFunction("f", ir.Signature{})
		b := ir.NewBuilder(f)
		b.Block()
		x := b.Param(ir.TypeI64)
		slot := f.MakeStackSlot(8)
		v := b.Spill(ir.TypeI64, x, slot)
		f.Locations[x] = ir.RegLoc(regRCX)
		f.Locations[v] = ir.StackLoc(slot)
		inst := defInst(f, v)
		pickEnc(t, tgt, f, inst, 0)
		require.Equal(t, []byte{0x48, 0x89, 0x4c, 0x24, 0x00}, emitOne(t, tgt, f, inst).Bytes())
	})

	t.Run("spill_i64_wide_offset", func(t *testing.T) {
		f := ir.NewFunction("f", ir.Signature{})
		b := ir.NewBuilder(f)
		b.Block()
		x := b.Param(ir.TypeI64)
		slot := f.MakeStackSlot(8)
		f.StackSlots[slot].Offset = 200
		v := b.Spill(ir.TypeI64, x, slot)
		f.Locations[x] = ir.RegLoc(regRCX)
		f.Locations[v] = ir.StackLoc(slot)
		inst := defInst(f, v)
		pickEnc(t, tgt, f, inst, 0)
		require.Equal(t, []byte{0x48, 0x89, 0x8c, 0x24, 0xc8, 0, 0, 0}, emitOne(t, tgt, f, inst).Bytes())
	})

	t.Run("fill_f32", func(t *testing.T) {
		f := ir.NewFunction("f", ir.Signature{})
		b := ir.NewBuilder(f)
		b.Block()
		x := b.Param(ir.TypeF32)
		slot := f.MakeStackSlot(4)
		f.StackSlots[slot].Offset = 8
		spilled := b.Spill(ir.TypeF32, x, slot)
		v := b.Fill(ir.TypeF32, spilled)
		f.Locations[x] = ir.RegLoc(floatBank)
		f.Locations[spilled] = ir.StackLoc(slot)
		f.Locations[v] = ir.RegLoc(floatBank + 3)
		inst := defInst(f, v)
		pickEnc(t, tgt, f, inst, 0)
		require.Equal(t, []byte{0xf3, 0x0f, 0x10, 0x5c, 0x24, 0x08}, emitOne(t, tgt, f, inst).Bytes())
	})
}

func TestFconstLoadsFromPool(t *testing.T) {
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	v := b.Fconst(ir.TypeF64, math.Float64bits(1.5))
	f.Locations[v] = ir.RegLoc(floatBank + 1)
	inst := defInst(f, v)
	f.ConstPool.SetOffset(f.InstData(inst).Const, 0x40)
	pickEnc(t, tgt, f, inst, 0)

	// The load is rip relative: 0x40 - 8 bytes of instruction.
	require.Equal(t, []byte{0xf2, 0x0f, 0x10, 0x0d, 0x38, 0, 0, 0},
		emitOne(t, tgt, f, inst).Bytes())
}

func TestRegmoveEncodings(t *testing.T) {
	tgt := newTestTarget()
	tests := []struct {
		name     string
		typ      ir.Type
		src, dst ir.RegUnit
		want     []byte
	}{
		{name: "i32", typ: ir.TypeI32, src: regRAX, dst: regRCX, want: []byte{0x89, 0xc1}},
		{name: "f64", typ: ir.TypeF64, src: floatBank, dst: floatBank + 1, want: []byte{0x0f, 0x28, 0xc8}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := ir.NewFunction("f", ir.Signature{})
			b := ir.NewBuilder(f)
			b.Block()
			x := b.Param(tc.typ)
			inst := b.Regmove(x, tc.src, tc.dst)
			f.Locations[x] = ir.RegLoc(tc.src)
			f.Encodings[inst] = tgt.RegmoveEncoding(tc.typ)
			require.Equal(t, tc.want, emitOne(t, tgt, f, inst).Bytes())
		})
	}
}

func TestEmissionFollowsDiversions(t *testing.T) {
	// After a regmove diverts x to rcx, later instructions must read rcx.
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Param(ir.TypeI32)
	mv := b.Regmove(x, regRAX, regRCX)
	v := b.Iadd(ir.TypeI32, x, x)
	f.Locations[x] = ir.RegLoc(regRAX)
	f.Locations[v] = ir.RegLoc(regRAX)
	f.Encodings[mv] = tgt.RegmoveEncoding(ir.TypeI32)
	add := defInst(f, v)
	pickEnc(t, tgt, f, add, 0)

	sec := binemit.NewSection(0, 1024)
	var divert regalloc.RegDiversions
	tgt.EmitInst(f, mv, &divert, sec)
	divert.Apply(f, f.InstData(mv))
	tgt.EmitInst(f, add, &divert, sec)

	// mov ecx, eax; then mov eax, ecx; add eax, ecx reading the diversion.
	require.Equal(t, []byte{0x89, 0xc1, 0x89, 0xc8, 0x01, 0xc8}, sec.Bytes())
}

func TestAdjustSpEncodings(t *testing.T) {
	tgt := newTestTarget()
	tests := []struct {
		name string
		op   ir.Opcode
		imm  int64
		want []byte
	}{
		{name: "down_small", op: ir.OpcodeAdjustSpDown, imm: 16, want: []byte{0x48, 0x83, 0xec, 0x10}},
		{name: "up_wide", op: ir.OpcodeAdjustSpUp, imm: 300, want: []byte{0x48, 0x81, 0xc4, 0x2c, 0x01, 0, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := ir.NewFunction("f", ir.Signature{})
			b := ir.NewBuilder(f)
			b.Block()
			inst := f.MakeInst(ir.InstructionData{Opcode: tc.op, Imm: tc.imm})
			f.Layout.AppendInst(inst, b.CurrentBlock())
			pickEnc(t, tgt, f, inst, 0)
			require.Equal(t, tc.want, emitOne(t, tgt, f, inst).Bytes())
		})
	}
}

func TestPrologueEpilogue(t *testing.T) {
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Iconst(ir.TypeI64, 1)
	s1 := f.MakeStackSlot(8)
	s2 := f.MakeStackSlot(4)
	b.Spill(ir.TypeI64, x, s1)
	b.Return()

	require.NoError(t, tgt.PrologueEpilogue(f))

	require.Equal(t, int32(0), f.StackSlots[s1].Offset)
	require.Equal(t, int32(8), f.StackSlots[s2].Offset) // 4 bytes rounded up to 8
	require.Equal(t, uint32(16), f.FrameSize)

	first := f.Layout.FirstInst(f.Entry())
	require.Equal(t, ir.OpcodeAdjustSpDown, f.InstData(first).Opcode)
	require.Equal(t, int64(16), f.InstData(first).Imm)
	require.True(t, f.Encodings[first].IsLegal())

	last := f.Layout.LastInst(f.Entry())
	require.Equal(t, ir.OpcodeReturn, f.InstData(last).Opcode)
	up := f.Layout.PrevInst(last)
	require.Equal(t, ir.OpcodeAdjustSpUp, f.InstData(up).Opcode)
	require.Equal(t, int64(16), f.InstData(up).Imm)
}

func TestPrologueSkippedWithoutFrame(t *testing.T) {
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	b.Return()

	require.NoError(t, tgt.PrologueEpilogue(f))
	require.Zero(t, f.FrameSize)
	require.Equal(t, ir.OpcodeReturn, f.InstData(f.Layout.FirstInst(f.Entry())).Opcode)
}

func TestLegalEncodingsRejectsUnsupported(t *testing.T) {
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()

	t.Run("float_select", func(t *testing.T) {
		c := b.Param(ir.TypeI32)
		x := b.Param(ir.TypeF64)
		y := b.Param(ir.TypeF64)
		v := b.Select(ir.TypeF64, c, x, y)
		d := f.InstData(defInst(f, v))
		require.Empty(t, tgt.LegalEncodings(f, d, d.Typ))
	})

	t.Run("too_many_int_args", func(t *testing.T) {
		params := make([]ir.Type, 7)
		args := make([]ir.Value, 7)
		for i := range params {
			params[i] = ir.TypeI64
			args[i] = b.Param(ir.TypeI64)
		}
		fn := f.DeclareExtFunc("env.many", ir.Signature{Params: params})
		b.Call(fn, args...)
		last := f.Layout.LastInst(b.CurrentBlock())
		d := f.InstData(last)
		require.Empty(t, tgt.LegalEncodings(f, d, d.Typ))
	})

	t.Run("multi_value_return", func(t *testing.T) {
		x := b.Param(ir.TypeI32)
		y := b.Param(ir.TypeI32)
		ret := b.Return(x, y)
		d := f.InstData(ret)
		require.Empty(t, tgt.LegalEncodings(f, d, d.Typ))
	})
}

func TestMachBackendCompilesStraightLine(t *testing.T) {
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{Results: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Iconst(ir.TypeI32, 7)
	y := b.Iconst(ir.TypeI32, 35)
	b.Return(b.Iadd(ir.TypeI32, x, y))

	code, err := tgt.MachBackend().CompileFunction(f)
	require.NoError(t, err)
	require.NotEmpty(t, code)
	require.Equal(t, byte(0xc3), code[len(code)-1], "code should end with ret")
}

func TestMachBackendRejectsCalls(t *testing.T) {
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	fn := f.DeclareExtFunc("env.f", ir.Signature{})
	b.Call(fn)
	b.Return()

	_, err := tgt.MachBackend().CompileFunction(f)
	require.ErrorIs(t, err, ErrMachUnsupported)
}
