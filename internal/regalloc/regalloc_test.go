package regalloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gantry-go/gantry/internal/ir"
)

type fakeTarget struct{}

var fakeIntRegs = []ir.RegUnit{0, 1, 2, 3}
var fakeFloatRegs = []ir.RegUnit{16, 17}

func (fakeTarget) AllocatableRegs(c RegClass) []ir.RegUnit {
	if c == ClassFloat {
		return fakeFloatRegs
	}
	return fakeIntRegs
}

func (fakeTarget) RegmoveEncoding(ir.Type) ir.Encoding { return ir.Encoding{Recipe: 99} }

func TestStraightLineAllocation(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32, ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Param(ir.TypeI32)
	y := b.Param(ir.TypeI32)
	sum := b.Iadd(ir.TypeI32, x, y)
	prod := b.Imul(ir.TypeI32, sum, sum)
	b.Return(prod)

	require.NoError(t, NewContext().Run(fakeTarget{}, f))
	require.Equal(t, ir.RegLoc(0), f.Locations[x])
	require.Equal(t, ir.RegLoc(1), f.Locations[y])
	require.Equal(t, ir.RegLoc(2), f.Locations[sum])
	// x and y die at the iadd, so the product reuses a freed register.
	require.Equal(t, ir.RegLoc(0), f.Locations[prod])
}

func TestOutOfRegisters(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	vals := make([]ir.Value, 5)
	for i := range vals {
		vals[i] = b.Iconst(ir.TypeI32, int64(i))
	}
	// Keep all five alive at once.
	acc := b.Iadd(ir.TypeI32, vals[0], vals[1])
	for _, v := range vals[2:] {
		acc = b.Iadd(ir.TypeI32, acc, v)
	}
	b.Return(acc)

	err := NewContext().Run(fakeTarget{}, f)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrOutOfRegisters))
}

func TestBranchArgumentMove(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32, ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	b.Param(ir.TypeI32)
	y := b.Param(ir.TypeI32)
	dest := b.RawBlock()
	jmp := b.Jump(dest, y)
	f.Layout.AppendBlock(dest)
	b.SetBlock(dest)
	p := f.AppendBlockParam(dest, ir.TypeI32)
	b.Return(p)

	require.NoError(t, NewContext().Run(fakeTarget{}, f))
	require.Equal(t, ir.RegLoc(0), f.Locations[p])

	// y sits in r1 and must reach dest's parameter in r0.
	mv := f.Layout.PrevInst(jmp)
	require.True(t, mv.Valid())
	d := f.InstData(mv)
	require.Equal(t, ir.OpcodeRegmove, d.Opcode)
	require.Equal(t, ir.RegUnit(1), d.SrcReg)
	require.Equal(t, ir.RegUnit(0), d.DstReg)
	require.Equal(t, ir.Encoding{Recipe: 99}, f.Encodings[mv])
}

func TestBranchArgumentSwapBreaksCycle(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32, ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Param(ir.TypeI32)
	y := b.Param(ir.TypeI32)
	dest := b.RawBlock()
	jmp := b.Jump(dest, y, x)
	f.Layout.AppendBlock(dest)
	b.SetBlock(dest)
	f.AppendBlockParam(dest, ir.TypeI32)
	f.AppendBlockParam(dest, ir.TypeI32)
	b.Return()

	require.NoError(t, NewContext().Run(fakeTarget{}, f))

	// The swap needs three moves: park one value, then rotate.
	var moves []*ir.InstructionData
	blk := f.Layout.InstBlock(jmp)
	for i := f.Layout.FirstInst(blk); i.Valid(); i = f.Layout.NextInst(i) {
		if f.InstData(i).Opcode == ir.OpcodeRegmove {
			moves = append(moves, f.InstData(i))
		}
	}
	require.Len(t, moves, 3)
	require.Equal(t, ir.RegUnit(2), moves[0].DstReg) // park y in the scratch register
	require.Equal(t, ir.RegUnit(1), moves[1].DstReg)
	require.Equal(t, ir.RegUnit(0), moves[2].DstReg)
}

func TestConditionalBranchArgsRejected(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Param(ir.TypeI32)
	dest := b.RawBlock()
	b.Brnz(x, dest, x)
	b.Return()
	f.Layout.AppendBlock(dest)
	b.SetBlock(dest)
	f.AppendBlockParam(dest, ir.TypeI32)
	b.Return()

	err := NewContext().Run(fakeTarget{}, f)
	require.True(t, errors.Is(err, ErrUnsupportedIR))
}

func TestCrossBlockUseRejected(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	v := b.Iconst(ir.TypeI32, 7)
	next := b.RawBlock()
	b.Jump(next)
	f.Layout.AppendBlock(next)
	b.SetBlock(next)
	b.Return(v)

	err := NewContext().Run(fakeTarget{}, f)
	require.True(t, errors.Is(err, ErrUnsupportedIR))
}

func TestDiversions(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Param(ir.TypeI32)
	f.Locations[x] = ir.RegLoc(0)

	var div RegDiversions
	require.Equal(t, ir.RegUnit(0), div.Reg(f, x))

	mv := b.Regmove(x, 0, 8)
	div.Apply(f, f.InstData(mv))
	require.Equal(t, ir.RegUnit(8), div.Reg(f, x))
	require.False(t, div.IsEmpty())

	// Moving back to the assigned register ends the diversion.
	back := b.Regmove(x, 8, 0)
	div.Apply(f, f.InstData(back))
	require.Equal(t, ir.RegUnit(0), div.Reg(f, x))
	require.True(t, div.IsEmpty())

	// A spill ends any active diversion of the operand.
	div.Divert(f, x, 8)
	slot := f.MakeStackSlot(8)
	sp := b.Spill(ir.TypeI32, x, slot)
	div.Apply(f, f.InstData(f.Layout.LastInst(b.CurrentBlock())))
	require.True(t, div.IsEmpty())
	_ = sp
}

func countFills(f *ir.Function) int {
	var fills int
	for i := f.Layout.FirstInst(f.Entry()); i.Valid(); i = f.Layout.NextInst(i) {
		if f.InstData(i).Opcode == ir.OpcodeFill {
			fills++
		}
	}
	return fills
}

func TestRedundantReloadRemoved(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Param(ir.TypeI32)
	slot := f.MakeStackSlot(8)
	spilled := b.Spill(ir.TypeI32, x, slot)
	r1 := b.Fill(ir.TypeI32, spilled)
	// A definition in an unrelated register leaves the reload usable.
	c := b.Iconst(ir.TypeI32, 7)
	r2 := b.Fill(ir.TypeI32, spilled)
	sum := b.Iadd(ir.TypeI32, r1, r2)
	b.Return(sum)

	f.Locations[x] = ir.RegLoc(0)
	f.Locations[spilled] = ir.StackLoc(slot)
	f.Locations[r1] = ir.RegLoc(0)
	f.Locations[c] = ir.RegLoc(2)
	f.Locations[r2] = ir.RegLoc(1)
	f.Locations[sum] = ir.RegLoc(0)

	NewRedundantReloadRemover().Run(f)

	// The second fill is gone and the add reads the first reload twice.
	require.Equal(t, 1, countFills(f))
	_, sumInst, _, _ := f.ValueDef(sum)
	require.Equal(t, []ir.Value{r1, r1}, f.InstArgs(sumInst))
}

func TestReloadKeptAcrossCall(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	callee := f.DeclareExtFunc("ext", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Param(ir.TypeI32)
	slot := f.MakeStackSlot(8)
	spilled := b.Spill(ir.TypeI32, x, slot)
	r1 := b.Fill(ir.TypeI32, spilled)
	b.Call(callee)
	r2 := b.Fill(ir.TypeI32, spilled)
	sum := b.Iadd(ir.TypeI32, r1, r2)
	b.Return(sum)

	f.Locations[x] = ir.RegLoc(0)
	f.Locations[spilled] = ir.StackLoc(slot)
	f.Locations[r1] = ir.RegLoc(0)
	f.Locations[r2] = ir.RegLoc(1)
	f.Locations[sum] = ir.RegLoc(0)

	NewRedundantReloadRemover().Run(f)

	require.Equal(t, 2, countFills(f))
}

func TestReloadKeptWhenRegisterReused(t *testing.T) {
	// The reload's value dies at the add, so the allocator hands its register
	// to the add's result. The second fill must stay.
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Param(ir.TypeI32)
	slot := f.MakeStackSlot(8)
	spilled := b.Spill(ir.TypeI32, x, slot)
	r1 := b.Fill(ir.TypeI32, spilled)
	dbl := b.Iadd(ir.TypeI32, r1, r1)
	r2 := b.Fill(ir.TypeI32, spilled)
	sum := b.Iadd(ir.TypeI32, r2, dbl)
	b.Return(sum)

	f.Locations[x] = ir.RegLoc(1)
	f.Locations[spilled] = ir.StackLoc(slot)
	f.Locations[r1] = ir.RegLoc(0)
	f.Locations[dbl] = ir.RegLoc(0)
	f.Locations[r2] = ir.RegLoc(2)
	f.Locations[sum] = ir.RegLoc(0)

	NewRedundantReloadRemover().Run(f)

	require.Equal(t, 2, countFills(f))
	_, sumInst, _, _ := f.ValueDef(sum)
	require.Equal(t, []ir.Value{r2, dbl}, f.InstArgs(sumInst))
}

func TestReloadKeptAcrossRegmoveClobber(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Param(ir.TypeI32)
	slot := f.MakeStackSlot(8)
	spilled := b.Spill(ir.TypeI32, x, slot)
	r1 := b.Fill(ir.TypeI32, spilled)
	// The diversion writes the reload's register.
	b.Regmove(x, 1, 0)
	r2 := b.Fill(ir.TypeI32, spilled)
	sum := b.Iadd(ir.TypeI32, r1, r2)
	b.Return(sum)

	f.Locations[x] = ir.RegLoc(1)
	f.Locations[spilled] = ir.StackLoc(slot)
	f.Locations[r1] = ir.RegLoc(0)
	f.Locations[r2] = ir.RegLoc(2)
	f.Locations[sum] = ir.RegLoc(0)

	NewRedundantReloadRemover().Run(f)

	require.Equal(t, 2, countFills(f))
}
