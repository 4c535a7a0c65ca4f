package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func layoutBlocks(l *Layout) []Block {
	var out []Block
	for b := l.FirstBlock(); b.Valid(); b = l.NextBlock(b) {
		out = append(out, b)
	}
	return out
}

func layoutInsts(l *Layout, b Block) []Inst {
	var out []Inst
	for i := l.FirstInst(b); i.Valid(); i = l.NextInst(i) {
		out = append(out, i)
	}
	return out
}

func TestLayoutBlockOrder(t *testing.T) {
	f := NewFunction("f", Signature{})
	b1, b2, b3 := f.MakeBlock(), f.MakeBlock(), f.MakeBlock()
	f.Layout.AppendBlock(b2)
	f.Layout.AppendBlock(b1)
	f.Layout.AppendBlock(b3)

	require.Equal(t, []Block{b2, b1, b3}, layoutBlocks(&f.Layout))
	require.Equal(t, b2, f.Layout.Entry())
	require.Equal(t, 3, f.Layout.NumBlocks())
	require.Equal(t, b1, f.Layout.PrevBlock(b3))
	require.Equal(t, b3, f.Layout.NextBlock(b1))

	f.Layout.RemoveBlock(b1)
	require.Equal(t, []Block{b2, b3}, layoutBlocks(&f.Layout))
	require.Equal(t, b2, f.Layout.PrevBlock(b3))
	require.False(t, f.Layout.IsBlockInserted(b1))

	require.Panics(t, func() { f.Layout.RemoveBlock(b1) })
	require.Panics(t, func() { f.Layout.AppendBlock(b3) })
}

func TestLayoutInsertBlockAfter(t *testing.T) {
	f := NewFunction("f", Signature{})
	b1, b2, b3, b4 := f.MakeBlock(), f.MakeBlock(), f.MakeBlock(), f.MakeBlock()
	f.Layout.AppendBlock(b1)
	f.Layout.AppendBlock(b2)

	f.Layout.InsertBlockAfter(b3, b1)
	require.Equal(t, []Block{b1, b3, b2}, layoutBlocks(&f.Layout))
	require.Equal(t, b1, f.Layout.PrevBlock(b3))
	require.Equal(t, b3, f.Layout.PrevBlock(b2))

	// Inserting after the last block moves the tail.
	f.Layout.InsertBlockAfter(b4, b2)
	require.Equal(t, []Block{b1, b3, b2, b4}, layoutBlocks(&f.Layout))
	require.Equal(t, b4, f.Layout.LastBlock())
	require.Equal(t, 4, f.Layout.NumBlocks())

	require.Panics(t, func() { f.Layout.InsertBlockAfter(b4, b1) })
	require.Panics(t, func() { f.Layout.InsertBlockAfter(f.MakeBlock(), Block(99)) })
}

func TestLayoutInstOrder(t *testing.T) {
	f := NewFunction("f", Signature{})
	blk := f.MakeBlock()
	f.Layout.AppendBlock(blk)

	mk := func() Inst { return f.MakeInst(InstructionData{Opcode: OpcodeNop}) }
	i1, i2, i3, i4 := mk(), mk(), mk(), mk()
	f.Layout.AppendInst(i1, blk)
	f.Layout.AppendInst(i3, blk)
	f.Layout.InsertInstBefore(i2, i3)
	f.Layout.AppendInst(i4, blk)

	require.Equal(t, []Inst{i1, i2, i3, i4}, layoutInsts(&f.Layout, blk))
	require.Equal(t, blk, f.Layout.InstBlock(i2))
	require.Equal(t, i4, f.Layout.LastInst(blk))
	require.Equal(t, i3, f.Layout.PrevInst(i4))

	f.Layout.RemoveInst(i1)
	require.Equal(t, []Inst{i2, i3, i4}, layoutInsts(&f.Layout, blk))
	require.Equal(t, i2, f.Layout.FirstInst(blk))
	require.False(t, f.Layout.InstBlock(i1).Valid())

	// InsertInstBefore at the block head relinks firstInst.
	i5 := mk()
	f.Layout.InsertInstBefore(i5, i2)
	require.Equal(t, []Inst{i5, i2, i3, i4}, layoutInsts(&f.Layout, blk))

	// A block only empties once every instruction is removed.
	require.Panics(t, func() { f.Layout.RemoveBlock(blk) })
	for _, i := range []Inst{i5, i2, i3, i4} {
		f.Layout.RemoveInst(i)
	}
	f.Layout.RemoveBlock(blk)
	require.Equal(t, 0, f.Layout.NumBlocks())
}

func TestValueListPoolSplice(t *testing.T) {
	var p ValueListPool
	l := p.Make(Value(1), Value(2), Value(3))
	require.Equal(t, 3, l.Len())

	// Element assignment through one view is visible through another.
	p.Slice(l)[1] = Value(9)
	require.Equal(t, []Value{1, 9, 3}, p.Slice(l))

	l2 := p.Append(l, Value(4))
	require.Equal(t, []Value{1, 9, 3, 4}, p.Slice(l2))
	require.Equal(t, []Value{1, 9, 3}, p.Slice(l))

	p.Reset()
	require.Equal(t, 0, p.Size())
}
