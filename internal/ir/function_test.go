package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFunctionEntities(t *testing.T) {
	f := NewFunction("f", Signature{Params: []Type{TypeI32}, Results: []Type{TypeI32}})
	b := NewBuilder(f)

	blk0 := b.Block()
	p0 := b.Param(TypeI32)
	require.Equal(t, Block(1), blk0)
	require.Equal(t, "block0", blk0.String())
	require.Equal(t, "v0", p0.String())
	require.Equal(t, TypeI32, f.ValueType(p0))

	kind, _, blk, num := f.ValueDef(p0)
	require.Equal(t, ValueDefParam, kind)
	require.Equal(t, blk0, blk)
	require.Equal(t, 0, num)

	v1 := b.Iconst(TypeI32, 7)
	v2 := b.Iadd(TypeI32, p0, v1)
	kind, inst, _, _ := f.ValueDef(v2)
	require.Equal(t, ValueDefResult, kind)
	require.Equal(t, v2, f.Results[inst])
	require.Equal(t, []Value{p0, v1}, f.InstArgs(inst))

	require.Equal(t, 3, f.NumValues())
	require.Equal(t, 2, f.NumInsts())
	require.Equal(t, 1, f.NumBlocks())
}

func TestFunctionClearKeepsNothing(t *testing.T) {
	f := NewFunction("f", Signature{})
	b := NewBuilder(f)
	b.Block()
	v := b.Iconst(TypeI64, 1)
	b.Return(v)

	f.Clear()
	require.Equal(t, 0, f.NumValues())
	require.Equal(t, 0, f.NumInsts())
	require.Equal(t, 0, f.NumBlocks())
	require.Equal(t, 0, f.Layout.NumBlocks())
	require.False(t, f.Layout.FirstBlock().Valid())
}

func TestBranchArgs(t *testing.T) {
	f := NewFunction("f", Signature{})
	b := NewBuilder(f)

	blk0 := b.Block()
	_ = blk0
	cond := b.Iconst(TypeI32, 1)
	x := b.Iconst(TypeI32, 2)
	dest := f.MakeBlock()
	br := b.Brnz(cond, dest, x)
	jmp := b.Jump(dest, x)

	require.Equal(t, []Value{cond, x}, f.InstArgs(br))
	require.Equal(t, []Value{x}, f.BranchArgs(br))
	require.Equal(t, []Value{x}, f.BranchArgs(jmp))
	require.Equal(t, BranchKindSingleDest, f.InstData(br).BranchKind())
	require.Equal(t, dest, f.InstData(br).Dest)
}

func TestValueAliases(t *testing.T) {
	f := NewFunction("f", Signature{})
	b := NewBuilder(f)
	b.Block()
	v0 := b.Iconst(TypeI32, 1)
	v1 := b.Iconst(TypeI32, 1)
	sum := b.Iadd(TypeI32, v0, v1)
	ret := b.Return(sum)

	f.ChangeToAlias(v1, v0)
	require.Equal(t, v0, f.ResolveAlias(v1))
	require.Equal(t, v0, f.ResolveAlias(v0))

	f.ResolveAliases()
	_, sumInst, _, _ := f.ValueDef(sum)
	require.Equal(t, []Value{v0, v0}, f.InstArgs(sumInst))
	require.Equal(t, []Value{sum}, f.InstArgs(ret))
}

func TestConstantPoolInterning(t *testing.T) {
	var p ConstantPool
	c1 := p.Insert([]byte{1, 2, 3, 4})
	c2 := p.Insert([]byte{5, 6})
	c3 := p.Insert([]byte{1, 2, 3, 4})
	require.Equal(t, c1, c3)
	require.NotEqual(t, c1, c2)
	require.Equal(t, 2, p.Len())
	require.Equal(t, uint32(6), p.TotalSize())

	p.SetOffset(c1, 64)
	require.Equal(t, uint32(64), p.Offset(c1))
	require.Panics(t, func() { p.SetOffset(c1, 68) })
	require.Panics(t, func() { p.Offset(c2) })
}

func TestBlockOffsets(t *testing.T) {
	var o BlockOffsets
	o.Resize(3)
	require.False(t, o.Known(Block(2)))
	require.Panics(t, func() { o.Get(Block(2)) })
	o.Set(Block(2), 16)
	require.Equal(t, uint32(16), o.Get(Block(2)))
	o.Clear()
	require.False(t, o.Known(Block(2)))
}

func TestFunctionString(t *testing.T) {
	f := NewFunction("add", Signature{Params: []Type{TypeI32, TypeI32}, Results: []Type{TypeI32}})
	b := NewBuilder(f)
	b.Block()
	x := b.Param(TypeI32)
	y := b.Param(TypeI32)
	sum := b.Iadd(TypeI32, x, y)
	b.Return(sum)

	exp := `function %add(i32, i32) -> i32 {
block0(v0: i32, v1: i32):
    v2 = iadd.i32 v0, v1
    return v2
}
`
	require.Equal(t, exp, f.String())
}
