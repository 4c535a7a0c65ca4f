package passes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gantry-go/gantry/internal/domtree"
	"github.com/gantry-go/gantry/internal/flowgraph"
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/isa/amd64"
	"github.com/gantry-go/gantry/internal/loops"
	"github.com/gantry-go/gantry/internal/settings"
)

func newTestTarget() isa.TargetISA {
	return amd64.New(settings.NewBuilder().Finish())
}

func analyze(f *ir.Function) (*flowgraph.ControlFlowGraph, *domtree.DominatorTree) {
	cfg := flowgraph.New()
	cfg.Compute(f)
	dt := domtree.New()
	dt.Compute(f, cfg)
	return cfg, dt
}

func defInst(f *ir.Function, v ir.Value) ir.Inst {
	_, inst, _, _ := f.ValueDef(v)
	return inst
}

func TestLegalizeAssignsEncodings(t *testing.T) {
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	v := b.Iconst(ir.TypeI32, 1)
	b.Return(v)

	require.NoError(t, Legalize(f, tgt))
	for i := ir.Inst(1); int(i) <= f.NumInsts(); i++ {
		require.True(t, f.Encodings[i].IsLegal(), "inst %s left unencoded", i)
	}
}

func TestLegalizeReportsUnsupported(t *testing.T) {
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	c := b.Iconst(ir.TypeI32, 1)
	x := b.Fconst(ir.TypeF32, 0x3f800000)
	y := b.Fconst(ir.TypeF32, 0x40000000)
	v := b.Select(ir.TypeF32, c, x, y) // no float conditional move
	b.Return(v)

	err := Legalize(f, tgt)
	require.ErrorIs(t, err, ErrUnsupported)
	require.Contains(t, err.Error(), "select")
}

func TestPreoptFoldsConstants(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	v0 := b.Iconst(ir.TypeI32, 6)
	v1 := b.Iconst(ir.TypeI32, 7)
	v2 := b.Imul(ir.TypeI32, v0, v1)
	z := b.Iconst(ir.TypeI32, 0)
	v3 := b.Iadd(ir.TypeI32, v2, z)
	v4 := b.Icmp(ir.IntCCLtS, ir.TypeI32, v0, v1)
	b.Return(v3)
	_ = v4

	Preopt(f)

	c, ok := constValue(f, v2)
	require.True(t, ok)
	require.EqualValues(t, 42, c)
	// iadd v2, 0 reduced to v2 itself.
	require.Equal(t, v2, f.ResolveAlias(v3))
	require.False(t, f.Layout.InstBlock(defInst(f, v3)).Valid())
	// the return now reads the folded value directly
	require.Equal(t, []ir.Value{v2}, f.InstArgs(f.Layout.LastInst(f.Entry())))

	c, ok = constValue(f, v4)
	require.True(t, ok)
	require.EqualValues(t, 1, c)
}

func TestPreoptWrapsToInt32(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	x := b.Iconst(ir.TypeI32, 0x7fffffff)
	y := b.Iconst(ir.TypeI32, 1)
	v := b.Iadd(ir.TypeI32, x, y)
	b.Return(v)

	Preopt(f)

	c, ok := constValue(f, v)
	require.True(t, ok)
	require.EqualValues(t, -0x80000000, c)
}

func TestPreoptIdentities(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	p := b.Param(ir.TypeI32)
	z := b.Iconst(ir.TypeI32, 0)
	sub := b.Isub(ir.TypeI32, p, z)
	xor := b.Binary(ir.OpcodeBxor, ir.TypeI32, p, p)
	c := b.Iconst(ir.TypeI32, 1)
	sel := b.Select(ir.TypeI32, c, sub, xor)
	b.Return(sel)

	Preopt(f)

	require.Equal(t, p, f.ResolveAlias(sub))
	v, ok := constValue(f, xor)
	require.True(t, ok)
	require.Zero(t, v)
	// select on a true constant keeps its first arm
	require.Equal(t, p, f.ResolveAlias(sel))
}

func TestPostoptConstantBranches(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b0 := b.Block()
	b1 := b.RawBlock()
	b2 := b.RawBlock()
	c := b.Iconst(ir.TypeI32, 1)
	b.Brnz(c, b2)
	b.Jump(b1)
	f.Layout.AppendBlock(b1)
	b.SetBlock(b1)
	brz := b.Brz(c, b1)
	b.Jump(b2)
	f.Layout.AppendBlock(b2)
	b.SetBlock(b2)
	b.Return()

	cfg, _ := analyze(f)
	Postopt(f, cfg, newTestTarget())

	// always taken: the block now ends in an unconditional jump
	term := f.Layout.LastInst(b0)
	require.Equal(t, ir.OpcodeJump, f.InstData(term).Opcode)
	require.Equal(t, b2, f.InstData(term).Dest)
	require.Equal(t, []ir.Block{b2}, cfg.Succs(b0))

	// never taken: the branch is a nop and the fallthrough jump survives
	require.Equal(t, ir.OpcodeNop, f.InstData(brz).Opcode)
	require.Equal(t, []ir.Block{b2}, cfg.Succs(b1))
}

func TestDCERemovesDeadChain(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	live := b.Iconst(ir.TypeI32, 1)
	dead := b.Iconst(ir.TypeI32, 2)
	deadUse := b.Iadd(ir.TypeI32, dead, dead)
	b.Return(live)
	_ = deadUse

	DCE(f)

	require.True(t, f.Layout.InstBlock(defInst(f, live)).Valid())
	require.False(t, f.Layout.InstBlock(defInst(f, dead)).Valid())
	require.False(t, f.Layout.InstBlock(defInst(f, deadUse)).Valid())
}

func TestSimpleGVNDedups(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	p := b.Param(ir.TypeI32)
	v1 := b.Iadd(ir.TypeI32, p, p)
	v2 := b.Iadd(ir.TypeI32, p, p)
	sum := b.Iadd(ir.TypeI32, v1, v2)
	b.Return(sum)

	_, dt := analyze(f)
	SimpleGVN(f, dt)

	require.Equal(t, v1, f.ResolveAlias(v2))
	require.False(t, f.Layout.InstBlock(defInst(f, v2)).Valid())
	require.Equal(t, []ir.Value{v1, v1}, f.InstArgs(defInst(f, sum)))
}

func TestSimpleGVNRespectsDominance(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	p := b.Param(ir.TypeI32)
	left := b.RawBlock()
	right := b.RawBlock()
	b.Brnz(p, right)
	b.Jump(left)
	f.Layout.AppendBlock(left)
	b.SetBlock(left)
	v1 := b.Iadd(ir.TypeI32, p, p)
	b.Return(v1)
	f.Layout.AppendBlock(right)
	b.SetBlock(right)
	v2 := b.Iadd(ir.TypeI32, p, p)
	b.Return(v2)

	_, dt := analyze(f)
	SimpleGVN(f, dt)

	// neither sibling dominates the other; both definitions stay
	require.True(t, f.Layout.InstBlock(defInst(f, v1)).Valid())
	require.True(t, f.Layout.InstBlock(defInst(f, v2)).Valid())
}

func TestLICMHoistsInvariant(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b0 := b.Block()
	v0 := b.Iconst(ir.TypeI32, 3)
	loop := b.RawBlock()
	exit := b.RawBlock()
	b.Jump(loop, v0)
	f.Layout.AppendBlock(loop)
	b.SetBlock(loop)
	p := b.Param(ir.TypeI32)
	inv := b.Iadd(ir.TypeI32, v0, v0)
	dec := b.Isub(ir.TypeI32, p, inv)
	b.Brnz(dec, loop, dec)
	b.Jump(exit)
	f.Layout.AppendBlock(exit)
	b.SetBlock(exit)
	b.Return()

	cfg, dt := analyze(f)
	la := loops.New()
	la.Compute(f, cfg, dt)
	require.Equal(t, 1, la.NumLoops())

	LICM(f, cfg, dt, la)

	// the invariant add moved to the entry, above its jump
	require.Equal(t, b0, f.Layout.InstBlock(defInst(f, inv)))
	require.Equal(t, ir.OpcodeJump, f.InstData(f.Layout.LastInst(b0)).Opcode)
	// the decrement depends on the loop parameter and stays put
	require.Equal(t, loop, f.Layout.InstBlock(defInst(f, dec)))
}

func TestEliminateUnreachableCode(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{})
	b := ir.NewBuilder(f)
	b.Block()
	dead := b.RawBlock()
	tail := b.RawBlock()
	b.Jump(tail)
	f.Layout.AppendBlock(dead)
	b.SetBlock(dead)
	b.Jump(tail)
	f.Layout.AppendBlock(tail)
	b.SetBlock(tail)
	b.Return()

	cfg, dt := analyze(f)
	require.Equal(t, 2, cfg.NumPreds(tail))

	EliminateUnreachableCode(f, cfg, dt)

	require.False(t, f.Layout.IsBlockInserted(dead))
	require.Equal(t, 2, f.Layout.NumBlocks())
	require.Equal(t, 1, cfg.NumPreds(tail))
	require.False(t, dt.IsValid())
}

func TestCanonicalizeNaNsBuildsDiamond(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeF32}})
	b := ir.NewBuilder(f)
	entry := b.Block()
	p := b.Param(ir.TypeF32)
	v := b.Binary(ir.OpcodeFadd, ir.TypeF32, p, p)
	b.Return(v)

	cfg := flowgraph.New()
	cfg.Compute(f)
	CanonicalizeNaNs(f, cfg)

	require.Equal(t, 3, f.Layout.NumBlocks())
	cont := f.Layout.NextBlock(entry)
	nan := f.Layout.NextBlock(cont)

	// the entry tests its result and jumps to the continuation on the
	// not-NaN path
	term := f.InstData(f.Layout.LastInst(entry))
	require.Equal(t, ir.OpcodeJump, term.Opcode)
	require.Equal(t, cont, term.Dest)

	// the return moved to the continuation and reads the merged parameter
	merged := f.BlockParams(cont)[0]
	ret := f.Layout.LastInst(cont)
	require.Equal(t, ir.OpcodeReturn, f.InstData(ret).Opcode)
	require.Equal(t, []ir.Value{merged}, f.InstArgs(ret))

	// the NaN path materializes the canonical quiet NaN
	fc := f.InstData(f.Layout.FirstInst(nan))
	require.Equal(t, ir.OpcodeFconst, fc.Opcode)
	require.EqualValues(t, canonicalNaN32, fc.Imm)
	require.Equal(t, cont, f.InstData(f.Layout.LastInst(nan)).Dest)

	require.True(t, cfg.IsValid())
	require.Equal(t, 2, cfg.NumPreds(cont))
}

func TestShrinkLeavesBranchesAlone(t *testing.T) {
	tgt := newTestTarget()
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)
	b.Block()
	p := b.Param(ir.TypeI32)
	dest := b.RawBlock()
	br := b.Brnz(p, dest)
	b.Jump(dest)
	f.Layout.AppendBlock(dest)
	b.SetBlock(dest)
	b.Return()

	require.NoError(t, Legalize(f, tgt))

	// force the long branch form; shrinking must not second-guess the
	// relaxation engine
	d := f.InstData(br)
	long := tgt.LegalEncodings(f, d, d.Typ)[1]
	f.Encodings[br] = long

	Shrink(f, tgt)
	require.Equal(t, long, f.Encodings[br])
}
