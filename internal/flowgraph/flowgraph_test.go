package flowgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gantry-go/gantry/internal/ir"
)

// diamond builds:
//
//	block0 -> block1, block2
//	block1 -> block3
//	block2 -> block3
func diamond(t *testing.T) (*ir.Function, []ir.Block) {
	t.Helper()
	f := ir.NewFunction("diamond", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)

	blk0 := b.Block()
	cond := b.Param(ir.TypeI32)
	blk1 := b.RawBlock()
	blk2 := b.RawBlock()
	blk3 := b.RawBlock()

	b.Brnz(cond, blk1)
	b.Jump(blk2)

	f.Layout.AppendBlock(blk1)
	b.SetBlock(blk1)
	b.Jump(blk3)

	f.Layout.AppendBlock(blk2)
	b.SetBlock(blk2)
	b.Jump(blk3)

	f.Layout.AppendBlock(blk3)
	b.SetBlock(blk3)
	b.Return()

	return f, []ir.Block{blk0, blk1, blk2, blk3}
}

func TestComputeDiamond(t *testing.T) {
	f, blks := diamond(t)
	cfg := New()
	cfg.Compute(f)
	require.True(t, cfg.IsValid())

	require.Equal(t, []ir.Block{blks[1], blks[2]}, cfg.Succs(blks[0]))
	require.Equal(t, []ir.Block{blks[3]}, cfg.Succs(blks[1]))
	require.Equal(t, []ir.Block{blks[3]}, cfg.Succs(blks[2]))
	require.Empty(t, cfg.Succs(blks[3]))

	require.Equal(t, 0, cfg.NumPreds(blks[0]))
	require.Equal(t, 1, cfg.NumPreds(blks[1]))
	require.Equal(t, 2, cfg.NumPreds(blks[3]))

	preds := cfg.Preds(blks[3])
	require.Equal(t, blks[1], preds[0].Block)
	require.Equal(t, blks[2], preds[1].Block)
}

func TestPredecessorNamesBranchInst(t *testing.T) {
	f, blks := diamond(t)
	cfg := New()
	cfg.Compute(f)

	preds := cfg.Preds(blks[1])
	require.Len(t, preds, 1)
	require.Equal(t, blks[0], preds[0].Block)
	require.Equal(t, ir.OpcodeBrnz, f.InstData(preds[0].Inst).Opcode)
}

func TestRecomputeBlock(t *testing.T) {
	f, blks := diamond(t)
	cfg := New()
	cfg.Compute(f)

	// Redirect block1's jump to block2 and recompute only block1.
	br := f.Layout.LastInst(blks[1])
	f.InstData(br).ChangeBranchDestination(blks[2])
	cfg.RecomputeBlock(f, blks[1])

	require.Equal(t, []ir.Block{blks[2]}, cfg.Succs(blks[1]))
	require.Equal(t, 1, cfg.NumPreds(blks[3]))
	require.Equal(t, 2, cfg.NumPreds(blks[2]))
}

func TestJumpTableEdges(t *testing.T) {
	f := ir.NewFunction("jt", ir.Signature{Params: []ir.Type{ir.TypeI32}})
	b := ir.NewBuilder(f)

	blk0 := b.Block()
	idx := b.Param(ir.TypeI32)
	blk1 := b.RawBlock()
	blk2 := b.RawBlock()
	// block2 appears twice in the table; the successor list stays deduplicated.
	jt := f.MakeJumpTable(ir.NewJumpTableData([]ir.Block{blk1, blk2, blk2}))
	b.BrTable(idx, jt)
	b.Jump(blk1)

	f.Layout.AppendBlock(blk1)
	b.SetBlock(blk1)
	b.Return()
	f.Layout.AppendBlock(blk2)
	b.SetBlock(blk2)
	b.Return()

	cfg := New()
	cfg.Compute(f)
	require.Equal(t, []ir.Block{blk1, blk2}, cfg.Succs(blk0))
	// block1 is reachable both through the table and the fallback jump.
	require.Equal(t, 2, cfg.NumPreds(blk1))
	require.Equal(t, 1, cfg.NumPreds(blk2))
}
