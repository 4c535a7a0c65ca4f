// Package passes holds the function transformations the compilation pipeline
// runs between IR construction and branch relaxation: encoding selection,
// the optimization passes gated by the optimization level, and structural
// cleanups. Every pass mutates the function in place; passes that change the
// block structure recompute or invalidate the analyses they break.
package passes

import (
	"errors"
	"fmt"

	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// ErrUnsupported reports an instruction the target has no encoding for.
var ErrUnsupported = errors.New("unsupported instruction")

// Legalize assigns every instruction in the layout its cheapest legal
// encoding. Branch relaxation and shrinking may re-pick encodings later, but
// only among candidates the target itself offered here.
func Legalize(f *ir.Function, target isa.TargetISA) error {
	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
			d := f.InstData(i)
			encs := target.LegalEncodings(f, d, d.Typ)
			if len(encs) == 0 {
				return fmt.Errorf("%w: %s has no %s encoding",
					ErrUnsupported, ir.FormatInst(f, i), target.Name())
			}
			f.Encodings[i] = encs[0]
		}
	}
	return nil
}

// Shrink re-picks the smallest legal encoding for every non-branch
// instruction, keeping the exact operand constraint shape the register
// allocator satisfied. Branches are left to relaxation, which is the only
// pass allowed to weigh an encoding against its destination offset.
func Shrink(f *ir.Function, target isa.TargetISA) {
	info := target.EncodingInfo()
	var divert regalloc.RegDiversions
	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		divert.Clear()
		for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
			d := f.InstData(i)
			if d.BranchKind() == ir.BranchKindNone {
				cur := f.Encodings[i]
				cons := info.OperandConstraints(cur)
				best, bestSize := cur, info.ByteSize(cur, f, i, &divert)
				for _, cand := range target.LegalEncodings(f, d, d.Typ) {
					if cand == cur || info.OperandConstraints(cand) != cons {
						continue
					}
					if size := info.ByteSize(cand, f, i, &divert); size < bestSize {
						best, bestSize = cand, size
					}
				}
				f.Encodings[i] = best
			}
			divert.Apply(f, d)
		}
	}
}
