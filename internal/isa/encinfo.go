package isa

import (
	"fmt"

	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// RecipeConstraints is the operand constraint shape of one recipe: where its
// value operands must live and where its results go. Recipes share constraint
// tables, and identity of the pointer is what "same constraints" means when
// branch relaxation swaps one encoding for another without re-running the
// register allocator.
type RecipeConstraints struct {
	// Ins constrains the fixed value operands, in operand order.
	Ins []regalloc.OperandConstraint
	// Outs constrains the results.
	Outs []regalloc.OperandConstraint
}

// SizeCalc computes the encoded size of one instruction when it depends on
// more than the recipe, typically on which concrete registers the operands
// occupy after diversions.
type SizeCalc func(f *ir.Function, inst ir.Inst, divert *regalloc.RegDiversions) uint32

// RecipeSizing is the size model of one recipe.
type RecipeSizing struct {
	// BaseSize is the encoded size in bytes.
	BaseSize uint32
	// CalcSize, when non nil, overrides BaseSize. It must depend only on the
	// instruction and the diversion state, so sizing and emission agree.
	CalcSize SizeCalc
	// Range is the branch displacement window; the zero value for recipes
	// that are not branches.
	Range BranchRange
}

// EncodingInfo gives the pipeline per recipe metadata. All three tables are
// indexed by recipe number and keep a dead entry for the invalid recipe 0.
type EncodingInfo struct {
	Sizing      []RecipeSizing
	Constraints []*RecipeConstraints
	Names       []string
}

// ByteSize returns the encoded size of inst under enc and the current
// diversion state.
func (e *EncodingInfo) ByteSize(enc ir.Encoding, f *ir.Function, inst ir.Inst, divert *regalloc.RegDiversions) uint32 {
	s := &e.Sizing[enc.Recipe]
	if s.CalcSize != nil {
		return s.CalcSize(f, inst, divert)
	}
	return s.BaseSize
}

// BranchRange returns enc's displacement window. ok is false when enc is not
// a branch recipe.
func (e *EncodingInfo) BranchRange(enc ir.Encoding) (r BranchRange, ok bool) {
	r = e.Sizing[enc.Recipe].Range
	return r, r.IsBranch()
}

// OperandConstraints returns enc's constraint table. Compare the result by
// pointer to decide whether two encodings are interchangeable.
func (e *EncodingInfo) OperandConstraints(enc ir.Encoding) *RecipeConstraints {
	return e.Constraints[enc.Recipe]
}

// DisplayEnc formats enc for diagnostics.
func (e *EncodingInfo) DisplayEnc(enc ir.Encoding) string {
	if !enc.IsLegal() {
		return "-"
	}
	if int(enc.Recipe) < len(e.Names) {
		return fmt.Sprintf("%s#%02x", e.Names[enc.Recipe], enc.Bits)
	}
	return enc.String()
}
