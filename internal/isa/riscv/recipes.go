package riscv

import (
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// Recipes. Every base instruction is four bytes, so most recipes have fixed
// sizes and the interesting size models are the sequences: compares expand
// per condition and iconst per immediate. Conditional branches have a single
// recipe with the 13 bit B format range; there is no long form, so a branch
// whose target moves out of range is a fatal relaxation error on this
// target.
const (
	recipeInvalid = iota
	recipeStub    // no bytes: fallthrough, nop
	recipeR       // three operand integer ALU
	recipeIcmp    // slt/sltu sequence producing 0 or 1
	recipeFrr     // three operand float arithmetic
	recipeFcmp    // feq/flt sequence producing 0 or 1
	recipeSelect  // branch over two moves
	recipeMv      // integer copy to the result register
	recipeFmv     // float copy via fsgnj
	recipeRegmove // move between explicit registers
	recipeIconst  // li expansion, sized by the immediate
	recipeFconst  // auipc plus a float load from the pool
	recipeBr      // beq/bne against x0
	recipeJal
	recipeCall // argument moves, auipc+jalr pair, result move
	recipeRet
	recipeTrap // ebreak
	recipeSpill
	recipeFill
	recipeAdjustSp
	numRecipes
)

var recipeNames = [numRecipes]string{
	"", "stub", "r", "icmp", "frr", "fcmp", "select", "mv", "fmv",
	"regmove", "iconst", "fconst", "br", "jal", "call", "ret", "trap",
	"spill", "fill", "adjust_sp",
}

func anyReg(c regalloc.RegClass) regalloc.OperandConstraint {
	return regalloc.OperandConstraint{Kind: regalloc.ConstraintAnyReg, Class: c}
}

var (
	inReg  = anyReg(regalloc.ClassInt)
	fpReg  = anyReg(regalloc.ClassFloat)
	inStak = regalloc.OperandConstraint{Kind: regalloc.ConstraintStack}
)

var (
	conNone    = &isa.RecipeConstraints{}
	conR       = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg, inReg}, Outs: []regalloc.OperandConstraint{inReg}}
	conIcmp    = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg, inReg}, Outs: []regalloc.OperandConstraint{inReg}}
	conFrr     = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{fpReg, fpReg}, Outs: []regalloc.OperandConstraint{fpReg}}
	conFcmp    = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{fpReg, fpReg}, Outs: []regalloc.OperandConstraint{inReg}}
	conSelect  = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg, inReg, inReg}, Outs: []regalloc.OperandConstraint{inReg}}
	conMv      = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg}, Outs: []regalloc.OperandConstraint{inReg}}
	conFmv     = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{fpReg}, Outs: []regalloc.OperandConstraint{fpReg}}
	conRegmove = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg}}
	conIconst  = &isa.RecipeConstraints{Outs: []regalloc.OperandConstraint{inReg}}
	conFconst  = &isa.RecipeConstraints{Outs: []regalloc.OperandConstraint{fpReg}}
	conBranch  = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg}}
	conJump    = conNone
	conCall    = &isa.RecipeConstraints{}
	conRet     = &isa.RecipeConstraints{}
	conSpill   = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg}, Outs: []regalloc.OperandConstraint{inStak}}
	conFill    = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inStak}, Outs: []regalloc.OperandConstraint{inReg}}
)

func buildEncInfo() *isa.EncodingInfo {
	info := &isa.EncodingInfo{
		Sizing:      make([]isa.RecipeSizing, numRecipes),
		Constraints: make([]*isa.RecipeConstraints, numRecipes),
		Names:       recipeNames[:],
	}
	set := func(recipe int, s isa.RecipeSizing, c *isa.RecipeConstraints) {
		info.Sizing[recipe] = s
		info.Constraints[recipe] = c
	}
	set(recipeStub, isa.RecipeSizing{}, conNone)
	set(recipeR, isa.RecipeSizing{BaseSize: 4}, conR)
	set(recipeIcmp, isa.RecipeSizing{CalcSize: sizeOf(emitIcmp)}, conIcmp)
	set(recipeFrr, isa.RecipeSizing{BaseSize: 4}, conFrr)
	set(recipeFcmp, isa.RecipeSizing{CalcSize: sizeOf(emitFcmp)}, conFcmp)
	set(recipeSelect, isa.RecipeSizing{BaseSize: 16}, conSelect)
	set(recipeMv, isa.RecipeSizing{BaseSize: 4}, conMv)
	set(recipeFmv, isa.RecipeSizing{BaseSize: 4}, conFmv)
	set(recipeRegmove, isa.RecipeSizing{BaseSize: 4}, conRegmove)
	set(recipeIconst, isa.RecipeSizing{CalcSize: sizeOf(emitIconst)}, conIconst)
	set(recipeFconst, isa.RecipeSizing{BaseSize: 8}, conFconst)
	set(recipeBr, isa.RecipeSizing{BaseSize: 4, Range: isa.BranchRange{Origin: 0, Bits: 13}}, conBranch)
	set(recipeJal, isa.RecipeSizing{BaseSize: 4, Range: isa.BranchRange{Origin: 0, Bits: 21}}, conJump)
	set(recipeCall, isa.RecipeSizing{CalcSize: sizeOf(emitCall)}, conCall)
	set(recipeRet, isa.RecipeSizing{CalcSize: sizeOf(emitRet)}, conRet)
	set(recipeTrap, isa.RecipeSizing{BaseSize: 4}, conNone)
	set(recipeSpill, isa.RecipeSizing{BaseSize: 4}, conSpill)
	set(recipeFill, isa.RecipeSizing{BaseSize: 4}, conFill)
	set(recipeAdjustSp, isa.RecipeSizing{BaseSize: 4}, conNone)
	return info
}
