package amd64

import (
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// Recipes. The recipe fixes the instruction shape, size model and operand
// constraints; Encoding.Bits carries the opcode byte or condition the shape
// leaves open. Branches come in a short and a long recipe over the same
// constraint table, so relaxation can trade one for the other freely.
const (
	recipeInvalid = iota
	recipeStub    // no bytes: fallthrough, nop
	recipeRr      // two operand integer ALU through a move to the result register
	recipeCmp     // cmp, setcc, movzx
	recipeFrr     // two operand float arithmetic through a result move
	recipeFcmp    // SSE compare into the float scratch, mask to 0 or 1
	recipeSelect  // test plus cmov
	recipeCopy    // register to register move to the result
	recipeRegmove // move between explicit registers
	recipeIconst  // immediate load, sized by the immediate
	recipeFconst  // rip relative constant pool load
	recipeJmpb    // jmp rel8
	recipeJmpd    // jmp rel32
	recipeBrb     // test plus jcc rel8
	recipeBrd     // test plus jcc rel32
	recipeBrTable // bounds check, table load, indirect jump
	recipeCall    // argument moves, call rel32, result move
	recipeRet     // result move, ret
	recipeTrap    // ud2
	recipeSpill   // store to the frame
	recipeFill    // load from the frame
	recipeAdjustSp
	numRecipes
)

var recipeNames = [numRecipes]string{
	"", "stub", "rr", "cmp", "frr", "fcmp", "select", "copy", "regmove",
	"iconst", "fconst", "jmpb", "jmpd", "brb", "brd", "br_table", "call",
	"ret", "trap", "spill", "fill", "adjust_sp",
}

func anyReg(c regalloc.RegClass) regalloc.OperandConstraint {
	return regalloc.OperandConstraint{Kind: regalloc.ConstraintAnyReg, Class: c}
}

var (
	inReg  = anyReg(regalloc.ClassInt)
	fpReg  = anyReg(regalloc.ClassFloat)
	inStak = regalloc.OperandConstraint{Kind: regalloc.ConstraintStack}
)

// Constraint tables. Recipes share them; the relaxation reselection rule
// compares these by pointer, so brb/brd and jmpb/jmpd each point at one
// table.
var (
	conNone    = &isa.RecipeConstraints{}
	conAlu     = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg, inReg}, Outs: []regalloc.OperandConstraint{inReg}}
	conCmp     = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg, inReg}, Outs: []regalloc.OperandConstraint{inReg}}
	conFrr     = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{fpReg, fpReg}, Outs: []regalloc.OperandConstraint{fpReg}}
	conFcmp    = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{fpReg, fpReg}, Outs: []regalloc.OperandConstraint{inReg}}
	conSelect  = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg, inReg, inReg}, Outs: []regalloc.OperandConstraint{inReg}}
	conCopy    = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg}, Outs: []regalloc.OperandConstraint{inReg}}
	conRegmove = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg}}
	conIconst  = &isa.RecipeConstraints{Outs: []regalloc.OperandConstraint{inReg}}
	conFconst  = &isa.RecipeConstraints{Outs: []regalloc.OperandConstraint{fpReg}}
	conBranch  = &isa.RecipeConstraints{Ins: []regalloc.OperandConstraint{inReg}}
	conJump    = conNone
	conCall    = &isa.RecipeConstraints{}
	conRet     = &isa.RecipeConstraints{}
	conTrap    = conNone
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
	set(recipeRr, isa.RecipeSizing{CalcSize: sizeOf(emitRr)}, conAlu)
	set(recipeCmp, isa.RecipeSizing{CalcSize: sizeOf(emitCmp)}, conCmp)
	set(recipeFrr, isa.RecipeSizing{CalcSize: sizeOf(emitFrr)}, conFrr)
	set(recipeFcmp, isa.RecipeSizing{CalcSize: sizeOf(emitFcmp)}, conFcmp)
	set(recipeSelect, isa.RecipeSizing{CalcSize: sizeOf(emitSelect)}, conSelect)
	set(recipeCopy, isa.RecipeSizing{CalcSize: sizeOf(emitCopy)}, conCopy)
	set(recipeRegmove, isa.RecipeSizing{CalcSize: sizeOf(emitRegmove)}, conRegmove)
	set(recipeIconst, isa.RecipeSizing{CalcSize: sizeOf(emitIconst)}, conIconst)
	set(recipeFconst, isa.RecipeSizing{CalcSize: sizeOf(emitFconst)}, conFconst)
	set(recipeJmpb, isa.RecipeSizing{BaseSize: 2, Range: isa.BranchRange{Origin: 2, Bits: 8}}, conJump)
	set(recipeJmpd, isa.RecipeSizing{BaseSize: 5, Range: isa.BranchRange{Origin: 5, Bits: 32}}, conJump)
	set(recipeBrb, isa.RecipeSizing{BaseSize: 5, Range: isa.BranchRange{Origin: 5, Bits: 8}}, conBranch)
	set(recipeBrd, isa.RecipeSizing{BaseSize: 9, Range: isa.BranchRange{Origin: 9, Bits: 32}}, conBranch)
	set(recipeBrTable, isa.RecipeSizing{CalcSize: sizeOf(emitBrTable)}, conBranch)
	set(recipeCall, isa.RecipeSizing{CalcSize: sizeOf(emitCall)}, conCall)
	set(recipeRet, isa.RecipeSizing{CalcSize: sizeOf(emitRet)}, conRet)
	set(recipeTrap, isa.RecipeSizing{BaseSize: 2}, conTrap)
	set(recipeSpill, isa.RecipeSizing{CalcSize: sizeOf(emitSpill)}, conSpill)
	set(recipeFill, isa.RecipeSizing{CalcSize: sizeOf(emitFill)}, conFill)
	set(recipeAdjustSp, isa.RecipeSizing{CalcSize: sizeOf(emitAdjustSp)}, conNone)
	return info
}
