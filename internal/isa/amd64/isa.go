// Package amd64 is the x86-64 target. Instructions are encoded with REX
// prefixes as needed, so recipe sizes depend on the registers in use; branch
// recipes instead force a REX on their test so the short and long forms keep
// fixed sizes for relaxation.
package amd64

import (
	"errors"

	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
	"github.com/gantry-go/gantry/internal/settings"
)

// ErrFrameTooLarge reports a stack frame beyond the signed 32 bit adjustment
// the prologue can encode.
var ErrFrameTooLarge = errors.New("amd64: stack frame exceeds 2GiB")

// fcmpSwap marks an fcmp encoding whose operands are exchanged before the
// compare, turning gt into lt.
const fcmpSwap = 0x100

type target struct {
	flags   settings.Flags
	encInfo *isa.EncodingInfo
	mach    isa.MachBackend
}

// New returns the amd64 target configured by flags.
func New(flags settings.Flags) isa.TargetISA {
	t := &target{flags: flags, encInfo: buildEncInfo()}
	t.mach = newMachBackend(t)
	return t
}

func (t *target) Name() string { return "amd64" }

func (t *target) Flags() settings.Flags { return t.flags }

func (t *target) RegInfo() *isa.RegInfo { return regInfo }

func (t *target) EncodingInfo() *isa.EncodingInfo { return t.encInfo }

func (t *target) MachBackend() isa.MachBackend { return t.mach }

func (t *target) AllocatableRegs(class regalloc.RegClass) []ir.RegUnit {
	if class == regalloc.ClassFloat {
		return allocatableFloat
	}
	return allocatableInt
}

func (t *target) RegmoveEncoding(typ ir.Type) ir.Encoding {
	return ir.Encoding{Recipe: recipeRegmove}
}

var (
	encStub    = []ir.Encoding{{Recipe: recipeStub}}
	encIconst  = []ir.Encoding{{Recipe: recipeIconst}}
	encFconst  = []ir.Encoding{{Recipe: recipeFconst}}
	encSelect  = []ir.Encoding{{Recipe: recipeSelect}}
	encJump    = []ir.Encoding{{Recipe: recipeJmpb}, {Recipe: recipeJmpd}}
	encBrTable = []ir.Encoding{{Recipe: recipeBrTable}}
	encCall    = []ir.Encoding{{Recipe: recipeCall}}
	encRet     = []ir.Encoding{{Recipe: recipeRet}}
	encTrap    = []ir.Encoding{{Recipe: recipeTrap}}
	encCopy    = []ir.Encoding{{Recipe: recipeCopy}}
	encRegmove = []ir.Encoding{{Recipe: recipeRegmove}}
	encSpill   = []ir.Encoding{{Recipe: recipeSpill}}
	encFill    = []ir.Encoding{{Recipe: recipeFill}}
)

func aluOpBits(op ir.Opcode) uint16 {
	switch op {
	case ir.OpcodeIadd:
		return 0x01
	case ir.OpcodeIsub:
		return 0x29
	case ir.OpcodeBand:
		return 0x21
	case ir.OpcodeBor:
		return 0x09
	case ir.OpcodeBxor:
		return 0x31
	case ir.OpcodeImul:
		return 0x0faf
	}
	panic("BUG: no ALU opcode byte for " + op.String())
}

func fparithOpBits(op ir.Opcode) uint16 {
	switch op {
	case ir.OpcodeFadd:
		return 0x58
	case ir.OpcodeFsub:
		return 0x5c
	case ir.OpcodeFmul:
		return 0x59
	case ir.OpcodeFdiv:
		return 0x5e
	}
	panic("BUG: no SSE opcode byte for " + op.String())
}

// ccBits maps an integer condition to its x86 condition code nibble.
func ccBits(cc ir.IntCC) uint16 {
	switch cc {
	case ir.IntCCEq:
		return 0x4
	case ir.IntCCNe:
		return 0x5
	case ir.IntCCLtS:
		return 0xc
	case ir.IntCCGeS:
		return 0xd
	case ir.IntCCGtS:
		return 0xf
	case ir.IntCCLeS:
		return 0xe
	case ir.IntCCLtU:
		return 0x2
	case ir.IntCCGeU:
		return 0x3
	case ir.IntCCGtU:
		return 0x7
	case ir.IntCCLeU:
		return 0x6
	}
	panic("BUG: no condition code for " + cc.String())
}

// fcmpPredBits maps a float condition to a cmpss/cmpsd predicate, possibly
// with the swap flag. The predicates follow IEEE: eq and lt are false on NaN,
// ne is true on NaN.
func fcmpPredBits(cc ir.FloatCC) uint16 {
	switch cc {
	case ir.FloatCCEq:
		return 0
	case ir.FloatCCLt:
		return 1
	case ir.FloatCCUno:
		return 3
	case ir.FloatCCNe:
		return 4
	case ir.FloatCCOrd:
		return 7
	case ir.FloatCCGt:
		return fcmpSwap | 1
	}
	panic("BUG: no SSE predicate for " + cc.String())
}

// LegalEncodings implements isa.TargetISA. Floats use the SSE scalar forms;
// select over float values has no conditional move and is not supported.
func (t *target) LegalEncodings(f *ir.Function, d *ir.InstructionData, ctrlType ir.Type) []ir.Encoding {
	switch d.Opcode {
	case ir.OpcodeNop, ir.OpcodeFallthrough:
		return encStub
	case ir.OpcodeIconst:
		if ctrlType.IsInt() {
			return encIconst
		}
	case ir.OpcodeFconst:
		if ctrlType.IsFloat() {
			return encFconst
		}
	case ir.OpcodeIadd, ir.OpcodeIsub, ir.OpcodeImul, ir.OpcodeBand, ir.OpcodeBor, ir.OpcodeBxor:
		if ctrlType.IsInt() {
			return []ir.Encoding{{Recipe: recipeRr, Bits: aluOpBits(d.Opcode)}}
		}
	case ir.OpcodeIcmp:
		if ctrlType.IsInt() {
			return []ir.Encoding{{Recipe: recipeCmp, Bits: ccBits(d.IntCC)}}
		}
	case ir.OpcodeFadd, ir.OpcodeFsub, ir.OpcodeFmul, ir.OpcodeFdiv:
		if ctrlType.IsFloat() {
			return []ir.Encoding{{Recipe: recipeFrr, Bits: fparithOpBits(d.Opcode)}}
		}
	case ir.OpcodeFcmp:
		if ctrlType.IsFloat() {
			return []ir.Encoding{{Recipe: recipeFcmp, Bits: fcmpPredBits(d.FloatCC)}}
		}
	case ir.OpcodeSelect:
		if ctrlType.IsInt() {
			return encSelect
		}
	case ir.OpcodeJump:
		return encJump
	case ir.OpcodeBrz:
		if d.Typ.IsInt() {
			return []ir.Encoding{{Recipe: recipeBrb, Bits: 0x4}, {Recipe: recipeBrd, Bits: 0x4}}
		}
	case ir.OpcodeBrnz:
		if d.Typ.IsInt() {
			return []ir.Encoding{{Recipe: recipeBrb, Bits: 0x5}, {Recipe: recipeBrd, Bits: 0x5}}
		}
	case ir.OpcodeBrTable:
		if d.Typ.IsInt() {
			return encBrTable
		}
	case ir.OpcodeCall:
		sig := &f.ExtFuncs[d.FnRef].Sig
		ints, floats := 0, 0
		for _, p := range sig.Params {
			if p.IsFloat() {
				floats++
			} else {
				ints++
			}
		}
		if ints <= len(intArgRegs) && floats <= len(floatArgRegs) {
			return encCall
		}
	case ir.OpcodeReturn:
		if len(f.Pool.Slice(d.Args)) <= 1 {
			return encRet
		}
	case ir.OpcodeTrap:
		return encTrap
	case ir.OpcodeCopy:
		if ctrlType != ir.TypeInvalid {
			return encCopy
		}
	case ir.OpcodeRegmove:
		return encRegmove
	case ir.OpcodeSpill:
		return encSpill
	case ir.OpcodeFill:
		return encFill
	case ir.OpcodeAdjustSpDown:
		return []ir.Encoding{{Recipe: recipeAdjustSp, Bits: 5}}
	case ir.OpcodeAdjustSpUp:
		return []ir.Encoding{{Recipe: recipeAdjustSp, Bits: 0}}
	}
	return nil
}
