// Package riscv is the RV64G target. All instructions are four byte base
// encodings, which keeps recipe sizes fixed and makes the target a good
// stress case for branch relaxation: conditional branches reach only the 13
// bit B format window and have no long form, so layouts that exceed it are a
// fatal relaxation error rather than a relaxable one. Jump tables and the
// alternate whole function backend are not supported here.
package riscv

import (
	"errors"

	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
	"github.com/gantry-go/gantry/internal/settings"
)

// ErrFrameTooLarge reports a stack frame beyond the 12 bit immediate of the
// prologue's addi.
var ErrFrameTooLarge = errors.New("riscv: stack frame exceeds 2032 bytes")

type target struct {
	flags   settings.Flags
	encInfo *isa.EncodingInfo
}

// New returns the riscv target configured by flags.
func New(flags settings.Flags) isa.TargetISA {
	return &target{flags: flags, encInfo: buildEncInfo()}
}

func (t *target) Name() string { return "riscv" }

func (t *target) Flags() settings.Flags { return t.flags }

func (t *target) RegInfo() *isa.RegInfo { return regInfo }

func (t *target) EncodingInfo() *isa.EncodingInfo { return t.encInfo }

func (t *target) MachBackend() isa.MachBackend { return nil }

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
	encStub     = []ir.Encoding{{Recipe: recipeStub}}
	encIconst   = []ir.Encoding{{Recipe: recipeIconst}}
	encFconst   = []ir.Encoding{{Recipe: recipeFconst}}
	encSelect   = []ir.Encoding{{Recipe: recipeSelect}}
	encJump     = []ir.Encoding{{Recipe: recipeJal}}
	encCall     = []ir.Encoding{{Recipe: recipeCall}}
	encRet      = []ir.Encoding{{Recipe: recipeRet}}
	encTrap     = []ir.Encoding{{Recipe: recipeTrap}}
	encMv       = []ir.Encoding{{Recipe: recipeMv}}
	encFmv      = []ir.Encoding{{Recipe: recipeFmv}}
	encRegmove  = []ir.Encoding{{Recipe: recipeRegmove}}
	encSpill    = []ir.Encoding{{Recipe: recipeSpill}}
	encFill     = []ir.Encoding{{Recipe: recipeFill}}
	encAdjustSp = []ir.Encoding{{Recipe: recipeAdjustSp}}
)

// aluOpBits packs funct7 and funct3 of an R format ALU instruction.
func aluOpBits(op ir.Opcode) uint16 {
	switch op {
	case ir.OpcodeIadd:
		return 0
	case ir.OpcodeIsub:
		return 0x20 << 3
	case ir.OpcodeImul:
		return 1 << 3
	case ir.OpcodeBand:
		return 7
	case ir.OpcodeBor:
		return 6
	case ir.OpcodeBxor:
		return 4
	}
	panic("BUG: no ALU bits for " + op.String())
}

// fparithOpBits is the even funct7 of the scalar float operation; the
// emitter sets the low bit for f64.
func fparithOpBits(op ir.Opcode) uint16 {
	switch op {
	case ir.OpcodeFadd:
		return 0x00
	case ir.OpcodeFsub:
		return 0x04
	case ir.OpcodeFmul:
		return 0x08
	case ir.OpcodeFdiv:
		return 0x0c
	}
	panic("BUG: no float bits for " + op.String())
}

// LegalEncodings implements isa.TargetISA. br_table has no recipe on this
// target and select is integer only.
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
			return []ir.Encoding{{Recipe: recipeR, Bits: aluOpBits(d.Opcode)}}
		}
	case ir.OpcodeIcmp:
		if ctrlType.IsInt() {
			return []ir.Encoding{{Recipe: recipeIcmp, Bits: uint16(d.IntCC)}}
		}
	case ir.OpcodeFadd, ir.OpcodeFsub, ir.OpcodeFmul, ir.OpcodeFdiv:
		if ctrlType.IsFloat() {
			return []ir.Encoding{{Recipe: recipeFrr, Bits: fparithOpBits(d.Opcode)}}
		}
	case ir.OpcodeFcmp:
		if ctrlType.IsFloat() {
			return []ir.Encoding{{Recipe: recipeFcmp, Bits: uint16(d.FloatCC)}}
		}
	case ir.OpcodeSelect:
		if ctrlType.IsInt() {
			return encSelect
		}
	case ir.OpcodeJump:
		return encJump
	case ir.OpcodeBrz:
		if d.Typ.IsInt() {
			return []ir.Encoding{{Recipe: recipeBr, Bits: 0}}
		}
	case ir.OpcodeBrnz:
		if d.Typ.IsInt() {
			return []ir.Encoding{{Recipe: recipeBr, Bits: 1}}
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
		if ctrlType.IsFloat() {
			return encFmv
		}
		if ctrlType != ir.TypeInvalid {
			return encMv
		}
	case ir.OpcodeRegmove:
		return encRegmove
	case ir.OpcodeSpill:
		return encSpill
	case ir.OpcodeFill:
		return encFill
	case ir.OpcodeAdjustSpDown, ir.OpcodeAdjustSpUp:
		return encAdjustSp
	}
	return nil
}
