// Package isa defines the target interface the pipeline compiles through: a
// TargetISA turns legal instructions into encodings, describes each encoding's
// size, branch range and operand constraints, and writes the final bytes
// through a binemit.CodeSink. Concrete targets live in the subpackages.
//
// An encoding pairs a recipe with recipe specific bits. The recipe picks the
// instruction format and fixes the size model and operand constraints; the
// bits carry whatever the recipe needs at emission time, an opcode byte or a
// condition code. Branch relaxation leans on two properties of this split:
// ByteSize is a pure function of the encoding, the instruction and the
// diversion state, and encodings sharing a constraint table can replace each
// other without re-running register allocation.
package isa

import (
	"github.com/gantry-go/gantry/internal/binemit"
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/regalloc"
	"github.com/gantry-go/gantry/internal/settings"
)

// TargetISA is the interface used by the compilation pipeline.
type TargetISA interface {
	// Name returns the ISA name as used by the CLI and isa lookup.
	Name() string
	// Flags returns the shared settings the ISA was constructed with.
	Flags() settings.Flags
	// RegInfo describes the register banks for diagnostics.
	RegInfo() *RegInfo
	// EncodingInfo returns the per recipe size, branch range and constraint
	// tables.
	EncodingInfo() *EncodingInfo
	// LegalEncodings returns the encodings able to express data with
	// controlling type ctrlType, cheapest first. An empty result means the
	// instruction is not supported by this target. The returned slice is
	// freshly built for branch instructions and must not be modified.
	LegalEncodings(f *ir.Function, data *ir.InstructionData, ctrlType ir.Type) []ir.Encoding
	// PrologueEpilogue computes the frame layout from the function's stack
	// slots and inserts the prologue and epilogue instructions.
	PrologueEpilogue(f *ir.Function) error
	// EmitInst encodes one instruction into sink under the current diversion
	// state. The instruction must carry a legal encoding.
	EmitInst(f *ir.Function, inst ir.Inst, divert *regalloc.RegDiversions, sink binemit.CodeSink)
	// MachBackend returns the ISA's alternate whole function backend, or nil
	// when the ISA has none.
	MachBackend() MachBackend

	regalloc.Target
}

// MachBackend compiles a whole function in one shot through an external
// assembler, bypassing the recipe pipeline. The pipeline selects it before
// any stage runs, so the two paths never mix within one compilation.
type MachBackend interface {
	// CompileFunction returns the finished machine code for f.
	CompileFunction(f *ir.Function) ([]byte, error)
}
