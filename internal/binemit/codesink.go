// Package binemit defines where machine code bytes and their metadata go: the
// CodeSink interface the ISA encoders write through, a size-only sink, a raw
// memory sink, and a section assembler that stores bytes alongside relocation,
// trap, call site and source location side tables.
package binemit

import "github.com/gantry-go/gantry/internal/ir"

// RelocKind names a relocation formula.
type RelocKind byte

const (
	// RelocAbs8 is a 64-bit absolute address.
	RelocAbs8 RelocKind = iota
	// RelocX86CallPCRel4 is a 32-bit PC relative call displacement, measured
	// from the end of the 4-byte field.
	RelocX86CallPCRel4
	// RelocRiscvCall is a auipc+jalr pair addressing a symbol PC relative.
	RelocRiscvCall
)

// String implements fmt.Stringer.
func (k RelocKind) String() string {
	switch k {
	case RelocAbs8:
		return "abs8"
	case RelocX86CallPCRel4:
		return "x86_call_pcrel4"
	case RelocRiscvCall:
		return "riscv_call"
	}
	return "??"
}

// CodeSink receives machine code during emission. Writes are little endian and
// strictly monotonic: the offset only grows. Metadata calls describe the
// current offset, so the encoder records a relocation before writing the bytes
// of the relocated field and records a call site after writing the call.
//
// SrcLoc marks the start of an instruction attributed to loc; sinks that track
// source locations coalesce consecutive equal locations into ranges and drop
// empty ones. Passing ir.SourceLocDefault closes any open range, so emission
// drivers finish with a default SrcLoc call.
type CodeSink interface {
	Offset() uint32
	Put1(b byte)
	Put2(v uint16)
	Put4(v uint32)
	Put8(v uint64)
	Reloc(kind RelocKind, name string, addend int64)
	Trap(code ir.TrapCode, loc ir.SourceLoc)
	CallSite(opcode ir.Opcode, loc ir.SourceLoc)
	SrcLoc(loc ir.SourceLoc)
}

// RelocEntry is one recorded relocation.
type RelocEntry struct {
	Offset uint32
	Kind   RelocKind
	Name   string
	Addend int64
}

// TrapEntry is one recorded trap site.
type TrapEntry struct {
	Offset uint32
	Code   ir.TrapCode
	SrcLoc ir.SourceLoc
}

// CallSiteEntry is one recorded call, keyed by the return address offset, the
// first byte after the call instruction.
type CallSiteEntry struct {
	RetAddr uint32
	Opcode  ir.Opcode
	SrcLoc  ir.SourceLoc
}

// SrcLocRange attributes the half open byte range [Begin, End) to one source
// location.
type SrcLocRange struct {
	Begin, End uint32
	Loc        ir.SourceLoc
}

// StackMap is a bitmap of frame slots holding live references at a safepoint.
// The current ISAs emit none; the type exists for embedders consuming the
// sink interfaces.
type StackMap struct {
	Bits      []uint64
	SlotCount int
}

// RelocSink consumes relocations during raw memory emission.
type RelocSink interface {
	Reloc(offset uint32, kind RelocKind, name string, addend int64)
}

// TrapSink consumes trap sites during raw memory emission.
type TrapSink interface {
	Trap(offset uint32, code ir.TrapCode, loc ir.SourceLoc)
}

// StackMapSink consumes stack maps during raw memory emission.
type StackMapSink interface {
	StackMap(retAddr uint32, m StackMap)
}

// NullRelocSink discards relocations.
type NullRelocSink struct{}

// Reloc implements RelocSink.
func (NullRelocSink) Reloc(uint32, RelocKind, string, int64) {}

// NullTrapSink discards trap sites.
type NullTrapSink struct{}

// Trap implements TrapSink.
func (NullTrapSink) Trap(uint32, ir.TrapCode, ir.SourceLoc) {}

// NullStackMapSink discards stack maps.
type NullStackMapSink struct{}

// StackMap implements StackMapSink.
func (NullStackMapSink) StackMap(uint32, StackMap) {}
