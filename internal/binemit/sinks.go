package binemit

import (
	"unsafe"

	"github.com/gantry-go/gantry/internal/ir"
)

// SizeCodeSink measures. It runs the same offset arithmetic as every storing
// sink and throws the bytes away, so sizing a function is exactly as accurate
// as emitting it.
type SizeCodeSink struct {
	offset uint32
}

// Offset implements CodeSink.
func (s *SizeCodeSink) Offset() uint32 { return s.offset }

// Put1 implements CodeSink.
func (s *SizeCodeSink) Put1(byte) { s.offset++ }

// Put2 implements CodeSink.
func (s *SizeCodeSink) Put2(uint16) { s.offset += 2 }

// Put4 implements CodeSink.
func (s *SizeCodeSink) Put4(uint32) { s.offset += 4 }

// Put8 implements CodeSink.
func (s *SizeCodeSink) Put8(uint64) { s.offset += 8 }

// Reloc implements CodeSink.
func (s *SizeCodeSink) Reloc(RelocKind, string, int64) {}

// Trap implements CodeSink.
func (s *SizeCodeSink) Trap(ir.TrapCode, ir.SourceLoc) {}

// CallSite implements CodeSink.
func (s *SizeCodeSink) CallSite(ir.Opcode, ir.SourceLoc) {}

// SrcLoc implements CodeSink.
func (s *SizeCodeSink) SrcLoc(ir.SourceLoc) {}

// MemoryCodeSink writes code straight into caller provided memory through a
// raw pointer.
//
// Safety contract: the caller guarantees the memory holds at least the
// TotalSize of the CodeInfo returned by compilation, writable for the whole
// emission. No bounds are checked here. Metadata is forwarded to the attached
// sinks; nil sinks drop their records. Call sites are not captured by raw
// memory emission; use the section assembler for that.
type MemoryCodeSink struct {
	base   unsafe.Pointer
	offset uint32

	relocs    RelocSink
	traps     TrapSink
	stackMaps StackMapSink
}

// NewMemoryCodeSink returns a sink writing at mem.
func NewMemoryCodeSink(mem unsafe.Pointer, relocs RelocSink, traps TrapSink, stackMaps StackMapSink) *MemoryCodeSink {
	return &MemoryCodeSink{base: mem, relocs: relocs, traps: traps, stackMaps: stackMaps}
}

// Offset implements CodeSink.
func (m *MemoryCodeSink) Offset() uint32 { return m.offset }

// Put1 implements CodeSink.
func (m *MemoryCodeSink) Put1(b byte) {
	*(*byte)(unsafe.Pointer(uintptr(m.base) + uintptr(m.offset))) = b
	m.offset++
}

// Put2 implements CodeSink.
func (m *MemoryCodeSink) Put2(v uint16) {
	m.Put1(byte(v))
	m.Put1(byte(v >> 8))
}

// Put4 implements CodeSink.
func (m *MemoryCodeSink) Put4(v uint32) {
	m.Put2(uint16(v))
	m.Put2(uint16(v >> 16))
}

// Put8 implements CodeSink.
func (m *MemoryCodeSink) Put8(v uint64) {
	m.Put4(uint32(v))
	m.Put4(uint32(v >> 32))
}

// Reloc implements CodeSink.
func (m *MemoryCodeSink) Reloc(kind RelocKind, name string, addend int64) {
	if m.relocs != nil {
		m.relocs.Reloc(m.offset, kind, name, addend)
	}
}

// Trap implements CodeSink.
func (m *MemoryCodeSink) Trap(code ir.TrapCode, loc ir.SourceLoc) {
	if m.traps != nil {
		m.traps.Trap(m.offset, code, loc)
	}
}

// CallSite implements CodeSink.
func (m *MemoryCodeSink) CallSite(ir.Opcode, ir.SourceLoc) {}

// SrcLoc implements CodeSink.
func (m *MemoryCodeSink) SrcLoc(ir.SourceLoc) {}
