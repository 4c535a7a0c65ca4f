package binemit

import (
	"fmt"

	"github.com/gantry-go/gantry/internal/ir"
)

// Section is a storing CodeSink covering one contiguous region of the final
// image. It keeps the bytes and all four side tables, each keyed by absolute
// offset. The section begins at its start offset and may grow up to its
// length limit; writing past the limit is a programmer error, since the
// caller sized the section from the same arithmetic that now overflows it.
type Section struct {
	start uint32
	limit uint32
	bytes []byte

	relocs    []RelocEntry
	traps     []TrapEntry
	callSites []CallSiteEntry
	srcLocs   []SrcLocRange

	curLoc      ir.SourceLoc
	curLocStart uint32
}

// NewSection returns a section covering [start, start+limit).
func NewSection(start, limit uint32) *Section {
	return &Section{start: start, limit: limit}
}

// Start returns the section's first offset.
func (s *Section) Start() uint32 { return s.start }

// Limit returns the section's byte budget.
func (s *Section) Limit() uint32 { return s.limit }

// Offset implements CodeSink; it is absolute within the final image.
func (s *Section) Offset() uint32 { return s.start + uint32(len(s.bytes)) }

// Put1 implements CodeSink.
func (s *Section) Put1(b byte) {
	if uint32(len(s.bytes)) >= s.limit {
		panic(fmt.Sprintf("BUG: section at %#x exceeds its length limit %d", s.start, s.limit))
	}
	s.bytes = append(s.bytes, b)
}

// Put2 implements CodeSink.
func (s *Section) Put2(v uint16) {
	s.Put1(byte(v))
	s.Put1(byte(v >> 8))
}

// Put4 implements CodeSink.
func (s *Section) Put4(v uint32) {
	s.Put2(uint16(v))
	s.Put2(uint16(v >> 16))
}

// Put8 implements CodeSink.
func (s *Section) Put8(v uint64) {
	s.Put4(uint32(v))
	s.Put4(uint32(v >> 32))
}

// Reloc implements CodeSink, recording at the current offset.
func (s *Section) Reloc(kind RelocKind, name string, addend int64) {
	s.relocs = append(s.relocs, RelocEntry{Offset: s.Offset(), Kind: kind, Name: name, Addend: addend})
}

// Trap implements CodeSink, recording at the current offset.
func (s *Section) Trap(code ir.TrapCode, loc ir.SourceLoc) {
	s.traps = append(s.traps, TrapEntry{Offset: s.Offset(), Code: code, SrcLoc: loc})
}

// CallSite implements CodeSink; the current offset is the return address.
func (s *Section) CallSite(opcode ir.Opcode, loc ir.SourceLoc) {
	s.callSites = append(s.callSites, CallSiteEntry{RetAddr: s.Offset(), Opcode: opcode, SrcLoc: loc})
}

// SrcLoc implements CodeSink. Consecutive equal locations coalesce into one
// range; empty ranges are dropped. The emission driver ends with a default
// location to close the final range.
func (s *Section) SrcLoc(loc ir.SourceLoc) {
	if loc == s.curLoc {
		return
	}
	if !s.curLoc.IsDefault() && s.Offset() > s.curLocStart {
		s.srcLocs = append(s.srcLocs, SrcLocRange{Begin: s.curLocStart, End: s.Offset(), Loc: s.curLoc})
	}
	s.curLoc = loc
	s.curLocStart = s.Offset()
}

// Bytes returns the section contents. The slice aliases section storage.
func (s *Section) Bytes() []byte { return s.bytes }

// Relocs returns the recorded relocations in offset order.
func (s *Section) Relocs() []RelocEntry { return s.relocs }

// Traps returns the recorded trap sites in offset order.
func (s *Section) Traps() []TrapEntry { return s.traps }

// CallSites returns the recorded call sites in return address order.
func (s *Section) CallSites() []CallSiteEntry { return s.callSites }

// SrcLocs returns the recorded source location ranges in offset order.
func (s *Section) SrcLocs() []SrcLocRange { return s.srcLocs }

// SectionAssembler stitches sections into one image. Sections are added in
// ascending start order and never overlap; gaps between them are emitted as
// zero bytes.
type SectionAssembler struct {
	sections []*Section
}

// NewSectionAssembler returns an empty assembler.
func NewSectionAssembler() *SectionAssembler { return &SectionAssembler{} }

// AddSection creates and registers a section at [start, start+limit). The
// start must not precede the end of the previously added section's written
// bytes.
func (a *SectionAssembler) AddSection(start, limit uint32) *Section {
	if n := len(a.sections); n > 0 && start < a.sections[n-1].Offset() {
		panic(fmt.Sprintf("BUG: section at %#x overlaps the previous section ending at %#x",
			start, a.sections[n-1].Offset()))
	}
	s := NewSection(start, limit)
	a.sections = append(a.sections, s)
	return s
}

// Sections returns the registered sections in order.
func (a *SectionAssembler) Sections() []*Section { return a.sections }

// TotalSize returns the end offset of the written image.
func (a *SectionAssembler) TotalSize() uint32 {
	if n := len(a.sections); n > 0 {
		return a.sections[n-1].Offset()
	}
	return 0
}

// EmitTo replays the whole image into sink: sections in ascending start
// order, gaps zero filled, and at every byte the metadata first, ordered
// relocation, then trap, then call site, then the byte itself.
func (a *SectionAssembler) EmitTo(sink CodeSink) {
	for _, s := range a.sections {
		for sink.Offset() < s.start {
			sink.Put1(0)
		}
		var ri, ti, ci, si int
		inRange := false
		for n, b := range s.bytes {
			off := s.start + uint32(n)
			for si < len(s.srcLocs) && s.srcLocs[si].End <= off {
				si++
				if inRange {
					sink.SrcLoc(ir.SourceLocDefault)
					inRange = false
				}
			}
			if si < len(s.srcLocs) && s.srcLocs[si].Begin == off {
				sink.SrcLoc(s.srcLocs[si].Loc)
				inRange = true
			}
			for ri < len(s.relocs) && s.relocs[ri].Offset == off {
				r := s.relocs[ri]
				sink.Reloc(r.Kind, r.Name, r.Addend)
				ri++
			}
			for ti < len(s.traps) && s.traps[ti].Offset == off {
				t := s.traps[ti]
				sink.Trap(t.Code, t.SrcLoc)
				ti++
			}
			for ci < len(s.callSites) && s.callSites[ci].RetAddr == off {
				cs := s.callSites[ci]
				sink.CallSite(cs.Opcode, cs.SrcLoc)
				ci++
			}
			sink.Put1(b)
		}
		end := s.Offset()
		for si < len(s.srcLocs) && s.srcLocs[si].End <= end {
			si++
			if inRange {
				sink.SrcLoc(ir.SourceLocDefault)
				inRange = false
			}
		}
		// A call ending the section has its return address at the end offset.
		for ci < len(s.callSites) && s.callSites[ci].RetAddr == end {
			cs := s.callSites[ci]
			sink.CallSite(cs.Opcode, cs.SrcLoc)
			ci++
		}
	}
	sink.SrcLoc(ir.SourceLocDefault)
}
