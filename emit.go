package gantry

import (
	"unsafe"

	"github.com/gantry-go/gantry/internal/binemit"
	"github.com/gantry-go/gantry/internal/isa"
)

// CompileAndEmit compiles the context's function for target and returns the
// finished bytes plus side tables in a freshly allocated section. The section
// spans offsets [0, TotalSize): code first, then jump tables, then rodata.
func (c *Context) CompileAndEmit(target isa.TargetISA) (*binemit.Section, binemit.CodeInfo, error) {
	info, err := c.Compile(target)
	if err != nil {
		return nil, binemit.CodeInfo{}, err
	}
	sec := binemit.NewSection(0, info.TotalSize)
	if len(c.machCode) > 0 {
		for _, b := range c.machCode {
			sec.Put1(b)
		}
		return sec, info, nil
	}
	isa.EmitFunction(c.Func, target, sec)
	if got := sec.Offset(); got != info.TotalSize {
		panic("BUG: emitted size disagrees with relaxation")
	}
	return sec, info, nil
}

// EmitToMemory writes the compiled function directly to mem, which must have
// room for CodeInfo().TotalSize bytes. Relocations, traps and stack maps are
// streamed to the given sinks as they are encountered; pass the Null sinks to
// discard them. Compile must have succeeded on this context first.
func (c *Context) EmitToMemory(target isa.TargetISA, mem unsafe.Pointer, relocs binemit.RelocSink, traps binemit.TrapSink, stackMaps binemit.StackMapSink) {
	if !c.compiled {
		panic("BUG: EmitToMemory before a successful Compile")
	}
	sink := binemit.NewMemoryCodeSink(mem, relocs, traps, stackMaps)
	if len(c.machCode) > 0 {
		for _, b := range c.machCode {
			sink.Put1(b)
		}
		return
	}
	isa.EmitFunction(c.Func, target, sink)
}
