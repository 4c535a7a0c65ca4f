package isa

import (
	"fmt"

	"github.com/gantry-go/gantry/internal/binemit"
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// EmitFunction encodes the laid out function into sink: every instruction in
// layout order, then the jump tables, then the constant pool data. Branch
// relaxation must have run first; the emission replays the same diversion
// state it sized with, so the bytes land exactly on the offsets relaxation
// assigned.
//
// Jump table entries are self relative: each holds the destination block's
// offset minus the table's own offset, as a little endian u32.
func EmitFunction(f *ir.Function, target TargetISA, sink binemit.CodeSink) {
	var divert regalloc.RegDiversions
	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		divert.Clear()
		for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
			sink.SrcLoc(f.SrcLocs[i])
			target.EmitInst(f, i, &divert, sink)
			divert.Apply(f, f.InstData(i))
		}
	}
	sink.SrcLoc(ir.SourceLocDefault)

	for jt := ir.JumpTable(1); int(jt) < len(f.JumpTables); jt++ {
		base := f.JTOffsets.Get(jt)
		if off := sink.Offset(); off != base {
			panic(fmt.Sprintf("BUG: emitting %s at offset %#x, laid out at %#x", jt, off, base))
		}
		for _, dest := range f.JumpTables[jt].Targets() {
			sink.Put4(f.Offsets.Get(dest) - base)
		}
	}

	for c := ir.Constant(1); int(c) <= f.ConstPool.Len(); c++ {
		if off, want := sink.Offset(), f.ConstPool.Offset(c); off != want {
			panic(fmt.Sprintf("BUG: emitting %s at offset %#x, laid out at %#x", c, off, want))
		}
		for _, b := range f.ConstPool.Data(c) {
			sink.Put1(b)
		}
	}
}
