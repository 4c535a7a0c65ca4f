package regalloc

import "github.com/gantry-go/gantry/internal/ir"

// RegDiversions tracks values that are temporarily in a different register
// than their assigned location, because a regmove put them there. Both branch
// relaxation and emission replay the same instruction stream through Apply, so
// the two always agree on where a value currently lives; encodings whose size
// depends on the concrete register stay consistent that way.
type RegDiversions struct {
	current map[ir.Value]ir.RegUnit
}

// Clear forgets every diversion.
func (d *RegDiversions) Clear() {
	for v := range d.current {
		delete(d.current, v)
	}
}

// Divert records that v, assigned to from, now lives in to. Moving a value
// back to its assigned register ends the diversion.
func (d *RegDiversions) Divert(f *ir.Function, v ir.Value, to ir.RegUnit) {
	v = f.ResolveAlias(v)
	loc := f.Locations[v]
	if loc.Kind == ir.ValueLocReg && loc.Reg == to {
		delete(d.current, v)
		return
	}
	if d.current == nil {
		d.current = map[ir.Value]ir.RegUnit{}
	}
	d.current[v] = to
}

// Apply updates the diversion state for one instruction as the emission or
// sizing walk passes over it.
func (d *RegDiversions) Apply(f *ir.Function, data *ir.InstructionData) {
	switch data.Opcode {
	case ir.OpcodeRegmove:
		d.Divert(f, f.Pool.Slice(data.Args)[0], data.DstReg)
	case ir.OpcodeSpill:
		// The operand's register copy is dead once the value is in its slot.
		delete(d.current, f.ResolveAlias(f.Pool.Slice(data.Args)[0]))
	}
}

// Reg returns the register currently holding v: the diverted register if a
// diversion is active, otherwise v's assigned location. Returns
// RegUnitInvalid when v is not in a register at all.
func (d *RegDiversions) Reg(f *ir.Function, v ir.Value) ir.RegUnit {
	v = f.ResolveAlias(v)
	if r, ok := d.current[v]; ok {
		return r
	}
	if loc := f.Locations[v]; loc.Kind == ir.ValueLocReg {
		return loc.Reg
	}
	return ir.RegUnitInvalid
}

// IsEmpty reports whether no diversion is active.
func (d *RegDiversions) IsEmpty() bool { return len(d.current) == 0 }
