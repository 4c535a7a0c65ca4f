package regalloc

import "github.com/gantry-go/gantry/internal/ir"

// RedundantReloadRemover deletes a fill when the same spilled value was
// already reloaded earlier in the block and the earlier reload's register
// still holds it. The allocator reuses a register as soon as its value dies,
// so any definition landing in that register, a regmove writing it, or a call
// ends the tracked copy. The state is reusable across functions.
type RedundantReloadRemover struct {
	liveFill map[ir.Value]ir.Value
}

// NewRedundantReloadRemover returns an empty remover.
func NewRedundantReloadRemover() *RedundantReloadRemover {
	return &RedundantReloadRemover{liveFill: map[ir.Value]ir.Value{}}
}

// Clear drops per function state.
func (r *RedundantReloadRemover) Clear() {
	for k := range r.liveFill {
		delete(r.liveFill, k)
	}
}

// clobber forgets every tracked reload whose register is overwritten.
func (r *RedundantReloadRemover) clobber(f *ir.Function, reg ir.RegUnit) {
	for spilled, res := range r.liveFill {
		if f.Locations[res].Reg == reg {
			delete(r.liveFill, spilled)
		}
	}
}

// Run rewrites f in place. Removed fills have their results aliased to the
// surviving reload, and every argument list is resolved afterwards.
func (r *RedundantReloadRemover) Run(f *ir.Function) {
	changed := false
	for blk := f.Layout.FirstBlock(); blk.Valid(); blk = f.Layout.NextBlock(blk) {
		r.Clear()
		for i := f.Layout.FirstInst(blk); i.Valid(); {
			next := f.Layout.NextInst(i)
			d := f.InstData(i)
			switch d.Opcode {
			case ir.OpcodeFill:
				spilled := f.ResolveAlias(f.Pool.Slice(d.Args)[0])
				if prior, ok := r.liveFill[spilled]; ok {
					f.ChangeToAlias(f.Results[i], prior)
					f.Layout.RemoveInst(i)
					changed = true
					break
				}
				// Only a register resident reload can stand in for a later
				// one.
				if loc := f.Locations[f.Results[i]]; loc.Kind == ir.ValueLocReg {
					r.clobber(f, loc.Reg)
					r.liveFill[spilled] = f.Results[i]
				}
			case ir.OpcodeCall:
				r.Clear()
			case ir.OpcodeRegmove:
				r.clobber(f, d.DstReg)
			default:
				if res := f.Results[i]; res.Valid() {
					if loc := f.Locations[res]; loc.Kind == ir.ValueLocReg {
						r.clobber(f, loc.Reg)
					}
				}
			}
			i = next
		}
	}
	if changed {
		f.ResolveAliases()
	}
}
