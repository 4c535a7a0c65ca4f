package regalloc

import (
	"errors"
	"fmt"

	"github.com/gantry-go/gantry/internal/ir"
)

// ErrOutOfRegisters reports that a block needs more live registers than the
// target has allocatable ones. The baseline allocator does not spill.
var ErrOutOfRegisters = errors.New("out of allocatable registers")

// ErrUnsupportedIR reports an input shape the baseline allocator refuses:
// block arguments on conditional branches, or a value used outside its
// defining block without being passed as a block argument.
var ErrUnsupportedIR = errors.New("unsupported input for baseline register allocator")

// Allocator is what the compilation context expects from a register
// allocation strategy, so the baseline can be replaced wholesale.
type Allocator interface {
	Run(target Target, f *ir.Function) error
	Clear()
}

// Context is the reusable state of the baseline allocator. It assigns every
// block's parameters the target's preferred registers in order, runs one
// forward scan per block for locals with block local lifetimes, and reconciles
// unconditional branch arguments with destination parameters by inserting
// regmoves ahead of the branch.
type Context struct {
	lastUse []int32
	posOf   []int32
	inUse   [numClasses][]bool
	active  []activeValue
	moves   []pendingMove
}

type activeValue struct {
	v       ir.Value
	class   RegClass
	regIdx  int
	lastUse int32
}

type pendingMove struct {
	v        ir.Value
	typ      ir.Type
	src, dst ir.RegUnit
}

// NewContext returns an empty allocator context.
func NewContext() *Context { return &Context{} }

// Clear drops per function state while keeping capacity.
func (c *Context) Clear() {
	c.lastUse = c.lastUse[:0]
	c.posOf = c.posOf[:0]
	c.active = c.active[:0]
	c.moves = c.moves[:0]
}

// Run assigns a location to every value of f.
func (c *Context) Run(target Target, f *ir.Function) error {
	c.computePositions(f)

	// Parameters first: every block's params take the preference order's
	// leading registers. Blocks never execute concurrently, so reusing the
	// same registers across blocks is free.
	for blk := f.Layout.FirstBlock(); blk.Valid(); blk = f.Layout.NextBlock(blk) {
		var taken [numClasses]int
		for _, p := range f.BlockParams(blk) {
			class := ClassOf(f.ValueType(p))
			pool := target.AllocatableRegs(class)
			if taken[class] >= len(pool) {
				return fmt.Errorf("%w: %s has more than %d %s parameters",
					ErrOutOfRegisters, blk, len(pool), class)
			}
			f.Locations[p] = ir.RegLoc(pool[taken[class]])
			taken[class]++
		}
	}

	for blk := f.Layout.FirstBlock(); blk.Valid(); blk = f.Layout.NextBlock(blk) {
		if err := c.runBlock(target, f, blk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) computePositions(f *ir.Function) {
	c.posOf = growInt32(c.posOf, f.NumInsts()+1)
	c.lastUse = growInt32(c.lastUse, f.NumValues()+1)
	pos := int32(0)
	for blk := f.Layout.FirstBlock(); blk.Valid(); blk = f.Layout.NextBlock(blk) {
		for i := f.Layout.FirstInst(blk); i.Valid(); i = f.Layout.NextInst(i) {
			pos++
			c.posOf[i] = pos
			for _, a := range f.InstArgs(i) {
				a = f.ResolveAlias(a)
				if c.lastUse[a] < pos {
					c.lastUse[a] = pos
				}
			}
		}
	}
}

func (c *Context) runBlock(target Target, f *ir.Function, blk ir.Block) error {
	for class := RegClass(0); class < numClasses; class++ {
		pool := target.AllocatableRegs(class)
		c.inUse[class] = growBool(c.inUse[class], len(pool))
	}
	c.active = c.active[:0]

	blockEnd := int32(0)
	if last := f.Layout.LastInst(blk); last.Valid() {
		blockEnd = c.posOf[last]
	}

	// The block's own parameters occupy their registers from the top.
	for _, p := range f.BlockParams(blk) {
		class := ClassOf(f.ValueType(p))
		idx := c.regIndex(target, class, f.Locations[p].Reg)
		c.inUse[class][idx] = true
		last := c.lastUse[p]
		if last == 0 {
			last = blockEnd // keep params alive; branch fixups may still read them
		}
		c.active = append(c.active, activeValue{v: p, class: class, regIdx: idx, lastUse: last})
	}

	for i := f.Layout.FirstInst(blk); i.Valid(); i = f.Layout.NextInst(i) {
		pos := c.posOf[i]
		c.expire(pos)
		d := f.InstData(i)

		// Operands must be defined in this block; cross block values travel as
		// block arguments only.
		for _, a := range f.InstArgs(i) {
			a = f.ResolveAlias(a)
			kind, defInst, defBlk, _ := f.ValueDef(a)
			db := defBlk
			if kind == ir.ValueDefResult {
				db = f.Layout.InstBlock(defInst)
			}
			if db != blk {
				return fmt.Errorf("%w: %s is used in %s but defined in %s",
					ErrUnsupportedIR, a, blk, db)
			}
		}

		switch d.Opcode {
		case ir.OpcodeBrz, ir.OpcodeBrnz:
			if len(f.BranchArgs(i)) > 0 {
				return fmt.Errorf("%w: conditional branch %s carries block arguments",
					ErrUnsupportedIR, ir.FormatInst(f, i))
			}
		case ir.OpcodeJump, ir.OpcodeFallthrough:
			if err := c.reconcileBranch(target, f, i); err != nil {
				return err
			}
		}

		res := f.Results[i]
		if !res.Valid() {
			continue
		}
		if d.Opcode == ir.OpcodeSpill {
			f.Locations[res] = ir.StackLoc(d.Slot)
			continue
		}
		class := ClassOf(f.ValueType(res))
		idx, ok := c.takeFree(class)
		if !ok {
			return fmt.Errorf("%w: no free %s register for %s in %s",
				ErrOutOfRegisters, class, res, blk)
		}
		f.Locations[res] = ir.RegLoc(target.AllocatableRegs(class)[idx])
		last := c.lastUse[res]
		if last == 0 {
			last = pos // dead result, register frees right away
		}
		c.active = append(c.active, activeValue{v: res, class: class, regIdx: idx, lastUse: last})
	}
	return nil
}

// reconcileBranch lines the branch's arguments up with the destination's
// parameter registers, inserting regmoves ahead of the branch. Moves are
// ordered so no pending source is clobbered; a cycle is broken through a free
// register.
func (c *Context) reconcileBranch(target Target, f *ir.Function, branch ir.Inst) error {
	d := f.InstData(branch)
	args := f.BranchArgs(branch)
	if len(args) == 0 {
		return nil
	}
	params := f.BlockParams(d.Dest)
	if len(params) != len(args) {
		return fmt.Errorf("%w: %s passes %d arguments to %s which has %d parameters",
			ErrUnsupportedIR, ir.FormatInst(f, branch), len(args), d.Dest, len(params))
	}

	c.moves = c.moves[:0]
	for n, a := range args {
		a = f.ResolveAlias(a)
		src := f.Locations[a]
		dst := f.Locations[params[n]]
		if src.Kind != ir.ValueLocReg || dst.Kind != ir.ValueLocReg {
			return fmt.Errorf("%w: branch argument %s is not in a register", ErrUnsupportedIR, a)
		}
		if src.Reg != dst.Reg {
			c.moves = append(c.moves, pendingMove{v: a, typ: f.ValueType(a), src: src.Reg, dst: dst.Reg})
		}
	}

	for len(c.moves) > 0 {
		emitted := false
		for n := range c.moves {
			m := c.moves[n]
			if c.isPendingSource(m.dst, n) {
				continue
			}
			c.insertRegmove(target, f, branch, m.v, m.src, m.dst)
			c.moves = append(c.moves[:n], c.moves[n+1:]...)
			emitted = true
			break
		}
		if emitted {
			continue
		}
		// Every pending destination is also a pending source: a cycle. Park
		// the first move's value in a free register to break it.
		m := &c.moves[0]
		class := ClassOf(m.typ)
		idx, ok := c.takeFree(class)
		if !ok {
			return fmt.Errorf("%w: no scratch register to break a move cycle at %s",
				ErrOutOfRegisters, ir.FormatInst(f, branch))
		}
		tmp := target.AllocatableRegs(class)[idx]
		c.insertRegmove(target, f, branch, m.v, m.src, tmp)
		m.src = tmp
		c.inUse[class][idx] = false
	}
	return nil
}

func (c *Context) isPendingSource(r ir.RegUnit, except int) bool {
	for n := range c.moves {
		if n != except && c.moves[n].src == r {
			return true
		}
	}
	return false
}

func (c *Context) insertRegmove(target Target, f *ir.Function, before ir.Inst, v ir.Value, src, dst ir.RegUnit) {
	i := f.MakeInst(ir.InstructionData{
		Opcode: ir.OpcodeRegmove,
		Typ:    f.ValueType(v),
		SrcReg: src,
		DstReg: dst,
		Args:   f.Pool.Make(v),
	})
	f.SrcLocs[i] = f.SrcLocs[before]
	f.Encodings[i] = target.RegmoveEncoding(f.ValueType(v))
	f.Layout.InsertInstBefore(i, before)
}

func (c *Context) expire(pos int32) {
	n := 0
	for _, a := range c.active {
		if a.lastUse < pos {
			c.inUse[a.class][a.regIdx] = false
			continue
		}
		c.active[n] = a
		n++
	}
	c.active = c.active[:n]
}

func (c *Context) takeFree(class RegClass) (int, bool) {
	for idx, used := range c.inUse[class] {
		if !used {
			c.inUse[class][idx] = true
			return idx, true
		}
	}
	return 0, false
}

func (c *Context) regIndex(target Target, class RegClass, r ir.RegUnit) int {
	for idx, u := range target.AllocatableRegs(class) {
		if u == r {
			return idx
		}
	}
	panic(fmt.Sprintf("BUG: register r%d is not allocatable", r))
}

func growInt32(s []int32, n int) []int32 {
	if cap(s) < n {
		return make([]int32, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}

func growBool(s []bool, n int) []bool {
	if cap(s) < n {
		return make([]bool, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = false
	}
	return s
}
