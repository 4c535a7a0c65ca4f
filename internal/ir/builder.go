package ir

// Builder appends instructions to a function block by block. It is a thin
// convenience over Function's entity constructors used by the reader and by
// tests; passes mutate instructions directly instead.
type Builder struct {
	f      *Function
	blk    Block
	srcLoc SourceLoc
}

// NewBuilder returns a builder appending to f.
func NewBuilder(f *Function) *Builder { return &Builder{f: f} }

// Func returns the function under construction.
func (b *Builder) Func() *Function { return b.f }

// Block creates a new block, appends it to the layout, and makes it current.
func (b *Builder) Block() Block {
	blk := b.f.MakeBlock()
	b.f.Layout.AppendBlock(blk)
	b.blk = blk
	return blk
}

// RawBlock creates a block without placing it in the layout.
func (b *Builder) RawBlock() Block { return b.f.MakeBlock() }

// SetBlock makes blk the insertion point.
func (b *Builder) SetBlock(blk Block) { b.blk = blk }

// CurrentBlock returns the insertion point.
func (b *Builder) CurrentBlock() Block { return b.blk }

// SetSrcLoc sets the source location applied to subsequently built
// instructions.
func (b *Builder) SetSrcLoc(loc SourceLoc) { b.srcLoc = loc }

func (b *Builder) insert(data InstructionData) Inst {
	if !b.blk.Valid() {
		panic("BUG: builder has no current block")
	}
	i := b.f.MakeInst(data)
	b.f.SrcLocs[i] = b.srcLoc
	b.f.Layout.AppendInst(i, b.blk)
	return i
}

func (b *Builder) insertWithResult(data InstructionData, t Type) Value {
	i := b.insert(data)
	return b.f.AttachResult(i, t)
}

// Param adds a parameter of type t to the current block.
func (b *Builder) Param(t Type) Value { return b.f.AppendBlockParam(b.blk, t) }

// Iconst builds an integer constant.
func (b *Builder) Iconst(t Type, imm int64) Value {
	return b.insertWithResult(InstructionData{Opcode: OpcodeIconst, Typ: t, Imm: imm}, t)
}

// Fconst builds a float constant from its bit pattern. The pattern is also
// interned in the function's constant pool, little endian, sized to t, for
// targets that materialize float constants with a pool load.
func (b *Builder) Fconst(t Type, bits uint64) Value {
	var buf [8]byte
	for i := 0; i < t.Bytes(); i++ {
		buf[i] = byte(bits >> (8 * i))
	}
	c := b.f.ConstPool.Insert(buf[:t.Bytes()])
	return b.insertWithResult(InstructionData{Opcode: OpcodeFconst, Typ: t, Imm: int64(bits), Const: c}, t)
}

// Binary builds a two operand arithmetic or logic instruction.
func (b *Builder) Binary(op Opcode, t Type, x, y Value) Value {
	return b.insertWithResult(InstructionData{Opcode: op, Typ: t, Args: b.f.Pool.Make(x, y)}, t)
}

// Iadd builds x + y.
func (b *Builder) Iadd(t Type, x, y Value) Value { return b.Binary(OpcodeIadd, t, x, y) }

// Isub builds x - y.
func (b *Builder) Isub(t Type, x, y Value) Value { return b.Binary(OpcodeIsub, t, x, y) }

// Imul builds x * y.
func (b *Builder) Imul(t Type, x, y Value) Value { return b.Binary(OpcodeImul, t, x, y) }

// Icmp builds an integer comparison producing 1 or 0 as type t's zero extended
// value.
func (b *Builder) Icmp(cc IntCC, t Type, x, y Value) Value {
	return b.insertWithResult(
		InstructionData{Opcode: OpcodeIcmp, Typ: t, IntCC: cc, Args: b.f.Pool.Make(x, y)}, t)
}

// Fcmp builds a float comparison of operand type t, producing 1 or 0 as an
// i32.
func (b *Builder) Fcmp(cc FloatCC, t Type, x, y Value) Value {
	return b.insertWithResult(
		InstructionData{Opcode: OpcodeFcmp, Typ: t, FloatCC: cc, Args: b.f.Pool.Make(x, y)}, TypeI32)
}

// Select builds cond != 0 ? x : y.
func (b *Builder) Select(t Type, cond, x, y Value) Value {
	return b.insertWithResult(
		InstructionData{Opcode: OpcodeSelect, Typ: t, Args: b.f.Pool.Make(cond, x, y)}, t)
}

// Copy builds a copy of x.
func (b *Builder) Copy(t Type, x Value) Value {
	return b.insertWithResult(InstructionData{Opcode: OpcodeCopy, Typ: t, Args: b.f.Pool.Make(x)}, t)
}

// Jump builds an unconditional jump to dest passing args.
func (b *Builder) Jump(dest Block, args ...Value) Inst {
	return b.insert(InstructionData{Opcode: OpcodeJump, Dest: dest, Args: b.f.Pool.Make(args...)})
}

// Fallthrough builds a fallthrough to dest, which must be the layout successor.
func (b *Builder) Fallthrough(dest Block, args ...Value) Inst {
	return b.insert(InstructionData{Opcode: OpcodeFallthrough, Dest: dest, Args: b.f.Pool.Make(args...)})
}

// Brz builds a branch to dest taken when cond is zero.
func (b *Builder) Brz(cond Value, dest Block, args ...Value) Inst {
	return b.branch(OpcodeBrz, cond, dest, args)
}

// Brnz builds a branch to dest taken when cond is nonzero.
func (b *Builder) Brnz(cond Value, dest Block, args ...Value) Inst {
	return b.branch(OpcodeBrnz, cond, dest, args)
}

func (b *Builder) branch(op Opcode, cond Value, dest Block, args []Value) Inst {
	all := make([]Value, 0, len(args)+1)
	all = append(all, cond)
	all = append(all, args...)
	return b.insert(InstructionData{
		Opcode: op,
		Typ:    b.f.ValueType(cond),
		Dest:   dest,
		Args:   b.f.Pool.Make(all...),
	})
}

// BrTable builds an indirect branch through jt indexed by idx.
func (b *Builder) BrTable(idx Value, jt JumpTable) Inst {
	return b.insert(InstructionData{
		Opcode: OpcodeBrTable,
		Typ:    b.f.ValueType(idx),
		Table:  jt,
		Args:   b.f.Pool.Make(idx),
	})
}

// Call builds a call to fn passing args, returning the result value or
// ValueInvalid for a void callee.
func (b *Builder) Call(fn FuncRef, args ...Value) Value {
	data := InstructionData{Opcode: OpcodeCall, FnRef: fn, Args: b.f.Pool.Make(args...)}
	sig := b.f.ExtFuncs[fn].Sig
	if len(sig.Results) == 0 {
		b.insert(data)
		return ValueInvalid
	}
	data.Typ = sig.Results[0]
	return b.insertWithResult(data, sig.Results[0])
}

// Return builds a return of args.
func (b *Builder) Return(args ...Value) Inst {
	return b.insert(InstructionData{Opcode: OpcodeReturn, Args: b.f.Pool.Make(args...)})
}

// Trap builds a trap with code.
func (b *Builder) Trap(code TrapCode) Inst {
	return b.insert(InstructionData{Opcode: OpcodeTrap, Trap: code})
}

// Spill stores x to slot and returns the spilled value.
func (b *Builder) Spill(t Type, x Value, slot StackSlot) Value {
	return b.insertWithResult(
		InstructionData{Opcode: OpcodeSpill, Typ: t, Slot: slot, Args: b.f.Pool.Make(x)}, t)
}

// Fill reloads spilled value x into a register.
func (b *Builder) Fill(t Type, x Value) Value {
	return b.insertWithResult(InstructionData{Opcode: OpcodeFill, Typ: t, Args: b.f.Pool.Make(x)}, t)
}

// Regmove diverts x from register src to register dst.
func (b *Builder) Regmove(x Value, src, dst RegUnit) Inst {
	return b.insert(InstructionData{
		Opcode: OpcodeRegmove,
		Typ:    b.f.ValueType(x),
		SrcReg: src,
		DstReg: dst,
		Args:   b.f.Pool.Make(x),
	})
}

// Nop builds a nop.
func (b *Builder) Nop() Inst { return b.insert(InstructionData{Opcode: OpcodeNop}) }
