package ir

// Opcode distinguishes the operation performed by an instruction.
type Opcode byte

const (
	OpcodeInvalid Opcode = iota

	// OpcodeIconst materializes an integer immediate: v = iconst.typ Imm.
	OpcodeIconst
	// OpcodeFconst materializes a float immediate from its bit pattern in Imm.
	OpcodeFconst
	// OpcodeIadd ... OpcodeBxor are two operand integer ALU operations.
	OpcodeIadd
	OpcodeIsub
	OpcodeImul
	OpcodeBand
	OpcodeBor
	OpcodeBxor
	// OpcodeIcmp compares two integers under IntCC, producing 1 or 0 as Typ.
	OpcodeIcmp
	// OpcodeFadd ... OpcodeFdiv are two operand float arithmetic operations.
	OpcodeFadd
	OpcodeFsub
	OpcodeFmul
	OpcodeFdiv
	// OpcodeFcmp compares two floats of type Typ under FloatCC, producing
	// 1 or 0 as an i32 result.
	OpcodeFcmp
	// OpcodeSelect picks args[1] when args[0] is nonzero, else args[2].
	OpcodeSelect

	// OpcodeJump unconditionally transfers to Dest, passing Args as its block
	// arguments.
	OpcodeJump
	// OpcodeFallthrough is a jump to the next block in layout order. It carries
	// no bytes; Dest must equal the layout successor.
	OpcodeFallthrough
	// OpcodeBrz branches to Dest when args[0] is zero; args[1:] are block
	// arguments. Control otherwise continues in the same block.
	OpcodeBrz
	// OpcodeBrnz branches to Dest when args[0] is nonzero.
	OpcodeBrnz
	// OpcodeBrTable branches through jump table Table indexed by args[0];
	// an out of range index falls through to the next instruction.
	OpcodeBrTable
	// OpcodeCall calls external function FnRef with Args, producing at most one
	// result.
	OpcodeCall
	// OpcodeReturn returns Args to the caller.
	OpcodeReturn
	// OpcodeTrap aborts execution with code Trap.
	OpcodeTrap

	// OpcodeCopy produces a copy of args[0] in a fresh value.
	OpcodeCopy
	// OpcodeRegmove diverts args[0] from register SrcReg to DstReg without
	// changing its assigned location. The diversion holds until the value's
	// live range ends or a further move occurs.
	OpcodeRegmove
	// OpcodeSpill stores args[0] to stack slot Slot.
	OpcodeSpill
	// OpcodeFill produces a reload of args[0] (a spilled value) into a register.
	OpcodeFill
	// OpcodeAdjustSpDown grows the stack frame by Imm bytes.
	OpcodeAdjustSpDown
	// OpcodeAdjustSpUp shrinks the stack frame by Imm bytes.
	OpcodeAdjustSpUp
	// OpcodeNop does nothing and carries no bytes.
	OpcodeNop

	opcodeMax
)

type opcodeInfo struct {
	name string
	// branch marks instructions that transfer control to an explicit target.
	branch bool
	// terminator marks instructions that must end a block.
	terminator bool
	// sideEffects marks instructions that must not be moved or removed by the
	// optimizing passes.
	sideEffects bool
	// canTrap marks instructions recorded in the trap side table.
	canTrap bool
	// result reports whether the instruction defines a value.
	result bool
}

var opcodeTable = [opcodeMax]opcodeInfo{
	OpcodeIconst:       {name: "iconst", result: true},
	OpcodeFconst:       {name: "fconst", result: true},
	OpcodeIadd:         {name: "iadd", result: true},
	OpcodeIsub:         {name: "isub", result: true},
	OpcodeImul:         {name: "imul", result: true},
	OpcodeBand:         {name: "band", result: true},
	OpcodeBor:          {name: "bor", result: true},
	OpcodeBxor:         {name: "bxor", result: true},
	OpcodeIcmp:         {name: "icmp", result: true},
	OpcodeFadd:         {name: "fadd", result: true},
	OpcodeFsub:         {name: "fsub", result: true},
	OpcodeFmul:         {name: "fmul", result: true},
	OpcodeFdiv:         {name: "fdiv", result: true},
	OpcodeFcmp:         {name: "fcmp", result: true},
	OpcodeSelect:       {name: "select", result: true},
	OpcodeJump:         {name: "jump", branch: true, terminator: true, sideEffects: true},
	OpcodeFallthrough:  {name: "fallthrough", branch: true, terminator: true, sideEffects: true},
	OpcodeBrz:          {name: "brz", branch: true, sideEffects: true},
	OpcodeBrnz:         {name: "brnz", branch: true, sideEffects: true},
	OpcodeBrTable:      {name: "br_table", branch: true, sideEffects: true},
	OpcodeCall:         {name: "call", sideEffects: true, result: true},
	OpcodeReturn:       {name: "return", terminator: true, sideEffects: true},
	OpcodeTrap:         {name: "trap", terminator: true, sideEffects: true, canTrap: true},
	OpcodeCopy:         {name: "copy", result: true},
	OpcodeRegmove:      {name: "regmove", sideEffects: true},
	OpcodeSpill:        {name: "spill", sideEffects: true, result: true},
	OpcodeFill:         {name: "fill", result: true},
	OpcodeAdjustSpDown: {name: "adjust_sp_down", sideEffects: true},
	OpcodeAdjustSpUp:   {name: "adjust_sp_up", sideEffects: true},
	OpcodeNop:          {name: "nop"},
}

// String implements fmt.Stringer using the text format's mnemonics.
func (o Opcode) String() string {
	if o == OpcodeInvalid || o >= opcodeMax {
		return "invalid"
	}
	return opcodeTable[o].name
}

// IsBranch reports whether o transfers control to an explicit target.
func (o Opcode) IsBranch() bool { return opcodeTable[o].branch }

// IsTerminator reports whether o must end a block.
func (o Opcode) IsTerminator() bool { return opcodeTable[o].terminator }

// HasSideEffects reports whether the optimizing passes must preserve o.
func (o Opcode) HasSideEffects() bool { return opcodeTable[o].sideEffects }

// CanTrap reports whether o is recorded in the trap side table.
func (o Opcode) CanTrap() bool { return opcodeTable[o].canTrap }

// HasResult reports whether o defines a value.
func (o Opcode) HasResult() bool { return opcodeTable[o].result }

// OpcodeFromName parses a text format mnemonic.
func OpcodeFromName(name string) (Opcode, bool) {
	for o := Opcode(1); o < opcodeMax; o++ {
		if opcodeTable[o].name == name {
			return o, true
		}
	}
	return OpcodeInvalid, false
}

// InstructionData is the payload of one instruction. One struct serves every
// opcode; which fields are meaningful depends on Opcode. Instructions are
// addressed by Inst handles and stored contiguously in their Function.
type InstructionData struct {
	Opcode Opcode
	// Typ is the controlling type: the result type of value producing
	// instructions, the operand type of icmp/fcmp and conditional branches.
	Typ Type
	// IntCC is the condition of icmp.
	IntCC IntCC
	// FloatCC is the condition of fcmp.
	FloatCC FloatCC
	// Trap is the code of trap.
	Trap TrapCode
	// Args holds the value operands. For brz/brnz/br_table, args[0] is the
	// fixed operand (condition or index) and the rest are block arguments; for
	// jump/fallthrough every arg is a block argument.
	Args ValueList
	// Dest is the target of single destination branches.
	Dest Block
	// Table is the jump table of br_table.
	Table JumpTable
	// Const is the interned pool entry of fconst, so targets that load the
	// constant from memory know where its bytes will live.
	Const Constant
	// FnRef is the callee of call.
	FnRef FuncRef
	// Slot is the stack slot of spill and fill.
	Slot StackSlot
	// SrcReg and DstReg are the registers of regmove.
	SrcReg, DstReg RegUnit
	// Imm is the immediate of iconst (value), fconst (bit pattern), and the
	// stack adjustment amount.
	Imm int64
}

// branchFixedArgs returns how many leading Args are fixed operands rather than
// block arguments.
func (d *InstructionData) branchFixedArgs() int {
	switch d.Opcode {
	case OpcodeBrz, OpcodeBrnz, OpcodeBrTable:
		return 1
	default:
		return 0
	}
}

// BranchKind classifies an instruction for branch analysis.
type BranchKind byte

const (
	// BranchKindNone: not a branch.
	BranchKindNone BranchKind = iota
	// BranchKindSingleDest: a branch with one explicit destination.
	BranchKindSingleDest
	// BranchKindTable: an indirect branch through a jump table.
	BranchKindTable
)

// BranchKind classifies d for branch analysis.
func (d *InstructionData) BranchKind() BranchKind {
	switch d.Opcode {
	case OpcodeJump, OpcodeFallthrough, OpcodeBrz, OpcodeBrnz:
		return BranchKindSingleDest
	case OpcodeBrTable:
		return BranchKindTable
	default:
		return BranchKindNone
	}
}

// ChangeBranchDestination redirects a single destination branch to dest. The
// caller is responsible for updating the block argument list to match dest's
// parameters and for recomputing the flow graph.
func (d *InstructionData) ChangeBranchDestination(dest Block) {
	if d.BranchKind() != BranchKindSingleDest {
		panic("BUG: ChangeBranchDestination on a non-branch")
	}
	d.Dest = dest
}

// ChangeToFallthrough rewrites a jump into a fallthrough and reports the
// destination, which must already be the layout successor.
func (d *InstructionData) ChangeToFallthrough() {
	if d.Opcode != OpcodeJump {
		panic("BUG: ChangeToFallthrough on a non-jump")
	}
	d.Opcode = OpcodeFallthrough
}

// ChangeToNop rewrites d into a nop, dropping its operands.
func (d *InstructionData) ChangeToNop() {
	*d = InstructionData{Opcode: OpcodeNop}
}
