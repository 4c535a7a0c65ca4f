package ir

import "fmt"

// The intermediate representation addresses everything through small integer
// handles. Index 0 is reserved as the invalid sentinel for every entity kind, so
// tables indexed by an entity keep a dead zeroth slot and valid entities start
// at 1.

// Block identifies a basic block in a Function.
type Block uint32

// BlockInvalid is the zero Block; it never names a real block.
const BlockInvalid Block = 0

// Valid reports whether b names a real block.
func (b Block) Valid() bool { return b != BlockInvalid }

// String implements fmt.Stringer. Blocks print zero-based to match the text
// format, so the first real block is "block0".
func (b Block) String() string {
	if !b.Valid() {
		return "block?"
	}
	return fmt.Sprintf("block%d", uint32(b)-1)
}

// Inst identifies an instruction in a Function.
type Inst uint32

// InstInvalid is the zero Inst.
const InstInvalid Inst = 0

// Valid reports whether i names a real instruction.
func (i Inst) Valid() bool { return i != InstInvalid }

// String implements fmt.Stringer.
func (i Inst) String() string {
	if !i.Valid() {
		return "inst?"
	}
	return fmt.Sprintf("inst%d", uint32(i)-1)
}

// Value identifies an SSA value: either an instruction result or a block
// parameter.
type Value uint32

// ValueInvalid is the zero Value.
const ValueInvalid Value = 0

// Valid reports whether v names a real value.
func (v Value) Valid() bool { return v != ValueInvalid }

// String implements fmt.Stringer.
func (v Value) String() string {
	if !v.Valid() {
		return "v?"
	}
	return fmt.Sprintf("v%d", uint32(v)-1)
}

// StackSlot identifies an explicit stack slot in a function frame.
type StackSlot uint32

// StackSlotInvalid is the zero StackSlot.
const StackSlotInvalid StackSlot = 0

// Valid reports whether s names a real stack slot.
func (s StackSlot) Valid() bool { return s != StackSlotInvalid }

// String implements fmt.Stringer.
func (s StackSlot) String() string {
	if !s.Valid() {
		return "ss?"
	}
	return fmt.Sprintf("ss%d", uint32(s)-1)
}

// JumpTable identifies a jump table attached to a Function.
type JumpTable uint32

// JumpTableInvalid is the zero JumpTable.
const JumpTableInvalid JumpTable = 0

// Valid reports whether jt names a real jump table.
func (jt JumpTable) Valid() bool { return jt != JumpTableInvalid }

// String implements fmt.Stringer.
func (jt JumpTable) String() string {
	if !jt.Valid() {
		return "jt?"
	}
	return fmt.Sprintf("jt%d", uint32(jt)-1)
}

// Constant identifies an interned constant pool entry.
type Constant uint32

// ConstantInvalid is the zero Constant.
const ConstantInvalid Constant = 0

// Valid reports whether c names a real constant.
func (c Constant) Valid() bool { return c != ConstantInvalid }

// String implements fmt.Stringer.
func (c Constant) String() string {
	if !c.Valid() {
		return "const?"
	}
	return fmt.Sprintf("const%d", uint32(c)-1)
}

// FuncRef identifies an external function declared in a Function, used as the
// target of Call instructions and as the symbol of call relocations.
type FuncRef uint32

// FuncRefInvalid is the zero FuncRef.
const FuncRefInvalid FuncRef = 0

// Valid reports whether fr names a real external function.
func (fr FuncRef) Valid() bool { return fr != FuncRefInvalid }

// String implements fmt.Stringer.
func (fr FuncRef) String() string {
	if !fr.Valid() {
		return "fn?"
	}
	return fmt.Sprintf("fn%d", uint32(fr)-1)
}

// RegUnit names one allocatable machine register within an ISA's register bank.
// The numbering is ISA specific; ir only stores it.
type RegUnit uint16

// RegUnitInvalid marks an unassigned register.
const RegUnitInvalid RegUnit = 0xffff
