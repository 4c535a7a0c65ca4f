package ir

import "fmt"

// ValueLocKind says where a value lives after register allocation.
type ValueLocKind byte

const (
	// ValueLocUnassigned means register allocation has not placed the value.
	ValueLocUnassigned ValueLocKind = iota
	// ValueLocReg places the value in a machine register.
	ValueLocReg
	// ValueLocStack places the value in a spill slot.
	ValueLocStack
)

// ValueLoc is the assigned location of one SSA value.
type ValueLoc struct {
	Kind ValueLocKind
	// Reg is valid when Kind == ValueLocReg.
	Reg RegUnit
	// Slot is valid when Kind == ValueLocStack.
	Slot StackSlot
}

// RegLoc returns a register location.
func RegLoc(r RegUnit) ValueLoc { return ValueLoc{Kind: ValueLocReg, Reg: r} }

// StackLoc returns a stack slot location.
func StackLoc(s StackSlot) ValueLoc { return ValueLoc{Kind: ValueLocStack, Slot: s} }

// IsAssigned reports whether the value has been placed.
func (l ValueLoc) IsAssigned() bool { return l.Kind != ValueLocUnassigned }

// String implements fmt.Stringer.
func (l ValueLoc) String() string {
	switch l.Kind {
	case ValueLocUnassigned:
		return "-"
	case ValueLocReg:
		return fmt.Sprintf("r%d", l.Reg)
	case ValueLocStack:
		return l.Slot.String()
	}
	panic("BUG: unknown value location kind")
}

// StackSlotData describes one explicit stack slot of a function frame.
type StackSlotData struct {
	// Size is the slot size in bytes.
	Size uint32
	// Offset is the slot's frame offset, assigned by the prologue pass.
	Offset int32
}
