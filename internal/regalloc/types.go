// Package regalloc assigns machine registers to SSA values. The allocator sees
// the target ISA only through the narrow Target interface defined here, so a
// different allocator can be swapped in without touching the ISAs, and the
// ISAs can describe their operand constraints without depending on any
// particular allocation strategy.
package regalloc

import "github.com/gantry-go/gantry/internal/ir"

// RegClass partitions the register bank.
type RegClass byte

const (
	// ClassInt holds integer registers.
	ClassInt RegClass = iota
	// ClassFloat holds floating point registers.
	ClassFloat
	numClasses
)

// String implements fmt.Stringer.
func (c RegClass) String() string {
	switch c {
	case ClassInt:
		return "int"
	case ClassFloat:
		return "float"
	}
	return "??"
}

// ClassOf returns the register class holding values of type t.
func ClassOf(t ir.Type) RegClass {
	if t.IsFloat() {
		return ClassFloat
	}
	return ClassInt
}

// ConstraintKind says what locations an operand tolerates.
type ConstraintKind byte

const (
	// ConstraintAnyReg allows any register of the class.
	ConstraintAnyReg ConstraintKind = iota
	// ConstraintFixedReg requires one specific register.
	ConstraintFixedReg
	// ConstraintStack requires a stack slot.
	ConstraintStack
)

// OperandConstraint restricts where one operand of an encoded instruction may
// live.
type OperandConstraint struct {
	Kind  ConstraintKind
	Class RegClass
	// Reg is the required register when Kind == ConstraintFixedReg.
	Reg ir.RegUnit
}

// Target is what the allocator needs to know about an ISA.
type Target interface {
	// AllocatableRegs returns the registers of class available for
	// allocation, in preference order. The slice must not be modified.
	AllocatableRegs(class RegClass) []ir.RegUnit
	// RegmoveEncoding returns the encoding for a regmove of a value of type
	// t, so moves inserted after legalization are emittable.
	RegmoveEncoding(t ir.Type) ir.Encoding
}
