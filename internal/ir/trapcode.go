package ir

import "fmt"

// TrapCode describes why a trap instruction or trapping operation fires. The
// code is recorded in the emitted trap side table at the offset of the trapping
// instruction.
type TrapCode byte

const (
	// TrapStackOverflow: the stack limit check at function entry failed.
	TrapStackOverflow TrapCode = iota
	// TrapHeapOutOfBounds: a memory access was outside the linear memory bounds.
	TrapHeapOutOfBounds
	// TrapTableOutOfBounds: a jump table or call table index was out of range.
	TrapTableOutOfBounds
	// TrapIndirectCallToNull: an indirect call went through a null table entry.
	TrapIndirectCallToNull
	// TrapBadSignature: an indirect call's signature did not match the callee.
	TrapBadSignature
	// TrapIntegerOverflow: an integer operation overflowed its result type.
	TrapIntegerOverflow
	// TrapIntegerDivisionByZero: the divisor of a division or remainder was zero.
	TrapIntegerDivisionByZero
	// TrapBadConversionToInteger: a float to integer conversion was out of range.
	TrapBadConversionToInteger
	// TrapInterrupt: the code was asynchronously interrupted.
	TrapInterrupt
	// TrapUnreachable: an unreachable code marker was executed.
	TrapUnreachable

	// trapCodeUserBase is where user defined codes start.
	trapCodeUserBase TrapCode = 0x40
)

// TrapUser returns the nth user defined trap code.
func TrapUser(n byte) TrapCode { return trapCodeUserBase + TrapCode(n) }

// String implements fmt.Stringer using the text format's mnemonics.
func (c TrapCode) String() string {
	switch c {
	case TrapStackOverflow:
		return "stk_ovf"
	case TrapHeapOutOfBounds:
		return "heap_oob"
	case TrapTableOutOfBounds:
		return "table_oob"
	case TrapIndirectCallToNull:
		return "icall_null"
	case TrapBadSignature:
		return "bad_sig"
	case TrapIntegerOverflow:
		return "int_ovf"
	case TrapIntegerDivisionByZero:
		return "int_divz"
	case TrapBadConversionToInteger:
		return "bad_toint"
	case TrapInterrupt:
		return "interrupt"
	case TrapUnreachable:
		return "unreachable"
	}
	if c >= trapCodeUserBase {
		return fmt.Sprintf("user%d", c-trapCodeUserBase)
	}
	return fmt.Sprintf("trap%d", c)
}

// TrapCodeFromName parses a text format trap mnemonic.
func TrapCodeFromName(name string) (TrapCode, bool) {
	for c := TrapStackOverflow; c <= TrapUnreachable; c++ {
		if c.String() == name {
			return c, true
		}
	}
	var n byte
	if _, err := fmt.Sscanf(name, "user%d", &n); err == nil {
		return TrapUser(n), true
	}
	return 0, false
}
