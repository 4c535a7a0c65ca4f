package ir

// IntCC is an integer comparison condition.
type IntCC byte

const (
	IntCCInvalid IntCC = iota
	IntCCEq
	IntCCNe
	IntCCLtS
	IntCCGeS
	IntCCGtS
	IntCCLeS
	IntCCLtU
	IntCCGeU
	IntCCGtU
	IntCCLeU
)

// String implements fmt.Stringer using the text format's mnemonics.
func (c IntCC) String() string {
	switch c {
	case IntCCEq:
		return "eq"
	case IntCCNe:
		return "ne"
	case IntCCLtS:
		return "slt"
	case IntCCGeS:
		return "sge"
	case IntCCGtS:
		return "sgt"
	case IntCCLeS:
		return "sle"
	case IntCCLtU:
		return "ult"
	case IntCCGeU:
		return "uge"
	case IntCCGtU:
		return "ugt"
	case IntCCLeU:
		return "ule"
	}
	return "??"
}

// Inverse returns the condition that holds exactly when c does not.
func (c IntCC) Inverse() IntCC {
	switch c {
	case IntCCEq:
		return IntCCNe
	case IntCCNe:
		return IntCCEq
	case IntCCLtS:
		return IntCCGeS
	case IntCCGeS:
		return IntCCLtS
	case IntCCGtS:
		return IntCCLeS
	case IntCCLeS:
		return IntCCGtS
	case IntCCLtU:
		return IntCCGeU
	case IntCCGeU:
		return IntCCLtU
	case IntCCGtU:
		return IntCCLeU
	case IntCCLeU:
		return IntCCGtU
	}
	panic("BUG: inverse of invalid IntCC")
}

// IntCCFromName parses a text format condition mnemonic.
func IntCCFromName(name string) (IntCC, bool) {
	for c := IntCCEq; c <= IntCCLeU; c++ {
		if c.String() == name {
			return c, true
		}
	}
	return IntCCInvalid, false
}

// FloatCC is a floating point comparison condition.
type FloatCC byte

const (
	FloatCCInvalid FloatCC = iota
	// FloatCCOrd holds when neither operand is NaN.
	FloatCCOrd
	// FloatCCUno holds when either operand is NaN.
	FloatCCUno
	FloatCCEq
	FloatCCNe
	FloatCCLt
	FloatCCGt
)

// String implements fmt.Stringer using the text format's mnemonics.
func (c FloatCC) String() string {
	switch c {
	case FloatCCOrd:
		return "ord"
	case FloatCCUno:
		return "uno"
	case FloatCCEq:
		return "eq"
	case FloatCCNe:
		return "ne"
	case FloatCCLt:
		return "lt"
	case FloatCCGt:
		return "gt"
	}
	return "??"
}

// FloatCCFromName parses a text format condition mnemonic.
func FloatCCFromName(name string) (FloatCC, bool) {
	for c := FloatCCOrd; c <= FloatCCGt; c++ {
		if c.String() == name {
			return c, true
		}
	}
	return FloatCCInvalid, false
}
