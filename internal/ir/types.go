package ir

// Type is the scalar type of an SSA value.
type Type byte

const (
	// TypeInvalid is the zero Type, used for instructions without a result.
	TypeInvalid Type = iota
	// TypeI32 is a 32-bit integer.
	TypeI32
	// TypeI64 is a 64-bit integer.
	TypeI64
	// TypeF32 is a 32-bit float.
	TypeF32
	// TypeF64 is a 64-bit float.
	TypeF64
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeInvalid:
		return "void"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	}
	panic("BUG: unknown type")
}

// IsInt reports whether t is an integer type.
func (t Type) IsInt() bool { return t == TypeI32 || t == TypeI64 }

// IsFloat reports whether t is a floating point type.
func (t Type) IsFloat() bool { return t == TypeF32 || t == TypeF64 }

// Bits returns the width of t in bits.
func (t Type) Bits() int {
	switch t {
	case TypeI32, TypeF32:
		return 32
	case TypeI64, TypeF64:
		return 64
	}
	return 0
}

// Bytes returns the width of t in bytes.
func (t Type) Bytes() int { return t.Bits() / 8 }

// TypeFromName parses the textual name of a type as used by the text format.
func TypeFromName(name string) (Type, bool) {
	switch name {
	case "i32":
		return TypeI32, true
	case "i64":
		return TypeI64, true
	case "f32":
		return TypeF32, true
	case "f64":
		return TypeF64, true
	}
	return TypeInvalid, false
}
