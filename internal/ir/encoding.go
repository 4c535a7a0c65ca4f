package ir

import "fmt"

// Encoding selects how one instruction is rendered into machine code: a recipe
// index naming an instruction format of the target ISA, plus encoding bits whose
// meaning is private to the recipe (opcode selectors, condition fields).
//
// Recipe 0 is reserved, so the zero Encoding means "not encoded". The ISA
// packages interpret recipes; ir only stores them.
type Encoding struct {
	Recipe uint16
	Bits   uint16
}

// IsLegal reports whether e names a real recipe.
func (e Encoding) IsLegal() bool { return e.Recipe != 0 }

// String implements fmt.Stringer.
func (e Encoding) String() string {
	if !e.IsLegal() {
		return "-"
	}
	return fmt.Sprintf("enc%d#%02x", e.Recipe, e.Bits)
}
