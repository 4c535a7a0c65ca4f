package isa

import (
	"fmt"

	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// RegBank is a contiguous run of register units of one class.
type RegBank struct {
	// Name identifies the bank in diagnostics.
	Name string
	// First is the unit number of the bank's first register.
	First ir.RegUnit
	// Num is how many registers the bank holds.
	Num uint16
	// Class is the register class the bank serves.
	Class regalloc.RegClass
	// RegNames lists the ISA names of the registers, indexed from First.
	// Units past the list fall back to Name plus the index.
	RegNames []string
}

// RegInfo describes an ISA's register banks.
type RegInfo struct {
	Banks []RegBank
}

// Bank returns the bank containing unit u, or nil.
func (r *RegInfo) Bank(u ir.RegUnit) *RegBank {
	for i := range r.Banks {
		b := &r.Banks[i]
		if u >= b.First && u < b.First+ir.RegUnit(b.Num) {
			return b
		}
	}
	return nil
}

// DisplayReg returns the ISA name of unit u.
func (r *RegInfo) DisplayReg(u ir.RegUnit) string {
	if b := r.Bank(u); b != nil {
		idx := int(u - b.First)
		if idx < len(b.RegNames) {
			return b.RegNames[idx]
		}
		return fmt.Sprintf("%s%d", b.Name, idx)
	}
	return fmt.Sprintf("ru%d", u)
}
