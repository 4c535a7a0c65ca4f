package riscv

import (
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// Register units. The integer bank maps x0 through x31 onto units 0 to 31
// with the hardware numbers; the float bank maps f0 through f31 onto units
// 32 to 63.
const (
	regZero ir.RegUnit = 0  // x0, hardwired zero
	regRA   ir.RegUnit = 1  // x1, return address
	regSP   ir.RegUnit = 2  // x2, stack pointer
	regT0   ir.RegUnit = 5  // x5 through x7 are t0 through t2
	regA0   ir.RegUnit = 10 // x10 through x17 are a0 through a7
	regT3   ir.RegUnit = 28 // x28 through x31 are t3 through t6
	regT5   ir.RegUnit = 30
	regT6   ir.RegUnit = 31

	// floatBank is the first float unit; f<i> is floatBank + i.
	floatBank ir.RegUnit = 32

	// t5 stays out of the allocatable set; the fcmp ordered sequence and
	// call argument shuffling use it as scratch. f31 is the float scratch.
	scratchInt = regT5
	scratchF   = floatBank + 31
)

// allocatableInt hands out the caller saved registers in argument register
// order. Saved registers stay out of the set because the prologue does not
// preserve them, and zero, ra, sp, gp and tp are never allocated.
var allocatableInt = []ir.RegUnit{
	regA0, regA0 + 1, regA0 + 2, regA0 + 3, regA0 + 4, regA0 + 5, regA0 + 6, regA0 + 7,
	regT0, regT0 + 1, regT0 + 2, regT3, regT3 + 1, regT6,
}

// allocatableFloat is fa0 through fa7 then ft0 through ft10; ft11 is
// scratch.
var allocatableFloat = func() []ir.RegUnit {
	regs := make([]ir.RegUnit, 0, 19)
	for i := ir.RegUnit(10); i < 18; i++ {
		regs = append(regs, floatBank+i)
	}
	for i := ir.RegUnit(0); i < 8; i++ {
		regs = append(regs, floatBank+i)
	}
	for i := ir.RegUnit(28); i < 31; i++ {
		regs = append(regs, floatBank+i)
	}
	return regs
}()

var intRegNames = []string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
	"t3", "t4", "t5", "t6",
}

var regInfo = &isa.RegInfo{Banks: []isa.RegBank{
	{Name: "x", First: 0, Num: 32, Class: regalloc.ClassInt, RegNames: intRegNames},
	{Name: "f", First: floatBank, Num: 32, Class: regalloc.ClassFloat},
}}

// hwReg returns the 5-bit hardware number of an integer or float unit.
func hwReg(u ir.RegUnit) uint32 {
	if u >= floatBank {
		return uint32(u - floatBank)
	}
	return uint32(u)
}
