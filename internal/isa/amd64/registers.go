package amd64

import (
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// Register units. The integer bank occupies units 0 to 15 with the hardware
// register numbers, so the low three bits go straight into ModRM fields and
// bit 3 is the REX extension bit. The float bank maps xmm0 to xmm15 onto
// units 16 to 31.
const (
	regRAX ir.RegUnit = iota
	regRCX
	regRDX
	regRBX
	regRSP
	regRBP
	regRSI
	regRDI
	regR8
	regR9
	regR10
	regR11
	regR12
	regR13
	regR14
	regR15
)

const (
	// floatBank is the first float unit; xmm<i> is floatBank + i.
	floatBank ir.RegUnit = 16

	// r10 and r11 stay out of the allocatable set; the br_table sequence and
	// call argument shuffling use them as scratch. xmm15 is the float scratch
	// of the fcmp sequence.
	scratchInt  = regR10
	scratchInt2 = regR11
	scratchF    = floatBank + 15
)

// allocatableInt is the integer allocation order. rsp and rbp are never
// handed out, r10 and r11 are scratch.
var allocatableInt = []ir.RegUnit{
	regRAX, regRCX, regRDX, regRBX, regRSI, regRDI,
	regR8, regR9, regR12, regR13, regR14, regR15,
}

// allocatableFloat is xmm0 through xmm14; xmm15 is scratch.
var allocatableFloat = func() []ir.RegUnit {
	regs := make([]ir.RegUnit, 15)
	for i := range regs {
		regs[i] = floatBank + ir.RegUnit(i)
	}
	return regs
}()

var intRegNames = []string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var regInfo = &isa.RegInfo{Banks: []isa.RegBank{
	{Name: "r", First: 0, Num: 16, Class: regalloc.ClassInt, RegNames: intRegNames},
	{Name: "xmm", First: floatBank, Num: 16, Class: regalloc.ClassFloat},
}}

// hwReg returns the 4-bit hardware number of an integer or float unit.
func hwReg(u ir.RegUnit) byte {
	if u >= floatBank {
		return byte(u - floatBank)
	}
	return byte(u)
}

// isExt reports whether the unit needs a REX extension bit.
func isExt(u ir.RegUnit) bool { return hwReg(u) >= 8 }
