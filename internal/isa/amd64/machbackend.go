package amd64

import (
	"errors"
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/regalloc"
)

// ErrMachUnsupported reports an instruction outside the golang-asm backend's
// subset. Calls and jump tables need relocation and table side data, which
// the whole function backend cannot return; float compares keep IEEE NaN
// semantics only in the recipe pipeline.
var ErrMachUnsupported = errors.New("amd64: instruction not supported by the golang-asm backend")

// machBackend lowers a function to golang-asm progs in one pass, bypassing
// the recipe pipeline. Register allocation and the frame setup are shared
// with the staged path; branch relaxation is the assembler's problem.
type machBackend struct {
	t *target
}

func newMachBackend(t *target) isa.MachBackend { return &machBackend{t: t} }

// CompileFunction implements isa.MachBackend.
func (m *machBackend) CompileFunction(f *ir.Function) ([]byte, error) {
	f.ResolveAliases()
	if err := regalloc.NewContext().Run(m.t, f); err != nil {
		return nil, err
	}
	if err := m.t.PrologueEpilogue(f); err != nil {
		return nil, err
	}
	c, err := newMachCompiler()
	if err != nil {
		return nil, err
	}
	return c.compile(f)
}

type branchFixup struct {
	prog *obj.Prog
	dest ir.Block
}

type machCompiler struct {
	b         *goasm.Builder
	blockHead map[ir.Block]*obj.Prog
	fixups    []branchFixup
	divert    regalloc.RegDiversions
}

func newMachCompiler() (*machCompiler, error) {
	b, err := goasm.NewBuilder("amd64", 1024)
	if err != nil {
		return nil, fmt.Errorf("failed to create an assembly builder: %w", err)
	}
	return &machCompiler{b: b, blockHead: map[ir.Block]*obj.Prog{}}, nil
}

func (c *machCompiler) compile(f *ir.Function) ([]byte, error) {
	for blk := f.Layout.FirstBlock(); blk.Valid(); blk = f.Layout.NextBlock(blk) {
		// A zero size marker prog per block gives branches a stable target
		// even when the block opens with another branch.
		head := c.b.NewProg()
		head.As = obj.ANOP
		c.b.AddInstruction(head)
		c.blockHead[blk] = head

		c.divert.Clear()
		for i := f.Layout.FirstInst(blk); i.Valid(); i = f.Layout.NextInst(i) {
			if err := c.compileInst(f, i); err != nil {
				return nil, err
			}
			c.divert.Apply(f, f.InstData(i))
		}
	}
	for _, fx := range c.fixups {
		fx.prog.To.SetTarget(c.blockHead[fx.dest])
	}
	return c.b.Assemble(), nil
}

// goReg maps a register unit to its golang-asm register constant.
func goReg(u ir.RegUnit) int16 {
	if u >= floatBank {
		return x86.REG_X0 + int16(u-floatBank)
	}
	return x86.REG_AX + int16(u)
}

func (c *machCompiler) rr(as obj.As, from, to ir.RegUnit) {
	p := c.b.NewProg()
	p.As = as
	p.From.Type = obj.TYPE_REG
	p.From.Reg = goReg(from)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = goReg(to)
	c.b.AddInstruction(p)
}

func (c *machCompiler) constToReg(as obj.As, v int64, to ir.RegUnit) {
	p := c.b.NewProg()
	p.As = as
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = v
	p.To.Type = obj.TYPE_REG
	p.To.Reg = goReg(to)
	c.b.AddInstruction(p)
}

func (c *machCompiler) regToFrame(as obj.As, from ir.RegUnit, off int32) {
	p := c.b.NewProg()
	p.As = as
	p.From.Type = obj.TYPE_REG
	p.From.Reg = goReg(from)
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = x86.REG_SP
	p.To.Offset = int64(off)
	c.b.AddInstruction(p)
}

func (c *machCompiler) frameToReg(as obj.As, off int32, to ir.RegUnit) {
	p := c.b.NewProg()
	p.As = as
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = x86.REG_SP
	p.From.Offset = int64(off)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = goReg(to)
	c.b.AddInstruction(p)
}

func (c *machCompiler) toReg(as obj.As, to ir.RegUnit) {
	p := c.b.NewProg()
	p.As = as
	p.To.Type = obj.TYPE_REG
	p.To.Reg = goReg(to)
	c.b.AddInstruction(p)
}

func (c *machCompiler) standalone(as obj.As) {
	p := c.b.NewProg()
	p.As = as
	c.b.AddInstruction(p)
}

func (c *machCompiler) jumpTo(as obj.As, dest ir.Block) {
	p := c.b.NewProg()
	p.As = as
	p.To.Type = obj.TYPE_BRANCH
	c.b.AddInstruction(p)
	c.fixups = append(c.fixups, branchFixup{prog: p, dest: dest})
}

func (c *machCompiler) move(t ir.Type, from, to ir.RegUnit) {
	if from == to {
		return
	}
	c.rr(machMov(t), from, to)
}

func machMov(t ir.Type) obj.As {
	switch t {
	case ir.TypeF32:
		return x86.AMOVSS
	case ir.TypeF64:
		return x86.AMOVSD
	case ir.TypeI64:
		return x86.AMOVQ
	default:
		return x86.AMOVL
	}
}

func machAluOp(op ir.Opcode, t ir.Type) obj.As {
	q := t == ir.TypeI64
	switch op {
	case ir.OpcodeIadd:
		if q {
			return x86.AADDQ
		}
		return x86.AADDL
	case ir.OpcodeIsub:
		if q {
			return x86.ASUBQ
		}
		return x86.ASUBL
	case ir.OpcodeImul:
		if q {
			return x86.AIMULQ
		}
		return x86.AIMULL
	case ir.OpcodeBand:
		if q {
			return x86.AANDQ
		}
		return x86.AANDL
	case ir.OpcodeBor:
		if q {
			return x86.AORQ
		}
		return x86.AORL
	case ir.OpcodeBxor:
		if q {
			return x86.AXORQ
		}
		return x86.AXORL
	}
	panic("BUG: no golang-asm ALU op for " + op.String())
}

func machFloatOp(op ir.Opcode, t ir.Type) obj.As {
	single := t == ir.TypeF32
	switch op {
	case ir.OpcodeFadd:
		if single {
			return x86.AADDSS
		}
		return x86.AADDSD
	case ir.OpcodeFsub:
		if single {
			return x86.ASUBSS
		}
		return x86.ASUBSD
	case ir.OpcodeFmul:
		if single {
			return x86.AMULSS
		}
		return x86.AMULSD
	case ir.OpcodeFdiv:
		if single {
			return x86.ADIVSS
		}
		return x86.ADIVSD
	}
	panic("BUG: no golang-asm float op for " + op.String())
}

func machSetCC(cc ir.IntCC) obj.As {
	switch cc {
	case ir.IntCCEq:
		return x86.ASETEQ
	case ir.IntCCNe:
		return x86.ASETNE
	case ir.IntCCLtS:
		return x86.ASETLT
	case ir.IntCCGeS:
		return x86.ASETGE
	case ir.IntCCGtS:
		return x86.ASETGT
	case ir.IntCCLeS:
		return x86.ASETLE
	case ir.IntCCLtU:
		return x86.ASETCS
	case ir.IntCCGeU:
		return x86.ASETCC
	case ir.IntCCGtU:
		return x86.ASETHI
	case ir.IntCCLeU:
		return x86.ASETLS
	}
	panic("BUG: no golang-asm setcc for " + cc.String())
}

func (c *machCompiler) compileInst(f *ir.Function, i ir.Inst) error {
	d := f.InstData(i)
	switch d.Opcode {
	case ir.OpcodeIconst:
		c.constToReg(machMov(d.Typ), d.Imm, resultReg(f, i))

	case ir.OpcodeFconst:
		// Stage the bit pattern through the integer scratch register.
		r := resultReg(f, i)
		if d.Typ == ir.TypeF32 {
			c.constToReg(x86.AMOVL, int64(int32(d.Imm)), scratchInt)
			c.rr(x86.AMOVL, scratchInt, r)
		} else {
			c.constToReg(x86.AMOVQ, d.Imm, scratchInt)
			c.rr(x86.AMOVQ, scratchInt, r)
		}

	case ir.OpcodeIadd, ir.OpcodeIsub, ir.OpcodeImul, ir.OpcodeBand, ir.OpcodeBor, ir.OpcodeBxor:
		args := f.InstArgs(i)
		a, b := regOf(f, &c.divert, args[0]), regOf(f, &c.divert, args[1])
		r := resultReg(f, i)
		if r == b && r != a {
			if d.Opcode == ir.OpcodeIsub {
				c.rr(machMov(d.Typ), b, scratchInt)
				b = scratchInt
			} else {
				a, b = b, a
			}
		}
		c.move(d.Typ, a, r)
		c.rr(machAluOp(d.Opcode, d.Typ), b, r)

	case ir.OpcodeFadd, ir.OpcodeFsub, ir.OpcodeFmul, ir.OpcodeFdiv:
		args := f.InstArgs(i)
		a, b := regOf(f, &c.divert, args[0]), regOf(f, &c.divert, args[1])
		r := resultReg(f, i)
		if r == b && r != a {
			if d.Opcode == ir.OpcodeFsub || d.Opcode == ir.OpcodeFdiv {
				c.rr(machMov(d.Typ), b, scratchF)
				b = scratchF
			} else {
				a, b = b, a
			}
		}
		c.move(d.Typ, a, r)
		c.rr(machFloatOp(d.Opcode, d.Typ), b, r)

	case ir.OpcodeIcmp:
		args := f.InstArgs(i)
		a, b := regOf(f, &c.divert, args[0]), regOf(f, &c.divert, args[1])
		r := resultReg(f, i)
		cmp := x86.ACMPL
		if d.Typ == ir.TypeI64 {
			cmp = x86.ACMPQ
		}
		c.rr(cmp, a, b)
		c.toReg(machSetCC(d.IntCC), r)
		c.rr(x86.AMOVBLZX, r, r)

	case ir.OpcodeSelect:
		args := f.InstArgs(i)
		cond := regOf(f, &c.divert, args[0])
		rx, ry := regOf(f, &c.divert, args[1]), regOf(f, &c.divert, args[2])
		r := resultReg(f, i)
		test := x86.ATESTL
		if f.ValueType(args[0]) == ir.TypeI64 {
			test = x86.ATESTQ
		}
		c.rr(test, cond, cond)
		cmovEq, cmovNe := x86.ACMOVLEQ, x86.ACMOVLNE
		if d.Typ == ir.TypeI64 {
			cmovEq, cmovNe = x86.ACMOVQEQ, x86.ACMOVQNE
		}
		if r == rx {
			c.rr(cmovEq, ry, r)
		} else {
			c.move(d.Typ, ry, r)
			c.rr(cmovNe, rx, r)
		}

	case ir.OpcodeCopy:
		c.move(d.Typ, regOf(f, &c.divert, f.InstArgs(i)[0]), resultReg(f, i))

	case ir.OpcodeRegmove:
		c.move(d.Typ, d.SrcReg, d.DstReg)

	case ir.OpcodeSpill:
		a := regOf(f, &c.divert, f.InstArgs(i)[0])
		c.regToFrame(machMov(d.Typ), a, f.StackSlots[d.Slot].Offset)

	case ir.OpcodeFill:
		a := f.InstArgs(i)[0]
		slot := d.Slot
		if loc := f.Locations[a]; loc.Kind == ir.ValueLocStack {
			slot = loc.Slot
		}
		if !slot.Valid() {
			panic("BUG: fill of " + a.String() + " has no stack slot")
		}
		c.frameToReg(machMov(d.Typ), f.StackSlots[slot].Offset, resultReg(f, i))

	case ir.OpcodeJump:
		c.jumpTo(obj.AJMP, d.Dest)

	case ir.OpcodeNop, ir.OpcodeFallthrough:
		// No bytes; a fallthrough's destination is the next block in layout
		// order.

	case ir.OpcodeBrz, ir.OpcodeBrnz:
		cond := regOf(f, &c.divert, f.InstArgs(i)[0])
		test := x86.ATESTL
		if d.Typ == ir.TypeI64 {
			test = x86.ATESTQ
		}
		c.rr(test, cond, cond)
		jcc := x86.AJEQ
		if d.Opcode == ir.OpcodeBrnz {
			jcc = x86.AJNE
		}
		c.jumpTo(jcc, d.Dest)

	case ir.OpcodeReturn:
		if args := f.InstArgs(i); len(args) == 1 {
			t := f.ValueType(args[0])
			r := regOf(f, &c.divert, args[0])
			if t.IsFloat() {
				c.move(t, r, floatBank)
			} else {
				c.move(t, r, regRAX)
			}
		}
		c.standalone(obj.ARET)

	case ir.OpcodeTrap:
		c.standalone(x86.AUD2)

	case ir.OpcodeAdjustSpDown:
		c.adjustSp(x86.ASUBQ, d.Imm)

	case ir.OpcodeAdjustSpUp:
		c.adjustSp(x86.AADDQ, d.Imm)

	default:
		return fmt.Errorf("%w: %s", ErrMachUnsupported, ir.FormatInst(f, i))
	}
	return nil
}

func (c *machCompiler) adjustSp(as obj.As, imm int64) {
	p := c.b.NewProg()
	p.As = as
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = imm
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_SP
	c.b.AddInstruction(p)
}
