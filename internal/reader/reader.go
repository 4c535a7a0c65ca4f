// Package reader parses the ir text format, the same notation Function.String
// prints. Parsing the printer's output reproduces the function, so tests and
// the CLI can exchange functions as text.
package reader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gantry-go/gantry/internal/ir"
)

// FormatError is a parse error with its source line attached.
type FormatError struct {
	// Line is the 1-based source line the error was found on.
	Line  int
	cause error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%d: %v", e.Line, e.cause)
}

func (e *FormatError) Unwrap() error { return e.cause }

// ParseFunction parses a single function from source.
func ParseFunction(source string) (*ir.Function, error) {
	fns, err := ParseFunctions(source)
	if err != nil {
		return nil, err
	}
	if len(fns) != 1 {
		return nil, fmt.Errorf("expected one function, found %d", len(fns))
	}
	return fns[0], nil
}

// ParseFunctions parses every function in source, in order.
func ParseFunctions(source string) ([]*ir.Function, error) {
	p := &parser{lines: strings.Split(source, "\n")}
	var fns []*ir.Function
	for {
		line, ok := p.next()
		if !ok {
			return fns, nil
		}
		if !strings.HasPrefix(line, "function ") {
			return nil, p.errf("expected 'function', found %q", line)
		}
		f, err := p.function(line)
		if err != nil {
			return nil, err
		}
		fns = append(fns, f)
	}
}

type parser struct {
	lines []string
	pos   int // index of the line most recently returned by next

	f *ir.Function
	b *ir.Builder

	values map[string]ir.Value
	blocks map[string]ir.Block
	slots  map[string]ir.StackSlot
	funcs  map[string]ir.FuncRef
	tables map[string]ir.JumpTable
}

// next returns the next non-blank line with trailing whitespace removed.
func (p *parser) next() (string, bool) {
	for p.pos++; p.pos <= len(p.lines); p.pos++ {
		line := strings.TrimRight(p.lines[p.pos-1], " \t\r")
		if line != "" {
			return line, true
		}
	}
	return "", false
}

func (p *parser) errf(format string, args ...interface{}) error {
	return &FormatError{Line: p.pos, cause: fmt.Errorf(format, args...)}
}

// function parses one function body. header is the already-consumed
// "function %name(...) ... {" line.
func (p *parser) function(header string) (*ir.Function, error) {
	name, sig, err := p.funcHeader(strings.TrimPrefix(header, "function "))
	if err != nil {
		return nil, err
	}
	p.f = ir.NewFunction(name, sig)
	p.b = ir.NewBuilder(p.f)
	p.values = map[string]ir.Value{}
	p.blocks = map[string]ir.Block{}
	p.slots = map[string]ir.StackSlot{}
	p.funcs = map[string]ir.FuncRef{}
	p.tables = map[string]ir.JumpTable{}

	// Block handles must exist before the jump table declarations and branches
	// that mention them, and their numbering follows header order, so collect
	// the headers first.
	for i := p.pos; i < len(p.lines); i++ {
		line := strings.TrimRight(p.lines[i], " \t\r")
		if line == "}" {
			break
		}
		if !strings.HasPrefix(line, "block") {
			continue
		}
		bname := line[:len(line)-1] // strip the trailing ':'
		if j := strings.IndexByte(bname, '('); j >= 0 {
			bname = bname[:j]
		}
		if _, ok := p.blocks[bname]; ok {
			p.pos = i + 1
			return nil, p.errf("redefinition of %s", bname)
		}
		p.blocks[bname] = p.f.MakeBlock()
	}

	for {
		line, ok := p.next()
		if !ok {
			return nil, p.errf("unexpected end of input in function %%%s", name)
		}
		switch {
		case line == "}":
			return p.f, nil
		case strings.HasPrefix(line, "    "):
			if err := p.bodyLine(strings.TrimSpace(line)); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, "block"):
			if err := p.blockHeader(line); err != nil {
				return nil, err
			}
		default:
			return nil, p.errf("unexpected %q", line)
		}
	}
}

// funcHeader parses `%name(...) [-> ...] {`.
func (p *parser) funcHeader(s string) (string, ir.Signature, error) {
	s, ok := strings.CutSuffix(s, " {")
	if !ok {
		return "", ir.Signature{}, p.errf("function header must end in '{'")
	}
	if !strings.HasPrefix(s, "%") {
		return "", ir.Signature{}, p.errf("function name must start with '%%'")
	}
	i := strings.IndexByte(s, '(')
	if i < 0 {
		return "", ir.Signature{}, p.errf("function header has no parameter list")
	}
	sig, err := p.signature(s[i:])
	if err != nil {
		return "", ir.Signature{}, err
	}
	return s[1:i], sig, nil
}

// signature parses `(t, ...)` optionally followed by ` -> t, ...`.
func (p *parser) signature(s string) (ir.Signature, error) {
	end := strings.IndexByte(s, ')')
	if !strings.HasPrefix(s, "(") || end < 0 {
		return ir.Signature{}, p.errf("malformed signature %q", s)
	}
	var sig ir.Signature
	var err error
	if sig.Params, err = p.typeList(s[1:end]); err != nil {
		return ir.Signature{}, err
	}
	if rest := s[end+1:]; rest != "" {
		rest, ok := strings.CutPrefix(rest, " -> ")
		if !ok {
			return ir.Signature{}, p.errf("malformed signature %q", s)
		}
		if sig.Results, err = p.typeList(rest); err != nil {
			return ir.Signature{}, err
		}
	}
	return sig, nil
}

func (p *parser) typeList(s string) ([]ir.Type, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ", ")
	types := make([]ir.Type, len(parts))
	for i, part := range parts {
		t, ok := ir.TypeFromName(part)
		if !ok {
			return nil, p.errf("unknown type %q", part)
		}
		types[i] = t
	}
	return types, nil
}

// blockHeader parses `blockN:` or `blockN(v0: i32, ...):`, appends the block
// to the layout and makes it current.
func (p *parser) blockHeader(line string) error {
	line, ok := strings.CutSuffix(line, ":")
	if !ok {
		return p.errf("block header must end in ':'")
	}
	name, params := line, ""
	if i := strings.IndexByte(line, '('); i >= 0 {
		if !strings.HasSuffix(line, ")") {
			return p.errf("malformed block header %q", line)
		}
		name, params = line[:i], line[i+1:len(line)-1]
	}
	blk, ok := p.blocks[name]
	if !ok {
		return p.errf("undefined block %s", name)
	}
	p.f.Layout.AppendBlock(blk)
	p.b.SetBlock(blk)
	if params == "" {
		return nil
	}
	for _, param := range strings.Split(params, ", ") {
		vname, tname, ok := strings.Cut(param, ": ")
		if !ok {
			return p.errf("malformed block parameter %q", param)
		}
		t, ok := ir.TypeFromName(tname)
		if !ok {
			return p.errf("unknown type %q", tname)
		}
		if err := p.define(vname, p.b.Param(t)); err != nil {
			return err
		}
	}
	return nil
}

// bodyLine parses one indented line: an entity declaration before the first
// block, or an instruction inside one.
func (p *parser) bodyLine(line string) error {
	if !p.b.CurrentBlock().Valid() {
		return p.declaration(line)
	}
	return p.instruction(line)
}

func (p *parser) declaration(line string) error {
	name, rest, ok := strings.Cut(line, " = ")
	if !ok {
		return p.errf("expected declaration, found %q", line)
	}
	kind, arg, _ := strings.Cut(rest, " ")
	switch kind {
	case "stack_slot":
		size, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return p.errf("invalid stack slot size %q", arg)
		}
		p.slots[name] = p.f.MakeStackSlot(uint32(size))
	case "func":
		if !strings.HasPrefix(arg, "%") {
			return p.errf("external function name must start with '%%'")
		}
		i := strings.IndexByte(arg, '(')
		if i < 0 {
			return p.errf("external function %q has no signature", arg)
		}
		sig, err := p.signature(arg[i:])
		if err != nil {
			return err
		}
		p.funcs[name] = p.f.DeclareExtFunc(arg[1:i], sig)
	case "jump_table":
		arg = strings.TrimPrefix(arg, "[")
		arg = strings.TrimSuffix(arg, "]")
		var targets []ir.Block
		if arg != "" {
			for _, bname := range strings.Split(arg, ", ") {
				blk, ok := p.blocks[bname]
				if !ok {
					return p.errf("undefined block %s", bname)
				}
				targets = append(targets, blk)
			}
		}
		p.tables[name] = p.f.MakeJumpTable(ir.NewJumpTableData(targets))
	default:
		return p.errf("unknown declaration %q", kind)
	}
	return nil
}

func (p *parser) instruction(line string) error {
	var resName string
	if name, rest, ok := strings.Cut(line, " = "); ok && strings.HasPrefix(name, "v") {
		resName, line = name, rest
	}

	mnemonic, operands, _ := strings.Cut(line, " ")
	opName, typName, hasType := strings.Cut(mnemonic, ".")
	op, ok := ir.OpcodeFromName(opName)
	if !ok {
		return p.errf("unknown opcode %q", opName)
	}
	var typ ir.Type
	if hasType {
		if typ, ok = ir.TypeFromName(typName); !ok {
			return p.errf("unknown type %q", typName)
		}
	}

	var res ir.Value
	switch op {
	case ir.OpcodeIconst:
		imm, err := strconv.ParseInt(operands, 10, 64)
		if err != nil {
			return p.errf("invalid immediate %q", operands)
		}
		res = p.b.Iconst(typ, imm)

	case ir.OpcodeFconst:
		hexits, ok := strings.CutPrefix(operands, "0x")
		if !ok {
			return p.errf("fconst bit pattern must start with 0x")
		}
		bits, err := strconv.ParseUint(hexits, 16, 64)
		if err != nil {
			return p.errf("invalid bit pattern %q", operands)
		}
		res = p.b.Fconst(typ, bits)

	case ir.OpcodeIadd, ir.OpcodeIsub, ir.OpcodeImul,
		ir.OpcodeBand, ir.OpcodeBor, ir.OpcodeBxor,
		ir.OpcodeFadd, ir.OpcodeFsub, ir.OpcodeFmul, ir.OpcodeFdiv:
		args, err := p.valueList(operands, 2)
		if err != nil {
			return err
		}
		res = p.b.Binary(op, typ, args[0], args[1])

	case ir.OpcodeIcmp:
		ccName, rest, _ := strings.Cut(operands, " ")
		cc, ok := ir.IntCCFromName(ccName)
		if !ok {
			return p.errf("unknown condition %q", ccName)
		}
		args, err := p.valueList(rest, 2)
		if err != nil {
			return err
		}
		res = p.b.Icmp(cc, typ, args[0], args[1])

	case ir.OpcodeFcmp:
		ccName, rest, _ := strings.Cut(operands, " ")
		cc, ok := ir.FloatCCFromName(ccName)
		if !ok {
			return p.errf("unknown condition %q", ccName)
		}
		args, err := p.valueList(rest, 2)
		if err != nil {
			return err
		}
		res = p.b.Fcmp(cc, typ, args[0], args[1])

	case ir.OpcodeSelect:
		args, err := p.valueList(operands, 3)
		if err != nil {
			return err
		}
		res = p.b.Select(typ, args[0], args[1], args[2])

	case ir.OpcodeJump, ir.OpcodeFallthrough:
		dest, args, err := p.destination(operands)
		if err != nil {
			return err
		}
		if op == ir.OpcodeJump {
			p.b.Jump(dest, args...)
		} else {
			p.b.Fallthrough(dest, args...)
		}

	case ir.OpcodeBrz, ir.OpcodeBrnz:
		condName, rest, ok := strings.Cut(operands, ", ")
		if !ok {
			return p.errf("%s needs a condition and a destination", opName)
		}
		cond, err := p.value(condName)
		if err != nil {
			return err
		}
		dest, args, err := p.destination(rest)
		if err != nil {
			return err
		}
		if op == ir.OpcodeBrz {
			p.b.Brz(cond, dest, args...)
		} else {
			p.b.Brnz(cond, dest, args...)
		}

	case ir.OpcodeBrTable:
		idxName, jtName, ok := strings.Cut(operands, ", ")
		if !ok {
			return p.errf("br_table needs an index and a table")
		}
		idx, err := p.value(idxName)
		if err != nil {
			return err
		}
		jt, ok := p.tables[jtName]
		if !ok {
			return p.errf("undefined jump table %s", jtName)
		}
		p.b.BrTable(idx, jt)

	case ir.OpcodeCall:
		i := strings.IndexByte(operands, '(')
		if i < 0 || !strings.HasSuffix(operands, ")") {
			return p.errf("malformed call %q", operands)
		}
		fn, ok := p.funcs[operands[:i]]
		if !ok {
			return p.errf("undefined function %s", operands[:i])
		}
		args, err := p.valueList(operands[i+1:len(operands)-1], -1)
		if err != nil {
			return err
		}
		res = p.b.Call(fn, args...)

	case ir.OpcodeReturn:
		args, err := p.valueList(operands, -1)
		if err != nil {
			return err
		}
		p.b.Return(args...)

	case ir.OpcodeTrap:
		code, ok := ir.TrapCodeFromName(operands)
		if !ok {
			return p.errf("unknown trap code %q", operands)
		}
		p.b.Trap(code)

	case ir.OpcodeCopy:
		arg, err := p.value(operands)
		if err != nil {
			return err
		}
		res = p.b.Copy(typ, arg)

	case ir.OpcodeFill:
		arg, err := p.value(operands)
		if err != nil {
			return err
		}
		res = p.b.Fill(typ, arg)

	case ir.OpcodeSpill:
		argName, ssName, ok := strings.Cut(operands, ", ")
		if !ok {
			return p.errf("spill needs a value and a stack slot")
		}
		arg, err := p.value(argName)
		if err != nil {
			return err
		}
		slot, ok := p.slots[ssName]
		if !ok {
			return p.errf("undefined stack slot %s", ssName)
		}
		res = p.b.Spill(typ, arg, slot)

	case ir.OpcodeRegmove:
		argName, rest, ok := strings.Cut(operands, ", ")
		if !ok {
			return p.errf("malformed regmove %q", operands)
		}
		arg, err := p.value(argName)
		if err != nil {
			return err
		}
		srcName, dstName, ok := strings.Cut(rest, " -> ")
		if !ok {
			return p.errf("malformed regmove %q", operands)
		}
		src, err := p.regUnit(srcName)
		if err != nil {
			return err
		}
		dst, err := p.regUnit(dstName)
		if err != nil {
			return err
		}
		p.b.Regmove(arg, src, dst)

	case ir.OpcodeAdjustSpDown, ir.OpcodeAdjustSpUp:
		imm, err := strconv.ParseInt(operands, 10, 64)
		if err != nil {
			return p.errf("invalid stack adjustment %q", operands)
		}
		i := p.f.MakeInst(ir.InstructionData{Opcode: op, Imm: imm})
		p.f.Layout.AppendInst(i, p.b.CurrentBlock())

	case ir.OpcodeNop:
		p.b.Nop()

	default:
		return p.errf("cannot parse opcode %q", opName)
	}

	if resName == "" {
		return nil
	}
	if !res.Valid() {
		return p.errf("%s defines no result", opName)
	}
	return p.define(resName, res)
}

// destination parses `blockN` or `blockN(v1, ...)`.
func (p *parser) destination(s string) (ir.Block, []ir.Value, error) {
	name, args := s, ""
	if i := strings.IndexByte(s, '('); i >= 0 {
		if !strings.HasSuffix(s, ")") {
			return ir.BlockInvalid, nil, p.errf("malformed destination %q", s)
		}
		name, args = s[:i], s[i+1:len(s)-1]
	}
	blk, ok := p.blocks[name]
	if !ok {
		return ir.BlockInvalid, nil, p.errf("undefined block %s", name)
	}
	vals, err := p.valueList(args, -1)
	if err != nil {
		return ir.BlockInvalid, nil, err
	}
	return blk, vals, nil
}

// valueList parses `v1, v2, ...`. A want of -1 accepts any count, including
// an empty list.
func (p *parser) valueList(s string, want int) ([]ir.Value, error) {
	if s == "" {
		if want > 0 {
			return nil, p.errf("expected %d operand(s)", want)
		}
		return nil, nil
	}
	parts := strings.Split(s, ", ")
	if want >= 0 && len(parts) != want {
		return nil, p.errf("expected %d operand(s), found %d", want, len(parts))
	}
	vals := make([]ir.Value, len(parts))
	for i, part := range parts {
		v, err := p.value(part)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (p *parser) value(name string) (ir.Value, error) {
	v, ok := p.values[name]
	if !ok {
		return ir.ValueInvalid, p.errf("undefined value %s", name)
	}
	return v, nil
}

func (p *parser) define(name string, v ir.Value) error {
	if _, ok := p.values[name]; ok {
		return p.errf("redefinition of %s", name)
	}
	p.values[name] = v
	return nil
}

func (p *parser) regUnit(s string) (ir.RegUnit, error) {
	digits, ok := strings.CutPrefix(s, "r")
	if !ok {
		return 0, p.errf("malformed register %q", s)
	}
	n, err := strconv.ParseUint(digits, 10, 16)
	if err != nil {
		return 0, p.errf("malformed register %q", s)
	}
	return ir.RegUnit(n), nil
}
