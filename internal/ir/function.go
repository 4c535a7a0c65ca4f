package ir

import "fmt"

// Signature is a function's parameter and result types.
type Signature struct {
	Params  []Type
	Results []Type
}

// String implements fmt.Stringer in the text format's notation.
func (s Signature) String() string {
	out := "("
	for i, t := range s.Params {
		if i > 0 {
			out += ", "
		}
		out += t.String()
	}
	out += ")"
	for i, t := range s.Results {
		if i == 0 {
			out += " -> "
		} else {
			out += ", "
		}
		out += t.String()
	}
	return out
}

// ExtFuncData declares an external function a Function may call. The name is
// the relocation symbol.
type ExtFuncData struct {
	Name string
	Sig  Signature
}

// ValueDefKind says how a value came to exist.
type ValueDefKind byte

const (
	// ValueDefResult: the value is an instruction result.
	ValueDefResult ValueDefKind = iota
	// ValueDefParam: the value is a block parameter.
	ValueDefParam
	// ValueDefAlias: the value has been rewritten to another value and every
	// use will be redirected by ResolveAliases.
	ValueDefAlias
)

type valueDef struct {
	kind  ValueDefKind
	typ   Type
	inst  Inst  // ValueDefResult
	block Block // ValueDefParam
	num   uint16
	alias Value // ValueDefAlias
}

// BlockData holds per block information other than layout order.
type BlockData struct {
	// Params is the list of this block's parameter values.
	Params ValueList
}

// Function is one compilation unit: instructions, blocks and values addressed
// by handle, the layout, and the side data filled in by the pipeline stages.
// A Function is reused across compilations via Clear.
type Function struct {
	Name string
	Sig  Signature

	insts  []InstructionData
	values []valueDef
	blocks []BlockData

	// Results maps an instruction to the value it defines, if any.
	Results []Value
	// SrcLocs maps an instruction to its source location.
	SrcLocs []SourceLoc
	// Encodings maps an instruction to its selected encoding; the zero
	// Encoding means the instruction is not (yet) encodable.
	Encodings []Encoding
	// Locations maps a value to its assigned register or stack slot.
	Locations []ValueLoc

	// Pool backs every ValueList in this function.
	Pool ValueListPool
	// Layout is the program order.
	Layout Layout
	// Offsets is the block offset table maintained by branch relaxation.
	Offsets BlockOffsets

	// JumpTables, StackSlots and ExtFuncs are indexed by their handles and
	// keep a dead zeroth element.
	JumpTables []JumpTableData
	StackSlots []StackSlotData
	ExtFuncs   []ExtFuncData

	// JTOffsets records jump table placement, filled in by relaxation.
	JTOffsets JumpTableOffsets
	// ConstPool holds interned read only data.
	ConstPool ConstantPool

	// FrameSize is the stack frame size in bytes, assigned by the prologue
	// pass.
	FrameSize uint32
}

// NewFunction returns an empty function with the given name and signature.
func NewFunction(name string, sig Signature) *Function {
	f := &Function{}
	f.Clear()
	f.Name = name
	f.Sig = sig
	return f
}

// Clear empties the function while keeping every container's capacity.
func (f *Function) Clear() {
	f.Name = ""
	f.Sig = Signature{}
	f.insts = append(f.insts[:0], InstructionData{})
	f.values = append(f.values[:0], valueDef{})
	f.blocks = append(f.blocks[:0], BlockData{})
	f.Results = append(f.Results[:0], ValueInvalid)
	f.SrcLocs = append(f.SrcLocs[:0], SourceLocDefault)
	f.Encodings = append(f.Encodings[:0], Encoding{})
	f.Locations = append(f.Locations[:0], ValueLoc{})
	f.JumpTables = append(f.JumpTables[:0], JumpTableData{})
	f.StackSlots = append(f.StackSlots[:0], StackSlotData{})
	f.ExtFuncs = append(f.ExtFuncs[:0], ExtFuncData{})
	f.Pool.Reset()
	f.Layout.Clear()
	f.Offsets.Clear()
	f.JTOffsets.Clear()
	f.ConstPool.Clear()
	f.FrameSize = 0
}

// NumInsts returns the number of created instructions.
func (f *Function) NumInsts() int { return len(f.insts) - 1 }

// NumValues returns the number of created values.
func (f *Function) NumValues() int { return len(f.values) - 1 }

// NumBlocks returns the number of created blocks, including any no longer in
// the layout.
func (f *Function) NumBlocks() int { return len(f.blocks) - 1 }

// MakeBlock creates a new block without placing it in the layout.
func (f *Function) MakeBlock() Block {
	f.blocks = append(f.blocks, BlockData{})
	return Block(len(f.blocks) - 1)
}

// BlockData returns b's data.
func (f *Function) BlockData(b Block) *BlockData { return &f.blocks[b] }

// AppendBlockParam adds a parameter of type t to b and returns its value.
func (f *Function) AppendBlockParam(b Block, t Type) Value {
	d := &f.blocks[b]
	v := f.makeValue(valueDef{
		kind:  ValueDefParam,
		typ:   t,
		block: b,
		num:   uint16(d.Params.Len()),
	})
	d.Params = f.Pool.Append(d.Params, v)
	return v
}

// BlockParams returns b's parameter values. The slice aliases pool storage.
func (f *Function) BlockParams(b Block) []Value { return f.Pool.Slice(f.blocks[b].Params) }

// MakeInst creates an instruction from data without placing it in the layout
// and without a result; use AttachResult for value producing opcodes.
func (f *Function) MakeInst(data InstructionData) Inst {
	f.insts = append(f.insts, data)
	f.Results = append(f.Results, ValueInvalid)
	f.SrcLocs = append(f.SrcLocs, SourceLocDefault)
	f.Encodings = append(f.Encodings, Encoding{})
	return Inst(len(f.insts) - 1)
}

// InstData returns i's payload for inspection or in place rewriting.
func (f *Function) InstData(i Inst) *InstructionData { return &f.insts[i] }

// AttachResult creates the result value of i with type t.
func (f *Function) AttachResult(i Inst, t Type) Value {
	if !f.insts[i].Opcode.HasResult() {
		panic("BUG: attaching a result to " + f.insts[i].Opcode.String())
	}
	if f.Results[i].Valid() {
		panic("BUG: instruction already has a result: " + i.String())
	}
	v := f.makeValue(valueDef{kind: ValueDefResult, typ: t, inst: i})
	f.Results[i] = v
	return v
}

func (f *Function) makeValue(d valueDef) Value {
	f.values = append(f.values, d)
	f.Locations = append(f.Locations, ValueLoc{})
	return Value(len(f.values) - 1)
}

// ValueType returns the type of v.
func (f *Function) ValueType(v Value) Type { return f.values[v].typ }

// ValueDef describes how v was defined.
func (f *Function) ValueDef(v Value) (kind ValueDefKind, inst Inst, block Block, num int) {
	d := &f.values[v]
	return d.kind, d.inst, d.block, int(d.num)
}

// ValueIsParamOf reports whether v is a parameter of b and returns its index.
func (f *Function) ValueIsParamOf(v Value, b Block) (int, bool) {
	d := &f.values[v]
	if d.kind == ValueDefParam && d.block == b {
		return int(d.num), true
	}
	return 0, false
}

// ChangeToAlias turns v into an alias of to. Uses of v keep referring to v
// until ResolveAliases rewrites them.
func (f *Function) ChangeToAlias(v, to Value) {
	if v == to {
		panic("BUG: value aliased to itself: " + v.String())
	}
	d := &f.values[v]
	d.kind = ValueDefAlias
	d.alias = to
}

// ResolveAlias follows alias chains to the authoritative value.
func (f *Function) ResolveAlias(v Value) Value {
	for f.values[v].kind == ValueDefAlias {
		v = f.values[v].alias
	}
	return v
}

// ResolveAliases rewrites every instruction argument to its authoritative
// value, after which no alias remains referenced.
func (f *Function) ResolveAliases() {
	for i := 1; i < len(f.insts); i++ {
		args := f.Pool.Slice(f.insts[i].Args)
		for n, a := range args {
			args[n] = f.ResolveAlias(a)
		}
	}
}

// InstArgs returns every value operand of i, including branch block arguments.
// The slice aliases pool storage.
func (f *Function) InstArgs(i Inst) []Value { return f.Pool.Slice(f.insts[i].Args) }

// BranchArgs returns the block arguments a branch passes to its destination,
// excluding fixed operands such as the condition.
func (f *Function) BranchArgs(i Inst) []Value {
	d := &f.insts[i]
	return f.Pool.Slice(d.Args)[d.branchFixedArgs():]
}

// MakeJumpTable creates a jump table from data.
func (f *Function) MakeJumpTable(data JumpTableData) JumpTable {
	f.JumpTables = append(f.JumpTables, data)
	return JumpTable(len(f.JumpTables) - 1)
}

// MakeStackSlot creates an explicit stack slot of size bytes.
func (f *Function) MakeStackSlot(size uint32) StackSlot {
	f.StackSlots = append(f.StackSlots, StackSlotData{Size: size})
	return StackSlot(len(f.StackSlots) - 1)
}

// DeclareExtFunc declares an external function for call instructions.
func (f *Function) DeclareExtFunc(name string, sig Signature) FuncRef {
	f.ExtFuncs = append(f.ExtFuncs, ExtFuncData{Name: name, Sig: sig})
	return FuncRef(len(f.ExtFuncs) - 1)
}

// Entry returns the entry block.
func (f *Function) Entry() Block { return f.Layout.Entry() }

// String implements fmt.Stringer; see print.go.
func (f *Function) String() string { return fmt.Sprint(functionPrinter{f}) }
