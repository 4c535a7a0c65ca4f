package ir

// JumpTableData is the target list of one jump table. Entries are compiled to
// 4-byte records placed directly after the function's code.
type JumpTableData struct {
	targets []Block
}

// NewJumpTableData returns a table over targets.
func NewJumpTableData(targets []Block) JumpTableData {
	return JumpTableData{targets: targets}
}

// Len returns the number of entries.
func (d *JumpTableData) Len() int { return len(d.targets) }

// Targets returns the entry blocks in table order. The caller must not modify
// the returned slice.
func (d *JumpTableData) Targets() []Block { return d.targets }

// SetTarget redirects entry idx.
func (d *JumpTableData) SetTarget(idx int, b Block) { d.targets[idx] = b }

// JumpTableOffsets records where each jump table was placed relative to the
// start of the function's code, filled in by branch relaxation.
type JumpTableOffsets struct {
	offsets []uint32
}

// Clear forgets all offsets while keeping capacity.
func (o *JumpTableOffsets) Clear() { o.offsets = o.offsets[:0] }

// Set records the offset of jt.
func (o *JumpTableOffsets) Set(jt JumpTable, offset uint32) {
	for int(jt) >= len(o.offsets) {
		o.offsets = append(o.offsets, 0)
	}
	o.offsets[jt] = offset
}

// Get returns the recorded offset of jt.
func (o *JumpTableOffsets) Get(jt JumpTable) uint32 {
	if int(jt) >= len(o.offsets) {
		panic("BUG: jump table offset not assigned: " + jt.String())
	}
	return o.offsets[jt]
}
