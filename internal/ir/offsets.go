package ir

// BlockOffsets is the table of code offsets assigned to blocks by branch
// relaxation. Offsets are relative to the start of the function's code. The
// table is rebuilt from scratch on every relaxation pass; once relaxation
// converges, offsets are final and nondecreasing in layout order.
type BlockOffsets struct {
	offsets []uint32
	known   []bool
}

// Clear forgets all offsets while keeping capacity.
func (o *BlockOffsets) Clear() {
	o.offsets = o.offsets[:0]
	o.known = o.known[:0]
}

// Resize makes room for blocks 1..n, marking all offsets unknown.
func (o *BlockOffsets) Resize(n int) {
	o.Clear()
	for i := 0; i <= n; i++ {
		o.offsets = append(o.offsets, 0)
		o.known = append(o.known, false)
	}
}

// Set records the offset of b.
func (o *BlockOffsets) Set(b Block, offset uint32) {
	o.offsets[b] = offset
	o.known[b] = true
}

// Get returns the offset of b, which must have been assigned.
func (o *BlockOffsets) Get(b Block) uint32 {
	if int(b) >= len(o.known) || !o.known[b] {
		panic("BUG: block offset not assigned: " + b.String())
	}
	return o.offsets[b]
}

// Known reports whether b has an assigned offset.
func (o *BlockOffsets) Known(b Block) bool {
	return int(b) < len(o.known) && o.known[b]
}
