package ir

// ValueList is a handle to a list of values stored in a Function's shared
// ValueListPool. Block parameter lists and branch argument lists are stored
// this way so that rewrites splice whole lists with one handle assignment and
// clearing a function frees everything at once.
type ValueList struct {
	offset uint32
	length uint32
}

// Len returns the number of values in the list.
func (l ValueList) Len() int { return int(l.length) }

// ValueListPool is a growable arena backing every ValueList of one Function.
// Lists are allocated at the tail; freeing happens only via Reset. A list's
// elements may be assigned in place through Slice, but its length is fixed at
// allocation.
type ValueListPool struct {
	data []Value
}

// Make allocates a new list holding vals.
func (p *ValueListPool) Make(vals ...Value) ValueList {
	off := uint32(len(p.data))
	p.data = append(p.data, vals...)
	return ValueList{offset: off, length: uint32(len(vals))}
}

// Slice returns the live elements of l. The slice aliases pool storage: element
// assignments are visible to every holder of l, but the slice must not be
// retained across a pool Reset or grown with append.
func (p *ValueListPool) Slice(l ValueList) []Value {
	return p.data[l.offset : l.offset+l.length : l.offset+l.length]
}

// Append allocates a copy of l with v appended and returns the new handle. The
// old storage is left behind in the arena.
func (p *ValueListPool) Append(l ValueList, v Value) ValueList {
	off := uint32(len(p.data))
	p.data = append(p.data, p.Slice(l)...)
	p.data = append(p.data, v)
	return ValueList{offset: off, length: l.length + 1}
}

// Reset discards every list while keeping the arena's capacity.
func (p *ValueListPool) Reset() {
	p.data = p.data[:0]
}

// Size returns the number of value slots currently allocated.
func (p *ValueListPool) Size() int { return len(p.data) }
