package ir

// ConstantPool interns read only data blobs referenced by a function. The pool
// deduplicates identical blobs; offsets relative to the start of the function's
// code are assigned once by branch relaxation when the final code size is known.
type ConstantPool struct {
	blobs   [][]byte
	offsets []uint32

	assigned []bool
	known    map[string]Constant
}

// Clear forgets all constants while keeping capacity.
func (p *ConstantPool) Clear() {
	p.blobs = p.blobs[:0]
	p.offsets = p.offsets[:0]
	p.assigned = p.assigned[:0]
	for k := range p.known {
		delete(p.known, k)
	}
}

// Insert interns data and returns its handle. Inserting identical bytes twice
// returns the same handle.
func (p *ConstantPool) Insert(data []byte) Constant {
	if p.known == nil {
		p.known = map[string]Constant{}
	}
	if c, ok := p.known[string(data)]; ok {
		return c
	}
	p.blobs = append(p.blobs, append([]byte(nil), data...))
	p.offsets = append(p.offsets, 0)
	p.assigned = append(p.assigned, false)
	c := Constant(len(p.blobs))
	p.known[string(data)] = c
	return c
}

// Len returns the number of distinct constants.
func (p *ConstantPool) Len() int { return len(p.blobs) }

// Data returns the bytes of c.
func (p *ConstantPool) Data(c Constant) []byte { return p.blobs[c-1] }

// SetOffset records where c was placed. Assigning the same constant twice is a
// programmer error.
func (p *ConstantPool) SetOffset(c Constant, offset uint32) {
	if p.assigned[c-1] {
		panic("BUG: constant offset assigned twice: " + c.String())
	}
	p.offsets[c-1] = offset
	p.assigned[c-1] = true
}

// Offset returns the recorded offset of c.
func (p *ConstantPool) Offset(c Constant) uint32 {
	if !p.assigned[c-1] {
		panic("BUG: constant offset not assigned: " + c.String())
	}
	return p.offsets[c-1]
}

// ClearOffsets forgets placement, so relaxation can run again on the same
// function.
func (p *ConstantPool) ClearOffsets() {
	for i := range p.assigned {
		p.assigned[i] = false
		p.offsets[i] = 0
	}
}

// TotalSize returns the byte size of all constants laid out back to back.
func (p *ConstantPool) TotalSize() uint32 {
	var n uint32
	for _, b := range p.blobs {
		n += uint32(len(b))
	}
	return n
}
