package binemit

// CodeInfo is the size breakdown branch relaxation settles on: code first,
// then jump tables, then read only data. TotalSize is stored rather than
// derived so callers sizing allocations read one field; it always equals the
// sum of the parts.
type CodeInfo struct {
	CodeSize       uint32
	JumpTablesSize uint32
	RodataSize     uint32
	TotalSize      uint32
}

// JumpTablesOffset returns where the jump table area starts.
func (c CodeInfo) JumpTablesOffset() uint32 { return c.CodeSize }

// RodataOffset returns where the read only data area starts.
func (c CodeInfo) RodataOffset() uint32 { return c.CodeSize + c.JumpTablesSize }
