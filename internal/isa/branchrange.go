package isa

// BranchRange is the displacement window a branch recipe can reach. Origin is
// where within the instruction the displacement is measured from, in bytes
// from the start of the instruction, and Bits is the signed width of the
// displacement field. A zero Bits means the recipe is not a branch.
type BranchRange struct {
	Origin uint8
	Bits   uint8
}

// IsBranch reports whether the range describes a branch recipe at all.
func (r BranchRange) IsBranch() bool { return r.Bits != 0 }

// Contains reports whether a branch at offset from can reach offset to. The
// displacement is measured from the origin point, so a branch is in range
// when to - (from + Origin) fits in Bits signed bits.
func (r BranchRange) Contains(from, to uint32) bool {
	if !r.IsBranch() {
		return false
	}
	d := int64(to) - (int64(from) + int64(r.Origin))
	lim := int64(1) << (r.Bits - 1)
	return -lim <= d && d < lim
}
