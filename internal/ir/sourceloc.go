package ir

import "fmt"

// SourceLoc is an opaque reference into the front end's source, carried through
// compilation unchanged and reported in the emitted source location side table.
type SourceLoc uint32

// SourceLocDefault marks an instruction without source information.
const SourceLocDefault SourceLoc = 0

// IsDefault reports whether loc carries no source information.
func (loc SourceLoc) IsDefault() bool { return loc == SourceLocDefault }

// String implements fmt.Stringer.
func (loc SourceLoc) String() string {
	if loc.IsDefault() {
		return "@-"
	}
	return fmt.Sprintf("@%04x", uint32(loc))
}
