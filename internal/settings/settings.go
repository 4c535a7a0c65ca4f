// Package settings holds the shared compiler flags consumed by the compilation
// context and the target ISAs. Flags are immutable once built; the Builder accepts
// string key/value pairs so front ends can pass flags through unchanged.
package settings

import (
	"fmt"
	"strconv"
)

// OptLevel selects how much mid-end optimization the pipeline runs.
type OptLevel uint8

const (
	// OptLevelNone runs only the passes required for correctness.
	OptLevelNone OptLevel = iota
	// OptLevelSpeed enables the optimizing passes.
	OptLevelSpeed
	// OptLevelSpeedAndSize additionally enables size-reducing passes such as
	// instruction shrinking.
	OptLevelSpeedAndSize
)

// String implements fmt.Stringer.
func (o OptLevel) String() string {
	switch o {
	case OptLevelNone:
		return "none"
	case OptLevelSpeed:
		return "speed"
	case OptLevelSpeedAndSize:
		return "speed_and_size"
	}
	return fmt.Sprintf("unknown_opt_level(%d)", o)
}

// Flags is the immutable flag set shared by one compilation session.
type Flags struct {
	optLevel                  OptLevel
	enableVerifier            bool
	enableNaNCanonicalization bool
	useMachBackend            bool
}

// OptLevel returns the selected optimization level.
func (f Flags) OptLevel() OptLevel { return f.optLevel }

// EnableVerifier reports whether the verifier runs between pipeline stages.
func (f Flags) EnableVerifier() bool { return f.enableVerifier }

// EnableNaNCanonicalization reports whether floating point results are rewritten
// to a single canonical NaN bit pattern.
func (f Flags) EnableNaNCanonicalization() bool { return f.enableNaNCanonicalization }

// UseMachBackend reports whether an ISA's alternate whole-function backend is
// preferred over the staged pipeline when the ISA provides one.
func (f Flags) UseMachBackend() bool { return f.useMachBackend }

// Builder accumulates flag values and produces an immutable Flags.
type Builder struct {
	flags Flags
}

// NewBuilder returns a Builder with the default flag values: opt_level=none and
// all boolean flags false.
func NewBuilder() *Builder { return &Builder{} }

// Set assigns the flag named name from its textual value. Unknown names and
// unparsable values are errors.
func (b *Builder) Set(name, value string) error {
	switch name {
	case "opt_level":
		switch value {
		case "none":
			b.flags.optLevel = OptLevelNone
		case "speed":
			b.flags.optLevel = OptLevelSpeed
		case "speed_and_size":
			b.flags.optLevel = OptLevelSpeedAndSize
		default:
			return fmt.Errorf("invalid opt_level %q", value)
		}
	case "enable_verifier":
		return b.setBool(&b.flags.enableVerifier, name, value)
	case "enable_nan_canonicalization":
		return b.setBool(&b.flags.enableNaNCanonicalization, name, value)
	case "use_mach_backend":
		return b.setBool(&b.flags.useMachBackend, name, value)
	default:
		return fmt.Errorf("unknown flag %q", name)
	}
	return nil
}

func (b *Builder) setBool(dst *bool, name, value string) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value %q for flag %q: %w", value, name, err)
	}
	*dst = v
	return nil
}

// SetOptLevel assigns the optimization level directly.
func (b *Builder) SetOptLevel(o OptLevel) *Builder {
	b.flags.optLevel = o
	return b
}

// SetEnableVerifier toggles inter-stage verification.
func (b *Builder) SetEnableVerifier(v bool) *Builder {
	b.flags.enableVerifier = v
	return b
}

// SetEnableNaNCanonicalization toggles NaN canonicalization.
func (b *Builder) SetEnableNaNCanonicalization(v bool) *Builder {
	b.flags.enableNaNCanonicalization = v
	return b
}

// SetUseMachBackend toggles preferring an ISA's alternate backend.
func (b *Builder) SetUseMachBackend(v bool) *Builder {
	b.flags.useMachBackend = v
	return b
}

// Finish returns the built flag set. The Builder may be reused afterwards.
func (b *Builder) Finish() Flags { return b.flags }
