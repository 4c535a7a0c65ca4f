// Package gantry compiles single functions of a small SSA-form intermediate
// representation down to machine code bytes plus relocation, trap, call-site
// and source-location side tables. The pipeline is staged: optimization
// passes, encoding selection, register allocation, frame setup, and finally
// branch relaxation, which fixes every block offset before emission writes a
// single byte.
//
// A Context carries the reusable per-function state; one Context compiles one
// function at a time and can be cleared and reused across many functions
// without reallocating. Target ISAs are immutable once constructed and safe
// to share between Contexts running on different goroutines.
package gantry

// version is reported by the CLI; it tracks tagged releases.
const version = "0.1.0"

// Version returns the release version of this module.
func Version() string { return version }
