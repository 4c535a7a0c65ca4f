package gantry

import (
	"errors"
	"fmt"

	"github.com/gantry-go/gantry/internal/isa/amd64"
	"github.com/gantry-go/gantry/internal/isa/riscv"
	"github.com/gantry-go/gantry/internal/passes"
	"github.com/gantry-go/gantry/internal/regalloc"
	"github.com/gantry-go/gantry/internal/verifier"
)

// Codegen failures a caller can legitimately hit with pathological but valid
// input. Anything not covered here is a protocol violation and panics at the
// point of detection instead.
var (
	// ErrUnsupported reports an instruction or signature the target cannot
	// express.
	ErrUnsupported = errors.New("gantry: unsupported by target")
	// ErrRegistersExhausted reports that the register allocator ran out of
	// allocatable registers.
	ErrRegistersExhausted = errors.New("gantry: registers exhausted")
	// ErrImplLimitExceeded reports an input beyond a target limit, such as a
	// stack frame larger than the prologue can address.
	ErrImplLimitExceeded = errors.New("gantry: implementation limit exceeded")
	// ErrCodeTooLarge reports a function whose finished size exceeds what a
	// code section can hold.
	ErrCodeTooLarge = errors.New("gantry: code too large")
)

// VerifierError reports the collected violations found after a pipeline
// stage, when inter-stage verification is enabled.
type VerifierError struct {
	// Stage names the stage that produced the broken function.
	Stage string
	// Errs lists every violation found.
	Errs verifier.Errors
}

func (e *VerifierError) Error() string {
	return fmt.Sprintf("gantry: verifier failed after %s: %v", e.Stage, e.Errs.Error())
}

// wrapCodegen maps the internal packages' sentinel errors onto the public
// taxonomy, keeping the detailed message in the chain.
func wrapCodegen(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, passes.ErrUnsupported),
		errors.Is(err, regalloc.ErrUnsupportedIR):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	case errors.Is(err, regalloc.ErrOutOfRegisters):
		return fmt.Errorf("%w: %v", ErrRegistersExhausted, err)
	case errors.Is(err, amd64.ErrFrameTooLarge),
		errors.Is(err, riscv.ErrFrameTooLarge):
		return fmt.Errorf("%w: %v", ErrImplLimitExceeded, err)
	case errors.Is(err, amd64.ErrMachUnsupported):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	default:
		return err
	}
}
