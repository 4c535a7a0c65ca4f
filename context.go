package gantry

import (
	"github.com/gantry-go/gantry/internal/binemit"
	"github.com/gantry-go/gantry/internal/domtree"
	"github.com/gantry-go/gantry/internal/flowgraph"
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
	"github.com/gantry-go/gantry/internal/loops"
	"github.com/gantry-go/gantry/internal/passes"
	"github.com/gantry-go/gantry/internal/regalloc"
	"github.com/gantry-go/gantry/internal/relax"
	"github.com/gantry-go/gantry/internal/settings"
	"github.com/gantry-go/gantry/internal/verifier"
)

// maxTotalSize caps one function's finished size. Well below the u32 offset
// space so side-table offsets can never wrap.
const maxTotalSize = 1 << 30

// Context owns the reusable state of per-function compilation: the function
// being compiled, the cached analyses, the register allocator, and the
// verifier scratch. One Context compiles one function at a time; Clear resets
// it for the next function while keeping every backing allocation.
type Context struct {
	// Func is the function being compiled.
	Func *ir.Function

	cfg   *flowgraph.ControlFlowGraph
	dt    *domtree.DominatorTree
	loops *loops.LoopAnalysis
	ra    *regalloc.Context
	rrr   *regalloc.RedundantReloadRemover
	ver   *verifier.Verifier

	info     binemit.CodeInfo
	compiled bool
	machCode []byte
}

// NewContext returns an empty compilation context.
func NewContext() *Context {
	return &Context{
		cfg:   flowgraph.New(),
		dt:    domtree.New(),
		loops: loops.New(),
		ra:    regalloc.NewContext(),
		rrr:   regalloc.NewRedundantReloadRemover(),
		ver:   verifier.New(),
	}
}

// ForFunction points the context at f. Analyses from a previous function are
// dropped.
func (c *Context) ForFunction(f *ir.Function) {
	c.Clear()
	c.Func = f
}

// Clear resets the context for reuse, keeping capacity.
func (c *Context) Clear() {
	c.Func = nil
	c.cfg.Invalidate()
	c.dt.Invalidate()
	c.loops.Invalidate()
	c.ra.Clear()
	c.rrr.Clear()
	c.info = binemit.CodeInfo{}
	c.compiled = false
	c.machCode = c.machCode[:0]
}

// CodeInfo returns the size breakdown of the last successful Compile.
func (c *Context) CodeInfo() binemit.CodeInfo {
	if !c.compiled {
		panic("BUG: CodeInfo before a successful Compile")
	}
	return c.info
}

// Compile runs the full pipeline over the context's function for target and
// returns the final size breakdown. On success the function carries final
// encodings and block offsets and is ready for emission. On error the
// function is in an unspecified intermediate state; Clear the context before
// reusing it.
//
// When the flags prefer it and the target has one, the target's alternate
// whole-function backend replaces the staged pipeline entirely.
func (c *Context) Compile(target isa.TargetISA) (binemit.CodeInfo, error) {
	f := c.Func
	if f == nil {
		panic("BUG: Compile without a function")
	}
	flags := target.Flags()

	if flags.UseMachBackend() {
		if mb := target.MachBackend(); mb != nil {
			return c.compileMach(f, mb)
		}
	}

	if err := c.verifyIf(target, "input"); err != nil {
		return binemit.CodeInfo{}, err
	}
	c.cfg.Compute(f)

	opt := flags.OptLevel()
	if opt >= settings.OptLevelSpeed {
		passes.Preopt(f)
		if err := c.verifyIf(target, "preopt"); err != nil {
			return binemit.CodeInfo{}, err
		}
	}
	if flags.EnableNaNCanonicalization() {
		passes.CanonicalizeNaNs(f, c.cfg)
		c.dt.Invalidate()
		c.loops.Invalidate()
		if err := c.verifyIf(target, "canonicalize_nans"); err != nil {
			return binemit.CodeInfo{}, err
		}
	}

	if err := passes.Legalize(f, target); err != nil {
		return binemit.CodeInfo{}, wrapCodegen(err)
	}
	if err := c.verifyIf(target, "legalize"); err != nil {
		return binemit.CodeInfo{}, err
	}

	if opt >= settings.OptLevelSpeed {
		passes.Postopt(f, c.cfg, target)
		c.dt.Invalidate()
		if err := c.verifyIf(target, "postopt"); err != nil {
			return binemit.CodeInfo{}, err
		}
		c.dt.Compute(f, c.cfg)
		c.loops.Compute(f, c.cfg, c.dt)
		passes.LICM(f, c.cfg, c.dt, c.loops)
		if err := c.verifyIf(target, "licm"); err != nil {
			return binemit.CodeInfo{}, err
		}
		passes.SimpleGVN(f, c.dt)
		if err := c.verifyIf(target, "simple_gvn"); err != nil {
			return binemit.CodeInfo{}, err
		}
	}

	c.dt.Compute(f, c.cfg)
	passes.EliminateUnreachableCode(f, c.cfg, c.dt)
	c.loops.Invalidate()
	if err := c.verifyIf(target, "eliminate_unreachable_code"); err != nil {
		return binemit.CodeInfo{}, err
	}
	if opt >= settings.OptLevelSpeed {
		passes.DCE(f)
		if err := c.verifyIf(target, "dce"); err != nil {
			return binemit.CodeInfo{}, err
		}
	}

	if err := c.ra.Run(target, f); err != nil {
		return binemit.CodeInfo{}, wrapCodegen(err)
	}
	if err := c.verifyIf(target, "regalloc"); err != nil {
		return binemit.CodeInfo{}, err
	}
	if err := target.PrologueEpilogue(f); err != nil {
		return binemit.CodeInfo{}, wrapCodegen(err)
	}
	if err := c.verifyIf(target, "prologue_epilogue"); err != nil {
		return binemit.CodeInfo{}, err
	}
	if opt >= settings.OptLevelSpeed {
		c.rrr.Run(f)
		if err := c.verifyIf(target, "redundant_reload_remover"); err != nil {
			return binemit.CodeInfo{}, err
		}
	}
	if opt >= settings.OptLevelSpeedAndSize {
		passes.Shrink(f, target)
		if err := c.verifyIf(target, "shrink"); err != nil {
			return binemit.CodeInfo{}, err
		}
	}

	if !c.dt.IsValid() {
		c.dt.Compute(f, c.cfg)
	}
	info, err := relax.Branches(f, c.cfg, c.dt, target)
	if err != nil {
		return binemit.CodeInfo{}, wrapCodegen(err)
	}
	if info.TotalSize > maxTotalSize {
		return binemit.CodeInfo{}, ErrCodeTooLarge
	}
	c.info = info
	c.compiled = true
	return info, nil
}

// compileMach delegates the whole function to the target's alternate backend.
func (c *Context) compileMach(f *ir.Function, mb isa.MachBackend) (binemit.CodeInfo, error) {
	code, err := mb.CompileFunction(f)
	if err != nil {
		return binemit.CodeInfo{}, wrapCodegen(err)
	}
	c.machCode = append(c.machCode[:0], code...)
	c.info = binemit.CodeInfo{
		CodeSize:  uint32(len(code)),
		TotalSize: uint32(len(code)),
	}
	c.compiled = true
	return c.info, nil
}

// verifyIf runs the verifier after the named stage when the flags enable it.
func (c *Context) verifyIf(target isa.TargetISA, stage string) error {
	if !target.Flags().EnableVerifier() {
		return nil
	}
	if errs := c.ver.Check(c.Func, c.cfg, c.dt, target); len(errs) > 0 {
		return &VerifierError{Stage: stage, Errs: errs}
	}
	return nil
}
