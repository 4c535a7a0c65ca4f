// Package verifier checks a function against the structural invariants the
// compilation pipeline relies on. It never stops at the first problem: every
// violation is collected with its location, so one run reports everything a
// broken pass produced.
package verifier

import (
	"fmt"
	"strings"

	"github.com/gantry-go/gantry/internal/domtree"
	"github.com/gantry-go/gantry/internal/flowgraph"
	"github.com/gantry-go/gantry/internal/ir"
	"github.com/gantry-go/gantry/internal/isa"
)

// Error is one violation, located at a block or instruction.
type Error struct {
	Location string
	Message  string
}

func (e Error) String() string { return e.Location + ": " + e.Message }

// Errors is the collected report. A nil or empty list means the function
// verified.
type Errors []Error

func (e Errors) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d verifier error(s)", len(e))
	for _, err := range e {
		sb.WriteString("\n\t")
		sb.WriteString(err.String())
	}
	return sb.String()
}

// Verifier holds the scratch analyses used for the recompute-and-compare
// checks, so repeated runs do not allocate.
type Verifier struct {
	cfg flowgraph.ControlFlowGraph
	dt  domtree.DominatorTree

	errs Errors
}

// New returns an empty verifier.
func New() *Verifier { return &Verifier{} }

// Check runs every check against f. The given cfg and domtree are the
// pipeline's cached analyses; when valid they are compared against freshly
// computed ones. A nil return means f verified.
func (v *Verifier) Check(f *ir.Function, cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree, target isa.TargetISA) Errors {
	v.errs = v.errs[:0]

	if !f.Entry().Valid() {
		v.report("function", "no entry block")
		return v.cloneErrs()
	}

	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		v.checkBlock(f, b)
	}
	v.checkDefUse(f)
	if target != nil {
		v.checkEncodings(f, target)
	}
	if cfg != nil && cfg.IsValid() {
		v.checkFlowgraph(f, cfg)
	}
	if dt != nil && dt.IsValid() {
		v.checkDomtree(f, cfg, dt)
	}
	return v.cloneErrs()
}

func (v *Verifier) report(loc, format string, args ...interface{}) {
	v.errs = append(v.errs, Error{Location: loc, Message: fmt.Sprintf(format, args...)})
}

// cloneErrs hands the caller a copy so the scratch slice can be reused.
func (v *Verifier) cloneErrs() Errors {
	if len(v.errs) == 0 {
		return nil
	}
	return append(Errors(nil), v.errs...)
}

func (v *Verifier) checkBlock(f *ir.Function, b ir.Block) {
	term := f.Layout.LastInst(b)
	if !term.Valid() {
		v.report(b.String(), "block is empty")
		return
	}
	if !f.InstData(term).Opcode.IsTerminator() {
		v.report(b.String(), "last instruction %s is not a terminator",
			f.InstData(term).Opcode)
	}
	for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
		d := f.InstData(i)
		if d.Opcode.IsTerminator() && i != term {
			v.report(i.String(), "terminator %s in the middle of %s", d.Opcode, b)
		}
		switch d.BranchKind() {
		case ir.BranchKindSingleDest:
			v.checkBranch(f, b, i)
		case ir.BranchKindTable:
			v.checkBrTable(f, i)
		}
	}
}

func (v *Verifier) checkBranch(f *ir.Function, b ir.Block, i ir.Inst) {
	d := f.InstData(i)
	dest := d.Dest
	if !dest.Valid() || !f.Layout.IsBlockInserted(dest) {
		v.report(i.String(), "branch target %s is not in the layout", dest)
		return
	}
	if d.Opcode == ir.OpcodeFallthrough && f.Layout.NextBlock(b) != dest {
		v.report(i.String(), "fallthrough to %s, but the layout successor of %s is %s",
			dest, b, f.Layout.NextBlock(b))
	}
	if d.Opcode == ir.OpcodeBrz || d.Opcode == ir.OpcodeBrnz {
		cond := f.InstArgs(i)[0]
		if t := f.ValueType(f.ResolveAlias(cond)); !t.IsInt() {
			v.report(i.String(), "%s condition %s has non-integer type %s", d.Opcode, cond, t)
		}
	}
	args := f.BranchArgs(i)
	params := f.BlockParams(dest)
	if len(args) != len(params) {
		v.report(i.String(), "passes %d argument(s) to %s, which has %d parameter(s)",
			len(args), dest, len(params))
		return
	}
	for n, a := range args {
		at := f.ValueType(f.ResolveAlias(a))
		pt := f.ValueType(params[n])
		if at != pt {
			v.report(i.String(), "argument %d has type %s, parameter %s expects %s",
				n, at, params[n], pt)
		}
	}
}

func (v *Verifier) checkBrTable(f *ir.Function, i ir.Inst) {
	d := f.InstData(i)
	if int(d.Table) >= len(f.JumpTables) || d.Table == ir.JumpTableInvalid {
		v.report(i.String(), "branch through undeclared table %s", d.Table)
		return
	}
	for n, t := range f.JumpTables[d.Table].Targets() {
		if !f.Layout.IsBlockInserted(t) {
			v.report(i.String(), "table entry %d targets %s, which is not in the layout", n, t)
		}
		if len(f.BlockParams(t)) != 0 {
			v.report(i.String(), "table entry %d targets %s, which takes parameters", n, t)
		}
	}
}

// checkDefUse verifies every operand is defined before it is used: in an
// earlier instruction of the same block, or in a block that dominates the
// use. The check computes its own dominator tree so it holds even when the
// pipeline's cached one is stale.
func (v *Verifier) checkDefUse(f *ir.Function) {
	v.cfg.Compute(f)
	v.dt.Compute(f, &v.cfg)

	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		if !v.dt.IsReachable(b) {
			continue
		}
		pos := make(map[ir.Inst]int, 8)
		n := 0
		for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
			pos[i] = n
			n++
		}
		for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
			for _, a := range f.InstArgs(i) {
				v.checkUse(f, b, i, pos, f.ResolveAlias(a))
			}
		}
	}
}

func (v *Verifier) checkUse(f *ir.Function, b ir.Block, i ir.Inst, pos map[ir.Inst]int, a ir.Value) {
	kind, defInst, defBlock, _ := f.ValueDef(a)
	switch kind {
	case ir.ValueDefParam:
		if defBlock != b && !v.dt.Dominates(defBlock, b) {
			v.report(i.String(), "uses %s, a parameter of %s, which does not dominate %s",
				a, defBlock, b)
		}
	case ir.ValueDefResult:
		db := f.Layout.InstBlock(defInst)
		if !db.Valid() {
			v.report(i.String(), "uses %s, whose defining instruction is not in the layout", a)
			return
		}
		if db == b {
			if pos[defInst] >= pos[i] {
				v.report(i.String(), "uses %s before its definition in %s", a, b)
			}
			return
		}
		if !v.dt.Dominates(db, b) {
			v.report(i.String(), "uses %s defined in %s, which does not dominate %s", a, db, b)
		}
	}
}

// checkEncodings verifies every assigned encoding is one the target offered
// for that instruction. Unassigned encodings are fine; the function may not
// have been legalized yet.
func (v *Verifier) checkEncodings(f *ir.Function, target isa.TargetISA) {
	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		for i := f.Layout.FirstInst(b); i.Valid(); i = f.Layout.NextInst(i) {
			enc := f.Encodings[i]
			if !enc.IsLegal() {
				continue
			}
			d := f.InstData(i)
			found := false
			for _, cand := range target.LegalEncodings(f, d, d.Typ) {
				if cand == enc {
					found = true
					break
				}
			}
			if !found {
				v.report(i.String(), "encoding %s was never legal for %s",
					target.EncodingInfo().DisplayEnc(enc), d.Opcode)
			}
		}
	}
}

// checkFlowgraph recomputes the flow graph and compares it with the cached
// one edge by edge.
func (v *Verifier) checkFlowgraph(f *ir.Function, cfg *flowgraph.ControlFlowGraph) {
	v.cfg.Compute(f)
	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		want, got := v.cfg.Preds(b), cfg.Preds(b)
		if len(want) != len(got) {
			v.report(b.String(), "cached flow graph has %d predecessor(s), recomputed has %d",
				len(got), len(want))
			continue
		}
		for n := range want {
			if want[n] != got[n] {
				v.report(b.String(), "cached predecessor %d is %s/%s, recomputed is %s/%s",
					n, got[n].Block, got[n].Inst, want[n].Block, want[n].Inst)
			}
		}
	}
}

// checkDomtree recomputes immediate dominators against the cached tree.
func (v *Verifier) checkDomtree(f *ir.Function, cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree) {
	use := cfg
	if use == nil || !use.IsValid() {
		v.cfg.Compute(f)
		use = &v.cfg
	}
	v.dt.Compute(f, use)
	for b := f.Layout.FirstBlock(); b.Valid(); b = f.Layout.NextBlock(b) {
		if !v.dt.IsReachable(b) {
			continue
		}
		if want, got := v.dt.Idom(b), dt.Idom(b); want != got {
			v.report(b.String(), "cached immediate dominator is %s, recomputed is %s", got, want)
		}
	}
}
