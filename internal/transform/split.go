package transform

import (
	"fmt"

	"github.com/tessellae/loopforge/internal/ir"
)

// Split replaces iname i ranging over [lo, hi) with a derived pair:
// i_outer over ceil((hi-lo)/factor) values and i_inner over [0, factor),
// recovering the original index as lo + i_outer*factor + i_inner.
//
// Every bound, footprint, and predicate referencing i is rewritten to the
// composite expression. Unless the extent is a constant multiple of the
// factor, each instruction previously nested in i gains the clamp guard
// i_outer*factor + i_inner < hi-lo, which excludes the out-of-domain tail
// of the final partial tile and survives through lowering.
//
// The original iname is retired, never removed: the derived pair keeps a
// parent pointer to it, so later operations can reason about lineage.
func (e *Engine) Split(iname string, factor int) error {
	const op = "split"

	if factor < 1 {
		return newError(ErrCodeInvalidTransformation, op, iname, "split factor must be a positive integer, got %d", factor)
	}
	idx, ok := e.k.IndexOf(iname)
	if !ok {
		return newError(ErrCodeUnknownIname, op, iname, "no such iname in the current model")
	}
	if e.k.Inames[idx].Retired {
		return newError(ErrCodeInvalidTransformation, op, iname, "iname was retired by a prior split")
	}
	if _, isSeq := e.k.Inames[idx].Tag.(ir.SequentialTag); !isSeq {
		return newError(ErrCodeInvalidTransformation, op, iname,
			"iname already carries tag %s; split before tagging", e.k.Inames[idx].Tag)
	}

	k := e.k.Clone()
	orig := &k.Inames[idx]

	outerName := uniqueName(k, iname+"_outer")
	innerName := uniqueName(k, iname+"_inner")

	lo, hi := orig.Lo, orig.Hi
	extent := ir.Sub(hi, lo)
	f := ir.Num(int64(factor))

	outer := ir.Iname{
		Name:   outerName,
		Lo:     ir.Num(0),
		Hi:     ir.CeilDiv(extent, f),
		Tag:    ir.SequentialTag{},
		Parent: idx,
	}
	inner := ir.Iname{
		Name:   innerName,
		Lo:     ir.Num(0),
		Hi:     f,
		Tag:    ir.SequentialTag{},
		Parent: idx,
	}

	recovered := ir.Add(lo, ir.Add(ir.Mul(ir.Var(outerName), f), ir.Var(innerName)))
	repl := map[string]ir.Expr{iname: recovered}

	orig.Retired = true
	k.Inames = append(k.Inames, outer, inner)

	// Rewrite every other active bound that referenced the retired iname.
	for i := range k.Inames {
		in := &k.Inames[i]
		if in.Retired || in.Name == outerName || in.Name == innerName {
			continue
		}
		in.Lo = ir.Subst(in.Lo, repl)
		in.Hi = ir.Subst(in.Hi, repl)
	}

	// The clamp guard is redundant only when the extent is a constant
	// multiple of the factor.
	needGuard := true
	if ev, ok := ir.ConstValue(extent); ok && ev%int64(factor) == 0 {
		needGuard = false
	}
	guard := ir.Cond{
		L:  ir.Add(ir.Mul(ir.Var(outerName), f), ir.Var(innerName)),
		Op: ir.CmpLt,
		R:  extent,
	}

	for i := range k.Insns {
		in := &k.Insns[i]
		enclosed := false
		within := make([]string, 0, len(in.Within)+1)
		for _, name := range in.Within {
			if name == iname {
				enclosed = true
				within = append(within, outerName, innerName)
			} else {
				within = append(within, name)
			}
		}
		if !enclosed {
			continue
		}
		in.Within = within
		in.Write = ir.Ref{Array: in.Write.Array, Index: substSlice(in.Write.Index, repl)}
		in.RHS = ir.Subst(in.RHS, repl)
		for p := range in.Preds {
			in.Preds[p] = ir.SubstCond(in.Preds[p], repl)
		}
		if needGuard {
			in.Preds = append(in.Preds, guard)
		}
	}

	e.record(k, ir.OpRecord{Op: op, Iname: iname, Factor: factor})
	return e.commit(k, op, iname)
}

func substSlice(exprs []ir.Expr, repl map[string]ir.Expr) []ir.Expr {
	out := make([]ir.Expr, len(exprs))
	for i, e := range exprs {
		out[i] = ir.Subst(e, repl)
	}
	return out
}

// uniqueName returns base, or base with a numeric suffix if base is taken.
func uniqueName(k *ir.Kernel, base string) string {
	if !k.NameTaken(base) {
		return base
	}
	for n := 0; ; n++ {
		candidate := fmt.Sprintf("%s_%d", base, n)
		if !k.NameTaken(candidate) {
			return candidate
		}
	}
}
