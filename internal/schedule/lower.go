// Package schedule lowers a frozen, transformed kernel into the scheduled
// representation: a single tree of nested scheduling nodes handed to
// backend emitters. The scheduler never mutates the kernel it consumes,
// and two runs over the same model produce byte-identical trees.
package schedule

import (
	"fmt"

	"github.com/tessellae/loopforge/internal/analysis"
	"github.com/tessellae/loopforge/internal/ir"
	"github.com/tessellae/loopforge/internal/transform"
)

const opLower = "lower"

// item is one leaf bound for the tree: an instruction, or an
// initialization/combination step synthesized around a reduction.
type item struct {
	id     string
	within []string
	preds  []ir.Cond
	write  ir.Ref
	rhs    ir.Expr
}

// synthLoop is a sequential loop introduced by the scheduler itself, for
// combining privatized partial sums. It exists only in the tree, not in
// the kernel's iname arena.
type synthLoop struct {
	lo, hi ir.Expr
}

// Lower turns a kernel into its scheduled tree.
//
// The pass re-validates the model, re-checks the dependency relation for
// cycles and the parallel axes for races, orders instructions
// topologically with program-order tie-breaking, synthesizes reduction
// initialization and combination steps, and nests everything by the
// instructions' enclosing inames. Guards introduced by split wrap each
// instruction leaf.
func Lower(k *ir.Kernel) (*Tree, error) {
	if err := k.Validate(); err != nil {
		return nil, transform.NewError(transform.ErrCodeInvalidTransformation, opLower, "",
			"kernel is not well formed: %v", err)
	}

	edges := analysis.Dependencies(k)
	ids := make([]string, len(k.Insns))
	for i := range k.Insns {
		ids[i] = k.Insns[i].ID
	}
	if err := analysis.CheckAcyclic(ids, edges); err != nil {
		return nil, transform.NewError(transform.ErrCodeUnsatisfiableSchedule, opLower, "", "%v", err)
	}
	for i := range k.Inames {
		in := &k.Inames[i]
		if in.Retired {
			continue
		}
		if _, isUnroll := in.Tag.(ir.UnrollTag); isUnroll {
			if _, constant := ir.ConstValue(ir.Sub(in.Hi, in.Lo)); !constant {
				return nil, transform.NewError(transform.ErrCodeInvalidTransformation, opLower, in.Name,
					"unrolled iname has a non-constant extent %s", ir.Sub(in.Hi, in.Lo))
			}
		}
	}
	if races := analysis.CheckRaces(k); len(races) > 0 {
		first := races[0]
		if first.Kind == analysis.RaceUnhandledReduction {
			return nil, transform.NewError(transform.ErrCodeInvalidReductionTag, opLower, first.Iname,
				"parallel role on reduction dimension of instruction %s without a combination strategy", first.InsnID)
		}
		return nil, transform.NewError(transform.ErrCodeUnsatisfiableSchedule, opLower, first.Iname, "%s", first)
	}

	order, err := topoOrder(k, edges)
	if err != nil {
		return nil, err
	}

	lw := &lowerer{k: k, synth: make(map[string]synthLoop)}
	var items []item
	for _, idx := range order {
		expanded, err := lw.expand(&k.Insns[idx])
		if err != nil {
			return nil, err
		}
		items = append(items, expanded...)
	}

	t := &Tree{
		Kernel:   k.Name,
		Params:   append([]string(nil), k.Params...),
		Args:     append([]ir.Arg(nil), k.Args...),
		Partials: lw.partials,
	}
	lw.nest(t, items)
	return t, nil
}

type lowerer struct {
	k        *ir.Kernel
	partials []Partial
	synth    map[string]synthLoop
}

// expand turns one instruction into its scheduled items. Instructions with
// reduction dimensions gain an initialization step; reduction dimensions
// carrying a parallel role additionally gain a privatized partial
// accumulator and a sequential combination loop.
func (lw *lowerer) expand(in *ir.Instruction) ([]item, error) {
	rdims := analysis.ReductionDims(in)
	base := item{
		id:     in.ID,
		within: append([]string(nil), in.Within...),
		preds:  append([]ir.Cond(nil), in.Preds...),
		write:  in.Write,
		rhs:    in.RHS,
	}
	if len(rdims) == 0 {
		return []item{base}, nil
	}

	rset := make(map[string]bool, len(rdims))
	var paxes []string
	for _, d := range rdims {
		rset[d] = true
	}
	// Partition in nest order so privatized indices stay deterministic.
	for _, name := range in.Within {
		if !rset[name] {
			continue
		}
		i, _ := lw.k.Active(name)
		if ir.IsParallel(lw.k.Inames[i].Tag) {
			paxes = append(paxes, name)
		}
	}

	for _, dim := range in.Write.Index {
		for _, v := range ir.Vars(dim) {
			if rset[v] {
				return nil, transform.NewError(transform.ErrCodeInvalidReductionTag, opLower, v,
					"write index of instruction %s depends on its own reduction dimension", in.ID)
			}
		}
	}

	if len(paxes) == 0 {
		// Sequential reduction: zero the accumulator before the reduction
		// loops open.
		init := item{
			id:     in.ID + ".init",
			within: exclude(base.within, rset),
			write:  in.Write,
			rhs:    ir.Num(0),
		}
		init.preds = lw.filterPreds(base.preds, init.within)
		return []item{init, base}, nil
	}

	// Parallel reduction: each concurrent instance accumulates into its
	// own slot of a widened partial array, then a sequential epilogue
	// folds the partials into the real accumulator in ascending axis
	// order. The fixed fold order is what makes the result reproducible.
	part := lw.newPartial(in, paxes)

	partRef := ir.Ref{Array: part.Name, Index: widen(in.Write.Index, paxes)}
	seqOnly := make(map[string]bool, len(rdims))
	for _, d := range rdims {
		seqOnly[d] = true
	}
	for _, p := range paxes {
		delete(seqOnly, p)
	}

	init := item{
		id:     in.ID + ".init",
		within: exclude(base.within, seqOnly),
		write:  partRef,
		rhs:    ir.Num(0),
	}
	init.preds = lw.filterPreds(base.preds, init.within)

	main := base
	main.write = partRef
	main.rhs = replaceRef(in.RHS, in.Write, partRef)

	zero := item{
		id:     in.ID + ".zero",
		within: exclude(base.within, rset),
		write:  in.Write,
		rhs:    ir.Num(0),
	}
	zero.preds = lw.filterPreds(base.preds, zero.within)

	combineWithin := exclude(base.within, rset)
	combineIdx := append([]ir.Expr(nil), in.Write.Index...)
	for _, p := range paxes {
		i, _ := lw.k.Active(p)
		loop := lw.newSynthLoop(p+"_fold", lw.k.Inames[i].Lo, lw.k.Inames[i].Hi)
		combineWithin = append(combineWithin, loop)
		combineIdx = append(combineIdx, ir.Var(loop))
	}
	combine := item{
		id:     in.ID + ".combine",
		within: combineWithin,
		write:  in.Write,
		rhs: ir.Bin{Op: ir.OpAdd,
			L: in.Write,
			R: ir.Ref{Array: part.Name, Index: combineIdx}},
	}
	combine.preds = lw.filterPreds(base.preds, combineWithin)

	return []item{init, main, zero, combine}, nil
}

// newPartial registers a privatized accumulator for the given parallel
// reduction axes, with a name free in the kernel and among earlier
// partials.
func (lw *lowerer) newPartial(in *ir.Instruction, paxes []string) Partial {
	part := Partial{
		Name: lw.freeName(in.Write.Array + "_part"),
		Base: in.Write.Array,
		Axes: append([]string(nil), paxes...),
	}
	for _, p := range paxes {
		i, _ := lw.k.Active(p)
		part.Extents = append(part.Extents, ir.Sub(lw.k.Inames[i].Hi, lw.k.Inames[i].Lo))
	}
	lw.partials = append(lw.partials, part)
	return part
}

// newSynthLoop registers a scheduler-introduced sequential loop under a
// free name and returns that name.
func (lw *lowerer) newSynthLoop(base string, lo, hi ir.Expr) string {
	name := lw.freeName(base)
	lw.synth[name] = synthLoop{lo: lo, hi: hi}
	return name
}

func (lw *lowerer) freeName(base string) string {
	taken := func(name string) bool {
		if lw.k.NameTaken(name) {
			return true
		}
		if _, ok := lw.synth[name]; ok {
			return true
		}
		for _, p := range lw.partials {
			if p.Name == name {
				return true
			}
		}
		return false
	}
	if !taken(base) {
		return base
	}
	for n := 0; ; n++ {
		candidate := fmt.Sprintf("%s_%d", base, n)
		if !taken(candidate) {
			return candidate
		}
	}
}

// filterPreds keeps the guards whose iname references are all available at
// the given nesting, dropping guards that mention loops the item sits
// outside of.
func (lw *lowerer) filterPreds(preds []ir.Cond, within []string) []ir.Cond {
	avail := make(map[string]bool, len(within))
	for _, w := range within {
		avail[w] = true
	}
	var kept []ir.Cond
	for _, c := range preds {
		ok := true
		for _, side := range []ir.Expr{c.L, c.R} {
			for _, v := range ir.Vars(side) {
				if _, isIname := lw.k.Active(v); isIname && !avail[v] {
					ok = false
				}
				if _, isSynth := lw.synth[v]; isSynth && !avail[v] {
					ok = false
				}
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}
	return kept
}

// nest folds the ordered items into the tree with a greedy loop stack:
// close down to the longest common prefix with the previous item's nest,
// then open the rest.
func (lw *lowerer) nest(t *Tree, items []item) {
	type open struct {
		name string
		node Node
	}
	var stack []open

	appendChild := func(child Node) {
		if len(stack) == 0 {
			t.Roots = append(t.Roots, child)
			return
		}
		switch v := stack[len(stack)-1].node.(type) {
		case *SeqLoop:
			v.Body = append(v.Body, child)
		case *ParIndex:
			v.Body = append(v.Body, child)
		case *Unrolled:
			v.Body = append(v.Body, child)
		}
	}

	for _, it := range items {
		common := 0
		for common < len(stack) && common < len(it.within) && stack[common].name == it.within[common] {
			common++
		}
		stack = stack[:common]

		for _, name := range it.within[common:] {
			n := lw.openLoop(name)
			appendChild(n)
			stack = append(stack, open{name: name, node: n})
		}

		var leaf Node = &Assign{ID: it.id, Write: it.write, RHS: it.rhs}
		if len(it.preds) > 0 {
			leaf = &Guard{Conds: it.preds, Body: []Node{leaf}}
		}
		appendChild(leaf)
	}
}

// openLoop builds the node for one nesting level, switching on the
// iname's role.
func (lw *lowerer) openLoop(name string) Node {
	if s, ok := lw.synth[name]; ok {
		return &SeqLoop{Iname: name, Lo: s.lo, Hi: s.hi}
	}
	i, _ := lw.k.Active(name)
	in := lw.k.Inames[i]
	switch tag := in.Tag.(type) {
	case ir.GroupTag, ir.LocalTag:
		return &ParIndex{Iname: name, Tag: tag, Lo: in.Lo, Hi: in.Hi}
	case ir.UnrollTag:
		count, _ := ir.ConstValue(ir.Sub(in.Hi, in.Lo))
		return &Unrolled{Iname: name, Lo: in.Lo, Count: count}
	default:
		return &SeqLoop{Iname: name, Lo: in.Lo, Hi: in.Hi}
	}
}

// topoOrder returns instruction indices in a dependency-consistent order,
// ties broken by program order.
func topoOrder(k *ir.Kernel, edges []analysis.Edge) ([]int, error) {
	idx := make(map[string]int, len(k.Insns))
	for i := range k.Insns {
		idx[k.Insns[i].ID] = i
	}
	indeg := make([]int, len(k.Insns))
	succ := make([][]int, len(k.Insns))
	seen := make(map[[2]int]bool)
	for _, e := range edges {
		f, t := idx[e.From], idx[e.To]
		if f == t || seen[[2]int{f, t}] {
			continue
		}
		seen[[2]int{f, t}] = true
		succ[f] = append(succ[f], t)
		indeg[t]++
	}

	var order []int
	done := make([]bool, len(k.Insns))
	for len(order) < len(k.Insns) {
		pick := -1
		for i := range k.Insns {
			if !done[i] && indeg[i] == 0 {
				pick = i
				break
			}
		}
		if pick == -1 {
			// CheckAcyclic already ran; this is unreachable outside of a
			// bug, but fail loudly rather than loop.
			return nil, transform.NewError(transform.ErrCodeUnsatisfiableSchedule, opLower, "",
				"no instruction is ready; dependency relation is cyclic")
		}
		done[pick] = true
		order = append(order, pick)
		for _, s := range succ[pick] {
			indeg[s]--
		}
	}
	return order, nil
}

// exclude returns within minus the named set, preserving order.
func exclude(within []string, drop map[string]bool) []string {
	var out []string
	for _, w := range within {
		if !drop[w] {
			out = append(out, w)
		}
	}
	return out
}

// widen appends one index dimension per axis to a copy of idx.
func widen(idx []ir.Expr, axes []string) []ir.Expr {
	out := append([]ir.Expr(nil), idx...)
	for _, a := range axes {
		out = append(out, ir.Var(a))
	}
	return out
}

// replaceRef substitutes every occurrence of the exact reference from with
// to, anywhere in the expression. References compare structurally via
// their rendered form.
func replaceRef(e ir.Expr, from, to ir.Ref) ir.Expr {
	switch v := e.(type) {
	case ir.Ref:
		if v.String() == from.String() {
			return to
		}
		out := ir.Ref{Array: v.Array, Index: make([]ir.Expr, len(v.Index))}
		for i, d := range v.Index {
			out.Index[i] = replaceRef(d, from, to)
		}
		return out
	case ir.Bin:
		return ir.Bin{Op: v.Op, L: replaceRef(v.L, from, to), R: replaceRef(v.R, from, to)}
	default:
		return e
	}
}
