package ir

// Instruction is one atomic computation: a single store of an evaluated
// expression, executed for every index tuple of its enclosing inames.
type Instruction struct {
	// ID is unique within the kernel.
	ID string

	// Within lists enclosing iname names, outermost first. The order is
	// the instruction's loop nest order; instructions that share inames
	// must agree on their relative order.
	Within []string

	// Write is the stored location. An empty index list is a rank-zero
	// scalar location.
	Write Ref

	// RHS is the stored value. Array reads appear as Ref nodes.
	RHS Expr

	// Preds are guard conditions; the instruction executes only for index
	// tuples satisfying every predicate. Split appends clamp guards here.
	Preds []Cond

	// After lists instruction IDs that must precede this one, in addition
	// to the dependencies inferred from footprints.
	After []string
}

// Reads returns every array read the instruction performs: Ref nodes in the
// RHS, in guard predicates, and nested inside the write's own index
// expressions (an indirect store reads its index arrays).
func (in *Instruction) Reads() []Ref {
	var refs []Ref
	CollectRefs(in.RHS, &refs)
	for _, p := range in.Preds {
		CollectRefs(p.L, &refs)
		CollectRefs(p.R, &refs)
	}
	for _, idx := range in.Write.Index {
		CollectRefs(idx, &refs)
	}
	return refs
}

// WithinSet returns the enclosing inames as a set.
func (in *Instruction) WithinSet() map[string]bool {
	set := make(map[string]bool, len(in.Within))
	for _, name := range in.Within {
		set[name] = true
	}
	return set
}

// clone returns a deep copy of the instruction's slices. Expressions are
// immutable and may be shared.
func (in *Instruction) clone() Instruction {
	out := *in
	out.Within = append([]string(nil), in.Within...)
	out.Preds = append([]Cond(nil), in.Preds...)
	out.After = append([]string(nil), in.After...)
	return out
}
