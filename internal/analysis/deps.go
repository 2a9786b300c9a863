package analysis

import (
	"fmt"

	"github.com/tessellae/loopforge/internal/ir"
)

// Edge is one dependency: From must precede To for every iname
// instantiation at which both execute.
type Edge struct {
	From   string
	To     string
	Reason string
}

// Dependencies infers the dependency edges of a kernel.
//
// Two instructions conflict when a write footprint of one may overlap a
// footprint of the other. Overlap is decided conservatively: footprints on
// the same array conflict unless they are provably disjoint for every
// instantiation, and the only accepted disjointness proof is fully constant
// index tuples that differ in some dimension. Inferred edges point from the
// earlier instruction in program order to the later one; explicit After
// dependencies are included as stated.
func Dependencies(k *ir.Kernel) []Edge {
	var edges []Edge
	seen := make(map[[2]string]bool)

	add := func(from, to, reason string) {
		key := [2]string{from, to}
		if seen[key] {
			return
		}
		seen[key] = true
		edges = append(edges, Edge{From: from, To: to, Reason: reason})
	}

	for ai := range k.Insns {
		a := &k.Insns[ai]
		for bi := ai + 1; bi < len(k.Insns); bi++ {
			b := &k.Insns[bi]
			if reason, conflict := insnsConflict(a, b); conflict {
				add(a.ID, b.ID, reason)
			}
		}
	}
	for i := range k.Insns {
		in := &k.Insns[i]
		for _, dep := range in.After {
			add(dep, in.ID, "declared")
		}
	}
	return edges
}

// insnsConflict reports whether a and b have a write/read, read/write, or
// write/write conflict.
func insnsConflict(a, b *ir.Instruction) (string, bool) {
	if mayOverlap(a.Write, b.Write) {
		return fmt.Sprintf("write/write on %s", a.Write.Array), true
	}
	for _, r := range b.Reads() {
		if mayOverlap(a.Write, r) {
			return fmt.Sprintf("write/read on %s", a.Write.Array), true
		}
	}
	for _, r := range a.Reads() {
		if mayOverlap(r, b.Write) {
			return fmt.Sprintf("read/write on %s", b.Write.Array), true
		}
	}
	return "", false
}

// mayOverlap reports whether two references can denote the same location
// under any pair of iname instantiations. Sound, not precise: it only
// answers false when both index tuples are fully constant and differ
// somewhere, or the arrays differ.
func mayOverlap(a, b ir.Ref) bool {
	if a.Array != b.Array {
		return false
	}
	if len(a.Index) != len(b.Index) {
		return true
	}
	for d := range a.Index {
		av, aok := ir.ConstValue(a.Index[d])
		bv, bok := ir.ConstValue(b.Index[d])
		if aok && bok && av != bv {
			return false
		}
	}
	return true
}

// ReductionDims returns the enclosing inames across which in accumulates
// into its own written location, in Within order.
//
// An iname v qualifies when the instruction reads a location that may
// overlap its write and the write's index cannot be proven to change with
// v. This is the canonical reduction signature: the same location is read
// and written at every value of v.
func ReductionDims(in *ir.Instruction) []string {
	selfRead := false
	for _, r := range in.Reads() {
		if mayOverlap(in.Write, r) {
			selfRead = true
			break
		}
	}
	if !selfRead {
		return nil
	}
	var dims []string
	for _, v := range in.Within {
		if !writeDistinctAcross(in, v) {
			dims = append(dims, v)
		}
	}
	return dims
}

// writeDistinctAcross reports whether the write of in provably lands on
// distinct locations for distinct values of v (other inames fixed).
func writeDistinctAcross(in *ir.Instruction, v string) bool {
	for _, dim := range in.Write.Index {
		if distinctAcross(dim, v) {
			return true
		}
	}
	return false
}

// ReductionDimsByRoot maps each reduction dimension of in to the root
// iname it derives from. Splitting a reduction dimension leaves both
// derived halves reduction dimensions; callers that reason about declared
// combination strategies want the original dimension's identity.
func ReductionDimsByRoot(k *ir.Kernel, in *ir.Instruction) map[string]string {
	out := make(map[string]string)
	for _, v := range ReductionDims(in) {
		idx, ok := k.IndexOf(v)
		if !ok {
			continue
		}
		out[v] = k.Inames[k.RootOf(idx)].Name
	}
	return out
}
