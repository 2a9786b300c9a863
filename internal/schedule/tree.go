package schedule

import (
	"fmt"
	"strings"

	"github.com/tessellae/loopforge/internal/ir"
)

// Node is one element of the scheduled representation: a sealed variant
// set switched over explicitly by evaluators and emitters.
type Node interface {
	node()
}

// SeqLoop is an explicit serialized loop over [Lo, Hi).
type SeqLoop struct {
	Iname string
	Lo    ir.Expr
	Hi    ir.Expr
	Body  []Node
}

// ParIndex binds a parallel execution index. Its iteration is not
// serialized: concurrent execution across all values in [Lo, Hi) is
// permitted, and the lowering pass has already proven it race-free.
type ParIndex struct {
	Iname string
	Tag   ir.Tag
	Lo    ir.Expr
	Hi    ir.Expr
	Body  []Node
}

// Unrolled replicates its body Count times at emission time. The index
// still takes values Lo, Lo+1, ... Lo+Count-1; the replication count is a
// compile-time constant enforced when the unroll role was assigned.
type Unrolled struct {
	Iname string
	Lo    ir.Expr
	Count int64
	Body  []Node
}

// Guard executes its body only when every condition holds.
type Guard struct {
	Conds []ir.Cond
	Body  []Node
}

// Assign is an instruction leaf: one store of RHS into Write per
// surrounding index instance.
type Assign struct {
	ID    string
	Write ir.Ref
	RHS   ir.Expr
}

func (*SeqLoop) node()  {}
func (*ParIndex) node() {}
func (*Unrolled) node() {}
func (*Guard) node()    {}
func (*Assign) node()   {}

// Partial describes a privatized accumulator array synthesized for a
// parallel reduction: Base's footprint widened by one dimension per
// parallel reduction axis, so each concurrent instance accumulates into
// its own slot.
type Partial struct {
	Name    string
	Base    string
	Axes    []string
	Extents []ir.Expr
}

// Tree is the complete scheduled representation of one kernel, the
// read-only interface handed to backend emitters and the tree evaluator.
type Tree struct {
	Kernel   string
	Params   []string
	Args     []ir.Arg
	Partials []Partial
	Roots    []Node
}

// Render produces the canonical text form of the tree. The form is
// deterministic: equal trees render byte-identically, which is what golden
// tests and the ordering-determinism guarantee key on.
func (t *Tree) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "kernel %s(%s)\n", t.Kernel, strings.Join(t.Params, ", "))
	for _, a := range t.Args {
		fmt.Fprintf(&b, "arg %s %s\n", a.Name, a.Kind)
	}
	for _, p := range t.Partials {
		exts := make([]string, len(p.Extents))
		for i, e := range p.Extents {
			exts[i] = e.String()
		}
		fmt.Fprintf(&b, "partial %s of %s over %s [%s]\n",
			p.Name, p.Base, strings.Join(p.Axes, ", "), strings.Join(exts, ", "))
	}
	renderNodes(&b, t.Roots, 0)
	return b.String()
}

func renderNodes(b *strings.Builder, nodes []Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		switch v := n.(type) {
		case *SeqLoop:
			fmt.Fprintf(b, "%sfor %s in [%s, %s):\n", indent, v.Iname, v.Lo, v.Hi)
			renderNodes(b, v.Body, depth+1)
		case *ParIndex:
			fmt.Fprintf(b, "%spar %s %s in [%s, %s):\n", indent, v.Tag, v.Iname, v.Lo, v.Hi)
			renderNodes(b, v.Body, depth+1)
		case *Unrolled:
			fmt.Fprintf(b, "%sunroll %s in [%s, %s):\n", indent, v.Iname, v.Lo, ir.Add(v.Lo, ir.Num(v.Count)))
			renderNodes(b, v.Body, depth+1)
		case *Guard:
			conds := make([]string, len(v.Conds))
			for i, c := range v.Conds {
				conds[i] = c.String()
			}
			fmt.Fprintf(b, "%sif %s:\n", indent, strings.Join(conds, " and "))
			renderNodes(b, v.Body, depth+1)
		case *Assign:
			fmt.Fprintf(b, "%s%s: %s = %s\n", indent, v.ID, v.Write, v.RHS)
		}
	}
}
