// Package codegen renders a scheduled tree as ISPC-flavored C source.
//
// The mapping follows the usual SPMD convention: parallel-group axes
// become taskIndex dimensions of a launched task, the parallel-local axis
// 0 becomes programIndex across the gang, unrolled inames become
// replicated blocks, and sequential loops stay loops. Privatized partial
// accumulators are passed in as extra pointer arguments, linearized with
// their reduction axes innermost.
package codegen

import (
	"fmt"
	"strings"

	"github.com/tessellae/loopforge/internal/ir"
	"github.com/tessellae/loopforge/internal/schedule"
)

// EmitISPC renders the tree. Output is deterministic: equal trees render
// byte-identically.
func EmitISPC(t *schedule.Tree) (string, error) {
	em := &emitter{tree: t, partials: make(map[string]schedule.Partial)}
	for _, p := range t.Partials {
		em.partials[p.Name] = p
	}
	if err := em.emit(); err != nil {
		return "", err
	}
	return em.b.String(), nil
}

type emitter struct {
	tree     *schedule.Tree
	partials map[string]schedule.Partial
	b        strings.Builder
	depth    int
}

func (em *emitter) linef(format string, args ...any) {
	em.b.WriteString(strings.Repeat("    ", em.depth))
	fmt.Fprintf(&em.b, format, args...)
	em.b.WriteByte('\n')
}

func (em *emitter) blank() { em.b.WriteByte('\n') }

// phase is one top-level stretch of the tree: a parallel region that
// becomes a launched task, or a sequential stretch emitted inline.
type phase struct {
	parallel bool
	nodes    []schedule.Node
}

func (em *emitter) emit() error {
	em.linef("/* kernel %s: generated code, do not edit */", em.tree.Kernel)
	em.blank()

	phases := splitPhases(em.tree.Roots)

	taskNo := 0
	for _, ph := range phases {
		if !ph.parallel {
			continue
		}
		if err := em.emitTask(taskName(em.tree.Kernel, taskNo), ph.nodes); err != nil {
			return err
		}
		em.blank()
		taskNo++
	}

	em.linef("export void %s(%s) {", em.tree.Kernel, em.signature())
	em.depth++
	taskNo = 0
	for _, ph := range phases {
		if ph.parallel {
			dims, err := em.groupExtents(ph.nodes[0])
			if err != nil {
				return err
			}
			if len(dims) > 0 {
				em.linef("launch[%s] %s(%s);", strings.Join(dims, ", "),
					taskName(em.tree.Kernel, taskNo), em.forwardArgs())
			} else {
				em.linef("launch %s(%s);", taskName(em.tree.Kernel, taskNo), em.forwardArgs())
			}
			em.linef("sync;")
			taskNo++
			continue
		}
		for _, n := range ph.nodes {
			if err := em.node(n); err != nil {
				return err
			}
		}
	}
	em.depth--
	em.linef("}")
	return nil
}

// splitPhases groups the root nodes: every ParIndex root is its own
// parallel phase, consecutive non-parallel roots form sequential phases.
func splitPhases(roots []schedule.Node) []phase {
	var phases []phase
	for _, n := range roots {
		if _, ok := n.(*schedule.ParIndex); ok {
			phases = append(phases, phase{parallel: true, nodes: []schedule.Node{n}})
			continue
		}
		if len(phases) > 0 && !phases[len(phases)-1].parallel {
			last := &phases[len(phases)-1]
			last.nodes = append(last.nodes, n)
			continue
		}
		phases = append(phases, phase{nodes: []schedule.Node{n}})
	}
	return phases
}

func taskName(kernel string, n int) string {
	return fmt.Sprintf("%s_task%d", kernel, n)
}

// emitTask renders one parallel phase as a task: the group/local spine is
// peeled into index bindings, the remaining body nests normally.
func (em *emitter) emitTask(name string, nodes []schedule.Node) error {
	em.linef("task void %s(%s) {", name, em.signature())
	em.depth++

	body := nodes
	for len(body) == 1 {
		par, ok := body[0].(*schedule.ParIndex)
		if !ok {
			break
		}
		if err := em.bindAxis(par); err != nil {
			return err
		}
		body = par.Body
	}
	for _, n := range body {
		if err := em.node(n); err != nil {
			return err
		}
	}

	em.depth--
	em.linef("}")
	return nil
}

// bindAxis emits the index binding for one parallel axis.
func (em *emitter) bindAxis(par *schedule.ParIndex) error {
	base := ""
	if lo := em.expr(par.Lo); lo != "0" {
		base = lo + " + "
	}
	switch tag := par.Tag.(type) {
	case ir.GroupTag:
		em.linef("const uniform int64 %s = %s((uniform int64) taskIndex%d);",
			par.Iname, base, tag.Axis)
	case ir.LocalTag:
		if tag.Axis != 0 {
			return fmt.Errorf("local axis %d: only programIndex (axis 0) is available", tag.Axis)
		}
		em.linef("const varying int64 %s = %s((varying int64) programIndex);",
			par.Iname, base)
	default:
		return fmt.Errorf("parallel node %s carries non-parallel tag %s", par.Iname, par.Tag)
	}
	return nil
}

// groupExtents collects the launch dimensions of a parallel spine, in
// group-axis order.
func (em *emitter) groupExtents(n schedule.Node) ([]string, error) {
	var dims []string
	for {
		par, ok := n.(*schedule.ParIndex)
		if !ok {
			return dims, nil
		}
		if tag, isGroup := par.Tag.(ir.GroupTag); isGroup {
			for len(dims) <= tag.Axis {
				dims = append(dims, "1")
			}
			dims[tag.Axis] = em.expr(ir.Sub(par.Hi, par.Lo))
		}
		if len(par.Body) != 1 {
			return dims, nil
		}
		n = par.Body[0]
	}
}

func (em *emitter) node(n schedule.Node) error {
	switch v := n.(type) {
	case *schedule.SeqLoop:
		em.linef("for (int64 %s = %s; %s < %s; ++%s) {",
			v.Iname, em.expr(v.Lo), v.Iname, em.expr(v.Hi), v.Iname)
		em.depth++
		for _, c := range v.Body {
			if err := em.node(c); err != nil {
				return err
			}
		}
		em.depth--
		em.linef("}")
	case *schedule.ParIndex:
		// A parallel axis below the task spine has no hardware index left
		// to map it to.
		return fmt.Errorf("parallel axis %s nested under sequential control", v.Iname)
	case *schedule.Unrolled:
		for k := int64(0); k < v.Count; k++ {
			em.linef("{ /* unroll %s #%d */", v.Iname, k)
			em.depth++
			em.linef("const int64 %s = %s;", v.Iname, em.expr(ir.Add(v.Lo, ir.Num(k))))
			for _, c := range v.Body {
				if err := em.node(c); err != nil {
					return err
				}
			}
			em.depth--
			em.linef("}")
		}
	case *schedule.Guard:
		conds := make([]string, len(v.Conds))
		for i, c := range v.Conds {
			conds[i] = fmt.Sprintf("%s %s %s", em.expr(c.L), c.Op, em.expr(c.R))
		}
		em.linef("if (%s) {", strings.Join(conds, " && "))
		em.depth++
		for _, c := range v.Body {
			if err := em.node(c); err != nil {
				return err
			}
		}
		em.depth--
		em.linef("}")
	case *schedule.Assign:
		em.linef("%s = %s; /* %s */", em.ref(v.Write), em.expr(v.RHS), v.ID)
	default:
		return fmt.Errorf("unknown scheduling node %T", n)
	}
	return nil
}

// expr renders an expression as C. Division in lowered bounds only ever
// sees non-negative operands, where C truncation and floor agree.
func (em *emitter) expr(e ir.Expr) string {
	switch v := e.(type) {
	case ir.Num:
		return fmt.Sprintf("%d", int64(v))
	case ir.Var:
		return string(v)
	case ir.Ref:
		return em.ref(v)
	case ir.Bin:
		switch v.Op {
		case ir.OpMin:
			return fmt.Sprintf("min(%s, %s)", em.expr(v.L), em.expr(v.R))
		case ir.OpMax:
			return fmt.Sprintf("max(%s, %s)", em.expr(v.L), em.expr(v.R))
		default:
			return fmt.Sprintf("(%s %s %s)", em.expr(v.L), v.Op, em.expr(v.R))
		}
	default:
		return e.String()
	}
}

// ref renders an array access. Privatized partials linearize their
// reduction axes innermost, so the caller sizes them as base-size times
// the product of the axis extents.
func (em *emitter) ref(r ir.Ref) string {
	if p, ok := em.partials[r.Array]; ok {
		nbase := len(r.Index) - len(p.Axes)
		var prefix string
		flat := "0"
		if nbase > 0 {
			for _, d := range r.Index[:nbase-1] {
				prefix += "[" + em.expr(d) + "]"
			}
			flat = em.expr(r.Index[nbase-1])
		}
		for i, ext := range p.Extents {
			flat = fmt.Sprintf("((%s * %s) + %s)", flat, em.expr(ext), em.expr(r.Index[nbase+i]))
		}
		return fmt.Sprintf("%s%s[%s]", r.Array, prefix, flat)
	}
	parts := make([]string, len(r.Index))
	for i, d := range r.Index {
		parts[i] = em.expr(d)
	}
	return fmt.Sprintf("%s[%s]", r.Array, strings.Join(parts, "]["))
}

// signature renders the full parameter list: scalar parameters, array
// arguments, then partial accumulators.
func (em *emitter) signature() string {
	var parts []string
	for _, p := range em.tree.Params {
		parts = append(parts, fmt.Sprintf("uniform int64 %s", p))
	}
	for _, a := range em.tree.Args {
		parts = append(parts, fmt.Sprintf("uniform int64 *uniform %s", a.Name))
	}
	for _, p := range em.tree.Partials {
		parts = append(parts, fmt.Sprintf("uniform int64 *uniform %s", p.Name))
	}
	if len(parts) == 0 {
		return "void"
	}
	return strings.Join(parts, ", ")
}

// forwardArgs renders the argument list used when launching a task.
func (em *emitter) forwardArgs() string {
	var parts []string
	parts = append(parts, em.tree.Params...)
	for _, a := range em.tree.Args {
		parts = append(parts, a.Name)
	}
	for _, p := range em.tree.Partials {
		parts = append(parts, p.Name)
	}
	return strings.Join(parts, ", ")
}
