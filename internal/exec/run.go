package exec

import (
	"fmt"

	"github.com/tessellae/loopforge/internal/ir"
	"github.com/tessellae/loopforge/internal/schedule"
)

// RunTree evaluates a scheduled tree against the environment. Parallel
// index nodes are iterated in ascending order; the lowering pass has
// already proven their instances race-free, so any interleaving computes
// the same result and ascending order keeps traces deterministic.
func RunTree(t *schedule.Tree, env *Env) error {
	for _, n := range t.Roots {
		if err := runNode(n, env); err != nil {
			return err
		}
	}
	return nil
}

// RunKernel evaluates a kernel serially: it lowers the untransformed model
// and runs the resulting tree. This is the reference side of the
// equivalence contract.
func RunKernel(k *ir.Kernel, env *Env) error {
	t, err := schedule.Lower(k)
	if err != nil {
		return fmt.Errorf("lower reference kernel: %w", err)
	}
	return RunTree(t, env)
}

func runNode(n schedule.Node, env *Env) error {
	switch v := n.(type) {
	case *schedule.SeqLoop:
		return runRange(v.Iname, v.Lo, v.Hi, v.Body, env)
	case *schedule.ParIndex:
		return runRange(v.Iname, v.Lo, v.Hi, v.Body, env)
	case *schedule.Unrolled:
		lo, err := ir.Eval(v.Lo, env)
		if err != nil {
			return fmt.Errorf("unroll %s: base: %w", v.Iname, err)
		}
		return runSpan(v.Iname, lo, lo+v.Count, v.Body, env)
	case *schedule.Guard:
		for _, c := range v.Conds {
			ok, err := ir.EvalCond(c, env)
			if err != nil {
				return fmt.Errorf("guard %s: %w", c, err)
			}
			if !ok {
				return nil
			}
		}
		for _, child := range v.Body {
			if err := runNode(child, env); err != nil {
				return err
			}
		}
		return nil
	case *schedule.Assign:
		return runAssign(v, env)
	default:
		return fmt.Errorf("unknown scheduling node %T", n)
	}
}

func runRange(iname string, loE, hiE ir.Expr, body []schedule.Node, env *Env) error {
	lo, err := ir.Eval(loE, env)
	if err != nil {
		return fmt.Errorf("loop %s: lower bound: %w", iname, err)
	}
	hi, err := ir.Eval(hiE, env)
	if err != nil {
		return fmt.Errorf("loop %s: upper bound: %w", iname, err)
	}
	return runSpan(iname, lo, hi, body, env)
}

func runSpan(iname string, lo, hi int64, body []schedule.Node, env *Env) error {
	prev, had := env.vars[iname]
	defer func() {
		if had {
			env.vars[iname] = prev
		} else {
			delete(env.vars, iname)
		}
	}()
	for v := lo; v < hi; v++ {
		env.vars[iname] = v
		for _, child := range body {
			if err := runNode(child, env); err != nil {
				return err
			}
		}
	}
	return nil
}

func runAssign(a *schedule.Assign, env *Env) error {
	env.tracing = true
	defer func() { env.tracing = false }()

	val, err := ir.Eval(a.RHS, env)
	if err != nil {
		return fmt.Errorf("instruction %s: %w", a.ID, err)
	}
	idx := make([]int64, len(a.Write.Index))
	for i, dim := range a.Write.Index {
		idx[i], err = ir.Eval(dim, env)
		if err != nil {
			return fmt.Errorf("instruction %s: write index: %w", a.ID, err)
		}
	}
	if err := env.store(a.Write.Array, idx, val); err != nil {
		return fmt.Errorf("instruction %s: %w", a.ID, err)
	}
	return nil
}
