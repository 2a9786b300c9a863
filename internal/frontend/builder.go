// Package frontend constructs the initial kernel model: a fluent Go
// builder for tests and embedders, and a CUE loader for kernels written as
// declarative source files. The engine downstream is agnostic to which
// path produced the model.
package frontend

import (
	"fmt"

	"github.com/tessellae/loopforge/internal/ir"
)

// KernelBuilder accumulates kernel pieces and validates once at Build.
// Expressions are written in the engine's surface syntax and parsed as
// they are added; the first error sticks and is reported by Build.
type KernelBuilder struct {
	k   ir.Kernel
	err error
}

// NewKernel starts a builder for a kernel with the given name.
func NewKernel(name string) *KernelBuilder {
	return &KernelBuilder{k: ir.Kernel{Name: name}}
}

// Params declares scalar parameters.
func (b *KernelBuilder) Params(names ...string) *KernelBuilder {
	b.k.Params = append(b.k.Params, names...)
	return b
}

// In declares read-only array arguments.
func (b *KernelBuilder) In(names ...string) *KernelBuilder {
	return b.args(ir.ArgIn, names)
}

// Out declares output array arguments.
func (b *KernelBuilder) Out(names ...string) *KernelBuilder {
	return b.args(ir.ArgOut, names)
}

// Temp declares zero-initialized scratch arrays.
func (b *KernelBuilder) Temp(names ...string) *KernelBuilder {
	return b.args(ir.ArgTemp, names)
}

func (b *KernelBuilder) args(kind ir.ArgKind, names []string) *KernelBuilder {
	for _, n := range names {
		b.k.Args = append(b.k.Args, ir.Arg{Name: n, Kind: kind})
	}
	return b
}

// Iname declares a loop dimension over [lo, hi), both given in surface
// syntax.
func (b *KernelBuilder) Iname(name, lo, hi string) *KernelBuilder {
	if b.err != nil {
		return b
	}
	loE, err := ir.ParseExpr(lo)
	if err != nil {
		b.err = fmt.Errorf("iname %s: lower bound: %w", name, err)
		return b
	}
	hiE, err := ir.ParseExpr(hi)
	if err != nil {
		b.err = fmt.Errorf("iname %s: upper bound: %w", name, err)
		return b
	}
	b.k.Inames = append(b.k.Inames, ir.NewIname(name, loE, hiE))
	return b
}

// Insn declares one instruction.
type Insn struct {
	ID     string
	Within []string
	Write  string
	RHS    string
	Preds  []string
	After  []string
}

// Instruction adds an instruction in program order.
func (b *KernelBuilder) Instruction(spec Insn) *KernelBuilder {
	if b.err != nil {
		return b
	}
	writeE, err := ir.ParseExpr(spec.Write)
	if err != nil {
		b.err = fmt.Errorf("instruction %s: write: %w", spec.ID, err)
		return b
	}
	write, ok := writeE.(ir.Ref)
	if !ok {
		b.err = fmt.Errorf("instruction %s: write %q is not an array reference", spec.ID, spec.Write)
		return b
	}
	rhs, err := ir.ParseExpr(spec.RHS)
	if err != nil {
		b.err = fmt.Errorf("instruction %s: rhs: %w", spec.ID, err)
		return b
	}
	in := ir.Instruction{
		ID:     spec.ID,
		Within: append([]string(nil), spec.Within...),
		Write:  write,
		RHS:    rhs,
		After:  append([]string(nil), spec.After...),
	}
	for _, p := range spec.Preds {
		c, err := ir.ParseCond(p)
		if err != nil {
			b.err = fmt.Errorf("instruction %s: predicate: %w", spec.ID, err)
			return b
		}
		in.Preds = append(in.Preds, c)
	}
	b.k.Insns = append(b.k.Insns, in)
	return b
}

// Build validates and returns the kernel.
func (b *KernelBuilder) Build() (*ir.Kernel, error) {
	if b.err != nil {
		return nil, b.err
	}
	k := b.k.Clone()
	if err := k.Validate(); err != nil {
		return nil, fmt.Errorf("kernel %s: %w", k.Name, err)
	}
	return k, nil
}
