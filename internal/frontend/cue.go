package frontend

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/tessellae/loopforge/internal/ir"
)

// kernelFile mirrors the CUE kernel schema. Bounds, footprints, and
// predicates are strings in the engine's surface expression syntax;
// structure and typing live in CUE, expression semantics live here.
type kernelFile struct {
	Kernel struct {
		Name   string   `json:"name"`
		Params []string `json:"params"`
		Args   []struct {
			Name string `json:"name"`
			Kind string `json:"kind"`
		} `json:"args"`
		Inames []struct {
			Name string `json:"name"`
			Lo   string `json:"lo"`
			Hi   string `json:"hi"`
		} `json:"inames"`
		Instructions []struct {
			ID     string   `json:"id"`
			Within []string `json:"within"`
			Write  string   `json:"write"`
			RHS    string   `json:"rhs"`
			Preds  []string `json:"preds"`
			After  []string `json:"after"`
		} `json:"instructions"`
	} `json:"kernel"`
}

// LoadKernel reads a kernel definition from a CUE file and builds the
// validated model.
func LoadKernel(path string) (*KernelResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kernel file: %w", err)
	}
	return ParseKernel(path, data)
}

// KernelResult pairs the built kernel with source accounting for CLI
// reporting.
type KernelResult struct {
	Kernel *ir.Kernel
	Path   string
}

// ParseKernel compiles CUE source and builds the kernel model.
func ParseKernel(path string, data []byte) (*KernelResult, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}

	var kf kernelFile
	if err := value.Decode(&kf); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if kf.Kernel.Name == "" {
		return nil, fmt.Errorf("%s: missing kernel.name", path)
	}

	b := NewKernel(kf.Kernel.Name).Params(kf.Kernel.Params...)
	for _, a := range kf.Kernel.Args {
		switch a.Kind {
		case "in":
			b.In(a.Name)
		case "out":
			b.Out(a.Name)
		case "temp":
			b.Temp(a.Name)
		default:
			return nil, fmt.Errorf("%s: arg %s: unknown kind %q", path, a.Name, a.Kind)
		}
	}
	for _, in := range kf.Kernel.Inames {
		b.Iname(in.Name, in.Lo, in.Hi)
	}
	for _, insn := range kf.Kernel.Instructions {
		b.Instruction(Insn{
			ID:     insn.ID,
			Within: insn.Within,
			Write:  insn.Write,
			RHS:    insn.RHS,
			Preds:  insn.Preds,
			After:  insn.After,
		})
	}
	k, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &KernelResult{Kernel: k, Path: path}, nil
}
