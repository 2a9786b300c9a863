package cli

import (
	"fmt"
	"os"

	"github.com/tessellae/loopforge/internal/frontend"
	"github.com/tessellae/loopforge/internal/ir"
	"github.com/tessellae/loopforge/internal/recipe"
	"github.com/tessellae/loopforge/internal/transform"
)

// loadModel runs the front half of the pipeline: load the kernel from
// CUE and, when a recipe path is given, apply it. The returned kernel is
// frozen.
func loadModel(kernelPath, recipePath string) (*ir.Kernel, error) {
	res, err := frontend.LoadKernel(kernelPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load kernel", err)
	}
	if recipePath == "" {
		return res.Kernel, nil
	}

	data, err := os.ReadFile(recipePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read recipe", err)
	}
	r, err := recipe.Parse(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "parse recipe", err)
	}

	e := transform.New(res.Kernel)
	if err := recipe.Apply(e, r); err != nil {
		return nil, WrapExitError(ExitFailure, "apply recipe", err)
	}
	return e.Snapshot(), nil
}

// failureCode maps an error to the structured code shown to the user.
func failureCode(err error) string {
	if code := transform.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}

// canonicalModel renders the model as canonical JSON text.
func canonicalModel(k *ir.Kernel) (string, error) {
	b, err := ir.MarshalCanonical(k.CanonicalMap())
	if err != nil {
		return "", fmt.Errorf("marshal model: %w", err)
	}
	return string(b) + "\n", nil
}
