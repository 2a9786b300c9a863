// Package harness runs declarative conformance scenarios: a kernel file, a
// recipe, and either an expected failure code or expected concrete outputs.
// Scenarios live in YAML next to the tests so new engine behavior gets a
// conformance case without new Go code.
package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tessellae/loopforge/internal/exec"
	"github.com/tessellae/loopforge/internal/frontend"
	"github.com/tessellae/loopforge/internal/ir"
	"github.com/tessellae/loopforge/internal/recipe"
	"github.com/tessellae/loopforge/internal/schedule"
	"github.com/tessellae/loopforge/internal/transform"
)

// Scenario is one conformance case.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Kernel is the CUE kernel file, relative to the scenario file.
	Kernel string `yaml:"kernel"`

	// Recipe is the ordered transformation sequence. May be empty for
	// serial scenarios.
	Recipe []recipe.Op `yaml:"recipe,omitempty"`

	// ExpectError names the structured error code the recipe application
	// or lowering must fail with. Mutually exclusive with Data.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Data drives a concrete execution after lowering.
	Data *ScenarioData `yaml:"data,omitempty"`
}

// ScenarioData is the concrete-execution half of a scenario: inputs in,
// expected outputs back.
type ScenarioData struct {
	Params  map[string]int64   `yaml:"params,omitempty"`
	Arrays  map[string][]int64 `yaml:"arrays,omitempty"`
	Outputs map[string][]int64 `yaml:"outputs"`
}

// Result is what running a scenario produced.
type Result struct {
	// Kernel is the model after the recipe, or after the last good
	// operation when the recipe failed.
	Kernel *ir.Kernel

	// Tree is the scheduled tree. Nil when transformation or lowering
	// failed.
	Tree *schedule.Tree

	// Err is the transformation or lowering failure, if any.
	Err error

	// Outputs holds the arrays named by the scenario's data section.
	Outputs map[string][]int64
}

// LoadScenario reads and validates a scenario file. Kernel paths resolve
// relative to the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if !filepath.IsAbs(s.Kernel) {
		s.Kernel = filepath.Join(filepath.Dir(path), s.Kernel)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Kernel == "" {
		return fmt.Errorf("kernel is required")
	}
	if _, err := os.Stat(s.Kernel); err != nil {
		return fmt.Errorf("kernel file: %w", err)
	}
	if s.ExpectError != "" && s.Data != nil {
		return fmt.Errorf("expect_error and data are mutually exclusive")
	}
	if s.Data != nil && len(s.Data.Outputs) == 0 {
		return fmt.Errorf("data section names no outputs")
	}
	return nil
}

// Run executes a scenario: load, transform, lower, and (when data is
// present) evaluate. Expected failures land in Result.Err, not in the
// returned error; the returned error means the scenario itself is broken.
func Run(s *Scenario) (*Result, error) {
	res, err := frontend.LoadKernel(s.Kernel)
	if err != nil {
		return nil, fmt.Errorf("load kernel: %w", err)
	}

	e := transform.New(res.Kernel)
	r := &recipe.Recipe{Ops: s.Recipe}
	if applyErr := recipe.Apply(e, r); applyErr != nil {
		return &Result{Kernel: e.Snapshot(), Err: applyErr}, nil
	}

	k := e.Snapshot()
	tree, lowerErr := schedule.Lower(k)
	if lowerErr != nil {
		return &Result{Kernel: k, Err: lowerErr}, nil
	}
	out := &Result{Kernel: k, Tree: tree}

	if s.Data != nil {
		env := exec.NewEnv(s.Data.Params)
		for name, data := range s.Data.Arrays {
			env.SetArray(name, data)
		}
		if err := exec.RunTree(tree, env); err != nil {
			return nil, fmt.Errorf("run scenario %s: %w", s.Name, err)
		}
		out.Outputs = make(map[string][]int64, len(s.Data.Outputs))
		for name := range s.Data.Outputs {
			out.Outputs[name] = env.Array(name)
		}
	}
	return out, nil
}

// failureCode extracts the structured code, or empty for nil errors.
func failureCode(err error) string {
	if err == nil {
		return ""
	}
	return string(transform.CodeOf(err))
}
