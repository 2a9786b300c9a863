// Package recipe parses and drives transformation recipes: ordered lists
// of split and tag operations applied to a kernel, strictly in the order
// written. A recipe is the caller-supplied schedule; the engine never
// reorders or infers operations.
package recipe

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tessellae/loopforge/internal/ir"
	"github.com/tessellae/loopforge/internal/transform"
)

// Op is one recipe step.
type Op struct {
	// Op names the operation: "split" or "tag".
	Op string `yaml:"op"`

	// Iname is the operation's target.
	Iname string `yaml:"iname"`

	// Factor is the split factor. Split only.
	Factor int `yaml:"factor,omitempty"`

	// Role is the tag role: "sequential", "unroll", "group.N", "local.N".
	// Tag only.
	Role string `yaml:"role,omitempty"`

	// Combine optionally names a reduction combination strategy ("sum"),
	// for parallel roles on reduction dimensions. Tag only.
	Combine string `yaml:"combine,omitempty"`
}

// Recipe is an ordered transformation sequence.
type Recipe struct {
	Ops []Op `yaml:"ops"`
}

// Parse decodes a YAML recipe. Unknown fields are rejected so a typoed
// key fails loudly instead of silently dropping an operation.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("parse recipe: %w", err)
	}
	for i, op := range r.Ops {
		if err := validateOp(op); err != nil {
			return nil, fmt.Errorf("recipe op %d: %w", i+1, err)
		}
	}
	return &r, nil
}

func validateOp(op Op) error {
	switch op.Op {
	case "split":
		if op.Iname == "" {
			return fmt.Errorf("split needs an iname")
		}
		if op.Role != "" || op.Combine != "" {
			return fmt.Errorf("split takes no role or combine")
		}
	case "tag":
		if op.Iname == "" {
			return fmt.Errorf("tag needs an iname")
		}
		if op.Role == "" {
			return fmt.Errorf("tag needs a role")
		}
		if op.Factor != 0 {
			return fmt.Errorf("tag takes no factor")
		}
		if _, err := ir.ParseTag(op.Role); err != nil {
			return err
		}
		if op.Combine != "" && op.Combine != string(ir.CombineSum) {
			return fmt.Errorf("unknown combine strategy %q", op.Combine)
		}
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
	return nil
}

// Apply drives the recipe against the engine, strictly sequentially. The
// first failing operation aborts the run; the engine's model is then still
// the state after the last successful operation.
func Apply(e *transform.Engine, r *Recipe) error {
	for i, op := range r.Ops {
		var err error
		switch op.Op {
		case "split":
			err = e.Split(op.Iname, op.Factor)
		case "tag":
			tag, terr := ir.ParseTag(op.Role)
			if terr != nil {
				err = terr
				break
			}
			combine := ir.CombineNone
			if op.Combine != "" {
				combine = ir.CombineStrategy(op.Combine)
			}
			err = e.TagWithCombiner(op.Iname, tag, combine)
		default:
			err = fmt.Errorf("unknown op %q", op.Op)
		}
		if err != nil {
			return fmt.Errorf("recipe op %d (%s %s): %w", i+1, op.Op, op.Iname, err)
		}
	}
	return nil
}
