package ir

import (
	"fmt"
)

// ArgKind classifies a kernel array argument.
type ArgKind string

const (
	// ArgIn is read-only input data.
	ArgIn ArgKind = "in"
	// ArgOut is output data the kernel stores into.
	ArgOut ArgKind = "out"
	// ArgTemp is scratch storage private to the kernel, such as a
	// privatized reduction accumulator. Temporaries are zero-initialized.
	ArgTemp ArgKind = "temp"
)

// Arg declares one array argument of the kernel.
type Arg struct {
	Name string
	Kind ArgKind
}

// OpRecord is one entry of the transformation record: an applied operation
// with its parameters, in application order.
type OpRecord struct {
	Seq     int             `json:"seq"`
	Op      string          `json:"op"`
	Iname   string          `json:"iname"`
	Factor  int             `json:"factor,omitempty"`
	Tag     string          `json:"tag,omitempty"`
	Combine CombineStrategy `json:"combine,omitempty"`
}

// Kernel is the engine's unit of work: an iname arena, array arguments,
// scalar parameters, and the instruction list, plus the record of applied
// transformations.
//
// A kernel is built once by the front end, mutated in place by the
// transformation engine one operation at a time, and consumed frozen by the
// scheduler. It is not safe for concurrent use.
type Kernel struct {
	Name string

	// Params are scalar parameters referenced by bounds and footprints
	// (problem sizes such as the row count).
	Params []string

	// Args declares the arrays the instructions touch.
	Args []Arg

	// Inames is the append-only iname arena. See Iname.
	Inames []Iname

	// Insns holds instructions in program order. Program order breaks
	// scheduling ties, so it is semantically load-bearing.
	Insns []Instruction

	// History is the transformation record, in application order.
	History []OpRecord
}

// IndexOf returns the arena index of the iname with the given name,
// retired or not.
func (k *Kernel) IndexOf(name string) (int, bool) {
	for i := range k.Inames {
		if k.Inames[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// Active returns the arena index of the non-retired iname with the given
// name.
func (k *Kernel) Active(name string) (int, bool) {
	i, ok := k.IndexOf(name)
	if !ok || k.Inames[i].Retired {
		return 0, false
	}
	return i, true
}

// RootOf follows parent links from the iname at arena index i to the
// original (underived) ancestor and returns its arena index.
func (k *Kernel) RootOf(i int) int {
	for k.Inames[i].Parent != NoParent {
		i = k.Inames[i].Parent
	}
	return i
}

// NameTaken reports whether any iname, parameter, or argument already uses
// name.
func (k *Kernel) NameTaken(name string) bool {
	if _, ok := k.IndexOf(name); ok {
		return true
	}
	for _, p := range k.Params {
		if p == name {
			return true
		}
	}
	for _, a := range k.Args {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Insn returns the instruction with the given ID.
func (k *Kernel) Insn(id string) (*Instruction, bool) {
	for i := range k.Insns {
		if k.Insns[i].ID == id {
			return &k.Insns[i], true
		}
	}
	return nil, false
}

// Arg returns the declaration for the named array.
func (k *Kernel) Arg(name string) (Arg, bool) {
	for _, a := range k.Args {
		if a.Name == name {
			return a, true
		}
	}
	return Arg{}, false
}

// Clone returns a deep copy. Expressions are immutable and shared between
// the copies; all mutable slices are duplicated. The transformation engine
// clones before every operation so a failed operation leaves the caller's
// kernel untouched.
func (k *Kernel) Clone() *Kernel {
	out := &Kernel{
		Name:    k.Name,
		Params:  append([]string(nil), k.Params...),
		Args:    append([]Arg(nil), k.Args...),
		Inames:  append([]Iname(nil), k.Inames...),
		History: append([]OpRecord(nil), k.History...),
	}
	out.Insns = make([]Instruction, len(k.Insns))
	for i := range k.Insns {
		out.Insns[i] = k.Insns[i].clone()
	}
	return out
}

// Validate checks the structural invariants the rest of the engine relies
// on: unique names, resolvable references, and bound expressions whose
// iname references form no cycle (every bound is evaluable given its
// ancestors and input data).
func (k *Kernel) Validate() error {
	seen := make(map[string]bool)
	for _, p := range k.Params {
		if seen[p] {
			return fmt.Errorf("kernel %s: duplicate name %q", k.Name, p)
		}
		seen[p] = true
	}
	for _, a := range k.Args {
		if seen[a.Name] {
			return fmt.Errorf("kernel %s: duplicate name %q", k.Name, a.Name)
		}
		seen[a.Name] = true
	}

	isIname := make(map[string]bool)
	for i := range k.Inames {
		in := &k.Inames[i]
		if seen[in.Name] {
			return fmt.Errorf("kernel %s: duplicate name %q", k.Name, in.Name)
		}
		seen[in.Name] = true
		isIname[in.Name] = true
		if in.Parent != NoParent && (in.Parent < 0 || in.Parent >= i) {
			return fmt.Errorf("kernel %s: iname %q has out-of-range parent index %d", k.Name, in.Name, in.Parent)
		}
	}
	for i := range k.Inames {
		in := &k.Inames[i]
		if in.Retired {
			// Retired bounds are historical; they may reference other
			// retired inames and are never evaluated again.
			continue
		}
		for _, bound := range []Expr{in.Lo, in.Hi} {
			for _, v := range Vars(bound) {
				if !k.isParam(v) && !isIname[v] {
					return fmt.Errorf("kernel %s: bound of iname %q references unknown name %q", k.Name, in.Name, v)
				}
			}
		}
	}
	if err := k.checkBoundCycles(); err != nil {
		return err
	}

	insnIDs := make(map[string]bool)
	for i := range k.Insns {
		in := &k.Insns[i]
		if insnIDs[in.ID] {
			return fmt.Errorf("kernel %s: duplicate instruction id %q", k.Name, in.ID)
		}
		insnIDs[in.ID] = true

		within := make(map[string]bool)
		for _, name := range in.Within {
			idx, ok := k.Active(name)
			if !ok {
				return fmt.Errorf("kernel %s: instruction %s nested in unknown or retired iname %q", k.Name, in.ID, name)
			}
			_ = idx
			if within[name] {
				return fmt.Errorf("kernel %s: instruction %s lists iname %q twice", k.Name, in.ID, name)
			}
			within[name] = true
		}

		if _, ok := k.Arg(in.Write.Array); !ok {
			return fmt.Errorf("kernel %s: instruction %s writes undeclared array %q", k.Name, in.ID, in.Write.Array)
		}
		for _, r := range in.Reads() {
			if _, ok := k.Arg(r.Array); !ok {
				return fmt.Errorf("kernel %s: instruction %s reads undeclared array %q", k.Name, in.ID, r.Array)
			}
		}
	}
	for i := range k.Insns {
		for _, dep := range k.Insns[i].After {
			if !insnIDs[dep] {
				return fmt.Errorf("kernel %s: instruction %s depends on unknown instruction %q", k.Name, k.Insns[i].ID, dep)
			}
		}
	}
	return nil
}

// checkBoundCycles rejects cyclic bound dependencies among active inames
// (an iname whose bound needs another iname whose bound needs the first).
func (k *Kernel) checkBoundCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int)

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("kernel %s: cyclic bound dependency through iname %q", k.Name, name)
		case done:
			return nil
		}
		state[name] = visiting
		idx, ok := k.Active(name)
		if ok {
			in := &k.Inames[idx]
			for _, bound := range []Expr{in.Lo, in.Hi} {
				for _, v := range Vars(bound) {
					if _, isIname := k.Active(v); isIname {
						if err := visit(v); err != nil {
							return err
						}
					}
				}
			}
		}
		state[name] = done
		return nil
	}

	for i := range k.Inames {
		if k.Inames[i].Retired {
			continue
		}
		if err := visit(k.Inames[i].Name); err != nil {
			return err
		}
	}
	return nil
}

func (k *Kernel) isParam(name string) bool {
	for _, p := range k.Params {
		if p == name {
			return true
		}
	}
	return false
}
