// Package exec evaluates kernels over concrete integer data: a serial
// reference evaluator and an evaluator for scheduled trees. It exists to
// make the equivalence contract checkable, not to be fast.
package exec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EventKind distinguishes array reads from writes.
type EventKind string

const (
	EventRead  EventKind = "read"
	EventWrite EventKind = "write"
)

// Event is one array access performed while evaluating an instruction.
// Accesses made while computing loop bounds or guard conditions are not
// events: those differ freely across transformed forms of the same kernel,
// while the instruction footprint may not.
type Event struct {
	Kind  EventKind
	Array string
	Index []int64
	Value int64
}

func (e Event) String() string {
	parts := make([]string, len(e.Index))
	for i, v := range e.Index {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return fmt.Sprintf("%s %s[%s]=%d", e.Kind, e.Array, strings.Join(parts, ","), e.Value)
}

// Multiset counts events touching the named arrays. Two runs are
// footprint-equivalent on those arrays when their multisets are equal.
func Multiset(events []Event, arrays ...string) map[string]int {
	want := make(map[string]bool, len(arrays))
	for _, a := range arrays {
		want[a] = true
	}
	out := make(map[string]int)
	for _, e := range events {
		if want[e.Array] {
			out[e.String()]++
		}
	}
	return out
}

// array is one named storage. Caller-provided arrays are dense and
// fixed-size; everything else (temporaries, privatized partials, outputs
// left unset) is a sparse zero-default store of any rank.
type array struct {
	dense  []int64
	fixed  bool
	sparse map[string]int64
	rank   int
	max    int64
}

// Env holds parameter values, array storage, and live loop-index bindings.
// It implements ir.Binding.
type Env struct {
	params map[string]int64
	vars   map[string]int64
	arrays map[string]*array

	tracing bool
	events  []Event
}

// NewEnv creates an environment with the given scalar parameters.
func NewEnv(params map[string]int64) *Env {
	e := &Env{
		params: make(map[string]int64, len(params)),
		vars:   make(map[string]int64),
		arrays: make(map[string]*array),
	}
	for k, v := range params {
		e.params[k] = v
	}
	return e
}

// SetArray installs fixed-size input data. Reads past its end fail inside
// instructions and yield zero inside bound evaluation.
func (e *Env) SetArray(name string, data []int64) {
	e.arrays[name] = &array{dense: append([]int64(nil), data...), fixed: true}
}

// Array returns a dense copy of a rank-1 array. Sparse arrays materialize
// up to their highest written index; unwritten slots are zero.
func (e *Env) Array(name string) []int64 {
	a, ok := e.arrays[name]
	if !ok {
		return nil
	}
	if a.fixed {
		return append([]int64(nil), a.dense...)
	}
	if a.rank != 1 {
		return nil
	}
	out := make([]int64, a.max+1)
	for key, v := range a.sparse {
		i, _ := strconv.ParseInt(key, 10, 64)
		out[i] = v
	}
	return out
}

// Events returns the instruction-footprint trace in execution order.
func (e *Env) Events() []Event { return e.events }

// Value implements ir.Binding: loop indices shadow nothing because kernel
// validation keeps iname, parameter, and array names disjoint.
func (e *Env) Value(name string) (int64, bool) {
	if v, ok := e.vars[name]; ok {
		return v, true
	}
	v, ok := e.params[name]
	return v, ok
}

// Load implements ir.Binding.
//
// Outside instruction evaluation (bounds, guards) a read past the end of a
// fixed array yields zero: split leaves out-of-domain index tuples whose
// bounds are evaluated but whose instructions are guarded off. Inside an
// instruction the same read is an error, because guards are supposed to
// have excluded it.
func (e *Env) Load(name string, idx []int64) (int64, error) {
	a, ok := e.arrays[name]
	if !ok {
		if e.tracing {
			return 0, fmt.Errorf("read of undeclared array %q", name)
		}
		return 0, nil
	}
	var v int64
	if a.fixed {
		if len(idx) != 1 {
			return 0, fmt.Errorf("array %q: rank-%d access of rank-1 data", name, len(idx))
		}
		if idx[0] < 0 || idx[0] >= int64(len(a.dense)) {
			if e.tracing {
				return 0, fmt.Errorf("array %q: index %d out of range [0, %d)", name, idx[0], len(a.dense))
			}
			return 0, nil
		}
		v = a.dense[idx[0]]
	} else {
		if a.rank != 0 && a.rank != len(idx) {
			return 0, fmt.Errorf("array %q: rank-%d access of rank-%d data", name, len(idx), a.rank)
		}
		v = a.sparse[indexKey(idx)]
	}
	if e.tracing {
		e.events = append(e.events, Event{Kind: EventRead, Array: name, Index: append([]int64(nil), idx...), Value: v})
	}
	return v, nil
}

// store writes one element, growing sparse storage as needed.
func (e *Env) store(name string, idx []int64, v int64) error {
	a, ok := e.arrays[name]
	if !ok {
		a = &array{sparse: make(map[string]int64), rank: len(idx)}
		e.arrays[name] = a
	}
	if a.fixed {
		if len(idx) != 1 {
			return fmt.Errorf("array %q: rank-%d store to rank-1 data", name, len(idx))
		}
		if idx[0] < 0 || idx[0] >= int64(len(a.dense)) {
			return fmt.Errorf("array %q: store index %d out of range [0, %d)", name, idx[0], len(a.dense))
		}
		a.dense[idx[0]] = v
	} else {
		if a.rank != len(idx) {
			return fmt.Errorf("array %q: rank-%d store to rank-%d data", name, len(idx), a.rank)
		}
		a.sparse[indexKey(idx)] = v
		if len(idx) == 1 && idx[0] > a.max {
			a.max = idx[0]
		}
	}
	if e.tracing {
		e.events = append(e.events, Event{Kind: EventWrite, Array: name, Index: append([]int64(nil), idx...), Value: v})
	}
	return nil
}

func indexKey(idx []int64) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}

// sortedKeys is used by tests that diff multisets deterministically.
func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
