// Package transform applies structural rewrites to a kernel: splitting an
// iname into an outer/inner pair and tagging an iname with an execution
// role. Operations apply strictly sequentially, one at a time, to a kernel
// held by exclusive ownership; each either fully succeeds or leaves the
// kernel untouched.
//
// No operation changes the set of concrete index tuples executed or the
// multiset of array reads and writes they produce, only their naming and
// partitioning. Every operation re-validates the kernel and re-checks the
// dependency relation before committing.
package transform

import (
	"log/slog"

	"github.com/tessellae/loopforge/internal/analysis"
	"github.com/tessellae/loopforge/internal/ir"
)

// Engine owns a kernel and applies transformation operations to it.
//
// The engine is an exclusive-ownership mutable builder: construct it with
// the front end's kernel, apply operations in recipe order, then hand a
// frozen Snapshot to the scheduler. It is not safe for concurrent use, and
// operations must not be reordered - a tag naming a derived iname is only
// valid after the split that created it.
type Engine struct {
	k      *ir.Kernel
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes the engine's debug logging. The default discards
// nothing but logs with slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine owning k. The caller must not mutate k afterwards.
func New(k *ir.Kernel, opts ...Option) *Engine {
	e := &Engine{k: k, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Kernel returns the engine's current model. The returned kernel is live;
// callers that need a frozen view must use Snapshot.
func (e *Engine) Kernel() *ir.Kernel { return e.k }

// Snapshot returns a frozen deep copy of the current model, the form the
// scheduler consumes.
func (e *Engine) Snapshot() *ir.Kernel { return e.k.Clone() }

// commit validates the candidate kernel and swaps it in. Any failure is
// reported as UNSATISFIABLE_SCHEDULE (for dependency cycles and races) or
// INVALID_TRANSFORMATION (for structural damage) and leaves the current
// model unchanged.
func (e *Engine) commit(candidate *ir.Kernel, op, iname string) error {
	if err := candidate.Validate(); err != nil {
		return newError(ErrCodeInvalidTransformation, op, iname, "operation broke kernel invariants: %v", err)
	}

	edges := analysis.Dependencies(candidate)
	ids := make([]string, len(candidate.Insns))
	for i := range candidate.Insns {
		ids[i] = candidate.Insns[i].ID
	}
	if err := analysis.CheckAcyclic(ids, edges); err != nil {
		return newError(ErrCodeUnsatisfiableSchedule, op, iname, "%v", err)
	}

	if races := analysis.CheckRaces(candidate); len(races) > 0 {
		first := races[0]
		if first.Kind == analysis.RaceUnhandledReduction {
			return newError(ErrCodeInvalidReductionTag, op, first.Iname,
				"parallel role on reduction dimension of instruction %s without a combination strategy", first.InsnID)
		}
		return newError(ErrCodeUnsatisfiableSchedule, op, first.Iname, "%s", first)
	}

	e.k = candidate
	e.logger.Debug("transformation applied", "op", op, "iname", iname, "seq", len(candidate.History))
	return nil
}

func (e *Engine) record(k *ir.Kernel, rec ir.OpRecord) {
	rec.Seq = len(k.History) + 1
	k.History = append(k.History, rec)
}
