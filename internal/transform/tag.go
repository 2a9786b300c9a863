package transform

import (
	"github.com/tessellae/loopforge/internal/analysis"
	"github.com/tessellae/loopforge/internal/ir"
)

// Tag assigns an execution role to an iname. See TagWithCombiner for the
// parallel-reduction case; Tag itself attaches no combination strategy, so
// a parallel role on a reduction dimension fails with
// INVALID_REDUCTION_TAG.
func (e *Engine) Tag(iname string, tag ir.Tag) error {
	return e.TagWithCombiner(iname, tag, ir.CombineNone)
}

// TagWithCombiner assigns an execution role together with a reduction
// combination strategy.
//
// Rules enforced before the model changes:
//   - the iname must exist and be active (UNKNOWN_INAME)
//   - the iname must not already carry a different concrete role
//     (CONFLICTING_TAG); re-applying the identical role is a no-op success
//   - no other iname may occupy the same hardware axis (CONFLICTING_TAG)
//   - unroll requires a constant extent (INVALID_TRANSFORMATION)
//   - a parallel axis extent must be computable at launch, before any
//     iname has a value: bounds referencing inames or array data are
//     rejected (INVALID_TRANSFORMATION)
//   - a parallel role on a reduction dimension requires a combination
//     strategy (INVALID_REDUCTION_TAG)
//
// Tagging records the role and re-validates; it never changes bounds.
func (e *Engine) TagWithCombiner(iname string, tag ir.Tag, combine ir.CombineStrategy) error {
	const op = "tag"

	idx, ok := e.k.Active(iname)
	if !ok {
		return newError(ErrCodeUnknownIname, op, iname, "no such iname in the current model")
	}
	cur := e.k.Inames[idx]

	if combine != ir.CombineNone && combine != ir.CombineSum {
		return newError(ErrCodeInvalidTransformation, op, iname, "unknown combination strategy %q", combine)
	}

	if _, isSeq := cur.Tag.(ir.SequentialTag); !isSeq {
		if !ir.SameRole(cur.Tag, tag) {
			return newError(ErrCodeConflictingTag, op, iname,
				"iname already carries role %s, cannot retag as %s", cur.Tag, tag)
		}
	}

	if key := ir.AxisKey(tag); key != "" {
		for i := range e.k.Inames {
			other := &e.k.Inames[i]
			if i != idx && !other.Retired && ir.AxisKey(other.Tag) == key {
				return newError(ErrCodeConflictingTag, op, iname,
					"hardware axis %s is already occupied by iname %q", key, other.Name)
			}
		}
	}

	extent := ir.Sub(cur.Hi, cur.Lo)
	if _, isUnroll := tag.(ir.UnrollTag); isUnroll {
		if _, constant := ir.ConstValue(extent); !constant {
			return newError(ErrCodeInvalidTransformation, op, iname,
				"unroll requires a constant extent, got %s", extent)
		}
	}

	if ir.IsParallel(tag) {
		if err := e.checkLaunchableExtent(op, iname, cur.Lo, cur.Hi); err != nil {
			return err
		}
		if combine == ir.CombineNone {
			for i := range e.k.Insns {
				in := &e.k.Insns[i]
				for _, rd := range analysis.ReductionDims(in) {
					if rd == iname {
						return newError(ErrCodeInvalidReductionTag, op, iname,
							"iname is a reduction dimension for instruction %s; a parallel role requires a combination strategy", in.ID)
					}
				}
			}
		}
	}

	k := e.k.Clone()
	k.Inames[idx].Tag = tag
	if ir.IsParallel(tag) {
		k.Inames[idx].Combine = combine
	}
	e.record(k, ir.OpRecord{Op: op, Iname: iname, Tag: tag.String(), Combine: combine})
	return e.commit(k, op, iname)
}

// checkLaunchableExtent rejects parallel tags on inames whose bounds
// depend on other inames or on array contents.
func (e *Engine) checkLaunchableExtent(op, iname string, lo, hi ir.Expr) error {
	for _, bound := range []ir.Expr{lo, hi} {
		for _, v := range ir.Vars(bound) {
			if _, isIname := e.k.Active(v); isIname {
				return newError(ErrCodeInvalidTransformation, op, iname,
					"parallel axis bound %s depends on iname %q; extents must be known at launch", bound, v)
			}
		}
		var refs []ir.Ref
		ir.CollectRefs(bound, &refs)
		if len(refs) > 0 {
			return newError(ErrCodeInvalidTransformation, op, iname,
				"parallel axis bound %s depends on array %q; extents must be known at launch", bound, refs[0].Array)
		}
	}
	return nil
}
