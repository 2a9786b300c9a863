package ir

// NoParent marks an iname that was present in the original kernel rather
// than derived by a split.
const NoParent = -1

// CombineStrategy names how partial results of a parallel reduction are
// combined. The engine ships exactly one strategy; tagging a reduction
// dimension with a parallel role and no strategy is rejected.
type CombineStrategy string

const (
	// CombineNone means no strategy was supplied.
	CombineNone CombineStrategy = ""
	// CombineSum combines partials by addition in ascending axis order,
	// which keeps the result bit-reproducible run to run.
	CombineSum CombineStrategy = "sum"
)

// Iname is one named loop dimension in the kernel's iname arena.
//
// The arena is append-only: split retires the original record and appends
// the outer/inner pair, so the arena index of an iname is stable for the
// kernel's lifetime and Parent links form a derivation tree without
// back-pointers.
type Iname struct {
	// Name is unique across the arena, retired inames included.
	Name string

	// Lo and Hi bound the dimension as the half-open interval [Lo, Hi).
	// Bounds may reference scalar parameters, earlier inames, and array
	// elements (data-dependent extents).
	Lo, Hi Expr

	// Tag is the execution role. Defaults to SequentialTag.
	Tag Tag

	// Combine is the reduction combination strategy attached alongside a
	// parallel tag, or CombineNone.
	Combine CombineStrategy

	// Parent is the arena index of the iname this one was derived from by
	// split, or NoParent.
	Parent int

	// Retired is set when a split replaces this iname. Retired inames
	// stay in the arena so Parent links and the transformation record
	// remain resolvable, but no operation may target them.
	Retired bool
}

// NewIname returns an active sequential iname with the given bounds.
func NewIname(name string, lo, hi Expr) Iname {
	return Iname{Name: name, Lo: lo, Hi: hi, Tag: SequentialTag{}, Parent: NoParent}
}
