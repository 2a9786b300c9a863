package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag is a sealed interface over execution-role tags. Only SequentialTag,
// UnrollTag, GroupTag, and LocalTag implement it.
//
// Every iname starts out sequential. Group and local tags map an iname onto
// a numbered hardware axis; two inames may not share an axis. The scheduler
// switches over the concrete tag type when lowering - roles are a closed
// set, not an extension point.
type Tag interface {
	tag() // Sealed - only the role types implement it.

	// String renders the tag in the recipe spelling: "sequential",
	// "unroll", "group.N", "local.N".
	String() string
}

// SequentialTag is the default role: the iname lowers to an explicit loop.
type SequentialTag struct{}

func (SequentialTag) tag() {}

func (SequentialTag) String() string { return "sequential" }

// UnrollTag replicates the loop body once per iname value. Requires a
// constant extent.
type UnrollTag struct{}

func (UnrollTag) tag() {}

func (UnrollTag) String() string { return "unroll" }

// GroupTag maps the iname onto parallel-group axis Axis. Iteration is not
// serialized: all values execute concurrently on the target.
type GroupTag struct {
	Axis int
}

func (GroupTag) tag() {}

func (t GroupTag) String() string { return fmt.Sprintf("group.%d", t.Axis) }

// LocalTag maps the iname onto parallel-local axis Axis.
type LocalTag struct {
	Axis int
}

func (LocalTag) tag() {}

func (t LocalTag) String() string { return fmt.Sprintf("local.%d", t.Axis) }

// IsParallel reports whether t denotes concurrent execution.
func IsParallel(t Tag) bool {
	switch t.(type) {
	case GroupTag, LocalTag:
		return true
	}
	return false
}

// AxisKey returns the resource-axis identity of a parallel tag, or "" for
// sequential and unroll. Group and local axes are distinct resource pools.
func AxisKey(t Tag) string {
	switch v := t.(type) {
	case GroupTag:
		return fmt.Sprintf("group.%d", v.Axis)
	case LocalTag:
		return fmt.Sprintf("local.%d", v.Axis)
	}
	return ""
}

// SameRole reports whether a and b are the identical role, axis included.
func SameRole(a, b Tag) bool {
	return a.String() == b.String()
}

// ParseTag parses the recipe spelling of a tag. Accepted forms:
// "sequential", "unroll", "group.N", "local.N" with N >= 0.
func ParseTag(s string) (Tag, error) {
	switch s {
	case "sequential":
		return SequentialTag{}, nil
	case "unroll":
		return UnrollTag{}, nil
	}
	kind, num, ok := strings.Cut(s, ".")
	if ok {
		axis, err := strconv.Atoi(num)
		if err == nil && axis >= 0 {
			switch kind {
			case "group":
				return GroupTag{Axis: axis}, nil
			case "local":
				return LocalTag{Axis: axis}, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown tag %q (want sequential, unroll, group.N, or local.N)", s)
}
