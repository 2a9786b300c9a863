// Package analysis derives facts from a kernel's instruction footprints:
// dependency edges between instructions, reduction dimensions, acyclicity
// of the dependency relation, and race-freedom of parallel-tagged inames.
//
// Every check in this package errs on the side of reporting a conflict.
// When two footprints cannot be proven disjoint for all iname
// instantiations, they are treated as conflicting; when a write cannot be
// proven distinct across a parallel axis, it is treated as a race.
// Transformations are refused on unproven facts, never admitted on them.
package analysis
