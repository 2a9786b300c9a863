// Package ir defines the intermediate representation shared by every stage
// of the engine: integer index expressions, inames (named loop dimensions),
// execution-role tags, instructions with read/write footprints, and the
// kernel container that holds them.
//
// The IR is deliberately small and closed. Expressions are a sealed set of
// node types (Num, Var, Ref, Bin), tags are a sealed set of roles, and all
// serialization goes through MarshalCanonical so that two structurally equal
// kernels always produce byte-identical output.
//
// Values are int64 throughout. Floats are forbidden in the IR: every fixture
// and every equivalence check relies on exact arithmetic, and float
// accumulation order would make scheduled output observationally
// order-dependent.
package ir
