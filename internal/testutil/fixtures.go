// Package testutil provides deterministic fixtures shared by tests across
// the engine: the CSR sparse matrix-vector kernel, its reference data, and
// a fixed run-token generator for store tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tessellae/loopforge/internal/ir"
)

// MustExpr parses src or fails the test.
func MustExpr(t *testing.T, src string) ir.Expr {
	t.Helper()
	e, err := ir.ParseExpr(src)
	require.NoError(t, err)
	return e
}

// SpMVKernel builds the CSR sparse matrix-vector product kernel:
//
//	for i in [0, m):
//	  for j in [0, rowstarts[i+1] - rowstarts[i]):
//	    rowsum[i] = rowsum[i] + x[colindices[rowstarts[i]+j]] * values[rowstarts[i]+j]
//	  y[i] = rowsum[i]
//
// The accumulator is privatized per row (rowsum[i]), which is what makes
// j, and only j, a reduction dimension for the accumulate instruction.
func SpMVKernel(t *testing.T) *ir.Kernel {
	t.Helper()
	k := &ir.Kernel{
		Name:   "spmv",
		Params: []string{"m"},
		Args: []ir.Arg{
			{Name: "y", Kind: ir.ArgOut},
			{Name: "x", Kind: ir.ArgIn},
			{Name: "values", Kind: ir.ArgIn},
			{Name: "colindices", Kind: ir.ArgIn},
			{Name: "rowstarts", Kind: ir.ArgIn},
			{Name: "rowsum", Kind: ir.ArgTemp},
		},
		Inames: []ir.Iname{
			ir.NewIname("i", ir.Num(0), ir.Var("m")),
			ir.NewIname("j", ir.Num(0), MustExpr(t, "rowstarts[i + 1] - rowstarts[i]")),
		},
		Insns: []ir.Instruction{
			{
				ID:     "accum",
				Within: []string{"i", "j"},
				Write:  ir.Ref{Array: "rowsum", Index: []ir.Expr{ir.Var("i")}},
				RHS:    MustExpr(t, "rowsum[i] + x[colindices[rowstarts[i] + j]] * values[rowstarts[i] + j]"),
			},
			{
				ID:     "store",
				Within: []string{"i"},
				Write:  ir.Ref{Array: "y", Index: []ir.Expr{ir.Var("i")}},
				RHS:    MustExpr(t, "rowsum[i]"),
				After:  []string{"accum"},
			},
		},
	}
	require.NoError(t, k.Validate())
	return k
}

// CSRFixture is the 4-row sparse matrix from the flagship scenario. Row 2
// is empty, which exercises the zero-trip reduction path.
type CSRFixture struct {
	M          int64
	RowStarts  []int64
	ColIndices []int64
	Values     []int64
	X          []int64
}

// SpMVData returns the fixed CSR fixture: m=4 rows, nvals=7.
func SpMVData() CSRFixture {
	return CSRFixture{
		M:          4,
		RowStarts:  []int64{0, 2, 2, 5, 7},
		ColIndices: []int64{0, 2, 1, 2, 3, 0, 3},
		Values:     []int64{5, 3, 2, 7, 1, 4, 6},
		X:          []int64{1, 2, 3, 4},
	}
}

// ExpectedY computes the reference result of the fixture by direct serial
// evaluation, independent of every engine component.
func (f CSRFixture) ExpectedY() []int64 {
	y := make([]int64, f.M)
	for i := int64(0); i < f.M; i++ {
		var sum int64
		for p := f.RowStarts[i]; p < f.RowStarts[i+1]; p++ {
			sum += f.X[f.ColIndices[p]] * f.Values[p]
		}
		y[i] = sum
	}
	return y
}

// Arrays returns the fixture's input arrays keyed by kernel argument name.
func (f CSRFixture) Arrays() map[string][]int64 {
	return map[string][]int64{
		"x":          append([]int64(nil), f.X...),
		"values":     append([]int64(nil), f.Values...),
		"colindices": append([]int64(nil), f.ColIndices...),
		"rowstarts":  append([]int64(nil), f.RowStarts...),
	}
}
