package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellae/loopforge/internal/ir"
	"github.com/tessellae/loopforge/internal/testutil"
	"github.com/tessellae/loopforge/internal/transform"
)

func TestLowerSerialSpMV(t *testing.T) {
	tree, err := Lower(testutil.SpMVKernel(t))
	require.NoError(t, err)

	want := `kernel spmv(m)
arg y out
arg x in
arg values in
arg colindices in
arg rowstarts in
arg rowsum temp
for i in [0, m):
  accum.init: rowsum[i] = 0
  for j in [0, (rowstarts[(i + 1)] - rowstarts[i])):
    accum: rowsum[i] = (rowsum[i] + (x[colindices[(rowstarts[i] + j)]] * values[(rowstarts[i] + j)]))
  store: y[i] = rowsum[i]
`
	assert.Equal(t, want, tree.Render())
}

func flagshipKernel(t *testing.T) *ir.Kernel {
	t.Helper()
	e := transform.New(testutil.SpMVKernel(t))
	require.NoError(t, e.Split("i", 128))
	require.NoError(t, e.Tag("i_outer", ir.GroupTag{Axis: 0}))
	require.NoError(t, e.Tag("i_inner", ir.LocalTag{Axis: 0}))
	require.NoError(t, e.Split("j", 4))
	require.NoError(t, e.Tag("j_inner", ir.UnrollTag{}))
	return e.Snapshot()
}

func TestLowerFlagshipStructure(t *testing.T) {
	tree, err := Lower(flagshipKernel(t))
	require.NoError(t, err)

	require.Len(t, tree.Roots, 1)
	outer, ok := tree.Roots[0].(*ParIndex)
	require.True(t, ok, "root must be the group axis")
	assert.Equal(t, "i_outer", outer.Iname)
	assert.Equal(t, ir.GroupTag{Axis: 0}, outer.Tag)

	require.Len(t, outer.Body, 1)
	inner, ok := outer.Body[0].(*ParIndex)
	require.True(t, ok, "group axis must wrap the local axis")
	assert.Equal(t, "i_inner", inner.Iname)
	assert.Equal(t, ir.LocalTag{Axis: 0}, inner.Tag)

	// Per work-item: guarded init, the j loop nest, guarded store.
	require.Len(t, inner.Body, 3)

	initGuard, ok := inner.Body[0].(*Guard)
	require.True(t, ok, "init must carry the partial-tile clamp")
	require.Len(t, initGuard.Conds, 1)
	assert.Equal(t, "((i_outer * 128) + i_inner) < m", initGuard.Conds[0].String())
	initLeaf, ok := initGuard.Body[0].(*Assign)
	require.True(t, ok)
	assert.Equal(t, "accum.init", initLeaf.ID)
	assert.Equal(t, "0", initLeaf.RHS.String())

	jOuter, ok := inner.Body[1].(*SeqLoop)
	require.True(t, ok)
	assert.Equal(t, "j_outer", jOuter.Iname)
	require.Len(t, jOuter.Body, 1)
	jInner, ok := jOuter.Body[0].(*Unrolled)
	require.True(t, ok, "unroll role must become replication, not a loop")
	assert.Equal(t, "j_inner", jInner.Iname)
	assert.Equal(t, int64(4), jInner.Count)

	accumGuard, ok := jInner.Body[0].(*Guard)
	require.True(t, ok)
	require.Len(t, accumGuard.Conds, 2, "row clamp plus reduction-tile clamp")
	accumLeaf, ok := accumGuard.Body[0].(*Assign)
	require.True(t, ok)
	assert.Equal(t, "accum", accumLeaf.ID)

	storeGuard, ok := inner.Body[2].(*Guard)
	require.True(t, ok)
	storeLeaf, ok := storeGuard.Body[0].(*Assign)
	require.True(t, ok)
	assert.Equal(t, "store", storeLeaf.ID)
	assert.Equal(t, "y[((i_outer * 128) + i_inner)]", storeLeaf.Write.String())
}

func vecsumKernel(t *testing.T) *ir.Kernel {
	t.Helper()
	k := &ir.Kernel{
		Name: "vecsum",
		Args: []ir.Arg{
			{Name: "data", Kind: ir.ArgIn},
			{Name: "total", Kind: ir.ArgOut},
		},
		Inames: []ir.Iname{ir.NewIname("r", ir.Num(0), ir.Num(16))},
		Insns: []ir.Instruction{{
			ID:     "acc",
			Within: []string{"r"},
			Write:  ir.Ref{Array: "total", Index: []ir.Expr{ir.Num(0)}},
			RHS:    testutil.MustExpr(t, "total[0] + data[r]"),
		}},
	}
	require.NoError(t, k.Validate())
	return k
}

func TestLowerParallelReduction(t *testing.T) {
	k := vecsumKernel(t)
	e := transform.New(k)
	require.NoError(t, e.TagWithCombiner("r", ir.LocalTag{Axis: 0}, ir.CombineSum))

	tree, err := Lower(e.Snapshot())
	require.NoError(t, err)

	want := `kernel vecsum()
arg data in
arg total out
partial total_part of total over r [16]
par local.0 r in [0, 16):
  acc.init: total_part[0, r] = 0
  acc: total_part[0, r] = (total_part[0, r] + data[r])
acc.zero: total[0] = 0
for r_fold in [0, 16):
  acc.combine: total[0] = (total[0] + total_part[0, r_fold])
`
	assert.Equal(t, want, tree.Render())

	require.Len(t, tree.Partials, 1)
	assert.Equal(t, "total_part", tree.Partials[0].Name)
	assert.Equal(t, "total", tree.Partials[0].Base)
	assert.Equal(t, []string{"r"}, tree.Partials[0].Axes)
}

func TestLowerDeterministic(t *testing.T) {
	a, err := Lower(flagshipKernel(t))
	require.NoError(t, err)
	b, err := Lower(flagshipKernel(t))
	require.NoError(t, err)
	assert.Equal(t, a.Render(), b.Render())
}

func TestLowerDoesNotMutateKernel(t *testing.T) {
	k := flagshipKernel(t)
	before, err := ir.MarshalCanonical(k.CanonicalMap())
	require.NoError(t, err)

	_, err = Lower(k)
	require.NoError(t, err)

	after, err := ir.MarshalCanonical(k.CanonicalMap())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestLowerErrors(t *testing.T) {
	t.Run("unhandled parallel reduction", func(t *testing.T) {
		k := testutil.SpMVKernel(t)
		k.Inames[1].Tag = ir.LocalTag{Axis: 0} // bypasses the engine's tag checks
		_, err := Lower(k)
		require.Error(t, err)
		assert.True(t, transform.IsInvalidReductionTag(err), "got %v", err)
	})

	t.Run("unprovable parallel write", func(t *testing.T) {
		k := &ir.Kernel{
			Name:   "collide",
			Params: []string{"n"},
			Args:   []ir.Arg{{Name: "out", Kind: ir.ArgOut}},
			Inames: []ir.Iname{{Name: "i", Lo: ir.Num(0), Hi: ir.Var("n"), Tag: ir.GroupTag{Axis: 0}, Parent: ir.NoParent}},
			Insns: []ir.Instruction{{
				ID:     "clobber",
				Within: []string{"i"},
				Write:  ir.Ref{Array: "out", Index: []ir.Expr{ir.Num(0)}},
				RHS:    ir.Var("i"),
			}},
		}
		require.NoError(t, k.Validate())
		_, err := Lower(k)
		require.Error(t, err)
		assert.True(t, transform.IsUnsatisfiableSchedule(err), "got %v", err)
	})

	t.Run("cyclic declared ordering", func(t *testing.T) {
		k := &ir.Kernel{
			Name:   "cycle",
			Inames: []ir.Iname{ir.NewIname("i", ir.Num(0), ir.Num(4))},
			Args:   []ir.Arg{{Name: "a", Kind: ir.ArgOut}, {Name: "b", Kind: ir.ArgOut}},
			Insns: []ir.Instruction{
				{ID: "p", Within: []string{"i"}, Write: ir.Ref{Array: "a", Index: []ir.Expr{ir.Var("i")}}, RHS: ir.Num(1), After: []string{"q"}},
				{ID: "q", Within: []string{"i"}, Write: ir.Ref{Array: "b", Index: []ir.Expr{ir.Var("i")}}, RHS: ir.Num(2), After: []string{"p"}},
			},
		}
		require.NoError(t, k.Validate())
		_, err := Lower(k)
		require.Error(t, err)
		assert.True(t, transform.IsUnsatisfiableSchedule(err), "got %v", err)
	})

	t.Run("non-constant unroll extent", func(t *testing.T) {
		k := testutil.SpMVKernel(t)
		k.Inames[1].Tag = ir.UnrollTag{} // data-dependent extent
		_, err := Lower(k)
		require.Error(t, err)
		assert.True(t, transform.IsInvalidTransformation(err), "got %v", err)
	})
}
