package codegen

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellae/loopforge/internal/ir"
	"github.com/tessellae/loopforge/internal/schedule"
	"github.com/tessellae/loopforge/internal/testutil"
	"github.com/tessellae/loopforge/internal/transform"
)

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestEmitSerialSpMV(t *testing.T) {
	tree, err := schedule.Lower(testutil.SpMVKernel(t))
	require.NoError(t, err)
	src, err := EmitISPC(tree)
	require.NoError(t, err)
	golden(t).Assert(t, "spmv_serial", []byte(src))
}

func TestEmitFlagshipSpMV(t *testing.T) {
	e := transform.New(testutil.SpMVKernel(t))
	require.NoError(t, e.Split("i", 128))
	require.NoError(t, e.Tag("i_outer", ir.GroupTag{Axis: 0}))
	require.NoError(t, e.Tag("i_inner", ir.LocalTag{Axis: 0}))
	require.NoError(t, e.Split("j", 4))
	require.NoError(t, e.Tag("j_inner", ir.UnrollTag{}))

	tree, err := schedule.Lower(e.Snapshot())
	require.NoError(t, err)
	src, err := EmitISPC(tree)
	require.NoError(t, err)
	golden(t).Assert(t, "spmv_flagship", []byte(src))
}

func TestEmitParallelReduction(t *testing.T) {
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
	e := transform.New(k)
	require.NoError(t, e.TagWithCombiner("r", ir.LocalTag{Axis: 0}, ir.CombineSum))

	tree, err := schedule.Lower(e.Snapshot())
	require.NoError(t, err)
	src, err := EmitISPC(tree)
	require.NoError(t, err)
	golden(t).Assert(t, "vecsum_parallel", []byte(src))
}

func TestEmitDeterministic(t *testing.T) {
	build := func() string {
		tree, err := schedule.Lower(testutil.SpMVKernel(t))
		require.NoError(t, err)
		src, err := EmitISPC(tree)
		require.NoError(t, err)
		return src
	}
	assert.Equal(t, build(), build())
}

func TestEmitRejectsSecondLocalAxis(t *testing.T) {
	tree := &schedule.Tree{
		Kernel: "bad",
		Roots: []schedule.Node{&schedule.ParIndex{
			Iname: "p", Tag: ir.LocalTag{Axis: 1}, Lo: ir.Num(0), Hi: ir.Num(8),
		}},
	}
	_, err := EmitISPC(tree)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "programIndex")
}

func TestEmitRejectsBuriedParallelAxis(t *testing.T) {
	tree := &schedule.Tree{
		Kernel: "bad",
		Roots: []schedule.Node{&schedule.SeqLoop{
			Iname: "i", Lo: ir.Num(0), Hi: ir.Num(4),
			Body: []schedule.Node{&schedule.ParIndex{
				Iname: "p", Tag: ir.GroupTag{Axis: 0}, Lo: ir.Num(0), Hi: ir.Num(8),
			}},
		}},
	}
	_, err := EmitISPC(tree)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested under sequential control")
}
