package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellae/loopforge/internal/ir"
	"github.com/tessellae/loopforge/internal/testutil"
	"github.com/tessellae/loopforge/internal/transform"
)

const flagshipYAML = `
ops:
  - op: split
    iname: i
    factor: 128
  - op: tag
    iname: i_outer
    role: group.0
  - op: tag
    iname: i_inner
    role: local.0
  - op: split
    iname: j
    factor: 4
  - op: tag
    iname: j_inner
    role: unroll
`

func TestParseAndApplyFlagship(t *testing.T) {
	r, err := Parse([]byte(flagshipYAML))
	require.NoError(t, err)
	require.Len(t, r.Ops, 5)
	assert.Equal(t, Op{Op: "split", Iname: "i", Factor: 128}, r.Ops[0])
	assert.Equal(t, Op{Op: "tag", Iname: "i_outer", Role: "group.0"}, r.Ops[1])

	e := transform.New(testutil.SpMVKernel(t))
	require.NoError(t, Apply(e, r))

	k := e.Kernel()
	assert.Len(t, k.History, 5)
	idx, ok := k.Active("j_inner")
	require.True(t, ok)
	assert.Equal(t, ir.UnrollTag{}, k.Inames[idx].Tag)
}

func TestParseRejectsMalformedRecipes(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown op", "ops:\n  - op: fuse\n    iname: i\n"},
		{"unknown field", "ops:\n  - op: split\n    iname: i\n    factr: 4\n"},
		{"bad role", "ops:\n  - op: tag\n    iname: i\n    role: warp.0\n"},
		{"tag with factor", "ops:\n  - op: tag\n    iname: i\n    role: unroll\n    factor: 2\n"},
		{"split with role", "ops:\n  - op: split\n    iname: i\n    factor: 2\n    role: unroll\n"},
		{"bad combine", "ops:\n  - op: tag\n    iname: i\n    role: local.0\n    combine: median\n"},
		{"missing iname", "ops:\n  - op: split\n    factor: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	r, err := Parse([]byte(`
ops:
  - op: split
    iname: i
    factor: 128
  - op: tag
    iname: nonexistent
    role: group.0
  - op: split
    iname: j
    factor: 4
`))
	require.NoError(t, err)

	e := transform.New(testutil.SpMVKernel(t))
	err = Apply(e, r)
	require.Error(t, err)
	assert.True(t, transform.IsUnknownIname(err), "got %v", err)
	assert.Contains(t, err.Error(), "op 2")

	// The model keeps the first operation and nothing after the failure.
	assert.Len(t, e.Kernel().History, 1)
	_, jSplit := e.Kernel().Active("j_outer")
	assert.False(t, jSplit, "operations after the failure must not run")
}

func TestApplyParallelReductionWithCombine(t *testing.T) {
	r, err := Parse([]byte("ops:\n  - op: tag\n    iname: r\n    role: local.0\n    combine: sum\n"))
	require.NoError(t, err)

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
	require.NoError(t, Apply(e, r))
	idx, _ := e.Kernel().Active("r")
	assert.Equal(t, ir.CombineSum, e.Kernel().Inames[idx].Combine)
}
