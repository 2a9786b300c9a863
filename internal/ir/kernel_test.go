package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spmvKernel builds the CSR sparse matrix-vector product fixture:
//
//	for i in [0, m):
//	  for j in [0, rowstarts[i+1] - rowstarts[i]):
//	    rowsum[i] = rowsum[i] + x[colindices[rowstarts[i]+j]] * values[rowstarts[i]+j]
//	  y[i] = rowsum[i]
//
// The accumulator is privatized per row (rowsum[i]), which is what makes j,
// and only j, a reduction dimension for the accumulate instruction.
func spmvKernel(t *testing.T) *Kernel {
	t.Helper()
	mustExpr := func(src string) Expr {
		e, err := ParseExpr(src)
		require.NoError(t, err)
		return e
	}
	k := &Kernel{
		Name:   "spmv",
		Params: []string{"m"},
		Args: []Arg{
			{Name: "y", Kind: ArgOut},
			{Name: "x", Kind: ArgIn},
			{Name: "values", Kind: ArgIn},
			{Name: "colindices", Kind: ArgIn},
			{Name: "rowstarts", Kind: ArgIn},
			{Name: "rowsum", Kind: ArgTemp},
		},
		Inames: []Iname{
			NewIname("i", Num(0), mustExpr("m")),
			NewIname("j", Num(0), mustExpr("rowstarts[i + 1] - rowstarts[i]")),
		},
		Insns: []Instruction{
			{
				ID:     "accum",
				Within: []string{"i", "j"},
				Write:  Ref{Array: "rowsum", Index: []Expr{Var("i")}},
				RHS:    mustExpr("rowsum[i] + x[colindices[rowstarts[i] + j]] * values[rowstarts[i] + j]"),
			},
			{
				ID:     "store",
				Within: []string{"i"},
				Write:  Ref{Array: "y", Index: []Expr{Var("i")}},
				RHS:    mustExpr("rowsum[i]"),
				After:  []string{"accum"},
			},
		},
	}
	require.NoError(t, k.Validate())
	return k
}

func TestKernelValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Kernel)
		wantErr string
	}{
		{
			name:   "valid kernel",
			mutate: func(k *Kernel) {},
		},
		{
			name: "duplicate instruction id",
			mutate: func(k *Kernel) {
				k.Insns[1].ID = "accum"
			},
			wantErr: "duplicate instruction id",
		},
		{
			name: "unknown enclosing iname",
			mutate: func(k *Kernel) {
				k.Insns[0].Within = []string{"i", "nope"}
			},
			wantErr: "unknown or retired iname",
		},
		{
			name: "retired enclosing iname",
			mutate: func(k *Kernel) {
				k.Inames[1].Retired = true
			},
			wantErr: "unknown or retired iname",
		},
		{
			name: "undeclared written array",
			mutate: func(k *Kernel) {
				k.Insns[1].Write.Array = "z"
			},
			wantErr: "writes undeclared array",
		},
		{
			name: "undeclared read array",
			mutate: func(k *Kernel) {
				k.Insns[1].RHS = Ref{Array: "ghost", Index: []Expr{Var("i")}}
			},
			wantErr: "reads undeclared array",
		},
		{
			name: "cyclic bound dependency",
			mutate: func(k *Kernel) {
				// j's bound already references i; pointing i's bound at j
				// closes the loop.
				k.Inames[0].Hi = Var("j")
			},
			wantErr: "cyclic bound dependency",
		},
		{
			name: "bound references unknown name",
			mutate: func(k *Kernel) {
				k.Inames[0].Hi = Var("q")
			},
			wantErr: "references unknown name",
		},
		{
			name: "duplicate name across params and inames",
			mutate: func(k *Kernel) {
				k.Inames[0].Name = "m"
			},
			wantErr: "duplicate name",
		},
		{
			name: "dependency on unknown instruction",
			mutate: func(k *Kernel) {
				k.Insns[1].After = []string{"missing"}
			},
			wantErr: "unknown instruction",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := spmvKernel(t)
			tt.mutate(k)
			err := k.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestKernelCloneIsDeep(t *testing.T) {
	k := spmvKernel(t)
	c := k.Clone()

	c.Inames[0].Name = "row"
	c.Insns[0].Within[0] = "row"
	c.Insns[0].After = append(c.Insns[0].After, "store")
	c.History = append(c.History, OpRecord{Seq: 1, Op: "split", Iname: "i", Factor: 4})

	assert.Equal(t, "i", k.Inames[0].Name)
	assert.Equal(t, "i", k.Insns[0].Within[0])
	assert.Empty(t, k.Insns[0].After)
	assert.Empty(t, k.History)
}

func TestKernelLookups(t *testing.T) {
	k := spmvKernel(t)

	idx, ok := k.Active("j")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = k.Active("q")
	assert.False(t, ok)

	k.Inames[1].Retired = true
	_, ok = k.Active("j")
	assert.False(t, ok)
	_, ok = k.IndexOf("j")
	assert.True(t, ok, "retired inames stay resolvable by IndexOf")

	assert.True(t, k.NameTaken("rowstarts"))
	assert.True(t, k.NameTaken("m"))
	assert.False(t, k.NameTaken("i_outer"))

	in, ok := k.Insn("store")
	require.True(t, ok)
	assert.Equal(t, "y", in.Write.Array)
}

func TestRootOfFollowsDerivationChain(t *testing.T) {
	k := spmvKernel(t)
	// Simulate two levels of splitting i by hand.
	k.Inames[0].Retired = true
	k.Inames = append(k.Inames,
		Iname{Name: "i_outer", Lo: Num(0), Hi: Num(2), Tag: SequentialTag{}, Parent: 0},
		Iname{Name: "i_inner", Lo: Num(0), Hi: Num(4), Tag: SequentialTag{}, Parent: 0},
	)
	k.Inames[2].Retired = true
	k.Inames = append(k.Inames,
		Iname{Name: "i_outer_outer", Lo: Num(0), Hi: Num(1), Tag: SequentialTag{}, Parent: 2},
	)

	idx, ok := k.IndexOf("i_outer_outer")
	require.True(t, ok)
	assert.Equal(t, 0, k.RootOf(idx))
	assert.Equal(t, "i", k.Inames[k.RootOf(idx)].Name)
}

func TestInstructionReadsIncludesGuardsAndWriteIndex(t *testing.T) {
	lhs, err := ParseExpr("perm[i]")
	require.NoError(t, err)
	in := Instruction{
		ID:     "scatter",
		Within: []string{"i"},
		Write:  Ref{Array: "out", Index: []Expr{lhs}},
		RHS:    Var("i"),
		Preds:  []Cond{{L: Ref{Array: "mask", Index: []Expr{Var("i")}}, Op: CmpNe, R: Num(0)}},
	}
	var arrays []string
	for _, r := range in.Reads() {
		arrays = append(arrays, r.Array)
	}
	assert.ElementsMatch(t, []string{"perm", "mask"}, arrays)
}
