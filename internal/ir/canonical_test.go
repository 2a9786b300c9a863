package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalDeterminism(t *testing.T) {
	v := map[string]any{
		"b":      int64(2),
		"a":      "x",
		"nested": map[string]any{"z": true, "y": []any{int64(1), "two"}},
	}
	first, err := MarshalCanonical(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, `{"a":"x","b":2,"nested":{"y":[1,"two"],"z":true}}`, string(first))
}

func TestMarshalCanonicalRejectsFloatsAndNull(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"f": 1.5})
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"n": nil})
	assert.Error(t, err)
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	b, err := MarshalCanonical("a < b && c > d")
	require.NoError(t, err)
	assert.Equal(t, `"a < b && c > d"`, string(b))
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "é" as combining sequence (e + U+0301) normalizes to precomposed U+00E9.
	decomposed := "é"
	precomposed := "é"
	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(precomposed)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKernelCanonicalMapStable(t *testing.T) {
	k := spmvKernel(t)
	k.History = append(k.History, OpRecord{Seq: 1, Op: "split", Iname: "i", Factor: 128})

	first, err := MarshalCanonical(k.CanonicalMap())
	require.NoError(t, err)
	again, err := MarshalCanonical(k.Clone().CanonicalMap())
	require.NoError(t, err)
	assert.Equal(t, first, again)

	assert.Contains(t, string(first), `"name":"spmv"`)
	assert.Contains(t, string(first), `"op":"split"`)
}
