package canon_test

import (
	"testing"

	"github.com/pactmesh/pact-core/pkg/canon"
	"github.com/stretchr/testify/require"
)

func TestJCS_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": map[string]any{"y": 1, "x": 2}}
	b := map[string]any{"c": map[string]any{"x": 2, "y": 1}, "a": 2, "b": 1}

	ja, err := canon.JCS(a)
	require.NoError(t, err)
	jb, err := canon.JCS(b)
	require.NoError(t, err)
	require.Equal(t, string(ja), string(jb))
}

func TestCanonicalHash_Stable(t *testing.T) {
	v := map[string]any{"intent_type": "weather.data", "scope": "NYC"}
	h1, err := canon.CanonicalHash(v)
	require.NoError(t, err)
	h2, err := canon.CanonicalHash(v)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)
}

func TestNormalizeScope_FoldsComposedForms(t *testing.T) {
	// "é" as a single composed rune vs "e" + combining acute must fold to
	// the same NFC form.
	composed := "café"
	decomposed := "café"
	require.Equal(t, canon.NormalizeScope(composed), canon.NormalizeScope(decomposed))
}
