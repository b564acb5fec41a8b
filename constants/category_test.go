package constants

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	cat, known := Canonicalize("keywords")
	require.True(t, known)
	require.Equal(t, Keywords, cat)

	cat, known = Canonicalize("  FORMAT ")
	require.True(t, known)
	require.Equal(t, Format, cat)

	cat, known = Canonicalize("something else")
	require.False(t, known)
	require.Equal(t, General, cat)
}

func TestAsStringSlice(t *testing.T) {
	got := AsStringSlice()
	require.Contains(t, got, "Skills")
	require.Contains(t, got, "General")
	require.Len(t, got, 7)
}
