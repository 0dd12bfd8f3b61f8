package reference

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromIdentifierLegacyFormat(t *testing.T) {
	t.Parallel()

	ref, ok := FromIdentifier("formation-24-SKI-0042")
	require.True(t, ok)
	require.Equal(t, "24-SKI-0042", ref)
}

func TestFromIdentifierModernFormat(t *testing.T) {
	t.Parallel()

	ref, ok := FromIdentifier("slug-2024ALPI0123")
	require.True(t, ok)
	require.Equal(t, "2024ALPI0123", ref)
}

func TestFromIdentifierAnchorsAtEnd(t *testing.T) {
	t.Parallel()

	// A reference followed by trailing text must not match.
	_, ok := FromIdentifier("24-SKI-0042-obsolete")
	require.False(t, ok)

	_, ok = FromIdentifier("2024ALPI0123/details")
	require.False(t, ok)
}

func TestFromIdentifierNoMatch(t *testing.T) {
	t.Parallel()

	_, ok := FromIdentifier("not-a-reference")
	require.False(t, ok)

	_, ok = FromIdentifier("")
	require.False(t, ok)
}

func TestValid(t *testing.T) {
	t.Parallel()

	require.True(t, Valid("24-SKI-0042"))
	require.True(t, Valid("2024ALPI0123"))
	require.False(t, Valid("x24-SKI-0042"))
	require.False(t, Valid("24-ski-0042"))
}
