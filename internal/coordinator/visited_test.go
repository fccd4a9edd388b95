package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVisitedIndexInsertAndContains(t *testing.T) {
	t.Parallel()

	v := NewVisitedIndex()
	require.False(t, v.Contains("https://example.org/a"))

	v.Insert("https://example.org/a")
	require.True(t, v.Contains("https://example.org/a"))
	require.False(t, v.Contains("https://example.org/b"))

	// Re-inserting is a no-op.
	v.Insert("https://example.org/a")
	require.Equal(t, 1, v.Len())
}

func TestVisitedIndexExportRestore(t *testing.T) {
	t.Parallel()

	v := NewVisitedIndex()
	v.Insert("https://example.org/a")
	v.Insert("https://example.org/b")
	v.Insert("https://other.org/c")

	restored := RestoreVisitedIndex(v.Export())
	require.Equal(t, 3, restored.Len())
	require.True(t, restored.Contains("https://example.org/a"))
	require.True(t, restored.Contains("https://example.org/b"))
	require.True(t, restored.Contains("https://other.org/c"))
	require.False(t, restored.Contains("https://example.org/d"))
}
