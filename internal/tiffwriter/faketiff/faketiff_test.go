package faketiff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nikgalvaz/camacq/internal/tiffwriter"
)

func TestFaketiffRecordsPagesInOrder(t *testing.T) {
	w := New(tiffwriter.Config{Path: "out.tiff"})
	require.NoError(t, w.WritePage(0, "first"))
	require.NoError(t, w.WritePage(1, "second"))
	require.NoError(t, w.Close())

	pages := w.Pages()
	require.Len(t, pages, 2)
	require.Equal(t, "first", pages[0].Description)
	require.True(t, w.Closed())
}

func TestFaketiffRejectsWriteAfterClose(t *testing.T) {
	w := New(tiffwriter.Config{})
	require.NoError(t, w.Close())
	require.Error(t, w.WritePage(0, "x"))
}

func TestFaketiffInjectedFailure(t *testing.T) {
	w := New(tiffwriter.Config{})
	w.FailOn = 2
	require.NoError(t, w.WritePage(0, "a"))
	require.NoError(t, w.WritePage(1, "b"))
	require.Error(t, w.WritePage(2, "c"))
}
