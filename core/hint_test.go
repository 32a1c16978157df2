package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadHintFile(t *testing.T) {
	dir := t.TempDir()

	entries := []hintEntry{
		{key: []byte("a"), valueOffset: 10, valueLength: 3},
		{key: []byte("b"), valueOffset: 20, valueLength: 5},
	}

	require.NoError(t, writeHintFile(dir, "seg_1_merged.hint", entries))

	got, err := readHintFile(dir, "seg_1_merged.hint")
	require.NoError(t, err)

	// go-cmp over require.Equal here: entries carry a []byte field, and a
	// structural diff is more useful than a single assertion failure if the
	// round trip ever desyncs a single entry among many.
	if diff := cmp.Diff(entries, got, cmp.AllowUnexported(hintEntry{})); diff != "" {
		t.Errorf("hint round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestHintFileExists(t *testing.T) {
	dir := t.TempDir()
	require.False(t, hintFileExists(dir, "seg_1_merged.log"))

	require.NoError(t, writeHintFile(dir, hintName("seg_1_merged.log"), nil))
	require.True(t, hintFileExists(dir, "seg_1_merged.log"))
}

func TestRemoveHintFileMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, removeHintFile(dir, "seg_nonexistent_data.log"))
}

func TestWriteHintFileEmpty(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, writeHintFile(dir, "seg_1_merged.hint", nil))

	got, err := readHintFile(dir, "seg_1_merged.hint")
	require.NoError(t, err)
	require.Empty(t, got)
}
