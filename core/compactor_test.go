package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeNoopWhenNoImmutableSegments(t *testing.T) {
	db, dir := setupTempDB(t)
	require.NoError(t, db.Put("a", "1"))

	require.NoError(t, db.Merge())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), "_merged.log"), "merge should not run with no immutable inputs")
	}
}

func TestMergeRetainsOnlyLiveVersions(t *testing.T) {
	db, dir := setupTempDB(t, WithMaxFileSize(1))

	require.NoError(t, db.Put("x", "old"))
	require.NoError(t, db.Put("y", "keep"))
	require.NoError(t, db.Put("x", "new")) // forces rotation, "old" becomes garbage

	require.NoError(t, db.Merge())

	x, err := db.Get("x")
	require.NoError(t, err)
	require.Equal(t, "new", x)

	y, err := db.Get("y")
	require.NoError(t, err)
	require.Equal(t, "keep", y)

	require.Equal(t, 1, countLivePuts(t, dir, "x"))
	require.Equal(t, 1, countLivePuts(t, dir, "y"))
}

func TestMergeDropsTombstones(t *testing.T) {
	db, dir := setupTempDB(t, WithMaxFileSize(1))

	require.NoError(t, db.Put("a", "1"))
	require.NoError(t, db.Delete("a")) // forces rotation of the segment holding the Put
	require.NoError(t, db.Put("b", "2"))

	require.NoError(t, db.Merge())

	_, err := db.Get("a")
	require.ErrorIs(t, err, ErrNotFound)

	// No Put for "a" should survive on disk anywhere.
	require.Zero(t, countLivePuts(t, dir, "a"))
}

func TestMergeRemovesInputSegmentsAndHints(t *testing.T) {
	db, dir := setupTempDB(t, WithMaxFileSize(1))

	require.NoError(t, db.Put("a", "1"))
	require.NoError(t, db.Put("b", "2"))

	before, err := os.ReadDir(dir)
	require.NoError(t, err)
	var inputs []string
	for _, e := range before {
		if strings.HasSuffix(e.Name(), "_data.log") {
			inputs = append(inputs, e.Name())
		}
	}
	require.NotEmpty(t, inputs)

	require.NoError(t, db.Merge())

	after, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, e := range after {
		names[e.Name()] = true
	}
	for _, in := range inputs {
		require.False(t, names[in], "input segment %s should be removed after merge", in)
		require.False(t, names[hintName(in)], "input hint %s should be removed after merge", hintName(in))
	}
}

func TestMergeAbortsOnHintWriteFailure(t *testing.T) {
	db, dir := setupTempDB(t, WithMaxFileSize(1))
	require.NoError(t, db.Put("a", "1"))
	require.NoError(t, db.Put("b", "2"))

	boom := errors.New("simulated hint publish failure")
	db.hintWriter = func(dir, hintFilename string, entries []hintEntry) error {
		return boom
	}

	err := db.Merge()
	require.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), "_merged.log"),
			"a failed hint publish must not leave a merged segment behind")
	}

	// The store is unharmed: original data is still readable.
	val, err := db.Get("a")
	require.NoError(t, err)
	require.Equal(t, "1", val)
}

func TestListImmutableSegmentsExcludesActive(t *testing.T) {
	db, dir := setupTempDB(t, WithMaxFileSize(1))
	require.NoError(t, db.Put("a", "1"))
	require.NoError(t, db.Put("b", "2"))

	names, err := db.listImmutableSegments()
	require.NoError(t, err)
	for _, n := range names {
		require.NotEqual(t, activeSegmentName, n)
	}

	// Sanity: active.log really does exist alongside them.
	_, err = os.Stat(filepath.Join(dir, activeSegmentName))
	require.NoError(t, err)
}
