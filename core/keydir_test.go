package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeydirPutGetDelete(t *testing.T) {
	k := newKeydir()

	_, ok := k.get("a")
	require.False(t, ok)

	loc := locator{segment: "active.log", valueOffset: 10, valueLength: 5}
	k.put("a", loc)

	got, ok := k.get("a")
	require.True(t, ok)
	require.Equal(t, loc, got)
	require.Equal(t, 1, k.len())

	k.delete("a")
	_, ok = k.get("a")
	require.False(t, ok)
	require.Zero(t, k.len())
}

func TestKeydirSnapshotKeysSorted(t *testing.T) {
	k := newKeydir()
	for _, key := range []string{"banana", "apple", "cherry"} {
		k.put(key, locator{segment: "active.log"})
	}

	require.Equal(t, []string{"apple", "banana", "cherry"}, k.snapshotKeys())
}

func TestKeydirSnapshotRange(t *testing.T) {
	k := newKeydir()
	for _, key := range []string{"apple", "banana", "cherry", "date"} {
		k.put(key, locator{segment: "active.log"})
	}

	require.Equal(t, []string{"banana", "cherry"}, k.snapshotRange("b", "d"))
	require.Equal(t, []string{"cherry", "date"}, k.snapshotRange("c", ""))
}

func TestKeydirRewriteSegment(t *testing.T) {
	k := newKeydir()
	k.put("a", locator{segment: "active.log", valueOffset: 1})
	k.put("b", locator{segment: "seg_1_data.log", valueOffset: 2})

	k.rewriteSegment("active.log", "seg_2_data.log")

	a, _ := k.get("a")
	require.Equal(t, "seg_2_data.log", a.segment)

	b, _ := k.get("b")
	require.Equal(t, "seg_1_data.log", b.segment) // untouched
}

func TestKeydirCasLocator(t *testing.T) {
	k := newKeydir()
	orig := locator{segment: "seg_1_data.log", valueOffset: 1, valueLength: 2}
	k.put("a", orig)

	stale := locator{segment: "seg_1_data.log", valueOffset: 99, valueLength: 2}
	next := locator{segment: "merged.log", valueOffset: 5, valueLength: 2}

	require.False(t, k.casLocator("a", stale, next))
	got, _ := k.get("a")
	require.Equal(t, orig, got)

	require.True(t, k.casLocator("a", orig, next))
	got, _ = k.get("a")
	require.Equal(t, next, got)
}
