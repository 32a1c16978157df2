package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"
)

// replayEntry is one key's contribution from replaying a single segment
// (either via its hint or by a full scan): either a live locator, or a
// tombstone meaning "this segment's last word on the key was a delete".
type replayEntry struct {
	loc     locator
	deleted bool
}

// recover enumerates segments, replays every immutable one (via hint when
// present, concurrently across files), replays the active segment last, and
// reconciles orphaned hint files. It returns the active segment, ready for
// further appends.
func (db *DB) recover() (*segment, error) {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir %q: %v", ErrConfigurationError, db.dir, err)
	}

	var logNames []string
	hintStems := mapset.NewSet[string]()
	logStems := mapset.NewSet[string]()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".log"):
			logNames = append(logNames, name)
			logStems.Add(strings.TrimSuffix(name, ".log"))
		case strings.HasSuffix(name, ".hint"):
			hintStems.Add(strings.TrimSuffix(name, ".hint"))
		}
	}

	var immutable []string
	for _, name := range logNames {
		if name != activeSegmentName {
			immutable = append(immutable, name)
		}
	}
	sort.Strings(immutable) // names embed a monotonic sequence; lexicographic == chronological

	if err := db.replayImmutableSegments(immutable); err != nil {
		return nil, err
	}

	active, err := db.recoverActiveSegment()
	if err != nil {
		return nil, err
	}

	db.reconcileOrphanedHints(hintStems, logStems)

	return active, nil
}

// replayImmutableSegments replays every entry of immutable concurrently
// (bounded by db.recoveryConcurrency), then folds the per-file
// contributions into db.keydir in file order (oldest first) so that the
// fold order — not goroutine completion order — determines last-writer-wins,
// exactly as a serial replay would.
func (db *DB) replayImmutableSegments(immutable []string) error {
	if len(immutable) == 0 {
		return nil
	}

	results := make([]map[string]replayEntry, len(immutable))

	g, _ := errgroup.WithContext(context.Background())
	sem := make(chan struct{}, db.recoveryConcurrency)
	for i, name := range immutable {
		i, name := i, name
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			m, err := db.replayImmutableSegment(name)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, name := range immutable {
		for key, e := range results[i] {
			if e.deleted {
				db.keydir.delete(key)
			} else {
				db.keydir.put(key, e.loc)
			}
		}
		db.log.Debugw("replayed segment", "segment", name, "liveKeys", len(results[i]))
	}
	return nil
}

// replayImmutableSegment replays one immutable segment: via its hint, if
// present (trusting it rather than re-validating against the segment, since
// re-scanning would defeat the point of having a hint), or by a full scan
// otherwise. A TruncatedTail or UnknownRecordType here is fatal
// (ErrCorruptSegment): unlike the active segment, an immutable one is never
// supposed to change again.
func (db *DB) replayImmutableSegment(name string) (map[string]replayEntry, error) {
	if hintFileExists(db.dir, name) {
		hintEntries, err := readHintFile(db.dir, hintName(name))
		if err != nil {
			return nil, fmt.Errorf("%w: parse hint for %q: %v", ErrCorruptSegment, name, err)
		}

		m := make(map[string]replayEntry, len(hintEntries))
		for _, e := range hintEntries {
			m[string(e.key)] = replayEntry{loc: locator{segment: name, valueOffset: e.valueOffset, valueLength: e.valueLength}}
		}
		return m, nil
	}

	f, err := os.Open(filepath.Join(db.dir, name))
	if err != nil {
		return nil, fmt.Errorf("open segment %q: %w", name, err)
	}
	defer f.Close() // nolint:errcheck

	m := make(map[string]replayEntry)
	scanner := newRecordScanner(f, 0)
	for scanner.scan() {
		rec := scanner.record()
		if rec.typ == recordPut {
			m[string(rec.key)] = replayEntry{loc: locator{segment: name, valueOffset: rec.valueOffset, valueLength: int64(len(rec.val))}}
		} else {
			m[string(rec.key)] = replayEntry{deleted: true}
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, errTruncatedTail) || errors.Is(err, errUnknownRecordType) {
			return nil, fmt.Errorf("%w: %s at offset %d: %v", ErrCorruptSegment, name, scanner.end, err)
		}
		return nil, fmt.Errorf("replay %q: %w", name, err)
	}

	return m, nil
}

// recoverActiveSegment replays active.log (tolerating a torn tail by
// truncating to the last good frame boundary) or creates it fresh if this
// is a new store.
func (db *DB) recoverActiveSegment() (*segment, error) {
	path := filepath.Join(db.dir, activeSegmentName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createSegment(db.dir, activeSegmentName)
	} else if err != nil {
		return nil, fmt.Errorf("stat active segment: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open active segment: %w", err)
	}

	contributions := make(map[string]replayEntry)
	scanner := newRecordScanner(f, 0)
	for scanner.scan() {
		rec := scanner.record()
		if rec.typ == recordPut {
			contributions[string(rec.key)] = replayEntry{loc: locator{segment: activeSegmentName, valueOffset: rec.valueOffset, valueLength: int64(len(rec.val))}}
		} else {
			contributions[string(rec.key)] = replayEntry{deleted: true}
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, errTruncatedTail) && !errors.Is(err, errUnknownRecordType) {
		_ = f.Close()
		return nil, fmt.Errorf("replay active segment: %w", err)
	}
	if err := scanner.Err(); err != nil {
		db.log.Warnw("active segment tail truncated during recovery", "goodOffset", scanner.end, "reason", err)
	}

	goodSize := scanner.end
	if err := f.Truncate(goodSize); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("truncate active segment to %d: %w", goodSize, err)
	}

	for key, e := range contributions {
		if e.deleted {
			db.keydir.delete(key)
		} else {
			db.keydir.put(key, e.loc)
		}
	}

	return &segment{name: activeSegmentName, role: roleActive, file: f, size: goodSize}, nil
}

// reconcileOrphanedHints flags hint sidecars whose segment no longer
// exists — the sole leftover a crash between merge installing its new
// locators and deleting the old segments/hints can produce, or a crash
// partway through that cleanup itself. It only warns: an orphaned hint is
// harmless (nothing in the keydir names it), and a future merge will
// naturally never regenerate it since its segment is already gone.
func (db *DB) reconcileOrphanedHints(hintStems, logStems mapset.Set[string]) {
	orphans := hintStems.Difference(logStems)
	if orphans.Cardinality() == 0 {
		return
	}
	db.log.Warnw("orphaned hint files with no matching segment", "hints", orphans.ToSlice())
}
