package core

import "fmt"

// Get looks up the keydir, and if present, opens the named segment
// read-only and reads exactly the value payload the locator describes. The
// write mutex is never taken here; only the keydir's own lock guards the
// lookup.
func (db *DB) Get(key string) (string, error) {
	loc, ok := db.keydir.get(key)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, key)
	}

	val, err := db.readLocator(loc)
	if err != nil {
		// The keydir said this byte range exists; if it doesn't, that's not
		// a NotFound, it's unexplainable corruption or a bug in rotation's
		// bookkeeping, so surface the underlying error (with context) rather
		// than ErrNotFound.
		return "", fmt.Errorf("read value for %q at %+v: %w", key, loc, err)
	}
	return val, nil
}

// readLocator opens loc's segment (the active segment or an immutable one;
// both are opened read-only here, even the active one, since *os.File's
// ReadAt is safe for concurrent use and the writer owns its own handle for
// appends) and reads the value payload.
func (db *DB) readLocator(loc locator) (string, error) {
	f, err := openSegmentReadOnly(db.dir, loc.segment)
	if err != nil {
		return "", err
	}
	defer f.Close() // nolint:errcheck

	buf, err := readValueAt(f, loc.valueOffset, loc.valueLength)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// ListKeys returns every live key, sorted.
func (db *DB) ListKeys() []string {
	return db.keydir.snapshotKeys()
}

// RangeIter is a forward, lazily-read iterator over a key range: the set of
// keys is fixed at construction (a consistent snapshot), but each value is
// only read from disk when Next is called.
type RangeIter struct {
	db   *DB
	keys []string
	idx  int
	key  string
	val  string
	err  error
}

// RangeRead produces an iterator over every key in [lo, hi), in ascending
// order, as of the instant RangeRead is called. It is not transactional
// against concurrent writes: a write that lands after the snapshot is taken
// is simply not reflected.
func (db *DB) RangeRead(lo, hi string) *RangeIter {
	return &RangeIter{db: db, keys: db.keydir.snapshotRange(lo, hi)}
}

// Next advances the iterator, returning false when the range is exhausted
// or a read error stops it early (check Err in that case).
func (it *RangeIter) Next() bool {
	for it.err == nil && it.idx < len(it.keys) {
		key := it.keys[it.idx]
		it.idx++

		loc, ok := it.db.keydir.get(key)
		if !ok {
			// Deleted since the snapshot was taken; skip rather than error,
			// consistent with "not transactional across concurrent writes".
			continue
		}

		val, err := it.db.readLocator(loc)
		if err != nil {
			it.err = fmt.Errorf("read value for %q at %+v: %w", key, loc, err)
			return false
		}

		it.key, it.val = key, val
		return true
	}
	return false
}

// KV returns the pair most recently produced by Next.
func (it *RangeIter) KV() (string, string) { return it.key, it.val }

// Err returns the error, if any, that stopped iteration early.
func (it *RangeIter) Err() error { return it.err }
