package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// Put creates or overwrites key's value. It takes the single write mutex,
// rotating the active segment first if this record would push it past
// maxFileSize.
func (db *DB) Put(key, value string) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrConfigurationError)
	}

	db.rw.Lock()
	defer db.rw.Unlock()

	valueOffset, err := db.appendLocked(recordPut, key, value)
	if err != nil {
		return err
	}

	db.keydir.put(key, locator{segment: db.seg.name, valueOffset: valueOffset, valueLength: int64(len(value))})

	if db.hooks.OnPut != nil {
		db.hooks.OnPut(key, value)
	}

	return nil
}

// Delete removes key. Deleting a key that is already absent is a no-op: it
// returns success without appending a Tombstone, since a Tombstone for a key
// that never existed (from this store's point of view) would only be
// garbage that merge later has to discard.
func (db *DB) Delete(key string) error {
	db.rw.Lock()
	defer db.rw.Unlock()

	if _, ok := db.keydir.get(key); !ok {
		return nil
	}

	if _, err := db.appendLocked(recordTombstone, key, ""); err != nil {
		return err
	}

	db.keydir.delete(key)

	if db.hooks.OnDelete != nil {
		db.hooks.OnDelete(key)
	}

	return nil
}

// BatchPut appends every entry under one held mutex. Rotation may occur
// mid-batch — each entry individually checks the threshold — and the
// keydir is updated incrementally as each entry lands, so readers can
// observe a batch partially applied; BatchPut is not a transaction and
// promises nothing beyond that. If syncOnWrite is set, a single fsync
// happens after the last entry rather than once per entry.
func (db *DB) BatchPut(entries []KV) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if len(e.Key) == 0 {
			return fmt.Errorf("%w: empty key in batch", ErrConfigurationError)
		}
	}

	db.rw.Lock()
	defer db.rw.Unlock()

	fsync := db.fsync
	db.fsync = false
	defer func() { db.fsync = fsync }()

	for _, e := range entries {
		valueOffset, err := db.appendLocked(recordPut, e.Key, e.Value)
		if err != nil {
			return err
		}
		db.keydir.put(e.Key, locator{segment: db.seg.name, valueOffset: valueOffset, valueLength: int64(len(e.Value))})
	}

	if fsync {
		if err := db.seg.sync(); err != nil {
			return fmt.Errorf("fsync batch: %w", err)
		}
	}

	if db.hooks.OnBatchPut != nil {
		db.hooks.OnBatchPut(entries)
	}

	return nil
}

// appendLocked rotates the active segment if necessary, then appends one
// record to it. Caller must hold db.rw.
func (db *DB) appendLocked(typ recordType, key, value string) (int64, error) {
	keyBytes, valBytes := []byte(key), []byte(value)
	size := encodedSize(typ, len(keyBytes), len(valBytes))

	if db.seg.size+size > db.maxFileSize {
		if err := db.rotateLocked(); err != nil {
			return 0, err
		}
	}

	return db.seg.append(typ, keyBytes, valBytes, db.fsync)
}

// rotateLocked closes the active file, renames it to a rotated segment,
// opens a fresh active.log, then rewrites every keydir locator that still
// names "active.log" so none reference the now-stale name. Caller must hold
// db.rw.
func (db *DB) rotateLocked() error {
	oldName := db.seg.name
	newName := dataSegmentName()

	if err := db.seg.close(); err != nil {
		return fmt.Errorf("%w: close active before rename: %v", ErrRotationFailed, err)
	}

	oldPath := filepath.Join(db.dir, oldName)
	newPath := filepath.Join(db.dir, newName)
	if err := os.Rename(oldPath, newPath); err != nil {
		// Try to restore a writable active segment so the store doesn't get
		// stuck without one, even though this rotation failed.
		if reopenErr := db.reopenActiveLocked(); reopenErr != nil {
			db.log.Errorw("rotation failed and active segment could not be reopened",
				"old", oldName, "new", newName, "renameErr", err, "reopenErr", reopenErr)
		}
		return fmt.Errorf("%w: rename %q to %q: %v", ErrRotationFailed, oldName, newName, err)
	}
	if err := syncDir(db.dir); err != nil {
		db.log.Warnw("sync dir after rotation rename failed", "err", err)
	}

	// The renamed file is now immutable; we don't keep a writer handle open
	// for it (readers open it read-only, per call, when a locator names it).
	fresh, err := createSegment(db.dir, activeSegmentName)
	if err != nil {
		return fmt.Errorf("%w: create fresh active segment: %v", ErrRotationFailed, err)
	}

	db.keydir.rewriteSegment(oldName, newName)
	db.seg = fresh
	db.log.Infow("segment rotated", "from", oldName, "to", newName)
	return nil
}

// reopenActiveLocked attempts to restore a writable active.log after a
// failed rename, so the store remains usable even though this rotation
// itself failed.
func (db *DB) reopenActiveLocked() error {
	seg, err := openSegmentForAppend(db.dir, activeSegmentName, db.seg.size)
	if err != nil {
		return err
	}
	db.seg = seg
	return nil
}
