package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// segmentRole distinguishes the three kinds of log file a data directory holds.
type segmentRole int

const (
	roleActive segmentRole = iota
	roleData
	roleMerged
)

const activeSegmentName = "active.log"

// segment is one on-disk container: a dense, in-order sequence of record
// frames. The active segment is opened for read-write appends; rotated and
// merged segments are immutable and, once created, opened read-only by
// readers on demand.
type segment struct {
	name string // filename, e.g. "active.log" or "seg_01700000000000000000_data.log"
	role segmentRole
	file *os.File
	size int64 // number of bytes written so far (== next append offset)
}

// nextSeq hands out a strictly increasing, process-wide sequence number used
// to name rotated and merged segments. It is seeded from wall-clock
// nanoseconds so names sort by creation time in the common case, and it is
// bumped past the clock whenever two segments would otherwise tie, so two
// rotations (or a rotation and a merge) landing in the same nanosecond never
// produce equal names.
var nextSeq atomic.Int64

func init() {
	nextSeq.Store(time.Now().UnixNano())
}

// claimSeq returns a value strictly greater than every value returned
// before it, regardless of clock behavior.
func claimSeq() int64 {
	for {
		now := time.Now().UnixNano()
		prev := nextSeq.Load()
		next := prev + 1
		if now > next {
			next = now
		}
		if nextSeq.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// dataSegmentName returns the filename for a newly-rotated segment.
func dataSegmentName() string {
	return fmt.Sprintf("seg_%020d_data.log", claimSeq())
}

// mergedSegmentName returns the filename for a newly-created merge output.
func mergedSegmentName() string {
	return fmt.Sprintf("seg_%020d_merged.log", claimSeq())
}

// hintName returns the hint sidecar path for a non-active segment name.
func hintName(segName string) string {
	return strings.TrimSuffix(segName, ".log") + ".hint"
}

// roleOf classifies a ".log" filename found in the data directory.
func roleOf(name string) (segmentRole, bool) {
	switch {
	case name == activeSegmentName:
		return roleActive, true
	case strings.HasSuffix(name, "_data.log"):
		return roleData, true
	case strings.HasSuffix(name, "_merged.log"):
		return roleMerged, true
	default:
		return 0, false
	}
}

// createSegment creates a brand-new, empty segment file and durably commits
// its directory entry so a crash immediately after creation doesn't leave a
// segment that vanishes on the next open.
func createSegment(dir, name string) (*segment, error) {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment %q: %w", name, err)
	}
	if err := syncDir(dir); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sync dir after creating %q: %w", name, err)
	}

	role, _ := roleOf(name)
	return &segment{name: name, role: role, file: f, size: 0}, nil
}

// openSegmentForAppend reopens an existing segment positioned for further
// writes (reopenActiveLocked uses it to restore active.log after a failed
// rotation rename); size is the caller-supplied known-good length.
func openSegmentForAppend(dir, name string, size int64) (*segment, error) {
	path := filepath.Join(dir, name)
	// O_APPEND makes every Write land at EOF regardless of the handle's
	// current cursor position, which a fresh open leaves at offset 0;
	// without O_APPEND the first write after reopening would overwrite the
	// first record.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open segment %q: %w", name, err)
	}
	role, _ := roleOf(name)
	return &segment{name: name, role: role, file: f, size: size}, nil
}

// openSegmentReadOnly opens a segment (immutable or active) purely for
// random reads.
// The reader never holds the write mutex, so any number of these may be
// open at once alongside the writer's own handle on the active segment.
func openSegmentReadOnly(dir, name string) (*os.File, error) {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment %q: %w", name, err)
	}
	return f, nil
}

// append writes one record to the segment and returns the record's value
// offset (for a Put) or the record's start offset (for a Tombstone, which
// has no value payload).
func (s *segment) append(typ recordType, key, val []byte, fsync bool) (valueOffset int64, err error) {
	recordStart := s.size

	n, err := writeRecord(s.file, typ, key, val)
	if err != nil {
		return 0, fmt.Errorf("write record to segment %q: %w", s.name, err)
	}
	s.size += n

	if fsync {
		if err := s.file.Sync(); err != nil {
			return 0, fmt.Errorf("fsync segment %q: %w", s.name, err)
		}
	}

	if typ == recordPut {
		return recordStart + lengthPrefixSize + typeSize + keyLenSize + int64(len(key)) + valLenSize, nil
	}
	return recordStart, nil
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

// syncDir fsyncs a directory so that file creation/rename/removal within it
// is durable, not merely the file contents themselves.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close() // nolint:errcheck
	return d.Sync()
}
