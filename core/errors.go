package core

import "errors"

// Sentinel error kinds. Wrap with fmt.Errorf("...: %w", err) at call sites so
// errors.Is/errors.As keep working through the chain; see DESIGN.md for why
// this module sticks to plain sentinels instead of a richer error-code type.
var (
	// ErrNotFound is returned by Get when the key is absent from the keydir.
	ErrNotFound = errors.New("caskdb: key not found")

	// ErrRotationFailed is returned when the active-segment rename during
	// rotation fails. The store remains open and usable only if the writer
	// could reopen the original active file; see DB.rotateLocked.
	ErrRotationFailed = errors.New("caskdb: segment rotation failed")

	// ErrCorruptSegment is returned by Open when replay of an immutable
	// segment hits a truncated frame or an unknown record type. Unlike the
	// active segment (which tolerates a torn tail), an immutable segment is
	// never supposed to change again, so any such defect is unexplainable.
	ErrCorruptSegment = errors.New("caskdb: corrupt immutable segment")

	// ErrConfigurationError is returned by Open for an invalid maxFileSize
	// or an unusable data directory.
	ErrConfigurationError = errors.New("caskdb: invalid configuration")

	// errTruncatedTail is an internal signal raised by the record scanner
	// when a frame header is complete but its body got cut short. Open
	// translates it into either silent truncation (active segment) or
	// ErrCorruptSegment (immutable segment); Merge returns it wrapped when
	// one of its input segments is cut short.
	errTruncatedTail = errors.New("caskdb: truncated record tail")

	// errUnknownRecordType is the internal counterpart of errTruncatedTail
	// for a record whose type byte isn't Put or Tombstone.
	errUnknownRecordType = errors.New("caskdb: unknown record type")
)
