package core

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// hintEntry is one line of a hint sidecar: {key, value offset, value
// length} for a single live record in the segment the hint describes.
type hintEntry struct {
	key         []byte
	valueOffset int64
	valueLength int64
}

// Hint file format: a flat sequence of
// [u32 keyLen][key][u64 valueOffset][u32 valueLength], no framing prefix,
// EOF terminates. Order is unspecified — recovery simply bulk-loads every
// entry into the keydir.
func writeHintFile(dir, hintFilename string, entries []hintEntry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(e.key)))
		buf.Write(hdr[:])
		buf.Write(e.key)

		var tail [12]byte
		binary.BigEndian.PutUint64(tail[0:8], uint64(e.valueOffset))
		binary.BigEndian.PutUint32(tail[8:12], uint32(e.valueLength))
		buf.Write(tail[:])
	}

	// A half-written hint must never be observable under its final name:
	// publish via a temp-file-then-rename so a crash mid-write leaves
	// either the old hint (absent, for a new segment) or nothing.
	path := filepath.Join(dir, hintFilename)
	if err := atomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("publish hint file %q: %w", hintFilename, err)
	}
	return syncDir(dir)
}

// readHintFile parses a hint sidecar fully into memory. Hints are assumed
// to derive from trusted merges; a hint that doesn't parse cleanly is
// reported rather than silently ignored, since trusting a malformed hint
// would plant wrong locators in the keydir.
func readHintFile(dir, hintFilename string) ([]hintEntry, error) {
	f, err := os.Open(filepath.Join(dir, hintFilename))
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck

	r := bufio.NewReader(f)
	var entries []hintEntry
	for {
		var keyLenBuf [4]byte
		if _, err := io.ReadFull(r, keyLenBuf[:]); err != nil {
			if isEOF(err) {
				break
			}
			return nil, fmt.Errorf("read hint key length: %w", err)
		}
		keyLen := binary.BigEndian.Uint32(keyLenBuf[:])

		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("read hint key: %w", err)
		}

		var tail [12]byte
		if _, err := io.ReadFull(r, tail[:]); err != nil {
			return nil, fmt.Errorf("read hint offset/length: %w", err)
		}

		entries = append(entries, hintEntry{
			key:         key,
			valueOffset: int64(binary.BigEndian.Uint64(tail[0:8])),
			valueLength: int64(binary.BigEndian.Uint32(tail[8:12])),
		})
	}
	return entries, nil
}

// hintFileExists reports whether segName has a matching sidecar in dir.
func hintFileExists(dir, segName string) bool {
	_, err := os.Stat(filepath.Join(dir, hintName(segName)))
	return err == nil
}

func removeHintFile(dir, segName string) error {
	err := os.Remove(filepath.Join(dir, hintName(segName)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
