// Package core implements the storage engine: an append-only, log-structured
// key-value store with an in-memory keydir index, crash-safe segment
// rotation, and hint-file-accelerated recovery. Everything outside this
// package (wire protocols, CLI glue, replication) is a collaborator built on
// the interface DB exposes.
package core

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// KV is one key/value pair, used by BatchPut and the OnBatchPut hook.
type KV struct {
	Key   string
	Value string
}

// Hooks are write-observation callbacks, invoked synchronously, under the
// write mutex, after a successful append. A hook has no error result, so it
// cannot fail the write that triggered it; a panic inside a hook is not
// recovered or logged and propagates out of the write call. This is the sole
// integration point the core exposes to an external replication forwarder.
type Hooks struct {
	OnPut      func(key, value string)
	OnDelete   func(key string)
	OnBatchPut func(entries []KV)
}

// DB is an open instance of the store rooted at one data directory.
type DB struct {
	dir    string
	log    *zap.SugaredLogger
	hooks  Hooks
	keydir *keydir

	rw     sync.Mutex // the single write mutex; guards seg and rotation/merge
	seg    *segment   // the active segment; replaced wholesale by rotate()
	fsync  bool
	maxFileSize int64
	recoveryConcurrency int

	// hintWriter defaults to writeHintFile; overridable only from this
	// package's own tests to exercise hint-publication failure paths, never
	// exported.
	hintWriter func(dir, hintFilename string, entries []hintEntry) error
}

// Option configures a DB at Open time, the functional-options idiom this
// module's lineage uses throughout (WithFsync, WithRolloverThreshold, ...).
type Option func(*options)

type options struct {
	syncOnWrite         bool
	maxFileSize         int64
	logger              *zap.SugaredLogger
	hooks               Hooks
	recoveryConcurrency int
}

// WithSyncOnWrite controls whether every append is fsync'd before Put,
// Delete, or BatchPut return. Default: false (best-effort durability).
func WithSyncOnWrite(b bool) Option {
	return func(o *options) { o.syncOnWrite = b }
}

// WithMaxFileSize sets the active-segment byte threshold that triggers
// rotation on the next append. Must be positive; Open rejects anything
// else with ErrConfigurationError. Default: 1 MiB.
func WithMaxFileSize(n int64) Option {
	return func(o *options) { o.maxFileSize = n }
}

// WithLogger injects the structured logger used for internal diagnostics.
// Default: a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithHooks installs the write-observation callbacks. Any of the three
// fields may be left nil; a nil hook is simply not invoked.
func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

// WithRecoveryConcurrency bounds how many immutable segments Open replays
// in parallel. Default: runtime.GOMAXPROCS(0).
func WithRecoveryConcurrency(n int) Option {
	return func(o *options) { o.recoveryConcurrency = n }
}

func defaultOptions() options {
	return options{
		syncOnWrite:         false,
		maxFileSize:         1 * 1024 * 1024,
		logger:              newNopLogger(),
		recoveryConcurrency: runtime.GOMAXPROCS(0),
	}
}

// Open opens (creating if necessary) the store rooted at dir, replays its
// segments to rebuild the keydir, and returns a ready DB. The returned DB
// always has exactly one active segment.
func Open(dir string, opts ...Option) (db *DB, err error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.maxFileSize <= 0 {
		return nil, fmt.Errorf("%w: maxFileSize must be positive, got %d", ErrConfigurationError, o.maxFileSize)
	}
	if o.recoveryConcurrency <= 0 {
		o.recoveryConcurrency = 1
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %q: %v", ErrConfigurationError, dir, err)
	}

	db = &DB{
		dir:                 dir,
		log:                 o.logger,
		hooks:               o.hooks,
		keydir:              newKeydir(),
		fsync:               o.syncOnWrite,
		maxFileSize:         o.maxFileSize,
		recoveryConcurrency: o.recoveryConcurrency,
		hintWriter:          writeHintFile,
	}

	defer func() {
		if err != nil {
			db.abortOnOpen()
		}
	}()

	active, err := db.recover()
	if err != nil {
		return nil, err
	}
	db.seg = active

	return db, nil
}

// abortOnOpen releases whatever Open managed to open before failing. It
// deliberately does not touch segment files on disk: a failed Open should
// leave the directory exactly as a future Open will find it.
func (db *DB) abortOnOpen() {
	if db.seg != nil {
		_ = db.seg.close()
	}
}

// Close fsyncs and closes the active segment. Immutable segments are opened
// read-only, per call, by the reader, so there is nothing else to release.
func (db *DB) Close() error {
	db.rw.Lock()
	defer db.rw.Unlock()

	if err := db.seg.sync(); err != nil {
		return fmt.Errorf("sync active segment: %w", err)
	}
	if err := db.seg.close(); err != nil {
		return fmt.Errorf("close active segment: %w", err)
	}
	return nil
}

// DiskSize returns the sum of the sizes of every file in the data directory:
// active and immutable segments plus hint files. Cheap enough to call from a scheduler deciding when a merge
// is overdue.
func (db *DB) DiskSize() (int64, error) {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return 0, fmt.Errorf("read dir: %w", err)
	}

	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, fmt.Errorf("stat %q: %w", e.Name(), err)
		}
		total += info.Size()
	}
	return total, nil
}
