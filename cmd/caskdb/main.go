// Command caskdb is a thin operator-facing front end over the core store:
// enough to poke at a data directory from a shell, and a concrete consumer
// of the write-observation hooks core.Hooks exposes.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/epokhe/caskdb/core"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("caskdb", flag.ContinueOnError)
	fs.SetOutput(errOut)
	dir := fs.StringP("dir", "d", "./caskdb-data", "data directory")
	verbose := fs.BoolP("verbose", "v", false, "log every write as it happens")
	maxFileSize := fs.Int64("max-segment-size", 64*1024*1024, "active segment size threshold before rotation, in bytes")
	syncWrites := fs.Bool("sync", false, "fsync every write before it returns")

	if err := fs.Parse(args); err != nil {
		return 2 // pflag already printed the error
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(errOut, fs)
		return 1
	}

	logger := newLogger(*verbose)
	defer logger.Sync() // nolint:errcheck

	db, err := core.Open(*dir,
		core.WithLogger(logger),
		core.WithMaxFileSize(*maxFileSize),
		core.WithSyncOnWrite(*syncWrites),
		core.WithHooks(core.Hooks{
			OnPut:    func(key, value string) { logger.Debugw("put", "key", key, "bytes", len(value)) },
			OnDelete: func(key string) { logger.Debugw("delete", "key", key) },
			OnBatchPut: func(entries []core.KV) {
				logger.Debugw("batch put", "count", len(entries))
			},
		}),
	)
	if err != nil {
		fmt.Fprintln(errOut, "error: open store:", err)
		return 1
	}
	defer db.Close() // nolint:errcheck

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "get":
		return cmdGet(out, errOut, db, cmdArgs)
	case "set":
		return cmdSet(errOut, db, cmdArgs)
	case "delete":
		return cmdDelete(errOut, db, cmdArgs)
	case "batch":
		return cmdBatch(errOut, db, cmdArgs)
	case "keys":
		return cmdKeys(out, db)
	case "range":
		return cmdRange(out, errOut, db, cmdArgs)
	case "merge":
		return cmdMerge(errOut, db)
	default:
		fmt.Fprintln(errOut, "error: unknown command:", cmd)
		printUsage(errOut, fs)
		return 1
	}
}

func newLogger(verbose bool) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		// Building a zap logger from a static config practically never
		// fails; fall back rather than abort the whole command.
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func cmdGet(out, errOut io.Writer, db *core.DB, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "usage: caskdb get <key>")
		return 1
	}
	val, err := db.Get(args[0])
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	fmt.Fprintln(out, val)
	return 0
}

func cmdSet(errOut io.Writer, db *core.DB, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(errOut, "usage: caskdb set <key> <value>")
		return 1
	}
	if err := db.Put(args[0], args[1]); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

func cmdDelete(errOut io.Writer, db *core.DB, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "usage: caskdb delete <key>")
		return 1
	}
	if err := db.Delete(args[0]); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

// cmdBatch takes any number of key=value tokens and applies them as one
// BatchPut.
func cmdBatch(errOut io.Writer, db *core.DB, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: caskdb batch <key=value>...")
		return 1
	}

	entries := make([]core.KV, 0, len(args))
	for _, tok := range args {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			fmt.Fprintln(errOut, "error: expected key=value, got:", tok)
			return 1
		}
		entries = append(entries, core.KV{Key: k, Value: v})
	}

	if err := db.BatchPut(entries); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

func cmdKeys(out io.Writer, db *core.DB) int {
	for _, key := range db.ListKeys() {
		fmt.Fprintln(out, key)
	}
	return 0
}

func cmdRange(out, errOut io.Writer, db *core.DB, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(errOut, "usage: caskdb range <lo> <hi>")
		return 1
	}

	it := db.RangeRead(args[0], args[1])
	for it.Next() {
		key, val := it.KV()
		fmt.Fprintf(out, "%s\t%s\n", key, val)
	}
	if err := it.Err(); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

func cmdMerge(errOut io.Writer, db *core.DB) int {
	if err := db.Merge(); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: caskdb [flags] <command> [args...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  get <key>               print a key's value")
	fmt.Fprintln(w, "  set <key> <value>       write a key")
	fmt.Fprintln(w, "  delete <key>            remove a key")
	fmt.Fprintln(w, "  batch <key=value>...    write many keys in one locked pass")
	fmt.Fprintln(w, "  keys                    list every live key, sorted")
	fmt.Fprintln(w, "  range <lo> <hi>         print every key/value in [lo, hi)")
	fmt.Fprintln(w, "  merge                   compact immutable segments")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}
