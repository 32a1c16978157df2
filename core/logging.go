package core

import "go.uber.org/zap"

// newNopLogger is the default logger injected when the caller doesn't
// provide one via WithLogger: internal diagnostics are structured calls
// against a real *zap.SugaredLogger throughout this package, but an
// embedding caller who wants silence shouldn't have to configure anything
// to get it.
func newNopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
