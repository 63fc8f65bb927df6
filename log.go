package swirl

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// newDiagnosticLogger returns the logger the worker dispatcher uses to
// report a failed job before it finalizes the retry. Writing to
// stderr through a structured handler (rather than a bare
// fmt.Fprintln) is deliberate: operators triaging a stuck queue filter
// and search these lines the same way they would any other service
// log.
func newDiagnosticLogger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: slog.LevelDebug,
	}))
}
