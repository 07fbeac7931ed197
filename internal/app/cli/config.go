package cli

import (
	"io"
	"time"
)

// VerbosityLevel is the verbosity level of the application.
type VerbosityLevel uint

const (
	// VerbosityLevelSilent is the silent verbosity level.
	VerbosityLevelSilent VerbosityLevel = iota
	// VerbosityLevelError is the error verbosity level.
	VerbosityLevelError
	// VerbosityLevelDebug is the debug verbosity level.
	VerbosityLevelDebug
)

// Config is the configuration of the application.
type Config struct {
	OutWriter io.Writer // The stream that will receive the results.
	ErrWriter io.Writer // The stream that will receive all the log messages and errors.

	Mode     string        // The crawl mode: single, limited or deep.
	MaxDepth int           // Optional override of the mode's depth limit.
	MaxPages int           // Optional override of the mode's page budget.
	Timeout  time.Duration // Optional override of the mode's overall deadline.

	FetchInterval time.Duration // Optional minimum delay between fetches against the target site.

	StatusDSN string // Optional postgres connection string for status persistence.
	SourceID  string // The source record identity for status writes.

	PrettyOutput   bool           // Disable JSON prettifier.
	VerbosityLevel VerbosityLevel // The verbosity level of the tool.
}
