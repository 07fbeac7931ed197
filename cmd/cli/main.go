package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Little-Town-Labs/forge-sub000/internal/app/cli"
)

const (
	// defaultMode is the default crawl mode.
	defaultMode = "limited"

	usage = `Crawl websites into knowledge-base content for indexing.

Usage:
  [app] [options] [url1 url2 ... urlN]

Options:
  -f, --file PATH/TO/FILE
                    Path to the input file that contains a list of start urls,
                    separated by '\n'.
                    This option is used if no urls are provided.
  -m, --mode MODE
                    Crawl mode: single, limited or deep. Default to [defaultMode].
                    single  fetches the start url only.
                    limited follows links one level away from the start url.
                    deep    walks the whole origin within the depth limit.
  -d, --depth NUM   Override the mode's depth limit.
  -p, --pages NUM   Override the mode's page budget.
  -t, --timeout TIMEOUT
                    Override the mode's overall deadline, in the form "72h3m0.5s".
  --fetch-interval INTERVAL
                    Minimum delay between fetches against the target site, in the
                    form "500ms". Default to no delay.
  --status-dsn DSN  Postgres connection string for persisting crawl status.
  --source-id ID    Source record identity for status writes.
  --no-pretty       Disable pretty output.
  -v, --verbose     Print out the error log messages.
  -vv               Print out the all log messages.
  -h, --help        Print out the help message.

Examples:
  Crawl a documentation site one level deep:
    [app] docs.example.com

  Crawl all the urls in path/to/file.txt with a page budget:
    [app] -m deep -p 50 -f path/to/file.txt

  Crawl a single page from stdin:
    echo -n "example.com/pricing" | [app] -m single

  Crawl and persist status to the admin database:
    [app] --status-dsn "postgres://..." --source-id 42 example.com

Note:
  - All urls can be with or without scheme or www prefix, but must have a
    hostname. If the scheme is missing, default to https.

Read more:
  - Time Duration format: https://golang.org/pkg/time/#ParseDuration
`
)

var (
	// argInputFile is the path to an input file that contains a list of start urls, separated by '\n'.
	argInputFile string
	// argMode is the crawl mode.
	argMode = defaultMode
	// argMaxDepth overrides the mode's depth limit when positive.
	argMaxDepth int
	// argMaxPages overrides the mode's page budget when positive.
	argMaxPages int
	// argTimeout overrides the mode's overall deadline when positive.
	argTimeout time.Duration
	// argFetchInterval sets the minimum delay between fetches when positive.
	argFetchInterval time.Duration
	// argStatusDSN is the postgres connection string for status persistence.
	argStatusDSN string
	// argSourceID is the source record identity for status writes.
	argSourceID string
	// argNoPretty is used to turn of json prettifier.
	argNoPretty bool

	// argVerbose is used to set the verbosity level.
	argVerbose bool
	// argVeryVerbose is used to set the verbosity level.
	argVeryVerbose bool
)

// init is for registering all the arguments.
// nolint: gochecknoinits
func init() {
	flag.StringVar(&argInputFile, "file", "", "")
	flag.StringVar(&argInputFile, "f", "", "")
	flag.StringVar(&argMode, "mode", defaultMode, "")
	flag.StringVar(&argMode, "m", defaultMode, "")
	flag.IntVar(&argMaxDepth, "depth", 0, "")
	flag.IntVar(&argMaxDepth, "d", 0, "")
	flag.IntVar(&argMaxPages, "pages", 0, "")
	flag.IntVar(&argMaxPages, "p", 0, "")
	flag.DurationVar(&argTimeout, "timeout", 0, "")
	flag.DurationVar(&argTimeout, "t", 0, "")
	flag.DurationVar(&argFetchInterval, "fetch-interval", 0, "")
	flag.StringVar(&argStatusDSN, "status-dsn", "", "")
	flag.StringVar(&argSourceID, "source-id", "", "")
	flag.BoolVar(&argNoPretty, "no-pretty", false, "")
	flag.BoolVar(&argVerbose, "verbose", false, "")
	flag.BoolVar(&argVerbose, "v", false, "")
	flag.BoolVar(&argVeryVerbose, "vv", false, "")

	flag.Usage = func() {
		r := strings.NewReplacer(
			`[app]`, filepath.Base(os.Args[0]),
			`[defaultMode]`, defaultMode,
		)

		fmt.Print(r.Replace(usage))
	}
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	flag.Parse()

	cfg := cli.Config{
		OutWriter:      os.Stdout,
		ErrWriter:      os.Stderr,
		Mode:           argMode,
		MaxDepth:       argMaxDepth,
		MaxPages:       argMaxPages,
		Timeout:        argTimeout,
		FetchInterval:  argFetchInterval,
		StatusDSN:      argStatusDSN,
		SourceID:       argSourceID,
		PrettyOutput:   !argNoPretty,
		VerbosityLevel: cli.VerbosityLevelSilent,
	}

	if argVerbose {
		cfg.VerbosityLevel = cli.VerbosityLevelError
	} else if argVeryVerbose {
		cfg.VerbosityLevel = cli.VerbosityLevelDebug
	}

	return int(cli.Run(cfg, flag.Args(), argInputFile, pipeFromStdIn(os.Stdin)))
}

// Detect if stdin is piped from another process.
func pipeFromStdIn(in *os.File) io.ReadCloser {
	fi, err := in.Stat()
	if err != nil {
		// Just ignore because we do not know if it is a pipe or not.
		return nil
	}

	if (fi.Mode() & os.ModeNamedPipe) != 0 {
		return io.NopCloser(in)
	}

	return nil
}
