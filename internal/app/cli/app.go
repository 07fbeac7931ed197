package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/bool64/ctxd"
	"golang.org/x/time/rate"

	"github.com/Little-Town-Labs/forge-sub000/internal/crawler"
	"github.com/Little-Town-Labs/forge-sub000/internal/footprint"
	"github.com/Little-Town-Labs/forge-sub000/internal/logger"
	"github.com/Little-Town-Labs/forge-sub000/internal/status"
)

const (
	// CodeOK indicates that the program exited with success.
	CodeOK = ExitCode(iota)
	// CodeErrOperationCanceled indicates that the program has been terminated and operation is canceled.
	CodeErrOperationCanceled
	// CodeErrNoInputSource indicates that the program has no input source.
	CodeErrNoInputSource
	// CodeErrOpenInputSource indicates that the program could not open input file.
	CodeErrOpenInputSource
	// CodeErrUnsupportedInputSource indicates that the program could not use the input source.
	CodeErrUnsupportedInputSource
	// CodeErrBadArgs indicates that the provided arguments are invalid.
	CodeErrBadArgs
	// CodeErrOutput indicates that the program could not write to output.
	CodeErrOutput
)

// ExitCode is the exit code of the program.
type ExitCode int

// crawlRunner runs one single-use crawl for a start url and flattens it into a report.
type crawlRunner func(ctx context.Context, startURL string) crawlReport

// Run runs the program to crawl knowledge-base sources.
//
// It will take only the first valid source as an input. The source types are:
// - []string: A list of start URLs.
// - string: A file path that contains a list of start URLs, one on each line.
// - io.ReadCloser: A reader that contains a list of start URLs, one on each line.
// - io.Reader: A reader that contains a list of start URLs, one on each line.
//
// The URLs can be with or without scheme, but must have a hostname. If the scheme is
// missing, default to https. Each start url gets its own crawl; the reports are written
// to the output as a JSON array.
func Run(cfg Config, inputSources ...any) ExitCode {
	// Configure input source.
	inputSource, code, err := initInputSource(inputSources...)
	if err != nil {
		_, _ = fmt.Fprintln(cfg.ErrWriter, err.Error())

		return code
	}

	defer inputSource.Close() // nolint: errcheck

	log := initLogger(cfg.VerbosityLevel, cfg.ErrWriter)

	// Configure the crawl runner.
	runCrawl, cleanup, err := initCrawlRunner(cfg, log)
	if err != nil {
		_, _ = fmt.Fprintln(cfg.ErrWriter, err.Error())

		return CodeErrBadArgs
	}

	defer cleanup()

	// Configure resultWriter.
	var writeResult resultWriter

	if cfg.VerbosityLevel > VerbosityLevelSilent {
		// When the verbosity level is not silent, the log messages will be printed to the output randomly.
		// And the application cannot guarantee the prettified output to human users because stdout and stderr are visualized on the same screen.
		// This is not a problem to machines because the log messages are sent to stderr which is another file descriptor.
		//
		// Therefore, we will buffer the output and send at once when all the crawls are done.
		writeResult = bufferedJSONResultWriter(cfg.OutWriter, cfg.PrettyOutput, log)
	} else {
		// When the verbosity level is silent, there is no log messages to print. It would be great to see the progress of the program rather than waiting till
		// the end. Therefore, the program could print out each report as soon as its crawl finishes.
		writeResult = unbufferedJSONResultWriter(cfg.OutWriter, cfg.ErrWriter, cfg.PrettyOutput)
	}

	publishSource := bufferedSourcePublisher(log)

	return doCrawl(runCrawl, publishSource, writeResult, inputSource, log)
}

// initLogger returns a new logger.
//
// If the verbosity level is silent, all the log messages will be discarded by sending them to io.Discard.
// Otherwise, the logger will write to the stderr writer.
//
// Then the verbosity level is
// - VerbosityLevelError, the log level will be set to logger.ErrorLevel.
// - VerbosityLevelDebug, the log level will be set to logger.DebugLevel.
func initLogger(level VerbosityLevel, errWriter io.Writer) ctxd.Logger {
	logCfg := logger.Config{
		Output: io.Discard,
		Level:  logger.ErrorLevel,
	}

	if level > VerbosityLevelSilent {
		logCfg.Output = errWriter
	}

	if level > VerbosityLevelError {
		logCfg.Level = logger.DebugLevel
	}

	return logger.NewLogger(logCfg)
}

// initInputSource returns the first valid input source.
//
// It accepts a list of input sources. The source types are:
// - []string: A list of start URLs. If the list is empty, it is ignored.
// - string: A file path that contains a list of start URLs, one on each line. If the path is empty, it is ignored.
// - io.ReadCloser: A reader that contains a list of start URLs, one on each line.
// - io.Reader: A reader that contains a list of start URLs, one on each line.
//
// The function returns an input source as an io.ReadCloser so that it can be streamed and closed by the caller.
//
// nolint: cyclop,goerr113 // Error will be printed out.
func initInputSource(sources ...any) (io.ReadCloser, ExitCode, error) {
	for _, source := range sources {
		switch s := source.(type) {
		case nil:
			continue

		case []string:
			if len(s) == 0 {
				continue
			}

			return io.NopCloser(strings.NewReader(strings.Join(s, "\n"))), CodeOK, nil

		case string:
			if len(s) == 0 {
				continue
			}

			f, err := os.Open(filepath.Clean(s))
			if err != nil {
				return nil, CodeErrOpenInputSource, fmt.Errorf("could not open input file: %w", err)
			}

			return f, CodeOK, nil

		case io.ReadCloser:
			return s, CodeOK, nil

		case io.Reader:
			return io.NopCloser(s), CodeOK, nil

		default:
			return nil, CodeErrUnsupportedInputSource, fmt.Errorf("unsupported input source: %T", s)
		}
	}

	return nil, CodeErrNoInputSource, errors.New("no input source")
}

// initCrawlRunner validates the crawl configuration and builds the runner that turns
// one start url into one crawl report.
//
// The returned cleanup function closes the status sink, if one is configured.
//
// nolint: goerr113 // Error will be printed out.
func initCrawlRunner(cfg Config, log ctxd.Logger) (crawlRunner, func(), error) {
	mode := crawler.Mode(cfg.Mode)
	if cfg.Mode == "" {
		mode = crawler.ModeLimited
	}

	switch mode {
	case crawler.ModeSingle, crawler.ModeLimited, crawler.ModeDeep:
	default:
		return nil, nil, fmt.Errorf("unknown crawl mode %q", cfg.Mode)
	}

	if cfg.MaxDepth < 0 {
		return nil, nil, errors.New("max depth must be greater than 0")
	}

	if cfg.MaxPages < 0 {
		return nil, nil, errors.New("max pages must be greater than 0")
	}

	if cfg.FetchInterval < 0 {
		return nil, nil, errors.New("fetch interval must be greater than 0")
	}

	var sink status.Sink

	cleanup := func() {}

	if cfg.StatusDSN != "" {
		pgSink, err := status.NewPostgresSink(cfg.StatusDSN)
		if err != nil {
			return nil, nil, err
		}

		sink = pgSink
		cleanup = func() {
			_ = pgSink.Close() // nolint: errcheck
		}
	}

	run := func(ctx context.Context, startURL string) crawlReport {
		job, err := crawler.JobFromSource(crawler.Source{
			ID:       cfg.SourceID,
			URL:      startURL,
			Mode:     mode,
			MaxPages: cfg.MaxPages,
			MaxDepth: cfg.MaxDepth,
			IsActive: true,
		})
		if err != nil {
			log.Error(ctx, "could not build crawl job", "source", startURL, "error", err)

			return failedCrawlReport(startURL, err)
		}

		if cfg.Timeout > 0 {
			job.Timeout = cfg.Timeout
		}

		// The reporter carries per-run throttling state, so each crawl gets its own,
		// same as the crawler itself.
		opts := []crawler.Option{
			crawler.WithLogger(log),
			crawler.WithStatusReporter(status.NewReporter(sink, cfg.SourceID, status.WithLogger(log))),
		}

		if cfg.FetchInterval > 0 {
			opts = append(opts, crawler.WithFetchLimiter(rate.NewLimiter(rate.Every(cfg.FetchInterval), 1)))
		}

		c := crawler.New(job, opts...)

		return toCrawlReport(startURL, c.Crawl(ctx))
	}

	return run, cleanup, nil
}

// doCrawl crawls every start url from the input source and writes the reports to the output.
//
// In case of SIGINT or SIGTERM, the running crawl is stopped at its next budget check
// and the function will return CodeErrOperationCanceled; the reports accumulated so far
// are still written, partial data is never lost.
// In case of output error, the function will return CodeErrOutput.
func doCrawl(runCrawl crawlRunner, publishSource sourcePublisher, writeResult resultWriter, source io.Reader, log ctxd.Logger) ExitCode {
	ctx, cancel := context.WithCancel(context.Background())

	go footprint.Track(ctx, log)

	code := CodeOK
	codeMu := &sync.Mutex{}
	sigs := make(chan os.Signal, 1)

	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(2) // nolint: gomnd // WaitGroup is used to wait for goroutines to finish.

	go func() { // Watch for termination to cancel the context in order to stop the running crawl.
		defer wg.Done()
		defer close(sigs)
		defer signal.Stop(sigs)

		select {
		case <-sigs:
			codeMu.Lock()
			code = CodeErrOperationCanceled
			codeMu.Unlock()

			cancel()
		case <-ctx.Done():
			return
		}
	}()

	go func() {
		defer wg.Done()
		defer cancel()

		urlsCh := publishSource(ctx, source)
		reports := make(chan crawlReport)

		go func() {
			defer close(reports)

			for startURL := range urlsCh {
				reports <- runCrawl(ctx, startURL)
			}
		}()

		wCode := writeResult(reports)

		codeMu.Lock()
		defer codeMu.Unlock()

		if wCode != CodeOK && code != CodeErrOperationCanceled {
			code = wCode
		}
	}()

	wg.Wait()

	return code
}
