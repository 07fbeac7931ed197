package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bool64/ctxd"

	"github.com/Little-Town-Labs/forge-sub000/internal/crawler"
	"github.com/Little-Town-Labs/forge-sub000/internal/status"
)

const jsonIndent = "  "

// resultWriter is a function that writes crawl reports to a writer.
type resultWriter func(reports <-chan crawlReport) ExitCode

// nolint: tagliatelle
type crawlReport struct {
	StartURL       string               `json:"start_url"`
	Status         string               `json:"status"`
	PagesFound     int                  `json:"pages_found"`
	PagesProcessed int                  `json:"pages_processed"`
	TotalTokens    int                  `json:"total_tokens"`
	DurationMS     int64                `json:"duration_ms"`
	FailedPages    []string             `json:"failed_pages"`
	Errors         []string             `json:"errors"`
	Pages          []crawler.PageResult `json:"pages"`
}

// bufferedJSONResultWriter creates a result writer that collects the crawl reports in
// memory and writes them to the output at the end of the process.
//
// In case of error while writing to the output, the error will be logged and the
// process will stop with exit code CodeErrOutput.
func bufferedJSONResultWriter(out io.Writer, pretty bool, log ctxd.Logger) resultWriter {
	return func(reports <-chan crawlReport) (code ExitCode) {
		code = CodeOK
		ctx := context.Background()
		buf := make([]crawlReport, 0)

		defer func() {
			enc := json.NewEncoder(out)

			if pretty {
				enc.SetIndent("", jsonIndent)
			}

			if err := enc.Encode(buf); err != nil {
				code = CodeErrOutput

				log.Error(ctx, "failed to encode report", "error", err)
			}
		}()

		for r := range reports {
			log.Debug(ctx, "received crawl report", "start_url", r.StartURL, "status", r.Status)

			buf = append(buf, r)
		}

		return code
	}
}

// unbufferedJSONResultWriter creates a result writer that writes each crawl report to
// the output as soon as it is ready.
//
// In case of error while writing to the output, the error will be printed to the error
// output and the process will stop with exit code CodeErrOutput.
func unbufferedJSONResultWriter(out, outErr io.Writer, pretty bool) resultWriter {
	return func(reports <-chan crawlReport) (code ExitCode) {
		writeErr := func(format string, args ...interface{}) {
			code = CodeErrOutput
			_, _ = fmt.Fprintf(outErr, format, args...)
		}

		buf := new(bytes.Buffer)
		enc := json.NewEncoder(buf)
		join := ""

		newL, startIndent, joinTmpl := "", "", ","

		if pretty {
			newL, startIndent = "\n", jsonIndent
			joinTmpl = ",\n" + startIndent

			enc.SetIndent(jsonIndent, jsonIndent)
		}

		if _, err := fmt.Fprint(out, "[", newL, startIndent); err != nil {
			writeErr("could not write [ to output: %s\n", err)

			return
		}

		defer func() {
			if code != CodeOK {
				return
			}

			if _, err := fmt.Fprint(out, newL, "]\n"); err != nil {
				writeErr("could not write ] to output: %s\n", err)
			}
		}()

		for report := range reports {
			buf.Reset()

			if err := enc.Encode(report); err != nil { // This should not happen.
				writeErr("could not encode %q report: %s", report.StartURL, err.Error())

				return
			}

			if _, err := fmt.Fprint(out, join, strings.Trim(buf.String(), "\r\n")); err != nil {
				writeErr("could not write %q report: %s", report.StartURL, err.Error())

				return
			}

			join = joinTmpl
		}

		return CodeOK
	}
}

// toCrawlReport flattens a crawl result and its derived status for output.
func toCrawlReport(startURL string, result *crawler.Result) crawlReport {
	st := status.Derive(result.Stats.PagesProcessed, len(result.Stats.Errors))

	return crawlReport{
		StartURL:       startURL,
		Status:         string(st),
		PagesFound:     result.Stats.PagesFound,
		PagesProcessed: result.Stats.PagesProcessed,
		TotalTokens:    result.Stats.TotalTokens,
		DurationMS:     result.Stats.CrawlDuration.Milliseconds(),
		FailedPages:    result.Stats.FailedPages,
		Errors:         result.Stats.Errors,
		Pages:          result.Pages,
	}
}

// failedCrawlReport builds a report for a start url that could not produce a crawl job.
func failedCrawlReport(startURL string, err error) crawlReport {
	return crawlReport{
		StartURL:    startURL,
		Status:      string(status.Failed),
		FailedPages: []string{},
		Errors:      []string{err.Error()},
		Pages:       []crawler.PageResult{},
	}
}
