package status

import (
	"context"
	"time"
)

// Status is the lifecycle state of a crawl source record.
type Status string

const (
	// Pending means the source has never been crawled.
	Pending = Status("pending")
	// InProgress means a crawl is currently running for the source.
	InProgress = Status("in_progress")
	// Success means the last crawl processed every discovered page without failures.
	Success = Status("success")
	// PartialSuccess means the last crawl processed at least one page but recorded
	// failures as well.
	PartialSuccess = Status("partial_success")
	// Failed means the last crawl processed no pages at all.
	Failed = Status("failed")
)

// Derive maps the outcome of a finished crawl to its final status.
//
// Even a Failed crawl may carry partial pages in its result; the status only reflects
// whether the run produced anything and whether it was clean.
func Derive(pagesProcessed, failures int) Status {
	switch {
	case pagesProcessed == 0:
		return Failed

	case failures > 0:
		return PartialSuccess

	default:
		return Success
	}
}

// Update is one status write for a source record.
type Update struct {
	Status       Status
	LastCrawled  time.Time
	PagesIndexed *int // nil leaves the persisted count untouched.
	ErrorMessage string
}

// Sink persists status updates for crawl source records. It is an external
// collaborator: the crawler calls into it but does not own its lifecycle, and its
// failures must never alter a crawl's outcome.
type Sink interface {
	Update(ctx context.Context, sourceID string, u Update) error
}
