package crawler

import "time"

// PageResult is one successfully fetched and transformed page.
type PageResult struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Stats summarizes one crawl invocation. It is computed once, from the final state of
// the frontier, seen-set and result lists, when the traversal loop exits.
type Stats struct {
	// PagesFound is the number of urls dequeued for processing, an approximation of
	// the total discovered.
	PagesFound int `json:"pages_found"`
	// PagesProcessed is the number of pages that were fetched and transformed.
	PagesProcessed int `json:"pages_processed"`
	// TotalTokens is a size proxy: the summed content length of all pages. It is not
	// a real tokenizer count.
	TotalTokens int `json:"total_tokens"`
	// CrawlDuration is the wall-clock time between crawl start and stats construction.
	CrawlDuration time.Duration `json:"crawl_duration"`
	// FailedPages lists the urls whose processing failed after retries.
	FailedPages []string `json:"failed_pages"`
	// Errors lists human-readable failure messages, including a budget-boundary entry
	// when the crawl was cut short by its deadline.
	Errors []string `json:"errors"`
}

// Result is the single output of one crawl invocation. It is produced whether the crawl
// finishes naturally, exhausts a budget, or is canceled: partial data is never lost.
type Result struct {
	Pages []PageResult `json:"pages"`
	Stats Stats        `json:"stats"`
}

// crawlState is the mutable working set of one crawl, owned exclusively by the
// traversal loop.
type crawlState struct {
	frontier    frontier
	seen        seenSet
	pages       []PageResult
	failedPages []string
	errors      []string
}

func newCrawlState() *crawlState {
	return &crawlState{
		seen:        make(seenSet),
		pages:       make([]PageResult, 0),
		failedPages: make([]string, 0),
		errors:      make([]string, 0),
	}
}

// fail records a failed page in both failure lists.
func (s *crawlState) fail(url string, err error) {
	s.failedPages = append(s.failedPages, url)
	s.errors = append(s.errors, url+": "+err.Error())
}

// stats folds the final state into a report.
func (s *crawlState) stats(elapsed time.Duration) Stats {
	totalTokens := 0

	for _, p := range s.pages {
		totalTokens += len(p.Content)
	}

	return Stats{
		PagesFound:     len(s.seen),
		PagesProcessed: len(s.pages),
		TotalTokens:    totalTokens,
		CrawlDuration:  elapsed,
		FailedPages:    s.failedPages,
		Errors:         s.errors,
	}
}
