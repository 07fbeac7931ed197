package crawler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/nhatthm/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Little-Town-Labs/forge-sub000/internal/crawler"
	"github.com/Little-Town-Labs/forge-sub000/internal/status"
)

func TestCrawler_Crawl_SinglePage(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><head><title>Docs</title></head><body><h1>Hello</h1>
				<p>World</p>
				<a href="/never-fetched">next</a></body></html>`)
	})(t)

	job := mustNewJob(t, srv.URL(), 1, 1)
	result := crawler.New(job).Crawl(context.Background())

	// The only allowed depth is a leaf: the page is fetched, its links are not.
	require.Len(t, result.Pages, 1)
	assert.Equal(t, srv.URL(), result.Pages[0].URL)
	assert.Equal(t, "Hello World next", result.Pages[0].Content)

	assert.Equal(t, 1, result.Stats.PagesFound)
	assert.Equal(t, 1, result.Stats.PagesProcessed)
	assert.Equal(t, len(result.Pages[0].Content), result.Stats.TotalTokens)
	assert.GreaterOrEqual(t, result.Stats.CrawlDuration, time.Duration(0))
	assert.Empty(t, result.Stats.FailedPages)
	assert.Empty(t, result.Stats.Errors)
}

func TestCrawler_Crawl_FollowsSameOriginLinks(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>
				<a href="/a">a</a>
				<a href="/b">b</a>
				<a href="/a">a again</a>
				<a href="http://elsewhere.example.org/x">external</a>
				<a href="mailto:team@example.com">mail</a>
				<a href="#section">anchor</a>
				<a href="/c">c</a>
			</body></html>`)
		// Pages at the last allowed depth are leaves, their links must not be fetched.
		s.ExpectGet("/a").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Page A <a href="/d">deeper</a></body></html>`)
		s.ExpectGet("/b").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Page B</body></html>`)
		s.ExpectGet("/c").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Page C</body></html>`)
	})(t)

	job := mustNewJob(t, srv.URL(), 2, 10)
	result := crawler.New(job).Crawl(context.Background())

	require.Len(t, result.Pages, 4)
	assert.Equal(t, srv.URL(), result.Pages[0].URL)
	assert.Equal(t, srv.URL()+"/a", result.Pages[1].URL)
	assert.Equal(t, srv.URL()+"/b", result.Pages[2].URL)
	assert.Equal(t, srv.URL()+"/c", result.Pages[3].URL)

	assert.Equal(t, 4, result.Stats.PagesFound)
	assert.Equal(t, 4, result.Stats.PagesProcessed)
	assert.Empty(t, result.Stats.FailedPages)
	assert.Empty(t, result.Stats.Errors)
}

func TestCrawler_Crawl_PageBudget(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>
				<a href="/a">a</a>
				<a href="/b">b</a>
				<a href="/c">c</a>
			</body></html>`)
		s.ExpectGet("/a").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Page A</body></html>`)
	})(t)

	job := mustNewJob(t, srv.URL(), 3, 2)
	result := crawler.New(job).Crawl(context.Background())

	require.Len(t, result.Pages, 2)
	assert.Equal(t, 2, result.Stats.PagesProcessed)
	assert.Empty(t, result.Stats.FailedPages)
}

func TestCrawler_Crawl_OnePageFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body><a href="/a">a</a><a href="/b">b</a></body></html>`)
		s.ExpectGet("/a").
			ReturnCode(httpmock.StatusNotFound)
		s.ExpectGet("/b").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Page B</body></html>`)
	})(t)

	job := mustNewJob(t, srv.URL(), 2, 10)
	result := crawler.New(job).Crawl(context.Background())

	require.Len(t, result.Pages, 2)
	assert.Equal(t, srv.URL(), result.Pages[0].URL)
	assert.Equal(t, srv.URL()+"/b", result.Pages[1].URL)

	assert.Equal(t, []string{srv.URL() + "/a"}, result.Stats.FailedPages)
	require.Len(t, result.Stats.Errors, 1)
	assert.Contains(t, result.Stats.Errors[0], "unexpected status code: 404")
}

func TestCrawler_Crawl_RetryExhausted(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		// 1 attempt + 3 retries, all failing with a retryable status.
		for i := 0; i < 4; i++ {
			s.ExpectGet("/").
				ReturnCode(500)
		}
	})(t)

	job := mustNewJob(t, srv.URL(), 1, 1)
	result := crawler.New(job,
		crawler.WithBackoffBase(time.Millisecond),
	).Crawl(context.Background())

	assert.Empty(t, result.Pages)
	assert.Equal(t, []string{srv.URL()}, result.Stats.FailedPages)
	require.Len(t, result.Stats.Errors, 1)
	assert.Contains(t, result.Stats.Errors[0], "unexpected status code: 500")
}

func TestCrawler_Crawl_NoRetryOnClientError(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		// A 404 is permanent: exactly one attempt.
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusNotFound)
	})(t)

	job := mustNewJob(t, srv.URL(), 1, 1)
	result := crawler.New(job,
		crawler.WithBackoffBase(time.Millisecond),
	).Crawl(context.Background())

	assert.Empty(t, result.Pages)
	assert.Equal(t, []string{srv.URL()}, result.Stats.FailedPages)
}

func TestCrawler_Crawl_RetryOnRateLimitThenSuccess(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(429)
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Recovered</body></html>`)
	})(t)

	job := mustNewJob(t, srv.URL(), 1, 1)
	result := crawler.New(job,
		crawler.WithBackoffBase(time.Millisecond),
	).Crawl(context.Background())

	require.Len(t, result.Pages, 1)
	assert.Equal(t, "Recovered", result.Pages[0].Content)
	assert.Empty(t, result.Stats.FailedPages)
}

func TestCrawler_Crawl_EmptyBodyIsRetried(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK)
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Second time lucky</body></html>`)
	})(t)

	job := mustNewJob(t, srv.URL(), 1, 1)
	result := crawler.New(job,
		crawler.WithBackoffBase(time.Millisecond),
	).Crawl(context.Background())

	require.Len(t, result.Pages, 1)
	assert.Equal(t, "Second time lucky", result.Pages[0].Content)
}

func TestCrawler_Crawl_RetryBackoffDoubles(t *testing.T) {
	t.Parallel()

	const backoffBase = 20 * time.Millisecond

	var (
		mu       sync.Mutex
		attempts []time.Time
	)

	record := func(*http.Request) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()

		attempts = append(attempts, time.Now())

		// An empty body is a retryable failure.
		return nil, nil
	}

	srv := httpmock.New(func(s *httpmock.Server) {
		for i := 0; i < 4; i++ {
			s.ExpectGet("/").
				Run(record)
		}
	})(t)

	job := mustNewJob(t, srv.URL(), 1, 1)
	result := crawler.New(job,
		crawler.WithBackoffBase(backoffBase),
	).Crawl(context.Background())

	assert.Empty(t, result.Pages)
	assert.Equal(t, []string{srv.URL()}, result.Stats.FailedPages)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, attempts, 4)

	// The wait doubles per retry: base, then 2x, then 4x.
	for i, wait := range []time.Duration{backoffBase, 2 * backoffBase, 4 * backoffBase} {
		assert.GreaterOrEqual(t, attempts[i+1].Sub(attempts[i]), wait)
	}
}

func TestCrawler_Crawl_FetchLimiterPacesRequests(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body><a href="/a">a</a><a href="/b">b</a></body></html>`)
		s.ExpectGet("/a").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Page A</body></html>`)
		s.ExpectGet("/b").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Page B</body></html>`)
	})(t)

	const interval = 50 * time.Millisecond

	job := mustNewJob(t, srv.URL(), 2, 10)

	startTime := time.Now()
	result := crawler.New(job,
		crawler.WithFetchLimiter(rate.NewLimiter(rate.Every(interval), 1)),
	).Crawl(context.Background())

	require.Len(t, result.Pages, 3)
	assert.Empty(t, result.Stats.FailedPages)

	// The first fetch spends the burst, each of the next two waits a full interval.
	assert.GreaterOrEqual(t, time.Since(startTime), 2*interval)
}

func TestCrawler_Crawl_DeadlineYieldsPartialResult(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Start <a href="/a">a</a><a href="/b">b</a></body></html>`)
		s.ExpectGet("/a").
			Run(func(*http.Request) ([]byte, error) {
				// Outlive the crawl deadline so the in-flight fetch is aborted.
				time.Sleep(500 * time.Millisecond)

				return nil, nil
			})
	})(t)

	job := mustNewJob(t, srv.URL(), 2, 10)
	job.Timeout = 150 * time.Millisecond

	result := crawler.New(job).Crawl(context.Background())

	// The crawl was cut short, not failed: the start page survived, the blocked fetch
	// is a recorded failure and /b was never requested.
	require.Len(t, result.Pages, 1)
	assert.Equal(t, srv.URL(), result.Pages[0].URL)

	assert.Equal(t, []string{srv.URL() + "/a"}, result.Stats.FailedPages)
	require.Len(t, result.Stats.Errors, 2)
	assert.Contains(t, result.Stats.Errors[0], "operation canceled")
	assert.Contains(t, result.Stats.Errors[1], "crawl aborted")
}

func TestCrawler_Crawl_LinkPolicyDenies(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body><a href="/blocked">blocked</a><a href="/open">open</a></body></html>`)
		s.ExpectGet("/open").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Open</body></html>`)
	})(t)

	job := mustNewJob(t, srv.URL(), 2, 10)
	result := crawler.New(job,
		crawler.WithLinkPolicy(denyPathPolicy("/blocked")),
	).Crawl(context.Background())

	require.Len(t, result.Pages, 2)
	assert.Empty(t, result.Stats.FailedPages)
	// Denied entries are discarded without side effects, they are not failures and
	// they do not count as found.
	assert.Equal(t, 2, result.Stats.PagesFound)
}

func TestCrawler_Crawl_ReportsStatus(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Hello</body></html>`)
	})(t)

	sink := &recordingSink{}

	job, err := crawler.JobFromSource(crawler.Source{
		ID:       "42",
		URL:      srv.URL(),
		Mode:     crawler.ModeSingle,
		IsActive: true,
	})
	require.NoError(t, err)

	result := crawler.New(job,
		crawler.WithStatusReporter(status.NewReporter(sink, "42")),
	).Crawl(context.Background())

	require.Len(t, result.Pages, 1)

	updates := sink.Updates()
	require.Len(t, updates, 3)

	assert.Equal(t, status.InProgress, updates[0].Status)
	assert.Nil(t, updates[0].PagesIndexed)

	assert.Equal(t, status.InProgress, updates[1].Status)
	require.NotNil(t, updates[1].PagesIndexed)
	assert.Equal(t, 1, *updates[1].PagesIndexed)

	assert.Equal(t, status.Success, updates[2].Status)
	require.NotNil(t, updates[2].PagesIndexed)
	assert.Equal(t, 1, *updates[2].PagesIndexed)
	assert.Empty(t, updates[2].ErrorMessage)
}

func TestCrawler_Crawl_FinalStatusSurvivesDeadline(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Start <a href="/a">a</a></body></html>`)
		s.ExpectGet("/a").
			Run(func(*http.Request) ([]byte, error) {
				// Outlive the crawl deadline so the crawl ends on an expired context.
				time.Sleep(500 * time.Millisecond)

				return nil, nil
			})
	})(t)

	sink := &ctxHonoringSink{}

	job := mustNewJob(t, srv.URL(), 2, 10)
	job.SourceID = "42"
	job.Timeout = 150 * time.Millisecond

	result := crawler.New(job,
		crawler.WithStatusReporter(status.NewReporter(sink, "42")),
	).Crawl(context.Background())

	require.Len(t, result.Pages, 1)

	// The outcome of a timed-out crawl still reaches the sink: the final write must
	// not be rejected by the very deadline it reports on.
	updates := sink.Updates()
	require.Len(t, updates, 3)

	last := updates[2]
	assert.Equal(t, status.PartialSuccess, last.Status)
	require.NotNil(t, last.PagesIndexed)
	assert.Equal(t, 1, *last.PagesIndexed)
	assert.Contains(t, last.ErrorMessage, "crawl aborted")
}

func TestCrawler_Crawl_SinkFailuresDoNotAlterResult(t *testing.T) {
	t.Parallel()

	srv := httpmock.New(func(s *httpmock.Server) {
		s.ExpectGet("/").
			ReturnCode(httpmock.StatusOK).
			Return(`<html><body>Hello</body></html>`)
	})(t)

	sink := &recordingSink{err: fmt.Errorf("database is down")}

	job := mustNewJob(t, srv.URL(), 1, 1)
	job.SourceID = "42"

	result := crawler.New(job,
		crawler.WithStatusReporter(status.NewReporter(sink, "42")),
	).Crawl(context.Background())

	require.Len(t, result.Pages, 1)
	assert.Empty(t, result.Stats.FailedPages)
	assert.Empty(t, result.Stats.Errors)
}

func mustNewJob(t *testing.T, startURL string, maxDepth, maxPages int) crawler.Job {
	t.Helper()

	job, err := crawler.NewJob(startURL, maxDepth, maxPages, 0)
	require.NoError(t, err)

	return job
}

// denyPathPolicy denies urls whose path matches, everything else is allowed.
type denyPathPolicy string

func (p denyPathPolicy) Allow(_ context.Context, u *url.URL) bool {
	return u.Path != string(p)
}

// recordingSink captures status updates for assertions.
type recordingSink struct {
	mu      sync.Mutex
	updates []status.Update
	err     error
}

func (s *recordingSink) Update(_ context.Context, _ string, u status.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.updates = append(s.updates, u)

	return nil
}

func (s *recordingSink) Updates() []status.Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]status.Update(nil), s.updates...)
}

// ctxHonoringSink records updates but rejects writes on a done context, the way any
// database-backed sink does.
type ctxHonoringSink struct {
	recordingSink
}

func (s *ctxHonoringSink) Update(ctx context.Context, sourceID string, u status.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.recordingSink.Update(ctx, sourceID, u)
}
