package crawler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bool64/ctxd"
	"golang.org/x/time/rate"

	"github.com/Little-Town-Labs/forge-sub000/internal/extractor"
	"github.com/Little-Town-Labs/forge-sub000/internal/status"
	"github.com/Little-Town-Labs/forge-sub000/internal/transform"
)

const (
	// defaultMaxRetries is the number of additional attempts after the first failed fetch.
	defaultMaxRetries = 3
	// defaultBackoffBase is the delay before the first retry; it doubles per attempt.
	defaultBackoffBase = time.Second
	// defaultClientTimeout bounds a single fetch attempt, independently of the overall
	// crawl deadline.
	defaultClientTimeout = 30 * time.Second

	// defaultUserAgent identifies the crawler to the sites it visits.
	defaultUserAgent = `ForgeKnowledgeBot/1.0 (+https://github.com/Little-Town-Labs/forge-sub000)`

	// finalReportTimeout bounds the final status write, which must survive the crawl
	// deadline it reports on.
	finalReportTimeout = 10 * time.Second
)

// Crawler walks one origin breadth-first, starting from the job's start url, within the
// job's depth, page and time budgets.
//
// An instance is single-use: one job, one Crawl call, one Result. There is no reset
// logic; run another job by constructing another Crawler.
type Crawler struct {
	job Job

	client    *http.Client
	extractor *extractor.LinkExtractor
	transform transform.Transformer
	policy    LinkPolicy
	reporter  *status.Reporter
	limiter   *rate.Limiter
	log       ctxd.Logger

	maxRetries  int
	backoffBase time.Duration
	userAgent   string
}

// New creates a single-use Crawler for the given job.
func New(job Job, opts ...Option) *Crawler {
	c := &Crawler{
		job: job,

		client:    &http.Client{}, // Default HTTP Client.
		transform: transform.NewHTMLTransformer(),
		policy:    allowAllPolicy{},
		log:       ctxd.NoOpLogger{},

		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
		userAgent:   defaultUserAgent,
	}

	for _, opt := range opts {
		opt.applyCrawlerOption(c)
	}

	// Safeguard the retry policy.
	if c.maxRetries < 0 {
		c.maxRetries = defaultMaxRetries
	}

	if c.backoffBase <= 0 {
		c.backoffBase = defaultBackoffBase
	}

	if c.client.Timeout == 0 {
		c.client.Timeout = defaultClientTimeout
	}

	// Link scoping is anchored to the crawl origin, not to each visited page, so the
	// scope cannot drift across subdomains as the crawl follows links.
	c.extractor = extractor.New(job.StartURL.Hostname(), extractor.WithLogger(c.log))

	return c
}

// Crawl runs the traversal and always returns a result.
//
// Per-url failures are absorbed into the result's failure lists, and cancellation or
// deadline expiry is a budget boundary, not an exception: whatever was accumulated up
// to that point is returned.
func (c *Crawler) Crawl(ctx context.Context) *Result {
	startTime := time.Now()

	ctx = ctxd.AddFields(ctx,
		"crawl.origin", c.job.StartURL.Hostname(),
		"crawl.source_id", c.job.SourceID,
	)

	if c.job.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.job.Timeout)
		defer cancel()
	}

	c.log.Debug(ctx, "started crawl",
		"crawl.start_url", c.job.StartURL.String(),
		"crawl.max_depth", c.job.MaxDepth,
		"crawl.max_pages", c.job.MaxPages,
		"crawl.timeout", c.job.Timeout.String(),
	)

	c.reporter.Started(ctx)

	st := newCrawlState()
	st.frontier.push(c.job.StartURL.String(), 0)

	canceled := false

loop:
	for st.frontier.len() > 0 && len(st.pages) < c.job.MaxPages {
		select {
		case <-ctx.Done():
			canceled = true

			break loop

		default:
		}

		entry, _ := st.frontier.pop()

		if entry.depth >= c.job.MaxDepth || st.seen.has(entry.url) {
			continue
		}

		entryURL, err := url.Parse(entry.url)
		if err != nil {
			// Frontier entries are resolved absolute urls, so this should not happen.
			c.log.Error(ctx, "failed to parse frontier url", "crawl.url", entry.url, "error", err)

			continue
		}

		if !c.policy.Allow(ctx, entryURL) {
			c.log.Debug(ctx, "url denied by link policy", "crawl.url", entry.url)

			continue
		}

		st.seen.add(entry.url)

		c.processEntry(ctx, st, entry, entryURL)

		c.reporter.Progress(ctx, len(st.pages)+len(st.failedPages), len(st.pages))
	}

	if canceled {
		c.log.Debug(ctx, "crawl canceled, returning partial result", "error", ctx.Err())

		st.errors = append(st.errors, "crawl aborted: "+ctx.Err().Error())
	}

	result := &Result{
		Pages: st.pages,
		Stats: st.stats(time.Since(startTime)),
	}

	c.reportFinal(ctx, result)

	c.log.Debug(ctx, "finished crawl",
		"crawl.pages_found", result.Stats.PagesFound,
		"crawl.pages_processed", result.Stats.PagesProcessed,
		"crawl.failed_pages", len(result.Stats.FailedPages),
		"crawl.duration", result.Stats.CrawlDuration.String(),
	)

	return result
}

// processEntry fetches, transforms and expands a single frontier entry. Failures are
// recorded in the crawl state and never propagate.
func (c *Crawler) processEntry(ctx context.Context, st *crawlState, entry frontierEntry, entryURL *url.URL) {
	ctx = ctxd.AddFields(ctx, "crawl.url", entry.url, "crawl.depth", entry.depth)

	body, err := c.fetchWithRetry(ctx, entry.url)
	if err != nil {
		c.log.Error(ctx, "failed to fetch page", "error", err)

		st.fail(entry.url, err)

		return
	}

	content, err := c.transform.Text(strings.NewReader(body))
	if err != nil {
		c.log.Error(ctx, "failed to transform page", "error", err)

		st.fail(entry.url, err)

		return
	}

	st.pages = append(st.pages, PageResult{URL: entry.url, Content: content})

	// Pages at the last allowed depth are fetched but treated as leaves: their
	// outbound links are not enqueued, so the frontier never grows past the budget.
	if entry.depth >= c.job.MaxDepth-1 {
		return
	}

	links, err := c.extractor.Extract(ctx, strings.NewReader(body), entryURL)
	if err != nil {
		// The page content already made it into the result; a malformed document only
		// costs us its outbound links.
		c.log.Error(ctx, "failed to extract links", "error", err)

		st.errors = append(st.errors, entry.url+": "+err.Error())

		return
	}

	for _, link := range links {
		if !st.seen.has(link) {
			st.frontier.push(link, entry.depth+1)
		}
	}
}

// reportFinal derives the crawl status from the aggregated stats and writes it to the
// status sink, together with the page count and a joined error message.
//
// The write runs on a context detached from the crawl's cancellation: when the crawl
// ends because its deadline expired or it was interrupted, the incoming context is
// already done, and a sink that honors it would reject the very outcome we are trying
// to persist. Logging fields are preserved; only the cancellation is dropped.
func (c *Crawler) reportFinal(ctx context.Context, result *Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalReportTimeout)
	defer cancel()

	errMsg := ""
	if len(result.Stats.Errors) > 0 {
		errMsg = strings.Join(result.Stats.Errors, "; ")
	}

	c.reporter.Finished(ctx,
		status.Derive(result.Stats.PagesProcessed, len(result.Stats.Errors)),
		result.Stats.PagesProcessed,
		errMsg,
	)
}

// Option is option to set up a Crawler.
type Option interface {
	applyCrawlerOption(c *Crawler)
}

type crawlerOptionFunc func(c *Crawler)

func (f crawlerOptionFunc) applyCrawlerOption(c *Crawler) {
	f(c)
}

// WithLogger sets logger for Crawler.
func WithLogger(l ctxd.Logger) Option {
	return crawlerOptionFunc(func(c *Crawler) {
		c.log = l
	})
}

// WithHTTPClient sets the http client used for fetching pages.
func WithHTTPClient(client *http.Client) Option {
	return crawlerOptionFunc(func(c *Crawler) {
		c.client = client
	})
}

// WithClientTimeout sets timeout for a single fetch attempt.
func WithClientTimeout(d time.Duration) Option {
	return crawlerOptionFunc(func(c *Crawler) {
		c.client.Timeout = d
	})
}

// WithTransformer sets the content transformer that turns raw HTML into clean text.
func WithTransformer(t transform.Transformer) Option {
	return crawlerOptionFunc(func(c *Crawler) {
		c.transform = t
	})
}

// WithLinkPolicy sets the policy consulted before each fetch.
func WithLinkPolicy(p LinkPolicy) Option {
	return crawlerOptionFunc(func(c *Crawler) {
		c.policy = p
	})
}

// WithStatusReporter sets the reporter that pushes progress and final status to the
// persistence collaborator. A nil reporter disables reporting.
func WithStatusReporter(r *status.Reporter) Option {
	return crawlerOptionFunc(func(c *Crawler) {
		c.reporter = r
	})
}

// WithFetchLimiter sets a politeness limiter that paces fetch attempts against the
// target site. No limiter means no pacing.
func WithFetchLimiter(l *rate.Limiter) Option {
	return crawlerOptionFunc(func(c *Crawler) {
		c.limiter = l
	})
}

// WithUserAgent sets the client identity header sent with every fetch.
func WithUserAgent(ua string) Option {
	return crawlerOptionFunc(func(c *Crawler) {
		c.userAgent = ua
	})
}

// WithMaxRetries sets the number of additional fetch attempts after a retryable failure.
func WithMaxRetries(n int) Option {
	return crawlerOptionFunc(func(c *Crawler) {
		c.maxRetries = n
	})
}

// WithBackoffBase sets the delay before the first retry. Subsequent retries double it.
func WithBackoffBase(d time.Duration) Option {
	return crawlerOptionFunc(func(c *Crawler) {
		c.backoffBase = d
	})
}
