package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/bool64/ctxd"
	"golang.org/x/net/html"
)

// initialLinksCapacity is the initial capacity of the links slice, it does not mean this is the maximum capacity.
// It is just not recommended to have more than 100 links in a document due to SEO (Page Ranking) reason.
// Ref: https://moz.com/blog/how-many-links-is-too-many
const initialLinksCapacity = 100

// LinkExtractor collects followable anchor targets from HTML documents.
//
// Extraction is scoped to a single origin host, fixed at construction: resolved links
// whose hostname differs from it are dropped, so a crawl cannot drift onto subdomains
// or foreign sites page by page.
type LinkExtractor struct {
	origin string
	log    ctxd.Logger
}

// Extract parses anchor elements from r, resolves their hrefs against base and returns
// the absolute urls that are fetchable (http or https) and on the extractor's origin.
//
// Empty, fragment-only, mailto: and tel: hrefs are skipped. A href that fails to parse
// is logged and skipped without failing the page. The returned list is not
// deduplicated; that is the caller's concern.
func (e *LinkExtractor) Extract(ctx context.Context, r io.Reader, base *url.URL) ([]string, error) {
	z := html.NewTokenizer(r)
	links := make([]string, 0, initialLinksCapacity)

process:
	for {
		switch tt := z.Next(); tt { // nolint: exhaustive // Only tag tokens can carry an href.
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				break process
			}

			return nil, fmt.Errorf("could not extract links from html doc: %w", z.Err())

		case html.StartTagToken, html.SelfClosingTagToken:
			tag := z.Token()
			if tag.Data != "a" {
				continue
			}

			for _, attr := range tag.Attr {
				if attr.Key != "href" {
					continue
				}

				// In HTML, \n does not mean new line. Browser will ignore it, so link like "\nhttps://example.org/\npath"
				// will be interpreted as "https://example.org/path".
				href := strings.ReplaceAll(attr.Val, "\n", "")

				if link, ok := e.resolve(ctx, href, base); ok {
					links = append(links, link)
				}

				break
			}
		}
	}

	// Reduce memory allocation. GC will clean up the old links slice.
	result := make([]string, len(links))
	copy(result, links)

	return result, nil
}

// resolve turns one href into an absolute same-origin url, reporting whether it should
// be followed.
func (e *LinkExtractor) resolve(ctx context.Context, href string, base *url.URL) (string, bool) {
	href = strings.TrimSpace(href)

	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return "", false
	}

	linkURL, err := url.Parse(href)
	if err != nil {
		e.log.Warn(ctx, "failed to parse link", "link", href, "error", err)

		return "", false
	}

	if linkURL.Scheme != "" && linkURL.Scheme != "http" && linkURL.Scheme != "https" {
		return "", false
	}

	resolved := base.ResolveReference(linkURL)
	if resolved.Hostname() != e.origin {
		return "", false
	}

	// Fragments address positions inside a page, not pages; dropping them keeps the
	// frontier free of aliases of the same url.
	resolved.Fragment = ""

	return resolved.String(), true
}

// New creates a LinkExtractor scoped to the given origin hostname.
func New(origin string, opts ...Option) *LinkExtractor {
	e := &LinkExtractor{
		origin: origin,
		log:    ctxd.NoOpLogger{},
	}

	for _, opt := range opts {
		opt.applyLinkExtractorOption(e)
	}

	return e
}

// Option is option to set up LinkExtractor.
type Option interface {
	applyLinkExtractorOption(e *LinkExtractor)
}

type linkExtractorOptionFunc func(e *LinkExtractor)

func (f linkExtractorOptionFunc) applyLinkExtractorOption(e *LinkExtractor) {
	f(e)
}

// WithLogger sets logger for LinkExtractor.
func WithLogger(l ctxd.Logger) Option {
	return linkExtractorOptionFunc(func(e *LinkExtractor) {
		e.log = l
	})
}
