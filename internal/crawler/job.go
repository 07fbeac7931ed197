package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// ErrMissingHostname indicates that the start url is missing hostname.
	ErrMissingHostname = Error("missing hostname")
	// ErrUnsupportedScheme indicates that the start url contains an unsupported scheme.
	ErrUnsupportedScheme = Error("unsupported scheme")
	// ErrSourceInactive indicates that the crawl source record is disabled and must not be crawled.
	ErrSourceInactive = Error("source is not active")
	// ErrUnknownMode indicates that the crawl mode of the source record is not recognized.
	ErrUnknownMode = Error("unknown crawl mode")
	// ErrInvalidDepth indicates that the max depth is smaller than 1.
	ErrInvalidDepth = Error("max depth must be greater than 0")
	// ErrInvalidPageBudget indicates that the max pages is smaller than 1.
	ErrInvalidPageBudget = Error("max pages must be greater than 0")
)

// Mode selects the crawl footprint when a source record does not pin explicit limits.
type Mode string

const (
	// ModeSingle fetches the start url only.
	ModeSingle = Mode("single")
	// ModeLimited follows links one level away from the start url.
	ModeLimited = Mode("limited")
	// ModeDeep walks the origin up to the configured depth.
	ModeDeep = Mode("deep")
)

// Per-mode defaults, applied by JobFromSource when the source record leaves a limit unset.
const (
	singleModeTimeout = time.Minute

	limitedModeDepth   = 2
	limitedModePages   = 10
	limitedModeTimeout = 5 * time.Minute

	deepModeDepth   = 3
	deepModePages   = 100
	deepModeTimeout = 15 * time.Minute
)

// Source is the crawl configuration record owned by the admin application. The crawler
// only reads it; lifecycle and persistence belong to the configuration collaborator.
type Source struct {
	ID        string
	URL       string
	Namespace string
	Mode      Mode
	MaxPages  int // Optional override. Zero means the mode default.
	MaxDepth  int // Optional override. Zero means the mode default.
	IsActive  bool
}

// Job is the immutable input of a single crawl invocation.
type Job struct {
	StartURL  *url.URL
	MaxDepth  int
	MaxPages  int
	Timeout   time.Duration // Zero means no overall deadline.
	SourceID  string        // Optional identity for status persistence.
	Namespace string
}

// NewJob builds a crawl job from explicit limits.
//
// The start url can be with or without scheme, but must have a hostname. If the scheme
// is missing, default to https.
func NewJob(startURL string, maxDepth, maxPages int, timeout time.Duration) (Job, error) {
	u, err := parseStartURL(startURL)
	if err != nil {
		return Job{}, err
	}

	if maxDepth < 1 {
		return Job{}, ErrInvalidDepth
	}

	if maxPages < 1 {
		return Job{}, ErrInvalidPageBudget
	}

	return Job{
		StartURL: u,
		MaxDepth: maxDepth,
		MaxPages: maxPages,
		Timeout:  timeout,
	}, nil
}

// JobFromSource derives a crawl job from a source record, filling the limits the record
// leaves unset from its crawl mode.
//
// This is the only pre-flight gate: an inactive record or an unusable url fails here,
// before any traversal work has begun.
func JobFromSource(s Source) (Job, error) {
	if !s.IsActive {
		return Job{}, fmt.Errorf("source %q: %w", s.ID, ErrSourceInactive)
	}

	maxDepth, maxPages, timeout := s.MaxDepth, s.MaxPages, time.Duration(0)

	switch s.Mode {
	case ModeSingle:
		maxDepth, maxPages, timeout = 1, 1, singleModeTimeout

	case ModeLimited:
		if maxDepth == 0 {
			maxDepth = limitedModeDepth
		}

		if maxPages == 0 {
			maxPages = limitedModePages
		}

		timeout = limitedModeTimeout

	case ModeDeep:
		if maxDepth == 0 {
			maxDepth = deepModeDepth
		}

		if maxPages == 0 {
			maxPages = deepModePages
		}

		timeout = deepModeTimeout

	default:
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownMode, s.Mode)
	}

	job, err := NewJob(s.URL, maxDepth, maxPages, timeout)
	if err != nil {
		return Job{}, err
	}

	job.SourceID = s.ID
	job.Namespace = s.Namespace

	return job, nil
}

// parseStartURL parses the start url string into an url.URL.
//
// - If the url string does not have a scheme, it will default to https.
// - If the url string is not a valid url, it will return an error.
// - If the url string does not start with http and https, it will return an error.
func parseStartURL(s string) (*url.URL, error) {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, err // nolint: wrapcheck // *url.URL error is meaningful, we do not need to wrap it.
	}

	if u.Host == "" {
		return nil, fmt.Errorf("parse %q: %w", s, ErrMissingHostname)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse %q: %w %q", s, ErrUnsupportedScheme, u.Scheme)
	}

	return u, nil
}
