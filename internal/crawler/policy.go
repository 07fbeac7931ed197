package crawler

import (
	"context"
	"net/url"
)

// LinkPolicy decides whether a dequeued url may be fetched. It is the extension point
// for robots.txt support and other per-host exclusion rules, which are not implemented
// yet: the default policy permits everything.
type LinkPolicy interface {
	Allow(ctx context.Context, u *url.URL) bool
}

var _ LinkPolicy = (*allowAllPolicy)(nil)

type allowAllPolicy struct{}

func (allowAllPolicy) Allow(context.Context, *url.URL) bool {
	return true
}
