package cli

import (
	"bufio"
	"context"
	"io"

	"github.com/bool64/ctxd"
)

// sourcePublisher is a function that reads start urls from a source and publishes them
// to a channel, one crawl per url.
type sourcePublisher func(ctx context.Context, source io.Reader) <-chan string

// publishBufferSize keeps a couple of start urls ready while the current crawl runs.
// Crawls are sequential, a bigger buffer would not help.
const publishBufferSize = 2

// bufferedSourcePublisher creates a publisher that scans a source line by line and
// stops early when the context is canceled.
func bufferedSourcePublisher(log ctxd.Logger) sourcePublisher {
	return func(ctx context.Context, source io.Reader) <-chan string {
		urlsCh := make(chan string, publishBufferSize)

		go func() {
			defer close(urlsCh)

			s := bufio.NewScanner(source)

		process:
			for {
				select {
				case <-ctx.Done():
					log.Debug(ctx, "source publisher stopped")

					return

				default:
					if !s.Scan() {
						break process
					}

					startURL := s.Text()
					if startURL == "" {
						continue
					}

					log.Debug(ctx, "publishing start url", "source", startURL)

					urlsCh <- startURL
				}
			}

			if err := s.Err(); err != nil {
				log.Error(ctx, "could not read input for publishing", "error", err)
			}
		}()

		return urlsCh
	}
}
