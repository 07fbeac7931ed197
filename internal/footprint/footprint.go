package footprint

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/bool64/ctxd"
)

// reportInterval is deliberately coarse: a crawl spends most of its time waiting on
// the network or backing off, a finer grain would only repeat the same numbers.
const reportInterval = 5 * time.Second

// Track logs the memory usage of the running crawl until the context is canceled.
func Track(ctx context.Context, log ctxd.Logger) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-time.After(reportInterval):
			// See: https://golang.org/pkg/runtime/#MemStats
			var m runtime.MemStats

			runtime.ReadMemStats(&m)

			log.Debug(ctx, "memory usage",
				"alloc_mb", formatB(m.Alloc),
				"total_alloc_mb", formatB(m.TotalAlloc),
				"sys_mb", formatB(m.Sys),
				"num_gc", m.NumGC,
			)
		}
	}
}

func formatB(b uint64) string {
	return fmt.Sprintf("%dMiB", b/1024/1024) // nolint: gomnd // bytes conversion.
}
