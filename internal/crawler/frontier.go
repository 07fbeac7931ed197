package crawler

// frontierEntry pairs a url with the depth it was discovered at, relative to the start url.
type frontierEntry struct {
	url   string
	depth int
}

// frontier is the FIFO work queue that drives breadth-first order. It is owned by a
// single crawl and never shared, so it needs no locking.
type frontier struct {
	entries []frontierEntry
}

func (f *frontier) push(url string, depth int) {
	f.entries = append(f.entries, frontierEntry{url: url, depth: depth})
}

func (f *frontier) pop() (frontierEntry, bool) {
	if len(f.entries) == 0 {
		return frontierEntry{}, false
	}

	e := f.entries[0]
	f.entries = f.entries[1:]

	return e, true
}

func (f *frontier) len() int {
	return len(f.entries)
}

// seenSet records urls at the moment they are dequeued for processing, not at enqueue
// time. Duplicate frontier entries for the same url may coexist; only the first dequeue
// is processed, the rest are discarded.
type seenSet map[string]struct{}

func (s seenSet) has(url string) bool {
	_, ok := s[url]

	return ok
}

func (s seenSet) add(url string) {
	s[url] = struct{}{}
}
