package cli_test

import (
	"bytes"
	"sync"
)

// Mock interfaces for testing.

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}

type safeBuffer struct {
	buffer bytes.Buffer
	mutex  sync.Mutex
}

func (s *safeBuffer) Read(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.buffer.Read(p) // nolint: wrapcheck
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.buffer.Write(p) // nolint: wrapcheck
}

func (s *safeBuffer) String() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.buffer.String()
}

// crawlReport mirrors the output shape for decoding in assertions.
// nolint: tagliatelle
type crawlReport struct {
	StartURL       string      `json:"start_url"`
	Status         string      `json:"status"`
	PagesFound     int         `json:"pages_found"`
	PagesProcessed int         `json:"pages_processed"`
	TotalTokens    int         `json:"total_tokens"`
	DurationMS     int64       `json:"duration_ms"`
	FailedPages    []string    `json:"failed_pages"`
	Errors         []string    `json:"errors"`
	Pages          []pageEntry `json:"pages"`
}

type pageEntry struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}
