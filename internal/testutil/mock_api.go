// Package testutil provides testing utilities for esi-pager.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// Failure makes a page answer with StatusCode for the next Times requests.
type Failure struct {
	StatusCode int
	Times      int
}

// MockPagedAPI is an ESI-style paginated API for tests. Pages are
// addressed with the 1-based ?page= query parameter, every response
// carries X-Pages and the error limit headers.
type MockPagedAPI struct {
	server *httptest.Server

	mu              sync.Mutex
	pages           map[string][][]int
	failures        map[string]map[int]*Failure
	requests        map[string][]int
	errorsRemaining int
	errorsReset     int
	delay           time.Duration
	omitTotal       bool
}

// NewMockPagedAPI starts a new mock server.
func NewMockPagedAPI() *MockPagedAPI {
	m := &MockPagedAPI{
		pages:           make(map[string][][]int),
		failures:        make(map[string]map[int]*Failure),
		requests:        make(map[string][]int),
		errorsRemaining: 100,
		errorsReset:     60,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server base URL.
func (m *MockPagedAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPagedAPI) Close() {
	m.server.Close()
}

// SetPages configures the pages served for path.
func (m *MockPagedAPI) SetPages(path string, pages [][]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[path] = pages
}

// SetSequence serves the items 0..total-1 for path split into pages of pageSize.
func (m *MockPagedAPI) SetSequence(path string, total, pageSize int) {
	var pages [][]int
	for start := 0; start < total; start += pageSize {
		end := start + pageSize
		if end > total {
			end = total
		}
		page := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			page = append(page, i)
		}
		pages = append(pages, page)
	}
	m.SetPages(path, pages)
}

// FailPage makes the 1-based page of path fail with status for the next times requests.
func (m *MockPagedAPI) FailPage(path string, page, status, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures[path] == nil {
		m.failures[path] = make(map[int]*Failure)
	}
	m.failures[path][page] = &Failure{StatusCode: status, Times: times}
}

// SetErrorLimit sets the error limit headers sent with every response.
func (m *MockPagedAPI) SetErrorLimit(remaining, resetSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorsRemaining = remaining
	m.errorsReset = resetSeconds
}

// SetDelay delays every response.
func (m *MockPagedAPI) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// OmitTotal stops sending the X-Pages header.
func (m *MockPagedAPI) OmitTotal(omit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitTotal = omit
}

// Requests returns the 1-based pages requested for path, in order.
func (m *MockPagedAPI) Requests(path string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.requests[path]))
	copy(out, m.requests[path])
	return out
}

// RequestCount returns the total number of requests served.
func (m *MockPagedAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, reqs := range m.requests {
		n += len(reqs)
	}
	return n
}

// Reset clears request tracking.
func (m *MockPagedAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string][]int)
}

func (m *MockPagedAPI) handle(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			http.Error(w, `{"error":"invalid page"}`, http.StatusBadRequest)
			return
		}
		page = n
	}

	m.mu.Lock()
	m.requests[r.URL.Path] = append(m.requests[r.URL.Path], page)
	delay := m.delay
	pages, known := m.pages[r.URL.Path]
	var failure *Failure
	if f := m.failures[r.URL.Path][page]; f != nil && f.Times > 0 {
		f.Times--
		failure = &Failure{StatusCode: f.StatusCode}
	}
	remaining, reset, omitTotal := m.errorsRemaining, m.errorsReset, m.omitTotal
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("X-ESI-Error-Limit-Remain", strconv.Itoa(remaining))
	w.Header().Set("X-ESI-Error-Limit-Reset", strconv.Itoa(reset))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	switch {
	case failure != nil:
		w.WriteHeader(failure.StatusCode)
		fmt.Fprintf(w, `{"error":"injected failure %d"}`, failure.StatusCode)
		return
	case !known:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"unknown endpoint"}`))
		return
	case page > len(pages) && page > 1:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"page out of range"}`))
		return
	}

	if !omitTotal {
		w.Header().Set("X-Pages", strconv.Itoa(len(pages)))
	}

	items := []int{}
	if page <= len(pages) {
		items = pages[page-1]
	}
	w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(items)
}
