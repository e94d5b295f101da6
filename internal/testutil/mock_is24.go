// Package testutil provides testing utilities for the IS24 client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIPrefix is the path prefix of the offer API served by MockIS24.
const APIPrefix = "/restapi/api/offer/v1.0/"

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockIS24 is a configurable mock of the IS24 offer API.
// Handlers are keyed by resource path relative to APIPrefix, without query.
type MockIS24 struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requests          []string
	lastRequestHeader http.Header
}

// NewMockIS24 creates and starts a new mock server.
func NewMockIS24() *MockIS24 {
	mock := &MockIS24{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resource := strings.TrimPrefix(r.URL.Path, APIPrefix)

		mock.mu.Lock()
		mock.requests = append(mock.requests, strings.TrimPrefix(r.URL.RequestURI(), APIPrefix))
		mock.lastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[resource]
		mock.mu.Unlock()

		if !strings.HasPrefix(r.URL.Path, APIPrefix) || !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		handler(w, r)
	}))

	return mock
}

// URL returns the mock server base URL (the API host).
func (m *MockIS24) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockIS24) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockIS24) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.lastRequestHeader = nil
}

// SetHandler sets a custom handler for a resource.
func (m *MockIS24) SetHandler(resource string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[resource] = handler
}

// SetResponse configures a fixed response for a resource.
func (m *MockIS24) SetResponse(resource string, resp MockResponse) {
	m.SetHandler(resource, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON configures a 200 response with v encoded as JSON.
func (m *MockIS24) SetJSON(resource string, v any) {
	m.SetResponse(resource, NewJSONResponse(v))
}

// SetListPages serves user/me/realestate from pages, selecting the page by
// the pagenumber query parameter. Every page carries paging metadata; all
// but the last link a next page.
func (m *MockIS24) SetListPages(pages ...[]map[string]any) {
	m.SetHandler("user/me/realestate", func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("pagenumber"))
		if err != nil || page < 1 || page > len(pages) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, ListEnvelope(page, len(pages), pages[page-1]))
	})
}

// Requests returns the recorded request URIs relative to APIPrefix, including query.
func (m *MockIS24) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.requests...)
}

// RequestCount returns the number of requests made to the server.
func (m *MockIS24) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockIS24) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// NewJSONResponse creates a 200 OK response with v encoded as JSON.
func NewJSONResponse(v any) MockResponse {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal response: %v", err))
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(data),
		Headers: map[string]string{
			"Content-Type": "application/json;charset=UTF-8",
		},
	}
}

// NewRateLimitResponse creates a 503 Service Unavailable response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"common.messages":[{"message":{"messageCode":"ERROR_REQUEST_LIMIT_EXCEEDED"}}]}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// ListElement builds one element of a listing page.
func ListElement(id int64, offerType, state string) map[string]any {
	return map[string]any{
		"@id":             strconv.FormatInt(id, 10),
		"@xsi.type":       "offerlistelement:Offer" + offerType,
		"title":           fmt.Sprintf("Listing %d", id),
		"realEstateState": state,
	}
}

// ListEnvelope builds the response body of one listing page.
func ListEnvelope(page, pages int, elements []map[string]any) map[string]any {
	paging := map[string]any{
		"pageNumber":    page,
		"pageSize":      100,
		"numberOfPages": pages,
		"numberOfHits":  len(elements),
	}
	if page < pages {
		paging["next"] = map[string]any{
			"@xlink.href": fmt.Sprintf("https://rest.immobilienscout24.de%suser/me/realestate?pagenumber=%d", APIPrefix, page+1),
		}
	}

	list := map[string]any{}
	if elements != nil {
		items := make([]any, len(elements))
		for i, e := range elements {
			items[i] = e
		}
		list["realEstateElement"] = items
	}

	return map[string]any{
		"realestates.realEstates": map[string]any{
			"Paging":         paging,
			"realEstateList": list,
		},
	}
}

// DetailBody builds a detail record nesting payload under realestates.<type>.
func DetailBody(realEstateType string, payload map[string]any) map[string]any {
	return map[string]any{
		"realestates." + realEstateType: payload,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
