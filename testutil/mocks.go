// Package testutil provides shared test doubles, notably a mock OMDb server.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// MockOMDbServer is a test server that mocks OMDb API responses. Handlers are
// selected by the request's lookup kind: "i" for by-id, "s:<page>" for search.
type MockOMDbServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockOMDbServer creates a mock OMDb API server; it is closed with the test.
func NewMockOMDbServer(t *testing.T) *MockOMDbServer {
	t.Helper()
	m := &MockOMDbServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var key string
		switch {
		case q.Get("i") != "":
			key = "i"
		case q.Get("s") != "":
			page := q.Get("page")
			if page == "" {
				page = "1"
			}
			key = "s:" + page
		}
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"Response": "False", "Error": "Movie not found!"})
	}))
	t.Cleanup(m.Close)
	return m
}

// MockMovie serves a single-record lookup response.
func (m *MockOMDbServer) MockMovie(title, year, poster, imdbID string) {
	m.Handlers["i"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Response": "True",
			"Title":    title,
			"Year":     year,
			"Poster":   poster,
			"imdbID":   imdbID,
		})
	}
}

// MockSearchPage serves one page of search results.
func (m *MockOMDbServer) MockSearchPage(page int, total int, movies []map[string]string) {
	m.Handlers["s:"+strconv.Itoa(page)] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Response":     "True",
			"Search":       movies,
			"totalResults": strconv.Itoa(total),
		})
	}
}
