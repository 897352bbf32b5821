package scraper

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// urlRewriter sends every request to target, whatever host it names.
type urlRewriter struct {
	target string
}

func (u *urlRewriter) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = "http"
	req2.URL.Host = u.target[len("http://"):]
	return http.DefaultTransport.RoundTrip(req2)
}

// fakeSite serves results pages at /jobs?start=N and ads at /rc/clk?jk=ID.
type fakeSite struct {
	// pages maps a page index to the ad IDs it links to. A nil slice renders
	// a page without the results container.
	pages map[int][]string
	// ads maps an ad ID to its HTML body.
	ads map[string]string
	// hook runs before every response; returning false aborts the handler.
	hook func(w http.ResponseWriter, r *http.Request) bool

	mu       sync.Mutex
	requests []string
	hits     atomic.Int64
}

func (s *fakeSite) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)
	return srv
}

func (s *fakeSite) serve(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.RequestURI())
	s.mu.Unlock()
	if s.hook != nil && !s.hook(w, r) {
		return
	}

	switch r.URL.Path {
	case "/jobs":
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		ids, ok := s.pages[start/10]
		if !ok || ids == nil {
			fmt.Fprint(w, `<html><body><div id="captcha">are you a robot?</div></body></html>`)
			return
		}
		var b strings.Builder
		b.WriteString(`<html><body><a href="/about">About</a><div id="resultsCol">`)
		for _, id := range ids {
			fmt.Fprintf(&b, `<div class="row"><a href="/rc/clk?jk=%s">Job %s</a><a href="/company/%s">Company</a></div>`, id, id, id)
		}
		b.WriteString(`</div></body></html>`)
		fmt.Fprint(w, b.String())
	case "/rc/clk":
		body, ok := s.ads[r.URL.Query().Get("jk")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	default:
		http.NotFound(w, r)
	}
}

func (s *fakeSite) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func adHTML(words string) string {
	return `<html><head><script>var python = 1;</script><style>.sql{}</style></head><body><h1>Job</h1><p>` +
		words + `</p></body></html>`
}
