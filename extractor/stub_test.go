package extractor

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"serial2epub/fetcher"
	"serial2epub/model"
)

type stubRequest struct {
	Url  string
	Opts fetcher.Options
}

// stubFetcher answers from a url keyed table and records every request.
type stubFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	types    map[string]string
	requests []stubRequest
	// onPost overrides the response for non-GET requests.
	onPost func(url string, opts fetcher.Options) string
}

func newStubFetcher(pages map[string]string) *stubFetcher {
	return &stubFetcher{pages: pages, types: map[string]string{}}
}

func (s *stubFetcher) Fetch(_ context.Context, url string, opts fetcher.Options) (*fetcher.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, stubRequest{Url: url, Opts: opts})

	if opts.Form != nil && s.onPost != nil {
		return &fetcher.Response{Url: url, StatusCode: http.StatusOK, ContentType: "text/html", Body: []byte(s.onPost(url, opts))}, nil
	}
	body, ok := s.pages[url]
	if !ok {
		return nil, model.NetworkError(url, http.StatusNotFound, nil)
	}
	ct := s.types[url]
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	return &fetcher.Response{Url: url, StatusCode: http.StatusOK, ContentType: ct, Body: []byte(body)}, nil
}

func (s *stubFetcher) Requests() []stubRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stubRequest(nil), s.requests...)
}

func page(t *testing.T, url, html string) *Page {
	t.Helper()
	resp := &fetcher.Response{Url: url, StatusCode: http.StatusOK, ContentType: "text/html", Body: []byte(html)}
	doc, err := resp.Document()
	require.NoError(t, err)
	return &Page{Url: url, Doc: doc, Raw: resp.Body}
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}
