// Package fetcher performs single network fetches for chapter pages, chapter lists and images.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

const (
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	AcceptJSON = "application/json"
)

// Fetcher performs one request. Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (*Response, error)
}

// Options shape a single request. Zero value is a plain GET accepting html.
type Options struct {
	Accept  string
	Method  string
	Headers map[string]string
	Referer string
	// Body is sent as is; Form takes precedence and is sent url-encoded.
	Body []byte
	Form url.Values
	// Credentials sends and stores cookies for the target site.
	Credentials bool
}

func (o Options) method() string {
	if o.Method != "" {
		return strings.ToUpper(o.Method)
	}
	if o.Form != nil || o.Body != nil {
		return http.MethodPost
	}
	return http.MethodGet
}

func (o Options) accept() string {
	if o.Accept != "" {
		return o.Accept
	}
	return AcceptHTML
}

// Response is a completed fetch. Url is the final url after redirects.
type Response struct {
	Url         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// MediaType returns the content type without parameters.
func (r *Response) MediaType() string {
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(r.ContentType, ";")[0]))
	}
	return mt
}

// BaseURL returns the parsed final url, or nil.
func (r *Response) BaseURL() *url.URL {
	u, err := url.Parse(r.Url)
	if err != nil {
		return nil
	}
	return u
}

// Document parses the body as html, decoding from the declared or sniffed charset.
func (r *Response) Document() (*goquery.Document, error) {
	reader, err := charset.NewReader(bytes.NewReader(r.Body), r.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Url = r.BaseURL()
	if base, ok := doc.Find("head base[href]").First().Attr("href"); ok && doc.Url != nil {
		if u, err := doc.Url.Parse(base); err == nil {
			doc.Url = u
		}
	}
	return doc, nil
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode json: %w", err)
	}
	return nil
}

// FetchDocument is a convenience for an html GET.
func FetchDocument(ctx context.Context, f Fetcher, url string, opts Options) (*goquery.Document, *Response, error) {
	resp, err := f.Fetch(ctx, url, opts)
	if err != nil {
		return nil, nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, resp, err
	}
	return doc, resp, nil
}

// FetchJSON fetches url accepting json and decodes the body into v.
func FetchJSON(ctx context.Context, f Fetcher, url string, opts Options, v any) error {
	if opts.Accept == "" {
		opts.Accept = AcceptJSON
	}
	resp, err := f.Fetch(ctx, url, opts)
	if err != nil {
		return err
	}
	return resp.JSON(v)
}
