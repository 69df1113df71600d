package extractor

import (
	"slices"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"serial2epub/model"
	"serial2epub/utils"
)

// Registry selects the extractor for a page. Host registrations are consulted before rules,
// rules in registration order; the first match wins.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Extractor
	hosts  map[string]Extractor
	rules  []Extractor
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Extractor),
		hosts:  make(map[string]Extractor),
	}
}

// Register adds e as a rule evaluated with e.Matches.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[e.Name()] = e
	r.rules = append(r.rules, e)
}

// RegisterHost binds e to host and its subdomains. A leading "www." is ignored.
func (r *Registry) RegisterHost(host string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[e.Name()] = e
	r.hosts[normalizeHost(host)] = e
}

// Get returns the extractor registered under name.
func (r *Registry) Get(name string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// Names returns registered extractor names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Select returns the extractor for url and doc. A non-empty override names the extractor to
// use regardless of matching.
func (r *Registry) Select(url string, doc *goquery.Document, override string) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if override != "" {
		if e, ok := r.byName[override]; ok {
			return e, nil
		}
		err := model.NoExtractorError(url)
		err.Message = "unknown extractor " + override
		return nil, err
	}

	host := normalizeHost(utils.Host(url))
	for h := host; h != ""; h = parentDomain(h) {
		if e, ok := r.hosts[h]; ok {
			return e, nil
		}
	}

	for _, e := range r.rules {
		if e.Matches(url, doc) {
			return e, nil
		}
	}
	return nil, model.NoExtractorError(url)
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}

func parentDomain(host string) string {
	_, parent, ok := strings.Cut(host, ".")
	if !ok || !strings.Contains(parent, ".") {
		return ""
	}
	return parent
}

// BuiltinOptions configure the extractors NewBuiltin registers.
type BuiltinOptions struct {
	Selectors         Selectors
	SkipImages        bool
	SitePassword      string
	RemoveAuthorNotes bool
}

// NewBuiltin returns a registry with every bundled extractor. The selector based default is
// registered last so site specific rules win.
func NewBuiltin(opts BuiltinOptions) *Registry {
	sel := opts.Selectors
	if sel.ChapterList == "" && sel.Content == "" {
		sel = DefaultSelectors
	}
	var defaultOpts []DefaultOption
	if opts.SkipImages {
		defaultOpts = append(defaultOpts, WithoutImages())
	}

	r := NewRegistry()
	r.RegisterHost("chrysanthemumgarden.com", NewChrysanthemum(ChrysanthemumOptions{
		Password:          opts.SitePassword,
		RemoveAuthorNotes: opts.RemoveAuthorNotes,
		SkipImages:        opts.SkipImages,
	}))
	r.Register(NewKemono(opts.SkipImages))
	r.Register(NewMarkdown(opts.SkipImages))
	r.Register(NewDefault(sel, defaultOpts...))
	return r
}
