// Package downloader walks a story's chapter list and fetches the selected chapters one at a
// time, consulting the chapter cache first.
package downloader

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"serial2epub/extractor"
	"serial2epub/fetcher"
	"serial2epub/logger"
	"serial2epub/model"
	"serial2epub/utils"
)

// ChapterStore is the cache the orchestrator reads before and writes after each network fetch.
type ChapterStore interface {
	Get(ctx context.Context, url string) (*model.ChapterContent, bool)
	Put(ctx context.Context, url string, content *model.ChapterContent) error
}

// Book is a discovered story: its metadata guess and the chapter list in reading order.
type Book struct {
	Url       string
	Extractor string
	Meta      model.BookMetaInfo
	CoverUrl  string
	Chapters  []*model.ChapterRef

	extractor extractor.Extractor
}

type Config struct {
	Fetcher  fetcher.Fetcher
	Registry *extractor.Registry
	// Cache may be nil to always fetch.
	Cache ChapterStore
	// Delay is the pause between network fetches to the same host.
	Delay time.Duration
	// Extractor names an extractor to use instead of matching.
	Extractor string
	Logger    *slog.Logger
}

type Orchestrator struct {
	fetcher  fetcher.Fetcher
	registry *extractor.Registry
	cache    ChapterStore
	limiter  *hostLimiter
	override string
	log      *slog.Logger

	mu   sync.Mutex
	runs map[string]context.CancelFunc
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		fetcher:  cfg.Fetcher,
		registry: cfg.Registry,
		cache:    cfg.Cache,
		limiter:  newHostLimiter(cfg.Delay),
		override: cfg.Extractor,
		log:      logger.OrDiscard(cfg.Logger),
		runs:     make(map[string]context.CancelFunc),
	}
}

func (o *Orchestrator) polite() fetcher.Fetcher {
	return politeFetcher{next: o.fetcher, limiter: o.limiter}
}

// CollectChapterList fetches startURL, selects its extractor and returns the discovered book.
// Every failure is reported as a discovery error except an unmatched page.
func (o *Orchestrator) CollectChapterList(ctx context.Context, startURL string) (*Book, error) {
	o.log.Info("collecting chapter list", "url", startURL)
	f := o.polite()

	page, err := extractor.FetchPage(ctx, f, startURL, fetcher.Options{})
	if err != nil {
		return nil, model.DiscoveryError(startURL, err)
	}
	ext, err := o.registry.Select(page.Url, page.Doc, o.override)
	if err != nil {
		return nil, err
	}
	o.log.Debug("extractor selected", "extractor", ext.Name(), "url", page.Url)

	links, err := ext.ChapterList(ctx, f, page)
	if err != nil {
		if errors.Is(err, model.ErrDiscovery) {
			return nil, err
		}
		return nil, model.DiscoveryError(startURL, err)
	}
	if len(links) == 0 {
		return nil, model.DiscoveryError(startURL, errors.New("no chapters found"))
	}

	book := &Book{
		Url:       startURL,
		Extractor: ext.Name(),
		Meta:      bookMeta(startURL, page, ext),
		CoverUrl:  ext.CoverImageUrl(page),
		Chapters:  model.ChapterRefs(links),
		extractor: ext,
	}
	o.log.Info("chapter list collected", "url", startURL, "extractor", ext.Name(), "chapters", len(book.Chapters))
	return book, nil
}

// bookMeta merges what the extractor found with defaults. The start url doubles as the book
// identifier so repeated downloads of one story keep the same identity.
func bookMeta(startURL string, page *extractor.Page, ext extractor.Extractor) model.BookMetaInfo {
	meta := model.NewBookMetaInfo()
	meta.Uuid = startURL

	found := ext.MetaInfo(page)
	meta.Title = cmp.Or(found.Title, strings.TrimSpace(page.Doc.Find("title").First().Text()), "Untitled")
	meta.Author = cmp.Or(found.Author, model.DefaultAuthor)
	meta.Language = cmp.Or(found.Language, meta.Language)
	meta.Subject = found.Subject
	meta.Description = found.Description
	meta.SeriesName = found.SeriesName
	meta.SeriesIndex = found.SeriesIndex
	meta.Translator = found.Translator
	meta.FileName = utils.EpubFileName(utils.CleanFileName(meta.Title))
	return meta
}

// Options shape one FetchSelected run.
type Options struct {
	// MaxChapters limits how many selected chapters are fetched, 0 for no limit.
	MaxChapters int
	SkipImages  bool
	// CoverUrl overrides the cover the extractor found.
	CoverUrl   string
	OnProgress ProgressFunc
}

// ChapterResult is one resolved chapter. Content is nil when the chapter failed.
type ChapterResult struct {
	Ref     model.ChapterRef
	Outcome Outcome
	Content *model.ChapterContent
	Err     error
}

type Result struct {
	RunId  string
	Status Status
	// Chapters holds every resolved chapter in chapter order, failures included.
	Chapters []ChapterResult
	// Contents holds the successful chapters in chapter order.
	Contents []*model.ChapterContent
	ErrorLog *ErrorLog
	Images   map[string]*model.ImageData
	Cover    *model.ImageData
	Warnings []string
}

// Failed returns the results of failed chapters.
func (r *Result) Failed() []ChapterResult {
	var failed []ChapterResult
	for _, c := range r.Chapters {
		if c.Outcome == OutcomeFailed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Stop cancels every run in progress. Chapters already resolved are kept; runs started
// afterwards are unaffected.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, cancel := range o.runs {
		o.log.Info("stopping run", "run", id)
		cancel()
	}
}

func (o *Orchestrator) startRun(ctx context.Context) (context.Context, string, func()) {
	id, err := gonanoid.New()
	if err != nil {
		id = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	runId := "run-" + id

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.runs[runId] = cancel
	o.mu.Unlock()

	return runCtx, runId, func() {
		o.mu.Lock()
		delete(o.runs, runId)
		o.mu.Unlock()
		cancel()
	}
}

// selection returns the included refs in ascending order, capped at max.
func selection(refs []*model.ChapterRef, max int) []model.ChapterRef {
	var selected []model.ChapterRef
	for _, ref := range refs {
		if ref != nil && ref.IsIncludeable {
			selected = append(selected, *ref)
		}
	}
	slices.SortStableFunc(selected, func(a, b model.ChapterRef) int {
		return cmp.Compare(a.Order, b.Order)
	})
	if max > 0 && len(selected) > max {
		selected = selected[:max]
	}
	return selected
}

// FetchSelected fetches the included chapters of refs sequentially in ascending order. A chapter
// failure is logged and recorded without stopping the run. An empty selection fails before
// anything is fetched; a run in which no chapter succeeded returns ErrNoChapters along with the
// result. Cancellation through ctx or Stop ends the run with StatusCancelled and no error.
func (o *Orchestrator) FetchSelected(ctx context.Context, book *Book, refs []*model.ChapterRef, opts Options) (*Result, error) {
	selected := selection(refs, opts.MaxChapters)
	if len(selected) == 0 {
		return nil, model.ErrNoSelection
	}
	ext, err := o.extractorFor(book)
	if err != nil {
		return nil, err
	}

	runCtx, runId, done := o.startRun(ctx)
	defer done()
	log := o.log.With("run", runId)

	result := &Result{
		RunId:    runId,
		Status:   StatusCompleted,
		ErrorLog: &ErrorLog{},
		Images:   make(map[string]*model.ImageData),
	}
	emit := func(e Event) {
		if opts.OnProgress != nil {
			e.RunId = runId
			e.Total = len(selected)
			opts.OnProgress(e)
		}
	}

	log.Info("fetching chapters", "book", book.Url, "selected", len(selected), "extractor", ext.Name())
	f := o.polite()
	failed := 0

	for i, ref := range selected {
		if runCtx.Err() != nil {
			result.Status = StatusCancelled
			break
		}

		res, interrupted := o.resolve(runCtx, f, ext, ref, log)
		if interrupted {
			result.Status = StatusCancelled
			break
		}

		result.Chapters = append(result.Chapters, res)
		if res.Outcome == OutcomeFailed {
			failed++
			result.ErrorLog.add(ErrorLogEntry{Url: ref.SourceUrl, Title: ref.Title, Order: ref.Order, Err: res.Err, At: time.Now()})
		} else {
			result.Contents = append(result.Contents, res.Content)
		}
		emit(Event{Index: i, Ref: ref, Outcome: res.Outcome, Err: res.Err})
	}

	if !opts.SkipImages && len(result.Contents) > 0 {
		// A stop ends chapter fetching only. Images of the chapters already
		// resolved are still fetched unless the caller's context is done.
		imageCtx := runCtx
		if result.Status == StatusCancelled {
			imageCtx = ctx
		}
		if !o.fetchImages(imageCtx, f, result, book, opts, log) {
			result.Status = StatusCancelled
		}
	}

	var runErr error
	if result.Status != StatusCancelled && len(result.Contents) == 0 {
		result.Status = StatusFailed
		runErr = model.ErrNoChapters
	}

	log.Info("run finished", "status", result.Status, "resolved", len(result.Chapters), "failed", failed)
	emit(Event{
		Index:    len(result.Chapters),
		Done:     true,
		Status:   result.Status,
		Resolved: len(result.Chapters),
		Failed:   failed,
	})
	return result, runErr
}

func (o *Orchestrator) extractorFor(book *Book) (extractor.Extractor, error) {
	if book == nil {
		return nil, model.DiscoveryError("", errors.New("no book"))
	}
	if book.extractor != nil {
		return book.extractor, nil
	}
	if e, ok := o.registry.Get(book.Extractor); ok {
		return e, nil
	}
	if o.override != "" {
		if e, ok := o.registry.Get(o.override); ok {
			return e, nil
		}
	}
	return o.registry.Select(book.Url, emptyDocument(), "")
}

// resolve serves ref from the cache or the network. interrupted reports a cancellation that
// arrived while waiting for the rate limiter; nothing was fetched in that case.
func (o *Orchestrator) resolve(ctx context.Context, f fetcher.Fetcher, ext extractor.Extractor, ref model.ChapterRef, log *slog.Logger) (ChapterResult, bool) {
	if o.cache != nil {
		if cached, ok := o.cache.Get(ctx, ref.SourceUrl); ok {
			content := *cached
			content.Ref = ref
			if content.Title == "" {
				content.Title = ref.Title
			}
			log.Debug("chapter served from cache", "url", ref.SourceUrl)
			return ChapterResult{Ref: ref, Outcome: OutcomeCached, Content: &content}, false
		}
	}

	log.Info("fetching chapter", "order", ref.Order, "url", ref.SourceUrl)
	content, err := ext.FetchChapter(ctx, f, ref)
	if err != nil {
		if errors.Is(err, errWaitInterrupted) {
			return ChapterResult{}, true
		}
		var perr *model.Error
		if !errors.As(err, &perr) {
			err = model.ExtractionError(ref.SourceUrl, err)
		}
		log.Warn("chapter failed", "url", ref.SourceUrl, "error", err)
		return ChapterResult{Ref: ref, Outcome: OutcomeFailed, Err: err}, false
	}
	content.Ref = ref
	if content.Title == "" {
		content.Title = ref.Title
	}

	if o.cache != nil {
		if err := o.cache.Put(context.WithoutCancel(ctx), ref.SourceUrl, content); err != nil {
			log.Warn("failed to cache chapter", "url", ref.SourceUrl, "error", err)
		}
	}
	return ChapterResult{Ref: ref, Outcome: OutcomeFetched, Content: content}, false
}

func emptyDocument() *goquery.Document {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(""))
	return doc
}
