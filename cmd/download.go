package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"serial2epub/downloader"
	"serial2epub/epub"
	"serial2epub/model"
	"serial2epub/text"
	"serial2epub/utils"
)

var downloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Download a story and package it",
	Long: "Download the chapter list found at <url>, fetch the selected chapters and package them.\n" +
		"Chapters already in the cache are not fetched again. Interrupting once stops fetching and\n" +
		"packages what was fetched so far; interrupting twice aborts.",
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

type downloadArgs struct {
	extractorArgs
	From      int
	To        int
	CacheOnly bool
	CoverUrl  string
	Text      bool
	Markdown  bool

	Title       string
	Author      string
	Language    string
	Series      string
	SeriesIndex string
	Translator  string
	FileAs      string
	Subject     string
	Description string
	FileName    string
}

var dlArgs downloadArgs

func init() {
	fs := downloadCmd.Flags()
	bindExtractorFlags(fs, &dlArgs.extractorArgs)
	fs.IntVar(&dlArgs.From, "from", 0, "first chapter to include, counting from 1")
	fs.IntVar(&dlArgs.To, "to", 0, "last chapter to include, counting from 1")
	fs.BoolVar(&dlArgs.CacheOnly, "cache-only", false, "only fill the chapter cache, do not package")
	fs.StringVar(&dlArgs.CoverUrl, "cover-url", "", "cover image to use instead of the one found on the page")
	fs.BoolVar(&dlArgs.Text, "text", false, "write plain text files instead of an EPUB")
	fs.BoolVar(&dlArgs.Markdown, "markdown", false, "write markdown files instead of an EPUB")

	fs.StringVar(&dlArgs.Title, "title", "", "book title")
	fs.StringVar(&dlArgs.Author, "author", "", "book author")
	fs.StringVar(&dlArgs.Language, "language", "", "book language tag, e.g. en")
	fs.StringVar(&dlArgs.Series, "series", "", "series name")
	fs.StringVar(&dlArgs.SeriesIndex, "series-index", "", "position in the series")
	fs.StringVar(&dlArgs.Translator, "translator", "", "translator name")
	fs.StringVar(&dlArgs.FileAs, "file-as", "", "author name used for sorting, e.g. \"Doe, Jane\"")
	fs.StringVar(&dlArgs.Subject, "subject", "", "comma separated subjects")
	fs.StringVar(&dlArgs.Description, "description", "", "book description")
	fs.StringVar(&dlArgs.FileName, "file-name", "", "output file name")

	downloadCmd.MarkFlagsMutuallyExclusive("text", "markdown", "cache-only")
	RootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	url := args[0]
	injector := newContainer(cfg, log, dlArgs.builtinOptions(cfg.Epub.SkipImages), dlArgs.Name)
	defer shutdown(injector)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	orch := do.MustInvoke[*downloader.Orchestrator](injector)
	stopOnSignal(ctx, orch, cancel)

	if store := do.MustInvoke[*CacheHandle](injector); store.ChapterCache != nil {
		evicted, ran, err := store.RunPeriodicCleanup(ctx, cfg.Cache.MaxAge)
		if err != nil {
			log.Warn("cache cleanup failed", "error", err)
		} else if ran {
			log.Info("cache cleanup finished", "evicted", evicted)
		}
	}

	book, err := orch.CollectChapterList(ctx, url)
	if err != nil {
		return err
	}
	if err := selectRange(book.Chapters, dlArgs.From, dlArgs.To); err != nil {
		return err
	}
	meta, err := dlArgs.resolveMeta(book.Meta)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	result, err := orch.FetchSelected(ctx, book, book.Chapters, downloader.Options{
		MaxChapters: cfg.Epub.MaxChapters,
		SkipImages:  cfg.Epub.SkipImages || dlArgs.CacheOnly,
		CoverUrl:    dlArgs.CoverUrl,
		OnProgress:  progressPrinter(out),
	})
	if result != nil && cfg.Epub.WriteErrorLog && !dlArgs.CacheOnly {
		if werr := writeErrorLog(result, meta); werr != nil {
			log.Warn("failed to write error log", "error", werr)
		}
	}
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		log.Warn(w)
	}
	if result.Status == downloader.StatusCancelled {
		fmt.Fprintf(out, "stopped after %d of the selected chapters\n", len(result.Chapters))
	}
	if dlArgs.CacheOnly {
		fmt.Fprintf(out, "cached %d chapters, %d failed\n", len(result.Contents), len(result.Failed()))
		return nil
	}
	if len(result.Contents) == 0 {
		return model.ErrNoChapters
	}

	switch {
	case dlArgs.Text:
		dir, err := text.PackToText(meta.Title, result.Contents, cfg.Epub.OutputDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", dir)
	case dlArgs.Markdown:
		dir, err := text.PackToMarkdown(meta.Title, result.Contents, cfg.Epub.OutputDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", dir)
	default:
		path, err := writeEpub(meta, result)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", path)
	}
	return nil
}

// stopOnSignal stops the running fetch on the first interrupt and cancels ctx on the second.
func stopOnSignal(ctx context.Context, orch *downloader.Orchestrator, cancel context.CancelFunc) {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sig)
		select {
		case <-sig:
			log.Info("stopping, interrupt again to abort")
			orch.Stop()
		case <-ctx.Done():
			return
		}
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
	}()
}

// selectRange keeps chapters from..to, counting from 1. Zero leaves that end open.
func selectRange(refs []*model.ChapterRef, from, to int) error {
	if from < 0 || to < 0 || (to > 0 && from > to) {
		return fmt.Errorf("invalid chapter range %d..%d", from, to)
	}
	for i, ref := range refs {
		n := i + 1
		ref.IsIncludeable = (from == 0 || n >= from) && (to == 0 || n <= to)
	}
	return nil
}

func (a *downloadArgs) applyMeta(meta model.BookMetaInfo) model.BookMetaInfo {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&meta.Title, a.Title)
	set(&meta.Author, a.Author)
	set(&meta.Language, a.Language)
	set(&meta.SeriesName, a.Series)
	set(&meta.SeriesIndex, a.SeriesIndex)
	set(&meta.Translator, a.Translator)
	set(&meta.FileAuthorAs, a.FileAs)
	set(&meta.Subject, a.Subject)
	set(&meta.Description, a.Description)
	set(&meta.FileName, a.FileName)
	if a.Title != "" && a.FileName == "" {
		meta.FileName = a.Title
	}
	meta.FileName = utils.EpubFileName(meta.FileName)
	if cfg.Epub.NoAdditionalMetadata {
		meta = meta.WithoutAdditionalMetadata()
	}
	return meta
}

// resolveMeta applies the metadata flags and, unless only the cache is filled, validates the
// result so a bad flag fails before any chapter is fetched.
func (a *downloadArgs) resolveMeta(found model.BookMetaInfo) (model.BookMetaInfo, error) {
	meta := a.applyMeta(found)
	if a.CacheOnly {
		return meta, nil
	}
	if err := meta.Validate(); err != nil {
		logMetaProblems(err)
		return meta, err
	}
	return meta, nil
}

func logMetaProblems(err error) {
	var perr *model.Error
	if errors.As(err, &perr) {
		for field, problem := range perr.Details {
			log.Error("invalid package", "field", field, "problem", problem)
		}
	}
}

func progressPrinter(w io.Writer) downloader.ProgressFunc {
	return func(e downloader.Event) {
		if e.Done {
			fmt.Fprintf(w, "%s: %d chapters resolved, %d failed\n", e.Status, e.Resolved, e.Failed)
			return
		}
		line := fmt.Sprintf("[%d/%d] %s (%s)", e.Index+1, e.Total, e.Ref.Title, e.Outcome)
		if e.Err != nil {
			line += ": " + e.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
}

func outputBase(meta model.BookMetaInfo) string {
	name := filepath.Base(meta.FileName)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func writeErrorLog(result *downloader.Result, meta model.BookMetaInfo) error {
	if result.ErrorLog.Len() == 0 {
		return nil
	}
	path := filepath.Join(cfg.Epub.OutputDir, outputBase(meta)+".ErrorLog.txt")
	if err := os.MkdirAll(cfg.Epub.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := result.ErrorLog.WriteFile(path); err != nil {
		return err
	}
	log.Info("error log written", "path", path, "failures", result.ErrorLog.Len())
	return nil
}

func writeEpub(meta model.BookMetaInfo, result *downloader.Result) (string, error) {
	version, err := epub.ParseVersion(cfg.Epub.Version)
	if err != nil {
		return "", err
	}
	opts := []epub.Option{epub.WithLogger(log)}
	if result.Cover != nil {
		opts = append(opts, epub.WithCover(result.Cover))
	}
	if cfg.Epub.StyleSheetPath != "" {
		css, err := os.ReadFile(cfg.Epub.StyleSheetPath)
		if err != nil {
			return "", fmt.Errorf("failed to read stylesheet: %w", err)
		}
		opts = append(opts, epub.WithStyleSheet(string(css)))
	}
	if cfg.Epub.TocTitle != "" {
		opts = append(opts, epub.WithTocTitle(cfg.Epub.TocTitle))
	}
	meta.FileName = outputBase(meta) + ".epub"

	data, err := epub.New(version, opts...).Assemble(meta, result.Contents, result.Images)
	if err != nil {
		logMetaProblems(err)
		return "", err
	}
	if err := os.MkdirAll(cfg.Epub.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(cfg.Epub.OutputDir, meta.FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write epub: %w", err)
	}
	return path, nil
}
