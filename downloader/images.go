package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"serial2epub/fetcher"
	"serial2epub/model"
)

const acceptImage = "image/avif,image/webp,image/png,image/jpeg,image/*;q=0.8,*/*;q=0.5"

// fetchImages downloads every image url referenced by the fetched chapters once, plus the
// cover. Failures become warnings. It returns false if the run was cancelled meanwhile.
func (o *Orchestrator) fetchImages(ctx context.Context, f fetcher.Fetcher, result *Result, book *Book, opts Options, log *slog.Logger) bool {
	type imageRef struct {
		url     string
		referer string
	}
	var pending []imageRef
	seen := make(map[string]bool)
	for _, c := range result.Contents {
		for _, u := range c.Images {
			if !seen[u] {
				seen[u] = true
				pending = append(pending, imageRef{url: u, referer: c.Ref.SourceUrl})
			}
		}
	}

	coverUrl := opts.CoverUrl
	if coverUrl == "" {
		coverUrl = book.CoverUrl
	}

	if coverUrl != "" {
		img, err := fetchImage(ctx, f, coverUrl, book.Url)
		switch {
		case errors.Is(err, errWaitInterrupted):
			return false
		case err != nil:
			result.Warnings = append(result.Warnings, fmt.Sprintf("cover %s: %v", coverUrl, err))
			log.Warn("failed to fetch cover", "url", coverUrl, "error", err)
		default:
			result.Cover = img
		}
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return false
		}
		img, err := fetchImage(ctx, f, p.url, p.referer)
		if errors.Is(err, errWaitInterrupted) {
			return false
		}
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("image %s: %v", p.url, err))
			log.Warn("failed to fetch image", "url", p.url, "error", err)
			continue
		}
		result.Images[p.url] = img
	}
	log.Debug("images fetched", "count", len(result.Images), "referenced", len(pending))
	return true
}

func fetchImage(ctx context.Context, f fetcher.Fetcher, url, referer string) (*model.ImageData, error) {
	resp, err := f.Fetch(ctx, url, fetcher.Options{Accept: acceptImage, Referer: referer})
	if err != nil {
		return nil, err
	}
	mt := mimetype.Detect(resp.Body)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, model.NetworkError(url, resp.StatusCode, fmt.Errorf("response is %s, not an image", mt.String()))
	}
	return &model.ImageData{
		Url:       url,
		MediaType: mediaType(mt),
		Data:      resp.Body,
	}, nil
}

// mediaType drops parameters such as "; charset=utf-8" that mimetype adds for svg.
func mediaType(mt *mimetype.MIME) string {
	s, _, _ := strings.Cut(mt.String(), ";")
	return s
}
