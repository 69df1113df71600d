package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	cause := errors.New("connection reset")
	err := NetworkError("https://example.com/c/1", 0, cause)

	assert.True(t, errors.Is(err, ErrNetwork))
	assert.False(t, errors.Is(err, ErrExtraction))
	assert.True(t, errors.Is(err, cause))

	wrapped := fmt.Errorf("failed to fetch chapter: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNetwork))

	var perr *Error
	assert.True(t, errors.As(wrapped, &perr))
	assert.Equal(t, "https://example.com/c/1", perr.Url)
}

func TestError_Message(t *testing.T) {
	err := NetworkError("https://example.com/x", 404, nil)
	assert.Equal(t, "network request failed with status 404 (https://example.com/x)", err.Error())
	assert.Equal(t, 404, err.StatusCode)

	err = ExtractionError("https://example.com/x", errors.New("content element not found"))
	assert.Equal(t, "failed to extract content (https://example.com/x): content element not found", err.Error())

	assert.Equal(t, "chapter cache get failed: boom", CacheError("get", errors.New("boom")).Error())
	assert.Equal(t, "bad version 4", AssemblyErrorf("bad version %d", 4).Error())
}

func TestCode_Fatal(t *testing.T) {
	for _, c := range []Code{CodeDiscovery, CodeAssembly, CodeNoSelection, CodeNoExtractor, CodeNoChapters} {
		assert.True(t, c.Fatal(), c)
	}
	for _, c := range []Code{CodeNetwork, CodeExtraction, CodeCache} {
		assert.False(t, c.Fatal(), c)
	}
}
