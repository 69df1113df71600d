package model

import (
	"errors"
	"fmt"
)

// Code classifies an error raised by the pipeline.
type Code string

const (
	CodeDiscovery   Code = "DISCOVERY"
	CodeNetwork     Code = "NETWORK"
	CodeExtraction  Code = "EXTRACTION"
	CodeCache       Code = "CACHE"
	CodeAssembly    Code = "ASSEMBLY"
	CodeNoSelection Code = "NO_SELECTION"
	CodeNoExtractor Code = "NO_EXTRACTOR"
	CodeNoChapters  Code = "NO_CHAPTERS"
)

// Fatal reports whether an error with this code aborts the whole run.
func (c Code) Fatal() bool {
	switch c {
	case CodeDiscovery, CodeAssembly, CodeNoSelection, CodeNoExtractor, CodeNoChapters:
		return true
	default:
		return false
	}
}

// Error is a coded pipeline error. Url is the page it concerns, if any.
type Error struct {
	Code       Code
	Message    string
	Url        string
	StatusCode int
	Details    map[string]string
	cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Url != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Url)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

var (
	ErrDiscovery   = &Error{Code: CodeDiscovery, Message: "failed to discover chapter list"}
	ErrNetwork     = &Error{Code: CodeNetwork, Message: "network request failed"}
	ErrExtraction  = &Error{Code: CodeExtraction, Message: "failed to extract content"}
	ErrCache       = &Error{Code: CodeCache, Message: "chapter cache unavailable"}
	ErrAssembly    = &Error{Code: CodeAssembly, Message: "failed to assemble package"}
	ErrNoSelection = &Error{Code: CodeNoSelection, Message: "no chapters selected"}
	ErrNoExtractor = &Error{Code: CodeNoExtractor, Message: "no extractor matches page"}
	ErrNoChapters  = &Error{Code: CodeNoChapters, Message: "no chapter could be fetched"}
)

func DiscoveryError(url string, err error) *Error {
	return &Error{Code: CodeDiscovery, Message: "failed to discover chapter list", Url: url, cause: err}
}

func NetworkError(url string, status int, err error) *Error {
	msg := "network request failed"
	if status != 0 {
		msg = fmt.Sprintf("network request failed with status %d", status)
	}
	return &Error{Code: CodeNetwork, Message: msg, Url: url, StatusCode: status, cause: err}
}

func ExtractionError(url string, err error) *Error {
	return &Error{Code: CodeExtraction, Message: "failed to extract content", Url: url, cause: err}
}

func CacheError(op string, err error) *Error {
	return &Error{Code: CodeCache, Message: "chapter cache " + op + " failed", cause: err}
}

func AssemblyError(msg string) *Error {
	return &Error{Code: CodeAssembly, Message: msg}
}

func AssemblyErrorf(format string, args ...any) *Error {
	return &Error{Code: CodeAssembly, Message: fmt.Sprintf(format, args...)}
}

func AssemblyErrorWithDetails(msg string, details map[string]string) *Error {
	return &Error{Code: CodeAssembly, Message: msg, Details: details}
}

func NoExtractorError(url string) *Error {
	return &Error{Code: CodeNoExtractor, Message: "no extractor matches page", Url: url}
}
