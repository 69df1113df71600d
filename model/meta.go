package model

import (
	"errors"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// BookMetaInfo describes the book being packaged. Empty optional fields are left out of the package.
type BookMetaInfo struct {
	Uuid         string `json:"uuid" validate:"required"`
	Title        string `json:"title" validate:"required"`
	Author       string `json:"author" validate:"required"`
	Language     string `json:"language" validate:"required,bcp47_language_tag"`
	FileName     string `json:"fileName" validate:"required"`
	Subject      string `json:"subject,omitempty"`
	Description  string `json:"description,omitempty"`
	SeriesName   string `json:"seriesName,omitempty"`
	SeriesIndex  string `json:"seriesIndex,omitempty" validate:"omitempty,numeric"`
	Translator   string `json:"translator,omitempty"`
	FileAuthorAs string `json:"fileAuthorAs,omitempty"`
	StyleSheet   string `json:"styleSheet,omitempty"`
}

// DefaultAuthor is used when a site does not name the author.
const DefaultAuthor = "<unknown>"

// NewBookMetaInfo returns meta info with a fresh identifier and default language.
func NewBookMetaInfo() BookMetaInfo {
	return BookMetaInfo{
		Uuid:     uuid.NewString(),
		Author:   DefaultAuthor,
		Language: "en",
	}
}

// HasSeries reports whether series info should be written.
func (m BookMetaInfo) HasSeries() bool {
	return m.SeriesName != ""
}

// IdentifierIsUuid reports whether Uuid is an RFC 4122 value rather than a url or free text.
func (m BookMetaInfo) IdentifierIsUuid() bool {
	_, err := uuid.Parse(m.Uuid)
	return err == nil
}

// WithoutAdditionalMetadata clears subject and description.
func (m BookMetaInfo) WithoutAdditionalMetadata() BookMetaInfo {
	m.Subject = ""
	m.Description = ""
	return m
}

var metaValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return jsonName(fld.Tag.Get("json"), fld.Name)
	})
	return v
})

// Validate checks the required fields and returns an assembly error naming each bad field.
func (m BookMetaInfo) Validate() error {
	err := metaValidator().Struct(m)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return AssemblyErrorf("invalid book metadata: %v", err)
	}
	details := make(map[string]string, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			details[e.Field()] = "is required"
		case "numeric":
			details[e.Field()] = "must be a number"
		case "bcp47_language_tag":
			details[e.Field()] = "must be a language tag such as en or zh-CN"
		default:
			details[e.Field()] = "is invalid"
		}
	}
	return AssemblyErrorWithDetails("invalid book metadata", details)
}

func jsonName(tag, fallback string) string {
	if tag == "" || tag == "-" {
		return fallback
	}
	for i := range len(tag) {
		if tag[i] == ',' {
			return tag[:i]
		}
	}
	return tag
}
