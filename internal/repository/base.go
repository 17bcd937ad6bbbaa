// Package repository provides data access layer implementations for the application.
package repository

import (
	"errors"
	"strings"

	"pawfeed/internal/docstore"
	"pawfeed/internal/models"
)

// MapStoreError converts a document store error into the application error
// taxonomy. AppErrors raised inside transactions pass through unchanged.
func MapStoreError(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return models.NewNotFoundError(resource, id)
	case docstore.IsTransient(err):
		return models.NewTransientError(err)
	case errors.Is(err, docstore.ErrUnsupportedQuery):
		return models.NewValidationError(err.Error())
	default:
		return models.NewInternalError(err)
	}
}

// NormalizeTags trims tags, strips a leading '#', drops empties and removes
// case-insensitive duplicates keeping the first spelling.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "#"))
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound)
}
