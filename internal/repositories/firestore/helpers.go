package firestore

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

// wrapStoreError converts platform firestore failures into typed store errors.
// Errors that are already StoreError pass through with the op filled in.
func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		if storeErr.Op == "" {
			storeErr.Op = op
		}
		return storeErr
	}

	wrapped := pfirestore.WrapError(op, err)
	var platformErr *pfirestore.Error
	if errors.As(wrapped, &platformErr) {
		switch {
		case platformErr.IsNotFound():
			return &repositories.StoreError{Op: op, Code: repositories.ErrorNotFound, Message: "document not found", Err: err}
		case platformErr.IsConflict():
			return &repositories.StoreError{Op: op, Code: repositories.ErrorConflict, Message: "document conflict", Err: err}
		case platformErr.IsUnavailable():
			return &repositories.StoreError{Op: op, Code: repositories.ErrorUnavailable, Message: "datastore unavailable", Err: err}
		}
	}
	return wrapped
}

func notFoundError(op, message string, err error) error {
	return &repositories.StoreError{Op: op, Code: repositories.ErrorNotFound, Message: message, Err: err}
}

func conflictError(op, message string, err error) error {
	return &repositories.StoreError{Op: op, Code: repositories.ErrorConflict, Message: message, Err: err}
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldName lowercases and strips diacritics so name filters match
// accent-insensitively.
func foldName(value string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return folded
}

// matchesName reports whether candidate contains the folded needle. An empty
// needle matches everything.
func matchesName(candidate, needle string) bool {
	if strings.TrimSpace(needle) == "" {
		return true
	}
	return strings.Contains(foldName(candidate), foldName(needle))
}

func includeDeleted(filter repositories.DeletedFilter, deleted bool) bool {
	switch filter {
	case repositories.DeletedOnly:
		return deleted
	case repositories.DeletedInclude:
		return true
	default:
		return !deleted
	}
}
