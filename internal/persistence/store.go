// Package persistence loads and saves the map document. Every backend stores
// the whole document at once; there are no partial updates.
package persistence

import (
	"context"

	"github.com/territory-studio/engine/internal/models"
)

// Store persists the complete map document.
type Store interface {
	LoadAll(ctx context.Context) (*models.Document, error)
	SaveAll(ctx context.Context, doc *models.Document) error
}

// Revisioned is implemented by stores that keep document history.
type Revisioned interface {
	History(ctx context.Context) ([]models.MapRevision, error)
	Restore(ctx context.Context, version int) (*models.Document, error)
}

// FindRevisioned returns the first store in the decorator chain of s that
// keeps history.
func FindRevisioned(s Store) (Revisioned, bool) {
	for s != nil {
		if r, ok := s.(Revisioned); ok {
			return r, true
		}
		switch w := s.(type) {
		case interface{ Unwrap() Store }:
			s = w.Unwrap()
		case interface{ Primary() Store }:
			s = w.Primary()
		default:
			return nil, false
		}
	}
	return nil, false
}
