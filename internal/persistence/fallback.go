package persistence

import (
	"context"

	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/models"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

// FallbackStore loads from the primary store and falls back to a local store
// when the primary is unavailable or fails with an I/O error. Saves go to the
// primary only and its failures are returned.
type FallbackStore struct {
	primary  Store
	fallback Store
}

var _ Store = (*FallbackStore)(nil)

func NewFallbackStore(primary, fallback Store) *FallbackStore {
	return &FallbackStore{primary: primary, fallback: fallback}
}

func (s *FallbackStore) LoadAll(ctx context.Context) (*models.Document, error) {
	doc, err := s.primary.LoadAll(ctx)
	if err == nil {
		return doc, nil
	}
	switch appErr.CodeOf(err) {
	case appErr.CodeUnavailable, appErr.CodeIO:
	default:
		return nil, err
	}
	logger.L().Warn("primary store unavailable, loading local file", zap.Error(err))
	doc, ferr := s.fallback.LoadAll(ctx)
	if ferr != nil {
		return nil, appErr.Wrap(ferr, appErr.CodeIO, "fallback load failed").WithMeta("primary_error", err.Error())
	}
	return doc, nil
}

func (s *FallbackStore) SaveAll(ctx context.Context, doc *models.Document) error {
	return s.primary.SaveAll(ctx, doc)
}

// Primary returns the primary store.
func (s *FallbackStore) Primary() Store { return s.primary }
