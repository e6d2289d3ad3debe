package persistence

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/territory-studio/engine/internal/models"
	"github.com/territory-studio/engine/internal/repository"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
	"github.com/territory-studio/engine/pkg/utils"
)

// PostgresStore keeps every saved document as a MapRevision row. The row
// flagged current is the document returned by LoadAll.
type PostgresStore struct {
	revisions repository.RevisionRepository
	key       string
	keep      int
}

var (
	_ Store      = (*PostgresStore)(nil)
	_ Revisioned = (*PostgresStore)(nil)
)

func NewPostgresStore(revisions repository.RevisionRepository, key string) *PostgresStore {
	if key == "" {
		key = "default"
	}
	return &PostgresStore{revisions: revisions, key: key}
}

// WithRetention keeps only the newest keep revisions after each save. Zero
// keeps everything.
func (s *PostgresStore) WithRetention(keep int) *PostgresStore {
	s.keep = keep
	return s
}

func (s *PostgresStore) LoadAll(ctx context.Context) (*models.Document, error) {
	var rev models.MapRevision
	if err := s.revisions.GetCurrent(ctx, s.key, &rev); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			logger.L().Info("no stored revision, starting empty", zap.String("document_key", s.key))
			return models.EmptyDocument(), nil
		}
		return nil, err
	}
	return ImportSnapshot(rev.Data)
}

// SaveAll appends a revision unless the document content is unchanged since
// the current one.
func (s *PostgresStore) SaveAll(ctx context.Context, doc *models.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "encode document")
	}
	sum, err := contentChecksum(doc)
	if err != nil {
		return err
	}

	var cur models.MapRevision
	err = s.revisions.GetCurrent(ctx, s.key, &cur)
	switch {
	case err == nil && cur.Checksum == sum:
		logger.L().Debug("document unchanged, revision skipped", zap.Int("version", cur.Version))
		return nil
	case err != nil && !appErr.IsCode(err, appErr.CodeNotFound):
		return err
	}

	rev := &models.MapRevision{DocumentKey: s.key, Data: datatypes.JSON(raw), Checksum: sum}
	if err := s.revisions.Append(ctx, rev); err != nil {
		return err
	}
	logger.L().Info("document revision saved",
		zap.String("document_key", s.key),
		zap.Int("version", rev.Version),
		zap.Int("bytes", len(raw)),
	)
	s.prune(ctx)
	return nil
}

// prune drops revisions beyond the retention limit. Failures are logged; the
// save already succeeded.
func (s *PostgresStore) prune(ctx context.Context) {
	if s.keep <= 0 {
		return
	}
	revs, err := s.revisions.ListByKey(ctx, s.key)
	if err != nil {
		logger.L().Warn("revision prune skipped", zap.Error(err))
		return
	}
	for i, rev := range revs {
		if i < s.keep || rev.IsCurrent {
			continue
		}
		if err := s.revisions.Delete(ctx, rev.ID); err != nil {
			logger.L().Warn("revision prune failed", zap.Int("version", rev.Version), zap.Error(err))
			return
		}
		logger.L().Debug("revision pruned", zap.String("document_key", s.key), zap.Int("version", rev.Version))
	}
}

func (s *PostgresStore) History(ctx context.Context) ([]models.MapRevision, error) {
	return s.revisions.ListByKey(ctx, s.key)
}

// Restore makes version current and returns its document.
func (s *PostgresStore) Restore(ctx context.Context, version int) (*models.Document, error) {
	var rev models.MapRevision
	if err := s.revisions.GetByVersion(ctx, s.key, version, &rev); err != nil {
		return nil, err
	}
	doc, err := ImportSnapshot(rev.Data)
	if err != nil {
		return nil, err
	}
	if err := s.revisions.SetCurrent(ctx, s.key, version); err != nil {
		return nil, err
	}
	logger.L().Info("document revision restored", zap.String("document_key", s.key), zap.Int("version", version))
	return doc, nil
}

// contentChecksum hashes the document without its save timestamp.
func contentChecksum(doc *models.Document) (string, error) {
	c := *doc
	c.LastUpdated = time.Time{}
	raw, err := json.Marshal(&c)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "encode document")
	}
	return utils.Checksum(raw), nil
}
