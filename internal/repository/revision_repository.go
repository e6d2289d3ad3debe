package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/territory-studio/engine/internal/models"
	appErr "github.com/territory-studio/engine/pkg/errors"
)

// RevisionRepository stores the saved versions of map documents.
type RevisionRepository interface {
	BaseRepository[models.MapRevision]
	GetCurrent(ctx context.Context, key string, dest *models.MapRevision) error
	GetByVersion(ctx context.Context, key string, version int, dest *models.MapRevision) error
	ListByKey(ctx context.Context, key string) ([]models.MapRevision, error)
	// Append stores rev as the next version of its key and makes it current.
	Append(ctx context.Context, rev *models.MapRevision) error
	SetCurrent(ctx context.Context, key string, version int) error
}

type revisionRepository struct {
	BaseRepository[models.MapRevision]
	db *gorm.DB
}

func NewRevisionRepository(db *gorm.DB) RevisionRepository {
	return &revisionRepository{BaseRepository: NewBaseRepository[models.MapRevision](db), db: db}
}

func (r *revisionRepository) GetCurrent(ctx context.Context, key string, dest *models.MapRevision) error {
	if err := r.db.WithContext(ctx).Where("document_key = ? AND is_current = ?", key, true).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "no current revision found")
		}
		return appErr.Wrap(err, appErr.CodeUnavailable, "get current revision failed")
	}
	return nil
}

func (r *revisionRepository) GetByVersion(ctx context.Context, key string, version int, dest *models.MapRevision) error {
	if err := r.db.WithContext(ctx).Where("document_key = ? AND version = ?", key, version).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.Newf(appErr.CodeNotFound, "revision %d not found", version)
		}
		return appErr.Wrap(err, appErr.CodeUnavailable, "get revision failed")
	}
	return nil
}

// ListByKey returns revisions newest first without their document payload.
func (r *revisionRepository) ListByKey(ctx context.Context, key string) ([]models.MapRevision, error) {
	var out []models.MapRevision
	err := r.db.WithContext(ctx).
		Select("id", "document_key", "version", "checksum", "is_current", "created_at", "updated_at").
		Where("document_key = ?", key).
		Order("version DESC").
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "list revisions failed")
	}
	return out, nil
}

func (r *revisionRepository) Append(ctx context.Context, rev *models.MapRevision) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int
		// pruned rows still hold their version numbers
		if err := tx.Unscoped().Model(&models.MapRevision{}).
			Where("document_key = ?", rev.DocumentKey).
			Select("COALESCE(MAX(version), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.MapRevision{}).
			Where("document_key = ? AND is_current = ?", rev.DocumentKey, true).
			Update("is_current", false).Error; err != nil {
			return err
		}
		rev.Version = last + 1
		rev.IsCurrent = true
		return tx.Create(rev).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return appErr.Wrap(err, appErr.CodeConflict, "revision appended concurrently")
		}
		return appErr.Wrap(err, appErr.CodeUnavailable, "append revision failed")
	}
	return nil
}

// isUniqueViolation reports a postgres unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// SetCurrent marks version as current and clears the previous flag in one
// transaction.
func (r *revisionRepository) SetCurrent(ctx context.Context, key string, version int) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return appErr.Wrap(tx.Error, appErr.CodeUnavailable, "begin transaction failed")
	}

	if err := tx.Model(&models.MapRevision{}).Where("document_key = ? AND is_current = ?", key, true).Update("is_current", false).Error; err != nil {
		tx.Rollback()
		return appErr.Wrap(err, appErr.CodeUnavailable, "clear current flag failed")
	}

	res := tx.Model(&models.MapRevision{}).Where("document_key = ? AND version = ?", key, version).Update("is_current", true)
	if res.Error != nil {
		tx.Rollback()
		return appErr.Wrap(res.Error, appErr.CodeUnavailable, "set current flag failed")
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return appErr.Newf(appErr.CodeNotFound, "revision %d not found", version)
	}

	if err := tx.Commit().Error; err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, "commit transaction failed")
	}
	return nil
}
