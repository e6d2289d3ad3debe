package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MapRevision stores one saved version of a Document.
type MapRevision struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	DocumentKey string         `gorm:"type:varchar(64);not null;index:idx_revision_key_version,unique" json:"document_key" validate:"required"`
	Version     int            `gorm:"not null;index:idx_revision_key_version,unique" json:"version" validate:"gte=1"`
	Data        datatypes.JSON `gorm:"type:jsonb" json:"-" validate:"required"`
	Checksum    string         `gorm:"type:varchar(64);not null" json:"checksum"`
	IsCurrent   bool           `gorm:"not null;default:false;index" json:"is_current"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
