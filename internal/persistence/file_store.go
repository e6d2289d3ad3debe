package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/models"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

// FileStore keeps the document in a local JSON file.
type FileStore struct {
	path   string
	backup bool
	now    func() time.Time
}

type FileOption func(*FileStore)

// WithBackup copies the previous file to <path>.<timestamp>.bak before each
// overwrite.
func WithBackup() FileOption {
	return func(s *FileStore) { s.backup = true }
}

func NewFileStore(path string, opts ...FileOption) *FileStore {
	s := &FileStore{path: path, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *FileStore) Path() string { return s.path }

// LoadAll reads and normalises the file. A missing file yields an empty
// document.
func (s *FileStore) LoadAll(ctx context.Context) (*models.Document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.L().Info("document file missing, starting empty", zap.String("path", s.path))
		return models.EmptyDocument(), nil
	}
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeIO, "read document file").WithMeta("path", s.path)
	}
	doc, err := ImportSnapshot(raw)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveAll writes the document atomically through a temporary file.
func (s *FileStore) SaveAll(ctx context.Context, doc *models.Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "encode document")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return appErr.Wrap(err, appErr.CodeIO, "create document directory")
	}
	if s.backup {
		if err := s.copyBackup(); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return appErr.Wrap(err, appErr.CodeIO, "create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return appErr.Wrap(err, appErr.CodeIO, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return appErr.Wrap(err, appErr.CodeIO, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return appErr.Wrap(err, appErr.CodeIO, "close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return appErr.Wrap(err, appErr.CodeIO, "replace document file")
	}
	logger.L().Debug("document saved", zap.String("path", s.path), zap.Int("bytes", len(raw)))
	return nil
}

func (s *FileStore) copyBackup() error {
	src, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return appErr.Wrap(err, appErr.CodeIO, "open document for backup")
	}
	defer src.Close()

	name := fmt.Sprintf("%s.%s.bak", s.path, s.now().Format("20060102_150405"))
	dst, err := os.Create(name)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeIO, "create backup")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return appErr.Wrap(err, appErr.CodeIO, "write backup")
	}
	return dst.Close()
}
