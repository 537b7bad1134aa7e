package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"
	"github.com/boddenberg/finanzas-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var filesTracer = otel.Tracer("service/files")

const listFilesLimit = 100

// FileService manages receipt files in the owner's storage namespace.
type FileService struct {
	storage port.ObjectStorage
	now     func() time.Time
	logger  *zap.Logger
}

func NewFileService(storage port.ObjectStorage, logger *zap.Logger) *FileService {
	return &FileService{storage: storage, now: time.Now, logger: logger}
}

// Upload stores data as <owner>/<unix-ms>_<filename>.
func (s *FileService) Upload(ctx context.Context, ownerID, filename, contentType string, data []byte) (*domain.StoredFile, error) {
	ctx, span := filesTracer.Start(ctx, "FileService.Upload")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrNotAuthenticated{}
	}
	if err := validateFileName(filename); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &domain.ErrValidation{Field: "file", Message: "empty file"}
	}

	name := fmt.Sprintf("%d_%s", s.now().UnixMilli(), filename)
	path := ownerID + "/" + name
	span.SetAttributes(attribute.String("storage.path", path))

	if err := s.storage.Upload(ctx, path, contentType, data); err != nil {
		s.logger.Error("receipt upload failed", zap.String("owner_id", ownerID), zap.String("path", path), zap.Error(err))
		return nil, err
	}

	s.logger.Info("receipt uploaded",
		zap.String("owner_id", ownerID),
		zap.String("path", path),
		zap.Int("size", len(data)),
	)
	return &domain.StoredFile{
		ID:   name,
		Name: name,
		URL:  s.storage.PublicURL(path),
	}, nil
}

// List returns the first page of the owner's files with their public URL.
func (s *FileService) List(ctx context.Context, ownerID string) ([]domain.StoredFile, error) {
	ctx, span := filesTracer.Start(ctx, "FileService.List")
	defer span.End()

	if ownerID == "" {
		return nil, &domain.ErrNotAuthenticated{}
	}

	files, err := s.storage.List(ctx, ownerID+"/", listFilesLimit, 0)
	if err != nil {
		return nil, err
	}
	for i := range files {
		if files[i].ID == "" {
			files[i].ID = files[i].Name
		}
		files[i].URL = s.storage.PublicURL(ownerID + "/" + files[i].Name)
	}
	return files, nil
}

// Delete removes <owner>/<name>.
func (s *FileService) Delete(ctx context.Context, ownerID, name string) error {
	ctx, span := filesTracer.Start(ctx, "FileService.Delete")
	defer span.End()

	if ownerID == "" {
		return &domain.ErrNotAuthenticated{}
	}
	if err := validateFileName(name); err != nil {
		return err
	}

	if err := s.storage.Remove(ctx, []string{ownerID + "/" + name}); err != nil {
		return err
	}
	s.logger.Info("receipt deleted", zap.String("owner_id", ownerID), zap.String("name", name))
	return nil
}

func validateFileName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return &domain.ErrValidation{Field: "name", Message: "required"}
	case strings.ContainsAny(name, `/\`), name == ".", name == "..":
		return &domain.ErrValidation{Field: "name", Message: "invalid file name"}
	}
	return nil
}
