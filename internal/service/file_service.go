package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"sheetpipe/internal/entity"
	"sheetpipe/internal/pipeline"
)

type FileStore interface {
	SaveUpload(fileID uuid.UUID, originalName string, r io.Reader) (string, error)
	ListSheets(path string) ([]string, error)
}

// FileService is the upload collaborator: it stores a workbook, verifies the
// selected sheet exists, and records the file with a retention deadline.
type FileService struct {
	files FileRepository
	store FileStore
	ttl   time.Duration
	now   func() time.Time
}

func NewFileService(files FileRepository, store FileStore, ttl time.Duration) *FileService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FileService{files: files, store: store, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (s *FileService) Upload(ctx context.Context, userID, originalName, selectedSheet string, r io.Reader) (*entity.SourceFile, error) {
	if strings.TrimSpace(originalName) == "" {
		return nil, pipeline.NewValidationError("file name is required")
	}
	if strings.TrimSpace(selectedSheet) == "" {
		return nil, pipeline.NewValidationError("selected_sheet is required")
	}

	id := uuid.New()
	path, err := s.store.SaveUpload(id, originalName, r)
	if err != nil {
		return nil, err
	}

	sheets, err := s.store.ListSheets(path)
	if err != nil {
		return nil, err
	}
	found := false
	for _, name := range sheets {
		if name == selectedSheet {
			found = true
			break
		}
	}
	if !found {
		return nil, pipeline.NewValidationError(
			"Sheet \"" + selectedSheet + "\" not found in workbook. Available sheets: " + strings.Join(sheets, ", "))
	}

	now := s.now()
	file := &entity.SourceFile{
		ID:            id,
		UserID:        userID,
		OriginalName:  originalName,
		Path:          path,
		SelectedSheet: selectedSheet,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.files.Create(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}
