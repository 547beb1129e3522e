package entity

import (
	"time"

	"github.com/google/uuid"
)

// SourceFile tracks an uploaded workbook and the sheet selected for processing.
type SourceFile struct {
	ID            uuid.UUID `json:"file_id"`
	UserID        string    `json:"user_id"`
	OriginalName  string    `json:"original_name"`
	Path          string    `json:"-"`
	SelectedSheet string    `json:"selected_sheet"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (f *SourceFile) Expired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}
