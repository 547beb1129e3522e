package sheet

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskStore keeps uploaded workbooks and pipeline outputs under one data
// directory, mirroring the originals/ and processed/ split of the upload flow.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	for _, sub := range []string{"originals", "processed"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return &DiskStore{dir: dir}, nil
}

// SaveUpload streams an uploaded workbook to disk and returns its path.
func (s *DiskStore) SaveUpload(fileID uuid.UUID, originalName string, r io.Reader) (string, error) {
	path := filepath.Join(s.dir, "originals", fileID.String()+"_"+sanitizeName(originalName))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// SaveOutput serializes the mutated snapshot and writes it under processed/.
// The file appears only as a complete workbook: encode happens fully in memory
// first, so a failed serialization leaves nothing behind.
func (s *DiskStore) SaveOutput(jobID uuid.UUID, filename string, ws *Sheet) (string, error) {
	data, err := EncodeSheet(ws)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, "processed", jobID.String()+"_"+sanitizeName(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return path, nil
}

func (s *DiskStore) ExtractSheet(path, sheetName string) (*Sheet, error) {
	return ExtractSheet(path, sheetName)
}

func (s *DiskStore) ListSheets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ListSheets(f)
}

// sanitizeName keeps only the base name and replaces path-hostile characters.
func sanitizeName(name string) string {
	base := filepath.Base(name)
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." {
		return "workbook.xlsx"
	}
	return base
}
