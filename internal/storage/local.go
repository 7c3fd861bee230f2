package storage

import (
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Storage areas under the base path
const (
	TempDir       = "uploads/tmp"
	DuplicatesDir = "duplicates"
)

// ErrInvalidName is returned for file names that could escape their directory.
var ErrInvalidName = errors.New("invalid file name")

var duplicateName = regexp.MustCompile(`^duplicates_\d+(_[0-9a-f]+)?\.csv$`)

// LocalStorage handles file storage on the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	for _, dir := range []string{TempDir, DuplicatesDir} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &LocalStorage{basePath: basePath}, nil
}

// SaveUpload copies an uploaded stream to a uniquely named temp file and
// returns its absolute path. Callers own the file and must remove it.
func (s *LocalStorage) SaveUpload(src io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".csv"
	}
	filePath := filepath.Join(s.basePath, TempDir, generateID()+ext)

	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return filePath, nil
}

// Remove deletes a file by absolute path. Missing files are not an error.
func (s *LocalStorage) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DuplicateFile describes a generated duplicate report.
type DuplicateFile struct {
	Name string
	Path string
}

// WriteDuplicateFile writes skipped rows under their original headers.
func (s *LocalStorage) WriteDuplicateFile(headers []string, rows [][]string, now time.Time) (*DuplicateFile, error) {
	name := fmt.Sprintf("duplicates_%d_%s.csv", now.UnixMilli(), generateID()[:8])
	filePath := filepath.Join(s.basePath, DuplicatesDir, name)

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create duplicate file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write duplicate file: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write duplicate file: %w", err)
	}
	return &DuplicateFile{Name: name, Path: filePath}, nil
}

// OpenDuplicate opens a duplicate report by bare file name.
func (s *LocalStorage) OpenDuplicate(name string) (*os.File, error) {
	if !duplicateName.MatchString(name) {
		return nil, ErrInvalidName
	}
	return os.Open(filepath.Join(s.basePath, DuplicatesDir, name))
}

// DeleteDuplicate removes a duplicate report by bare file name.
func (s *LocalStorage) DeleteDuplicate(name string) error {
	if !duplicateName.MatchString(name) {
		return ErrInvalidName
	}
	return s.Remove(filepath.Join(s.basePath, DuplicatesDir, name))
}

// SweepResult reports what a sweep removed.
type SweepResult struct {
	DeletedCount int   `json:"deletedCount"`
	TotalSize    int64 `json:"totalSize"`
}

// SweepOlderThan removes regular files in dir whose modification time is
// older than maxAge. A zero maxAge removes every file.
func (s *LocalStorage) SweepOlderThan(dir string, maxAge time.Duration, now time.Time) (SweepResult, error) {
	var res SweepResult
	root := filepath.Join(s.basePath, dir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, nil
		}
		return res, err
	}

	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		res.DeletedCount++
		res.TotalSize += info.Size()
	}
	return res, errors.Join(errs...)
}

// DirStats summarises one storage area.
type DirStats struct {
	Files      int        `json:"files"`
	TotalSize  int64      `json:"totalSize"`
	OldestFile *time.Time `json:"oldestFile,omitempty"`
}

// Stats returns file counts and sizes for dir.
func (s *LocalStorage) Stats(dir string) (DirStats, error) {
	var st DirStats
	entries, err := os.ReadDir(filepath.Join(s.basePath, dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		st.Files++
		st.TotalSize += info.Size()
		mod := info.ModTime()
		if st.OldestFile == nil || mod.Before(*st.OldestFile) {
			st.OldestFile = &mod
		}
	}
	return st, nil
}

// generateID creates a unique identifier for filenames
func generateID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// IsValidContentType checks if the content type is acceptable for a CSV upload
func IsValidContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch ct {
	case "", "text/csv", "application/csv", "text/plain", "application/vnd.ms-excel", "application/octet-stream":
		return true
	}
	return false
}
