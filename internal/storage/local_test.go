package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveUploadAndRemove(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	path, err := s.SaveUpload(strings.NewReader("Trading Code\nTC1\n"), "clients.CSV")
	require.NoError(t, err)
	assert.Equal(t, ".csv", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Trading Code\nTC1\n", string(data))

	require.NoError(t, s.Remove(path))
	require.NoError(t, s.Remove(path), "removing twice is not an error")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDuplicateFileLifecycle(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	now := time.UnixMilli(1700000000123)
	df, err := s.WriteDuplicateFile([]string{"Trading Code", "Name"}, [][]string{{"TC1", "Asha"}}, now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(df.Name, "duplicates_1700000000123"))

	f, err := s.OpenDuplicate(df.Name)
	require.NoError(t, err)
	records, err := csv.NewReader(f).ReadAll()
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Trading Code", "Name"}, {"TC1", "Asha"}}, records)

	require.NoError(t, s.DeleteDuplicate(df.Name))
	_, err = s.OpenDuplicate(df.Name)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenDuplicate_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../secret.csv", "duplicates_1/../../x.csv", "clients.csv", ""} {
		_, err := s.OpenDuplicate(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestSweepOlderThan_KeepsYoungFiles(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	now := time.Now()
	oldPath := filepath.Join(base, TempDir, "old.csv")
	youngPath := filepath.Join(base, TempDir, "young.csv")
	require.NoError(t, os.WriteFile(oldPath, []byte("12345"), 0644))
	require.NoError(t, os.WriteFile(youngPath, []byte("abc"), 0644))
	require.NoError(t, os.Chtimes(oldPath, now.Add(-3*time.Hour), now.Add(-3*time.Hour)))
	require.NoError(t, os.Chtimes(youngPath, now.Add(-10*time.Minute), now.Add(-10*time.Minute)))

	res, err := s.SweepOlderThan(TempDir, time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{DeletedCount: 1, TotalSize: 5}, res)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(youngPath)
	assert.NoError(t, err)

	res, err = s.SweepOlderThan(TempDir, 0, now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedCount)
}

func TestStats(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	st, err := s.Stats(TempDir)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Files)
	assert.Nil(t, st.OldestFile)

	require.NoError(t, os.WriteFile(filepath.Join(base, TempDir, "a.csv"), []byte("1234"), 0644))
	st, err = s.Stats(TempDir)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, int64(4), st.TotalSize)
	assert.NotNil(t, st.OldestFile)
}

func TestIsValidContentType(t *testing.T) {
	assert.True(t, IsValidContentType("text/csv; charset=utf-8"))
	assert.True(t, IsValidContentType("application/vnd.ms-excel"))
	assert.False(t, IsValidContentType("image/png"))
}
