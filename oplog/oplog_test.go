package oplog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPath(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	assert.Equal(t,
		filepath.Join("/d", "sourcedata", "bidsonym", "revert_logs", "sub-01", "sub-01_desc-revert_20240309T140507.log"),
		Path("/d", "01", "", "revert", at))
	assert.Equal(t,
		filepath.Join("/d", "sourcedata", "bidsonym", "deface_logs", "sub-01", "sub-01_ses-a_desc-deface_20240309T140507.log"),
		Path("/d", "01", "a", "deface", at))
}

func TestNewWritesBannerAndEntries(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	l := New(zap.NewNop(), root, "01", "a", "deface", at)
	require.NotEmpty(t, l.Path)
	l.Info("moving original to backup", zap.String("file", "sub-01_T1w.nii.gz"))
	require.NoError(t, l.Close())

	raw, err := os.ReadFile(l.Path)
	require.NoError(t, err)
	text := string(raw)

	assert.True(t, strings.HasPrefix(text, strings.Repeat("=", 80)+"\n"))
	assert.Contains(t, text, "Subject: sub-01\n")
	assert.Contains(t, text, "Session: ses-a\n")
	assert.Contains(t, text, "moving original to backup")
	assert.Contains(t, text, "sub-01_T1w.nii.gz")
}

func TestNewFallsBackToConsole(t *testing.T) {
	root := t.TempDir()
	// a file where the log directory should be
	blocker := filepath.Join(root, "sourcedata")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	l := New(zap.NewNop(), root, "01", "", "revert", time.Now())
	assert.Empty(t, l.Path)
	l.Info("still logs")
	assert.NoError(t, l.Close())
}
