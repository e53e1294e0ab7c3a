package staging

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	bidsonym "github.com/PeerHerholz/BIDSonym"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func TestBackupRootPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/d", "sourcedata", "bidsonym", "sub-01"), BackupRootPath("/d", "01", ""))
	assert.Equal(t, filepath.Join("/d", "sourcedata", "bidsonym", "sub-01", "ses-2"), BackupRootPath("/d", "01", "2"))
}

func TestStageOriginalMoves(t *testing.T) {
	root := t.TempDir()
	t1 := filepath.Join(root, "sub-01", "anat", "sub-01_T1w.nii.gz")
	write(t, t1, "original")

	m := New(root, zaptest.NewLogger(t))
	backup, err := m.StageOriginal(t1, "01", "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(m.BackupRoot("01", ""), "sub-01_T1w.nii.gz"), backup)
	assert.Equal(t, "original", read(t, backup))
	assert.NoFileExists(t, t1)
}

func TestStageTwiceIsRefused(t *testing.T) {
	root := t.TempDir()
	t1 := filepath.Join(root, "sub-01", "anat", "sub-01_T1w.nii.gz")
	write(t, t1, "original")

	m := New(root, zaptest.NewLogger(t))
	backup, err := m.StageOriginal(t1, "01", "")
	require.NoError(t, err)

	write(t, t1, "defaced")
	_, err = m.StageOriginal(t1, "01", "")
	require.Error(t, err)
	assert.True(t, bidsonym.AlreadyStagedError.Has(err))

	assert.Equal(t, "original", read(t, backup))
	assert.Equal(t, "defaced", read(t, t1))

	require.Error(t, m.CheckFresh("01", ""))
}

func TestStageRefusesTaggedAndReorganizedBackups(t *testing.T) {
	root := t.TempDir()
	m := New(root, zaptest.NewLogger(t))
	br := m.BackupRoot("01", "")

	write(t, filepath.Join(br, "sub-01_T1w_desc-nondeid.nii.gz"), "old")
	write(t, filepath.Join(br, MetadataDir, "sub-01_T1w_desc-nondeid.json"), "{}")

	for _, name := range []string{"sub-01_T1w.nii.gz", "sub-01_T1w.json"} {
		src := filepath.Join(root, "sub-01", "anat", name)
		write(t, src, "new")
		_, err := m.StageCopy(src, "01", "")
		assert.True(t, bidsonym.AlreadyStagedError.Has(err), name)
	}
	assert.Equal(t, "old", read(t, filepath.Join(br, "sub-01_T1w_desc-nondeid.nii.gz")))
}

func TestStageMissingFile(t *testing.T) {
	m := New(t.TempDir(), nil)
	_, err := m.StageOriginal(filepath.Join(m.BIDSRoot, "nope.nii.gz"), "01", "")
	assert.True(t, bidsonym.NotFoundError.Has(err))
}

func TestStageCopyKeepsOriginal(t *testing.T) {
	root := t.TempDir()
	js := filepath.Join(root, "sub-01", "anat", "sub-01_T1w.json")
	write(t, js, `{"ProtocolName": "foo"}`)

	m := New(root, zaptest.NewLogger(t))
	backup, err := m.StageCopy(js, "01", "")
	require.NoError(t, err)

	assert.Equal(t, read(t, js), read(t, backup))
}

func TestCheckFresh(t *testing.T) {
	root := t.TempDir()
	m := New(root, nil)

	require.NoError(t, m.CheckFresh("01", ""))

	_, err := m.EnsureBackupRoot("01", "")
	require.NoError(t, err)
	require.NoError(t, m.CheckFresh("01", ""))

	// a session-less unit does not see its sessions' backups
	write(t, filepath.Join(m.BackupRoot("01", "a"), "sub-01_ses-a_T1w.nii.gz"), "x")
	require.NoError(t, m.CheckFresh("01", ""))
	assert.True(t, bidsonym.AlreadyStagedError.Has(m.CheckFresh("01", "a")))
	require.NoError(t, m.CheckFresh("01", "b"))
}

func TestFinalizeBackupNamingIdempotent(t *testing.T) {
	root := t.TempDir()
	m := New(root, zaptest.NewLogger(t))
	br := m.BackupRoot("01", "")

	write(t, filepath.Join(br, "sub-01_T1w.nii.gz"), "t1")
	write(t, filepath.Join(br, "sub-01_T1w.json"), "{}")
	write(t, filepath.Join(br, "sub-01_T1w_brainmask.nii.gz"), "mask")
	write(t, filepath.Join(br, "sub-01_T2w_desc-nondeid.nii.gz"), "t2")
	write(t, filepath.Join(br, "sub-01_T1w_desc-headerinfo.csv"), "csv")
	write(t, filepath.Join(br, "sub-01_T1w.gif"), "gif")

	renamed, err := m.FinalizeBackupNaming("01", "")
	require.NoError(t, err)
	assert.Len(t, renamed, 3)

	once := listDir(t, br)
	assert.Equal(t, []string{
		"sub-01_T1w.gif",
		"sub-01_T1w_brainmask_desc-nondeid.nii.gz",
		"sub-01_T1w_desc-headerinfo.csv",
		"sub-01_T1w_desc-nondeid.json",
		"sub-01_T1w_desc-nondeid.nii.gz",
		"sub-01_T2w_desc-nondeid.nii.gz",
	}, once)

	renamed, err = m.FinalizeBackupNaming("01", "")
	require.NoError(t, err)
	assert.Empty(t, renamed)
	assert.Equal(t, once, listDir(t, br))
}

func TestRestoreCanonical(t *testing.T) {
	root := t.TempDir()
	m := New(root, zaptest.NewLogger(t))

	backup := filepath.Join(m.BackupRoot("01", ""), "sub-01_T1w.nii.gz")
	canonical := filepath.Join(root, "sub-01", "anat", "sub-01_T1w.nii.gz")
	write(t, backup, "original")
	write(t, canonical, "half-written")

	require.NoError(t, m.RestoreCanonical(backup, canonical))
	assert.Equal(t, "original", read(t, canonical))
	assert.Equal(t, "original", read(t, backup))
}
