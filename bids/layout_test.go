package bids

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bidsonym "github.com/PeerHerholz/BIDSonym"
)

func touch(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixture(t *testing.T) string {
	root := t.TempDir()
	touch(t, filepath.Join(root, "dataset_description.json"), `{"Name": "x"}`)
	touch(t, filepath.Join(root, "task-rest_bold.json"), `{"TaskName": "rest"}`)
	touch(t, filepath.Join(root, "participants.tsv"), "participant_id\tage\nsub-01\t30\nsub-03\t41\n")

	touch(t, filepath.Join(root, "sub-01", "anat", "sub-01_T1w.nii.gz"), "t1")
	touch(t, filepath.Join(root, "sub-01", "anat", "sub-01_T1w.json"), `{}`)
	touch(t, filepath.Join(root, "sub-01", "anat", "sub-01_T2w.nii.gz"), "t2")
	touch(t, filepath.Join(root, "sub-01", "func", "sub-01_task-rest_bold.nii.gz"), "bold")

	touch(t, filepath.Join(root, "sub-02", "ses-a", "anat", "sub-02_ses-a_T1w.nii.gz"), "t1a")
	touch(t, filepath.Join(root, "sub-02", "ses-b", "anat", "sub-02_ses-b_T1w.nii.gz"), "t1b")
	touch(t, filepath.Join(root, "sub-02", "ses-b", "anat", "sub-02_ses-b_FLAIR.nii"), "flair")

	return root
}

func TestSubjects(t *testing.T) {
	l, err := Open(fixture(t))
	require.NoError(t, err)

	all, err := l.Subjects(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02"}, all)

	some, err := l.Subjects([]string{"sub-02", "02"})
	require.NoError(t, err)
	assert.Equal(t, []string{"02"}, some)

	_, err = l.Subjects([]string{"99"})
	require.Error(t, err)
	assert.True(t, bidsonym.NotFoundError.Has(err))
}

func TestSessions(t *testing.T) {
	l, err := Open(fixture(t))
	require.NoError(t, err)

	sessions, err := l.Sessions("01")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	sessions, err = l.Sessions("02")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sessions)

	_, err = l.Sessions("77")
	assert.True(t, bidsonym.NotFoundError.Has(err))
}

func TestImages(t *testing.T) {
	root := fixture(t)
	l, err := Open(root)
	require.NoError(t, err)

	t1, err := l.Images("01", "", T1w)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "sub-01", "anat", "sub-01_T1w.nii.gz")}, t1)

	flair, err := l.Images("02", "b", FLAIR)
	require.NoError(t, err)
	assert.Len(t, flair, 1)

	none, err := l.Images("02", "a", FLAIR)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := l.ImageFiles("01", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSideCars(t *testing.T) {
	root := fixture(t)
	l, err := Open(root)
	require.NoError(t, err)

	sc, err := l.SideCars("01", "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "sub-01", "anat", "sub-01_T1w.json")}, sc)

	rootSC, err := l.RootSideCars()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "task-rest_bold.json")}, rootSC)
}

func TestParticipants(t *testing.T) {
	l, err := Open(fixture(t))
	require.NoError(t, err)

	listed, err := l.Participants()
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "03"}, listed)

	listedOnly, diskOnly, err := l.ParticipantMismatch()
	require.NoError(t, err)
	assert.Equal(t, []string{"03"}, listedOnly)
	assert.Equal(t, []string{"02"}, diskOnly)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, bidsonym.NotFoundError.Has(err))
}
