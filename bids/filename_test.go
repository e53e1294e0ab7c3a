package bids

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntities(t *testing.T) {
	f := Parse("/data/sub-01/ses-pre/anat/sub-01_ses-pre_run-2_T1w.nii.gz")

	assert.Equal(t, "/data/sub-01/ses-pre/anat", f.Dir())
	assert.Equal(t, ".nii.gz", f.Ext())
	assert.Equal(t, "sub-01_ses-pre_run-2_T1w", f.Stem())
	assert.Equal(t, "01", f.Subject())
	assert.Equal(t, "pre", f.Session())
	assert.Equal(t, "T1w", f.Suffix())

	run, ok := f.Entity("run")
	require.True(t, ok)
	assert.Equal(t, "2", run)

	_, ok = f.Entity("acq")
	assert.False(t, ok)
}

func TestTerminalTagRoundTrip(t *testing.T) {
	for _, v := range []struct {
		in     string
		tagged string
	}{
		{"sub-01_T1w.nii.gz", "sub-01_T1w_desc-nondeid.nii.gz"},
		{"sub-01_T1w.json", "sub-01_T1w_desc-nondeid.json"},
		{"task-rest_bold.json", "task-rest_bold_desc-nondeid.json"},
		{"sub-01_T1w_brainmask.nii.gz", "sub-01_T1w_brainmask_desc-nondeid.nii.gz"},
		{"sub-01_T1w.nii", "sub-01_T1w_desc-nondeid.nii"},
	} {
		tagged := Parse(v.in).WithTerminalTag()
		assert.Equal(t, v.tagged, tagged.Base(), v.in)
		assert.True(t, tagged.HasTerminalTag())

		// Tagging twice is a no-op
		assert.Equal(t, v.tagged, tagged.WithTerminalTag().Base())

		assert.Equal(t, v.in, tagged.WithoutTerminalTag().Base())
	}
}

func TestLegacyTag(t *testing.T) {
	f := Parse("sub-01_T1w_no_deid.nii.gz")
	assert.True(t, f.HasLegacyTag())
	assert.False(t, f.HasTerminalTag())
	assert.Equal(t, "sub-01_T1w.nii.gz", f.WithoutTerminalTag().Base())
	assert.Equal(t, "T1w", f.WithoutTerminalTag().Suffix())
}

func TestSuffixSkipsTrailingEntities(t *testing.T) {
	assert.Equal(t, "brainmask", Parse("sub-01_T1w_brainmask_desc-nondeid.nii.gz").Suffix())
	assert.Equal(t, "", Parse("sub-01.json").Suffix())
}

func TestInDir(t *testing.T) {
	f := Parse("/a/b/sub-01_T1w.nii.gz").InDir("/c")
	assert.Equal(t, filepath.Join("/c", "sub-01_T1w.nii.gz"), f.Path())
}

func TestDatatype(t *testing.T) {
	for in, expected := range map[string]string{
		"sub-01_T1w.nii.gz":                "anat",
		"sub-01_ses-1_FLAIR.json":          "anat",
		"sub-01_T2w.nii.gz":                "anat",
		"sub-01_task-rest_bold.json":       "func",
		"sub-01_dwi.nii.gz":                "dwi",
		"task-rest_bold.json":              "",
		"sub-01_scans.tsv":                 "anat",
		"sub-01_acq-highres_angio.nii.gz":  "anat",
		"sub-01_task-rest_bold_events.tsv": "func",
	} {
		assert.Equal(t, expected, Datatype(Parse(in)), in)
	}
}

func TestParseModality(t *testing.T) {
	m, err := ParseModality("flair")
	require.NoError(t, err)
	assert.Equal(t, FLAIR, m)

	_, err = ParseModality("PD")
	require.Error(t, err)
}

func TestIsDerived(t *testing.T) {
	assert.True(t, Parse("sub-01_T1w_brainmask_desc-nondeid.nii.gz").IsDerived())
	assert.True(t, Parse("sub-01_T1w_defacemask.nii.gz").IsDerived())
	assert.True(t, Parse("sub-01_T2w_T1wreg.nii.gz").IsDerived())
	assert.False(t, Parse("sub-01_T1w_desc-nondeid.nii.gz").IsDerived())
}
