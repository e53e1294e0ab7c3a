package deface

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/exttool"
)

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("quickshear")
	require.NoError(t, err)
	assert.Equal(t, Quickshear, a)

	_, err = ParseAlgorithm("blur")
	assert.True(t, bidsonym.ConfigurationError.Has(err))
}

func TestCommandLines(t *testing.T) {
	tests := []struct {
		alg  Algorithm
		want []string
	}{
		{Pydeface, []string{"pydeface in.nii.gz --out out.nii.gz --force"}},
		{MRIDeface, []string{"mri_deface in.nii.gz /home/bm/bidsonym/fs_data/talairach_mixed_with_skull.gca /home/bm/bidsonym/fs_data/face.gca out.nii.gz"}},
		{DeepDefacer, []string{"deepdefacer --input_file in.nii.gz --defaced_output_path out.nii.gz"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.alg), func(t *testing.T) {
			rec := &exttool.Recorder{}
			d, err := New(string(tt.alg), rec, Options{})
			require.NoError(t, err)

			require.NoError(t, d.Deface(context.Background(), "in.nii.gz", "out.nii.gz", "backup"))

			var got []string
			for _, c := range rec.Calls() {
				got = append(got, c.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuickshearUsesBetMask(t *testing.T) {
	rec := &exttool.Recorder{}
	d, err := New("quickshear", rec, Options{})
	require.NoError(t, err)

	require.NoError(t, d.Deface(context.Background(), "in.nii.gz", "out.nii.gz", "backup"))

	calls := rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "bet", calls[0].Name)
	assert.Equal(t, []string{"-m", "-f", "0.5"}, calls[0].Args[2:])
	assert.Equal(t, "quickshear", calls[1].Name)
	assert.Equal(t, calls[0].Args[1]+"_mask.nii.gz", calls[1].Args[1])
	assert.Equal(t, []string{"out.nii.gz", "50"}, calls[1].Args[2:])
}

func TestMRIDefacerMovesMask(t *testing.T) {
	dir := t.TempDir()
	backup := filepath.Join(dir, "backup")
	in := filepath.Join(backup, "sub-01_T1w.nii.gz")
	out := filepath.Join(dir, "anat", "sub-01_T1w.nii.gz")
	require.NoError(t, os.MkdirAll(backup, 0o755))
	require.NoError(t, os.WriteFile(in, []byte("original"), 0o644))

	rec := &exttool.Recorder{Do: func(name string, args []string) error {
		target := args[len(args)-1]
		if err := os.WriteFile(target, []byte("defaced"), 0o644); err != nil {
			return err
		}
		return os.WriteFile(strings.TrimSuffix(target, ".nii.gz")+"_defacemask.nii.gz", []byte("mask"), 0o644)
	}}
	d, err := New("mridefacer", rec, Options{MRIDefacer: "mridefacer"})
	require.NoError(t, err)

	require.NoError(t, d.Deface(context.Background(), in, out, backup))

	assert.Equal(t, "mridefacer --apply "+out, rec.Calls()[0].String())
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "defaced", string(raw))
	assert.NoFileExists(t, MaskPath(out))
	assert.FileExists(t, filepath.Join(backup, "sub-01_T1w_defacemask.nii.gz"))
}

func TestFailurePropagates(t *testing.T) {
	rec := &exttool.Recorder{Do: func(string, []string) error {
		return bidsonym.ExternalToolError.New("pydeface exited with status 1")
	}}
	d, err := New("pydeface", rec, Options{})
	require.NoError(t, err)

	err = d.Deface(context.Background(), "in", "out", "backup")
	assert.True(t, bidsonym.ExternalToolError.Has(err))
}
