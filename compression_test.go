package bidsonym

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDataType(t *testing.T) {
	cases := []struct {
		in   []byte
		want DataType
	}{
		{[]byte{0x1f, 0x8b, 0x08, 0, 0, 0}, DataTypeGzip},
		{[]byte{0x50, 0x4b, 0x03, 0x04, 0, 0}, DataTypeZip},
		{[]byte{0x42, 0x5a, 0x68}, DataTypeBZip2},
		{[]byte("sizeof_hdr"), DataTypeNoCompression},
		{[]byte{0x1f}, DataTypeNoCompression},
	}

	for _, c := range cases {
		got, err := DetectDataType(bytes.NewReader(c.in))
		require.NoError(t, err, "%x", c.in)
		assert.Equal(t, c.want, got, "%x", c.in)
	}

	_, err := DetectDataType(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestMaybeGunzipFile(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.nii")
	require.NoError(t, os.WriteFile(plain, []byte("uncompressed voxels"), 0o644))

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("compressed voxels"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	packed := filepath.Join(dir, "packed.nii.gz")
	require.NoError(t, os.WriteFile(packed, buf.Bytes(), 0o644))

	zipped := filepath.Join(dir, "zipped.nii")
	require.NoError(t, os.WriteFile(zipped, []byte{0x50, 0x4b, 0x03, 0x04, 0, 0, 0}, 0o644))

	for path, want := range map[string]string{plain: "uncompressed voxels", packed: "compressed voxels"} {
		rc, err := MaybeGunzipFile(path)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, want, string(got))
	}

	_, err = MaybeGunzipFile(zipped)
	assert.True(t, ValidationError.Has(err))

	_, err = MaybeGunzipFile(filepath.Join(dir, "missing.nii"))
	assert.Error(t, err)
}
