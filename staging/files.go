package staging

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/carbocation/pfx"
)

// CopyFile copies src to dst, creating dst's directory and keeping the file
// mode. An existing dst is truncated.
func CopyFile(src, dst string) error {
	return copyFile(src, dst)
}

// MoveFile renames src to dst, falling back to copy and remove when the two
// are on different filesystems.
func MoveFile(src, dst string) error {
	return moveFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return pfx.Err(err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return pfx.Err(err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return pfx.Err(err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return pfx.Err(err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return pfx.Err(err)
	}

	return pfx.Err(out.Close())
}

func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return pfx.Err(err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	if !errors.Is(err, syscall.EXDEV) {
		return pfx.Err(err)
	}

	if err := copyFile(src, dst); err != nil {
		return err
	}

	return pfx.Err(os.Remove(src))
}
