// Package reorg sorts the files of a finished backup root into images/ and
// meta_data_info/ for long-term storage.
package reorg

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"
	"go.uber.org/zap"

	"github.com/PeerHerholz/BIDSonym/bids"
	"github.com/PeerHerholz/BIDSonym/staging"
)

// Target returns the subdirectory a file with the given name belongs in, or
// "" if it is left where it is.
func Target(name string) string {
	switch bids.Parse(name).Ext() {
	case ".nii.gz", ".nii", ".png", ".gif":
		return staging.ImagesDir
	case ".csv", ".json":
		return staging.MetadataDir
	}
	return ""
}

// Reorganize moves the files directly under the unit's backup root into
// images/ and meta_data_info/. For a session-less unit, each ses-* subfolder is
// reorganized into its own subdirectories. Files already inside the target
// subdirectories are not touched, so a second call moves nothing. It returns
// the number of files moved.
func Reorganize(log *zap.Logger, bidsRoot, subject, session string) (int, error) {
	root := staging.BackupRootPath(bidsRoot, subject, session)

	dirs := []string{root}
	if session == "" {
		entries, err := os.ReadDir(root)
		if err != nil && !os.IsNotExist(err) {
			return 0, pfx.Err(err)
		}
		for _, e := range entries {
			if e.IsDir() && strings.HasPrefix(e.Name(), "ses-") {
				dirs = append(dirs, filepath.Join(root, e.Name()))
			}
		}
	}

	moved := 0
	for _, dir := range dirs {
		n, err := reorganizeDir(log, dir)
		moved += n
		if err != nil {
			return moved, err
		}
	}

	return moved, nil
}

func reorganizeDir(log *zap.Logger, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	} else if err != nil {
		return 0, pfx.Err(err)
	}

	moved := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		sub := Target(e.Name())
		if sub == "" {
			log.Debug("leaving unrecognized file in place", zap.String("file", filepath.Join(dir, e.Name())))
			continue
		}

		src := filepath.Join(dir, e.Name())
		dst := filepath.Join(dir, sub, e.Name())
		if err := staging.MoveFile(src, dst); err != nil {
			return moved, err
		}
		moved++
	}

	if moved > 0 {
		log.Info("reorganized backup directory", zap.String("dir", dir), zap.Int("files", moved))
	}
	return moved, nil
}
