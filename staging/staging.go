// Package staging moves originals out of the canonical BIDS tree into a
// per-unit backup directory before anything destructive touches them, and tags
// the backups once a unit is complete.
package staging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"
	"go.uber.org/zap"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/bids"
)

// Reorganized subdirectories of a BackupRoot.
const (
	ImagesDir   = "images"
	MetadataDir = "meta_data_info"
)

// ToolRoot returns sourcedata/bidsonym under bidsRoot.
func ToolRoot(bidsRoot string) string {
	return filepath.Join(bidsRoot, "sourcedata", bidsonym.ToolName)
}

// BackupRootPath returns sourcedata/bidsonym/sub-<subject>[/ses-<session>].
func BackupRootPath(bidsRoot, subject, session string) string {
	return bids.UnitDir(ToolRoot(bidsRoot), subject, session)
}

// Manager is the only writer of backup roots during processing.
type Manager struct {
	BIDSRoot string
	Log      *zap.Logger
}

// New returns a Manager for the dataset at bidsRoot.
func New(bidsRoot string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{BIDSRoot: bidsRoot, Log: log}
}

// BackupRoot returns the backup directory of a subject/session unit.
func (m *Manager) BackupRoot(subject, session string) string {
	return BackupRootPath(m.BIDSRoot, subject, session)
}

// CheckFresh fails with AlreadyStagedError if the unit's backup root already
// holds files from an earlier run. An absent or empty directory is fresh.
// Session directories of a session-less subject are not counted.
func (m *Manager) CheckFresh(subject, session string) error {
	root := m.BackupRoot(subject, session)

	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return pfx.Err(err)
	}

	for _, e := range entries {
		if session == "" && e.IsDir() && strings.HasPrefix(e.Name(), "ses-") {
			continue
		}
		return bidsonym.AlreadyStagedError.New("backup directory %s already exists from an earlier run; revert it first", root)
	}

	return nil
}

// EnsureBackupRoot creates the unit's backup root if absent.
func (m *Manager) EnsureBackupRoot(subject, session string) (string, error) {
	root := m.BackupRoot(subject, session)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", pfx.Err(err)
	}
	return root, nil
}

// StageOriginal moves the file at path into the unit's backup root, keeping
// its base name, and returns the new path. The canonical path is left empty
// for the caller to refill.
func (m *Manager) StageOriginal(path, subject, session string) (string, error) {
	return m.stage(path, subject, session, true)
}

// StageCopy copies the file at path into the unit's backup root. The original
// stays in place, to be rewritten by the caller.
func (m *Manager) StageCopy(path, subject, session string) (string, error) {
	return m.stage(path, subject, session, false)
}

func (m *Manager) stage(path, subject, session string, move bool) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", bidsonym.NotFoundError.New("%s does not exist", path)
		}
		return "", pfx.Err(err)
	}

	root, err := m.EnsureBackupRoot(subject, session)
	if err != nil {
		return "", err
	}

	if existing, ok := m.Staged(root, filepath.Base(path)); ok {
		return "", bidsonym.AlreadyStagedError.New("%s is already backed up as %s", path, existing)
	}

	dst := filepath.Join(root, filepath.Base(path))

	verb := "copying"
	if move {
		verb = "moving"
	}
	m.Log.Info(verb+" original to backup", zap.String("from", path), zap.String("to", dst))

	if move {
		err = moveFile(path, dst)
	} else {
		err = copyFile(path, dst)
	}
	if err != nil {
		m.Log.Error("staging failed", zap.String("file", path), zap.Error(err))
		return "", err
	}

	m.Log.Info("staged original", zap.String("backup", dst))
	return dst, nil
}

// Staged reports whether root already holds a backup of the file named base,
// untagged, tagged, or reorganized into images/ or meta_data_info/.
func (m *Manager) Staged(root, base string) (string, bool) {
	tagged := bids.Parse(base).WithTerminalTag().Base()

	for _, dir := range []string{root, filepath.Join(root, ImagesDir), filepath.Join(root, MetadataDir)} {
		for _, name := range []string{base, tagged} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Lstat(candidate); err == nil {
				return candidate, true
			}
		}
	}

	return "", false
}

// FinalizeBackupNaming inserts the terminal tag into the name of every file
// directly under the unit's backup root. Tagged files and QC reports (.csv,
// .png, .gif) are skipped, so running it again changes nothing. It returns
// the new paths.
func (m *Manager) FinalizeBackupNaming(subject, session string) ([]string, error) {
	root := m.BackupRoot(subject, session)

	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	var renamed []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		name := bids.Parse(filepath.Join(root, e.Name()))
		if name.HasTerminalTag() || name.HasLegacyTag() || isReport(name.Ext()) {
			continue
		}

		dst := name.WithTerminalTag().Path()
		if _, err := os.Lstat(dst); err == nil {
			return renamed, bidsonym.AlreadyStagedError.New("cannot tag %s: %s already exists", name.Path(), dst)
		}

		if err := os.Rename(name.Path(), dst); err != nil {
			return renamed, pfx.Err(err)
		}
		m.Log.Debug("tagged backup", zap.String("from", name.Base()), zap.String("to", filepath.Base(dst)))
		renamed = append(renamed, dst)
	}

	m.Log.Info("finalized backup naming", zap.String("backup_root", root), zap.Int("renamed", len(renamed)))
	return renamed, nil
}

// RestoreCanonical copies a staged original back to its canonical path. It is
// used when an external algorithm failed and may have left the canonical path
// empty or half-written.
func (m *Manager) RestoreCanonical(backedUp, canonical string) error {
	m.Log.Warn("restoring original to canonical path", zap.String("from", backedUp), zap.String("to", canonical))

	if err := os.Remove(canonical); err != nil && !os.IsNotExist(err) {
		return pfx.Err(err)
	}
	if err := copyFile(backedUp, canonical); err != nil {
		return err
	}

	m.Log.Info("restored original", zap.String("file", canonical))
	return nil
}

func isReport(ext string) bool {
	switch strings.ToLower(ext) {
	case ".csv", ".png", ".gif":
		return true
	}
	return false
}
