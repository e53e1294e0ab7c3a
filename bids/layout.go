// Package bids is a read-only index over a BIDS directory tree: it lists
// subjects, sessions and typed image files, and parses BIDS file names.
package bids

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/carbocation/pfx"

	bidsonym "github.com/PeerHerholz/BIDSonym"
)

// Layout indexes the dataset rooted at Root. It never writes.
type Layout struct {
	Root string
}

// Open checks that root is a directory and returns its Layout.
func Open(root string) (*Layout, error) {
	stat, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, bidsonym.NotFoundError.New("BIDS directory %s does not exist", root)
		}
		return nil, pfx.Err(err)
	}
	if !stat.IsDir() {
		return nil, bidsonym.ConfigurationError.New("%s is not a directory", root)
	}

	return &Layout{Root: root}, nil
}

// TrimSubject strips an optional "sub-" prefix from a participant label.
func TrimSubject(label string) string { return strings.TrimPrefix(label, "sub-") }

// TrimSession strips an optional "ses-" prefix from a session label.
func TrimSession(label string) string { return strings.TrimPrefix(label, "ses-") }

// SubjectDir returns the canonical directory of a subject, or of one of its
// sessions when session is non-empty.
func (l *Layout) SubjectDir(subject, session string) string {
	return UnitDir(l.Root, subject, session)
}

// UnitDir returns root/sub-<subject>[/ses-<session>].
func UnitDir(root, subject, session string) string {
	dir := filepath.Join(root, "sub-"+subject)
	if session != "" {
		dir = filepath.Join(dir, "ses-"+session)
	}
	return dir
}

// Subjects lists subject labels (without prefix). With a non-empty filter,
// every requested label must exist or a NotFoundError is returned.
func (l *Layout) Subjects(filter []string) ([]string, error) {
	available, err := l.labeledDirs(l.Root, "sub-")
	if err != nil {
		return nil, err
	}

	if len(filter) == 0 {
		return available, nil
	}

	known := make(map[string]struct{}, len(available))
	for _, s := range available {
		known[s] = struct{}{}
	}

	out := make([]string, 0, len(filter))
	seen := make(map[string]struct{})
	for _, label := range filter {
		label = TrimSubject(label)
		if _, ok := known[label]; !ok {
			return nil, bidsonym.NotFoundError.New("participant label sub-%s not found in %s", label, l.Root)
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}

	return out, nil
}

// Sessions lists the session labels of a subject. A session-less subject
// yields an empty slice.
func (l *Layout) Sessions(subject string) ([]string, error) {
	dir := l.SubjectDir(subject, "")
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, bidsonym.NotFoundError.New("subject sub-%s not found", subject)
		}
		return nil, pfx.Err(err)
	}

	return l.labeledDirs(dir, "ses-")
}

// Images returns the paths of all images of the given modality in a
// subject/session unit, sorted. Both .nii and .nii.gz are matched.
func (l *Layout) Images(subject, session string, modality Modality) ([]string, error) {
	pattern := filepath.Join(l.SubjectDir(subject, session), "anat", "*_"+string(modality)+".nii*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return regularFiles(matches), nil
}

// ImageFiles returns every NIfTI file in the unit's datatype folders.
func (l *Layout) ImageFiles(subject, session string) ([]string, error) {
	pattern := filepath.Join(l.SubjectDir(subject, session), "*", "*.nii*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return regularFiles(matches), nil
}

// SideCars returns the JSON side-cars in the unit's datatype folders.
func (l *Layout) SideCars(subject, session string) ([]string, error) {
	pattern := filepath.Join(l.SubjectDir(subject, session), "*", "*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return regularFiles(matches), nil
}

// RootSideCars returns the task-level JSON files at the dataset root. Other
// root files (dataset_description.json) are not side-cars.
func (l *Layout) RootSideCars() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(l.Root, "task-*.json"))
	if err != nil {
		return nil, pfx.Err(err)
	}

	return regularFiles(matches), nil
}

// RawDICOMs returns DICOM files kept for a subject under
// sourcedata/dicom/sub-<label>, if the dataset ships them.
func (l *Layout) RawDICOMs(subject string) ([]string, error) {
	dir := filepath.Join(l.Root, "sourcedata", "dicom", "sub-"+subject)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var out []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && strings.EqualFold(filepath.Ext(path), ".dcm") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, pfx.Err(err)
	}

	sort.Strings(out)
	return out, nil
}

func (l *Layout) labeledDirs(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]string, 0)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		out = append(out, strings.TrimPrefix(e.Name(), prefix))
	}
	sort.Strings(out)

	return out, nil
}

func regularFiles(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
