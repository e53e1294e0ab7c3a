package bids

import (
	"path/filepath"
	"strings"
)

// TerminalTag marks a backup as a preserved pre-processing original.
const TerminalTag = "desc-nondeid"

// legacyTag is the suffix written by earlier releases before the terminal tag
// existed. It is recognized on revert only.
const legacyTag = "no_deid"

// Filename is a parsed BIDS file name. The stem is split on "_" into
// key-value entities ("sub-01", "ses-02", "desc-nondeid") and bare tokens (the
// suffix "T1w", or QC markers such as "brainmask").
type Filename struct {
	dir    string
	tokens []string
	ext    string
}

// Parse splits path into directory, "_"-separated stem tokens and extension.
// ".nii.gz" is treated as a single extension.
func Parse(path string) Filename {
	dir, base := filepath.Split(path)

	ext := filepath.Ext(base)
	if strings.HasSuffix(base, ".nii.gz") {
		ext = ".nii.gz"
	}
	stem := strings.TrimSuffix(base, ext)

	var tokens []string
	if stem != "" {
		tokens = strings.Split(stem, "_")
	}

	return Filename{dir: filepath.Clean(dir), tokens: tokens, ext: ext}
}

// Dir returns the containing directory ("." for a bare file name).
func (f Filename) Dir() string { return f.dir }

// Ext returns the extension including the leading dot.
func (f Filename) Ext() string { return f.ext }

// Stem returns the base name without extension.
func (f Filename) Stem() string { return strings.Join(f.tokens, "_") }

// Base returns the file name without directory.
func (f Filename) Base() string { return f.Stem() + f.ext }

// Path returns the full path.
func (f Filename) Path() string { return filepath.Join(f.dir, f.Base()) }

// InDir returns a copy of f relocated to dir.
func (f Filename) InDir(dir string) Filename {
	f.dir = filepath.Clean(dir)
	return f
}

// Entity returns the value of the first key-value entity named key.
func (f Filename) Entity(key string) (string, bool) {
	prefix := key + "-"
	for _, tok := range f.tokens {
		if strings.HasPrefix(tok, prefix) {
			return tok[len(prefix):], true
		}
	}
	return "", false
}

// Subject returns the sub- label, without prefix.
func (f Filename) Subject() string {
	v, _ := f.Entity("sub")
	return v
}

// Session returns the ses- label, without prefix, or "" if session-less.
func (f Filename) Session() string {
	v, _ := f.Entity("ses")
	return v
}

// Suffix returns the last bare token of the stem, e.g. "T1w" for
// sub-01_T1w.nii.gz and "brainmask" for sub-01_T1w_brainmask.nii.gz. Entities
// after the suffix (such as the terminal tag) are skipped.
func (f Filename) Suffix() string {
	for i := len(f.tokens) - 1; i >= 0; i-- {
		if !strings.Contains(f.tokens[i], "-") {
			return f.tokens[i]
		}
	}
	return ""
}

// HasTerminalTag reports whether the terminal desc-nondeid tag is present.
func (f Filename) HasTerminalTag() bool {
	for _, tok := range f.tokens {
		if tok == TerminalTag {
			return true
		}
	}
	return false
}

// HasLegacyTag reports whether the file carries the pre-terminal-tag
// "_no_deid" suffix.
func (f Filename) HasLegacyTag() bool {
	n := len(f.tokens)
	return n >= 2 && f.tokens[n-2] == "no" && f.tokens[n-1] == "deid"
}

// WithTerminalTag inserts "_desc-nondeid" before the extension. Already
// tagged names are returned unchanged.
func (f Filename) WithTerminalTag() Filename {
	if f.HasTerminalTag() {
		return f
	}
	return f.WithToken(TerminalTag)
}

// WithoutTerminalTag removes the terminal tag, and the legacy "_no_deid"
// suffix, recovering the canonical name.
func (f Filename) WithoutTerminalTag() Filename {
	tokens := make([]string, 0, len(f.tokens))
	for _, tok := range f.tokens {
		if tok == TerminalTag {
			continue
		}
		tokens = append(tokens, tok)
	}
	if n := len(tokens); n >= 2 && tokens[n-2] == "no" && tokens[n-1] == "deid" {
		tokens = tokens[:n-2]
	}

	f.tokens = tokens
	return f
}

// WithToken appends a token to the stem, keeping the extension.
func (f Filename) WithToken(token string) Filename {
	tokens := make([]string, len(f.tokens), len(f.tokens)+1)
	copy(tokens, f.tokens)
	f.tokens = append(tokens, token)
	return f
}

// WithExt replaces the extension.
func (f Filename) WithExt(ext string) Filename {
	f.ext = ext
	return f
}

func (f Filename) String() string { return f.Path() }

// Tokens of QC artifacts derived from an image. They are kept with the
// backups but are never restored into the dataset.
const (
	BrainMaskToken  = "brainmask"
	DefaceMaskToken = "defacemask"
	RegisteredToken = "T1wreg"
)

// IsDerived reports whether f names a QC artifact rather than an original.
func (f Filename) IsDerived() bool {
	for _, tok := range f.tokens {
		switch tok {
		case BrainMaskToken, DefaceMaskToken, RegisteredToken:
			return true
		}
	}
	return false
}
