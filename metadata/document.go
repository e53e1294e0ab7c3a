package metadata

import (
	"os"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	bidsonym "github.com/PeerHerholz/BIDSonym"
)

// Document is a JSON side-car whose top-level key order is preserved across a
// scrub and rewrite.
type Document struct {
	Path string
	raw  []byte
}

// LoadDocument reads and validates the JSON object at path.
func LoadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	return ParseDocument(path, raw)
}

// ParseDocument wraps raw JSON. The top level must be an object.
func ParseDocument(path string, raw []byte) (*Document, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, bidsonym.ValidationError.New("%s is not a JSON object", path)
	}

	return &Document{Path: path, raw: raw}, nil
}

// Fields returns the top-level fields in document order. String values are
// unquoted; other values keep their JSON text.
func (d *Document) Fields() []Field {
	var out []Field
	gjson.ParseBytes(d.raw).ForEach(func(key, value gjson.Result) bool {
		v := value.Raw
		if value.Type == gjson.String {
			v = value.String()
		}
		out = append(out, Field{Name: key.String(), Value: v})
		return true
	})
	return out
}

// Has reports whether field is a top-level key. Keys are compared literally.
func (d *Document) Has(field string) bool {
	_, ok := d.lookup(field)
	return ok
}

// Get returns the value of a top-level field as text.
func (d *Document) Get(field string) (string, bool) {
	return d.lookup(field)
}

func (d *Document) lookup(field string) (string, bool) {
	for _, f := range d.Fields() {
		if f.Name == field {
			return f.Value, true
		}
	}
	return "", false
}

// Scrub replaces the value of every named field present in the document with
// the sentinel. Fields that are absent are returned in skipped; that is not an
// error.
func (d *Document) Scrub(fields []string) (scrubbed, skipped []string, err error) {
	for _, field := range fields {
		if !d.Has(field) {
			skipped = append(skipped, field)
			continue
		}

		raw, err := sjson.SetBytes(d.raw, escapePath(field), bidsonym.Sentinel)
		if err != nil {
			return scrubbed, skipped, pfx.Err(err)
		}
		d.raw = raw
		scrubbed = append(scrubbed, field)
	}

	return scrubbed, skipped, nil
}

// FullyScrubbed reports whether every named field that is present already
// holds the sentinel, i.e. a Scrub would not change the document.
func (d *Document) FullyScrubbed(fields []string) bool {
	for _, field := range fields {
		if v, ok := d.lookup(field); ok && v != bidsonym.Sentinel {
			return false
		}
	}
	return true
}

// Bytes returns the document indented with four spaces.
func (d *Document) Bytes() []byte {
	return pretty.PrettyOptions(d.raw, &pretty.Options{
		Width:    80,
		Prefix:   "",
		Indent:   "    ",
		SortKeys: false,
	})
}

// Save writes the document back to its path.
func (d *Document) Save() error {
	info, err := os.Stat(d.Path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode().Perm()
	}

	return pfx.Err(os.WriteFile(d.Path, d.Bytes(), mode))
}

// escapePath makes a literal key safe for sjson's path syntax.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		if !(r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
