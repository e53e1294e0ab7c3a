package metadata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bidsonym "github.com/PeerHerholz/BIDSonym"
)

func writeJSON(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sub-01_T1w.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseDocumentRejectsNonObject(t *testing.T) {
	_, err := ParseDocument("x.json", []byte(`[1, 2]`))
	assert.True(t, bidsonym.ValidationError.Has(err))

	_, err = ParseDocument("x.json", []byte(`{"a":`))
	assert.True(t, bidsonym.ValidationError.Has(err))
}

func TestDocumentFieldsInOrder(t *testing.T) {
	doc, err := ParseDocument("x.json", []byte(`{"Zeta": "z", "Alpha": 1.5, "Nested": {"k": true}}`))
	require.NoError(t, err)

	assert.Equal(t, []Field{
		{Name: "Zeta", Value: "z"},
		{Name: "Alpha", Value: "1.5"},
		{Name: "Nested", Value: `{"k": true}`},
	}, doc.Fields())
}

func TestScrubFile(t *testing.T) {
	path := writeJSON(t, `{"RepetitionTime": 2, "ProtocolName": "foo", "InstitutionName": "Clinic"}`)

	scrubbed, err := ScrubFile(zapNop(), path, []string{"ProtocolName", "PatientName", "InstitutionName"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ProtocolName", "InstitutionName"}, scrubbed)

	doc, err := LoadDocument(path)
	require.NoError(t, err)

	v, ok := doc.Get("ProtocolName")
	assert.True(t, ok)
	assert.Equal(t, bidsonym.Sentinel, v)

	v, ok = doc.Get("RepetitionTime")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	assert.False(t, doc.Has("PatientName"))
	assert.True(t, doc.FullyScrubbed([]string{"ProtocolName", "InstitutionName", "PatientName"}))

	var names []string
	for _, f := range doc.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"RepetitionTime", "ProtocolName", "InstitutionName"}, names)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n    \"ProtocolName\"")
}

func TestScrubAbsentFieldLeavesFileUntouched(t *testing.T) {
	content := `{"RepetitionTime":2}`
	path := writeJSON(t, content)

	scrubbed, err := ScrubFile(zapNop(), path, []string{"ProtocolName"})
	require.NoError(t, err)
	assert.Empty(t, scrubbed)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(raw))
}

func TestScrubKeyWithPathCharacters(t *testing.T) {
	doc, err := ParseDocument("x.json", []byte(`{"a.b": "secret", "a": {"b": "keep"}}`))
	require.NoError(t, err)

	scrubbed, skipped, err := doc.Scrub([]string{"a.b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b"}, scrubbed)
	assert.Empty(t, skipped)

	v, _ := doc.Get("a.b")
	assert.Equal(t, bidsonym.Sentinel, v)
	v, _ = doc.Get("a")
	assert.True(t, strings.Contains(v, "keep"))
}
