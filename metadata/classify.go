// Package metadata flags potentially identifying fields in image headers and
// JSON side-cars, writes the findings as CSV, and scrubs named JSON fields.
package metadata

import "strings"

// Kind selects the matching rule for a field table.
//
// Header (and DICOM) field names match a term case-insensitively; JSON field
// names match case-sensitively. Both are substring matches. The asymmetry is
// long-standing behavior that downstream QC reports depend on, so it is kept
// as is.
type Kind int

const (
	HeaderKind Kind = iota
	JSONKind
	DICOMKind
)

func (k Kind) String() string {
	switch k {
	case HeaderKind:
		return "header"
	case JSONKind:
		return "json"
	case DICOMKind:
		return "dicom"
	}
	return "unknown"
}

// DefaultHeaderTerms are always checked against image header fields.
var DefaultHeaderTerms = []string{"descrip"}

// DefaultJSONTerms are always checked against JSON side-car fields.
var DefaultJSONTerms = []string{
	"AcquisitionTime",
	"InstitutionAddress",
	"InstitutionName",
	"InstitutionalDepartmentName",
	"ProcedureStepDescription",
	"ProtocolName",
	"PulseSequenceDetails",
	"SeriesDescription",
	"global",
}

// DefaultDICOMTerms are checked against tag names of raw DICOM files.
var DefaultDICOMTerms = []string{
	"Patient",
	"Institution",
	"Physician",
	"Operator",
	"Date",
	"Time",
	"descrip",
}

// Field is one name/value pair read from a header or document, in source
// order.
type Field struct {
	Name  string
	Value string
}

// Row is one classified field.
type Row struct {
	Field   string
	Value   string
	Suspect bool
}

// Report is the classified field table of a single header or document.
type Report []Row

// Suspects returns the names of flagged fields.
func (r Report) Suspects() []string {
	var out []string
	for _, row := range r {
		if row.Suspect {
			out = append(out, row.Field)
		}
	}
	return out
}

// Terms returns the union of the default terms for kind and extra.
func Terms(kind Kind, extra []string) []string {
	var defaults []string
	switch kind {
	case HeaderKind:
		defaults = DefaultHeaderTerms
	case JSONKind:
		defaults = DefaultJSONTerms
	case DICOMKind:
		defaults = DefaultDICOMTerms
	}

	out := make([]string, 0, len(defaults)+len(extra))
	seen := make(map[string]struct{})
	for _, t := range append(append([]string{}, defaults...), extra...) {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Classify builds the field table for fields, flagging every field whose name
// contains one of the default or extra terms under the rule for kind. It does
// not modify fields.
func Classify(kind Kind, fields []Field, extraTerms []string) Report {
	terms := Terms(kind, extraTerms)

	out := make(Report, 0, len(fields))
	for _, f := range fields {
		out = append(out, Row{
			Field:   f.Name,
			Value:   f.Value,
			Suspect: matches(kind, f.Name, terms),
		})
	}
	return out
}

func matches(kind Kind, name string, terms []string) bool {
	if kind == JSONKind {
		for _, t := range terms {
			if strings.Contains(name, t) {
				return true
			}
		}
		return false
	}

	lower := strings.ToLower(name)
	for _, t := range terms {
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
