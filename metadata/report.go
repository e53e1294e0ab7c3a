package metadata

import (
	"os"
	"path/filepath"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"go.uber.org/zap"

	"github.com/PeerHerholz/BIDSonym/bids"
)

// Report file name descriptors.
const (
	HeaderInfoDesc = "desc-headerinfo"
	JSONInfoDesc   = "desc-jsoninfo"
	DICOMInfoDesc  = "desc-dicominfo"
)

type headerRecord struct {
	Field       string `csv:"meta_data_field"`
	Data        string `csv:"data"`
	Problematic string `csv:"problematic"`
}

type jsonRecord struct {
	Field       string `csv:"meta_data_field"`
	Information string `csv:"information"`
	Problematic string `csv:"problematic"`
}

func problematic(suspect bool) string {
	if suspect {
		return "maybe"
	}
	return "no"
}

// WriteReport serializes a report as CSV at path. JSON reports name the value
// column "information", header reports name it "data".
func WriteReport(path string, kind Kind, report Report) error {
	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	if kind == JSONKind {
		records := make([]*jsonRecord, 0, len(report))
		for _, row := range report {
			records = append(records, &jsonRecord{Field: row.Field, Information: row.Value, Problematic: problematic(row.Suspect)})
		}
		if err := gocsv.Marshal(&records, f); err != nil {
			return pfx.Err(err)
		}
		return pfx.Err(f.Close())
	}

	records := make([]*headerRecord, 0, len(report))
	for _, row := range report {
		records = append(records, &headerRecord{Field: row.Field, Data: row.Value, Problematic: problematic(row.Suspect)})
	}
	if err := gocsv.Marshal(&records, f); err != nil {
		return pfx.Err(err)
	}
	return pfx.Err(f.Close())
}

// ReportPath names the CSV for source inside outDir:
// <stem>_desc-headerinfo.csv, <stem>_desc-jsoninfo.csv or
// <stem>_desc-dicominfo.csv.
func ReportPath(outDir, source string, kind Kind) string {
	desc := HeaderInfoDesc
	switch kind {
	case JSONKind:
		desc = JSONInfoDesc
	case DICOMKind:
		desc = DICOMInfoDesc
	}

	return bids.Parse(source).WithToken(desc).WithExt(".csv").InDir(outDir).Path()
}

// Checker classifies files and writes their reports into OutDir.
type Checker struct {
	OutDir     string
	ExtraTerms []string
	Log        *zap.Logger
}

// Check reads source with the reader for kind, classifies it and writes the
// CSV. It returns the classified report.
func (c Checker) Check(source string, kind Kind) (Report, error) {
	var (
		fields []Field
		err    error
	)
	switch kind {
	case HeaderKind:
		fields, err = ReadNIfTIHeader(source)
	case DICOMKind:
		fields, err = ReadDICOMHeader(source)
	case JSONKind:
		var doc *Document
		doc, err = LoadDocument(source)
		if err == nil {
			fields = doc.Fields()
		}
	}
	if err != nil {
		return nil, err
	}

	report := Classify(kind, fields, c.ExtraTerms)

	out := ReportPath(c.OutDir, source, kind)
	if err := WriteReport(out, kind, report); err != nil {
		return report, err
	}

	c.logger().Info("wrote metadata report",
		zap.String("source", source),
		zap.String("report", out),
		zap.Strings("suspect", report.Suspects()))

	return report, nil
}

// CheckAll checks every source and never fails: errors are logged as
// warnings, since the reports are QC output only. It returns the number of
// reports written.
func (c Checker) CheckAll(kind Kind, sources []string) int {
	written := 0
	for _, src := range sources {
		if _, err := c.Check(src, kind); err != nil {
			c.logger().Warn("metadata check failed; continuing",
				zap.String("source", filepath.Base(src)),
				zap.Stringer("kind", kind),
				zap.Error(err))
			continue
		}
		written++
	}
	return written
}

func (c Checker) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// ScrubFile replaces the named fields of the JSON file at path with the
// sentinel and rewrites it. Callers must have staged a backup first. Absent
// fields are logged and skipped.
func ScrubFile(log *zap.Logger, path string, fields []string) ([]string, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}

	scrubbed, skipped, err := doc.Scrub(fields)
	if err != nil {
		return nil, err
	}
	for _, field := range skipped {
		log.Info("field not present; nothing to delete", zap.String("file", path), zap.String("field", field))
	}

	if len(scrubbed) == 0 {
		return nil, nil
	}

	log.Info("deleting metadata fields", zap.String("file", path), zap.Strings("fields", scrubbed))
	if err := doc.Save(); err != nil {
		return nil, err
	}

	return scrubbed, nil
}
