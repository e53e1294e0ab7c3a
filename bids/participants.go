package bids

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"

	bidsonym "github.com/PeerHerholz/BIDSonym"
)

// Participant is one row of participants.tsv. Only the mandatory column is
// read; other columns are ignored.
type Participant struct {
	ParticipantID string `csv:"participant_id"`
}

// Participants reads participants.tsv and returns the subject labels it lists,
// without prefix. A dataset without the file yields nil.
func (l *Layout) Participants() ([]string, error) {
	fileBytes, err := os.ReadFile(filepath.Join(l.Root, "participants.tsv"))
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	delim := bidsonym.DetermineDelimiter(bytes.NewReader(fileBytes))

	r := csv.NewReader(bytes.NewReader(fileBytes))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	records := []*Participant{}
	if err := gocsv.UnmarshalCSV(r, &records); err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ParticipantID == "" {
			continue
		}
		out = append(out, TrimSubject(rec.ParticipantID))
	}

	return out, nil
}

// ParticipantMismatch compares participants.tsv against the subject
// directories. It returns labels listed but missing on disk, and labels on
// disk but not listed.
func (l *Layout) ParticipantMismatch() (listedOnly, diskOnly []string, err error) {
	listed, err := l.Participants()
	if err != nil || listed == nil {
		return nil, nil, err
	}

	onDisk, err := l.Subjects(nil)
	if err != nil {
		return nil, nil, err
	}

	diskSet := make(map[string]struct{}, len(onDisk))
	for _, s := range onDisk {
		diskSet[s] = struct{}{}
	}
	listedSet := make(map[string]struct{}, len(listed))
	for _, s := range listed {
		listedSet[s] = struct{}{}
		if _, ok := diskSet[s]; !ok {
			listedOnly = append(listedOnly, s)
		}
	}
	for _, s := range onDisk {
		if _, ok := listedSet[s]; !ok {
			diskOnly = append(diskOnly, s)
		}
	}

	return listedOnly, diskOnly, nil
}
