package pipeline

import (
	"os"
	"strings"

	"github.com/carbocation/pfx"
	"go.uber.org/zap"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/bids"
	"github.com/PeerHerholz/BIDSonym/revert"
	"github.com/PeerHerholz/BIDSonym/staging"
)

// Revert undoes processing for the selected units. Without subject labels,
// every subject with a backup root is reverted; without session labels, each
// subject is reverted as a whole. Guard failures (nothing to revert, declined
// confirmation) are reported as skipped, not failed.
func (p *Pipeline) Revert() (*Summary, error) {
	subjects := p.Config.SubjectFilter()
	if len(subjects) == 0 {
		var err error
		if subjects, err = backedUpSubjects(p.Config.BIDSDir); err != nil {
			return nil, err
		}
		if len(subjects) == 0 {
			p.Log.Warn("no processed subjects found", zap.String("backup_dir", staging.ToolRoot(p.Config.BIDSDir)))
		}
	}

	sessions := p.Config.SessionFilter()
	if len(sessions) == 0 {
		sessions = []string{""}
	}

	engine := revert.New(p.Config.BIDSDir, p.Log)
	engine.Confirmer = p.Confirmer
	if p.Now != nil {
		engine.Now = p.Now
	}

	summary := &Summary{}
	for _, subject := range subjects {
		for _, session := range sessions {
			unit := Unit{Subject: subject, Session: session}

			result, err := engine.Revert(subject, session, !p.Config.RevertConfirmOff)
			switch {
			case err == nil:
				p.Log.Info("reverted", zap.Stringer("unit", unit),
					zap.Int("restored", len(result.Restored)), zap.Int("removed", len(result.Removed)))
				summary.Done = append(summary.Done, unit)
			case bidsonym.RevertGuardError.Has(err):
				p.Log.Warn("not reverted", zap.Stringer("unit", unit), zap.Error(err))
				summary.Skipped = append(summary.Skipped, UnitError{Unit: unit, Err: err})
			default:
				p.Log.Error("revert failed", zap.Stringer("unit", unit), zap.Error(err))
				summary.Failed = append(summary.Failed, UnitError{Unit: unit, Err: err})
			}
		}
	}

	return summary, nil
}

func backedUpSubjects(bidsRoot string) ([]string, error) {
	entries, err := os.ReadDir(staging.ToolRoot(bidsRoot))
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "sub-") {
			out = append(out, bids.TrimSubject(e.Name()))
		}
	}
	return out, nil
}
