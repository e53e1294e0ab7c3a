// Package pipeline sequences de-identification per subject/session unit:
// brain extraction, metadata checks and scrubbing, staging of originals,
// defacing, registration-based defacing of secondary modalities, backup
// tagging, QC rendering and reorganization of the backups.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/bids"
	"github.com/PeerHerholz/BIDSonym/brainmask"
	"github.com/PeerHerholz/BIDSonym/metadata"
	"github.com/PeerHerholz/BIDSonym/oplog"
	"github.com/PeerHerholz/BIDSonym/register"
	"github.com/PeerHerholz/BIDSonym/reorg"
	"github.com/PeerHerholz/BIDSonym/revert"
	"github.com/PeerHerholz/BIDSonym/staging"
)

// Unit is one subject, optionally scoped to a session.
type Unit struct {
	Subject string
	Session string
}

func (u Unit) String() string {
	if u.Session == "" {
		return "sub-" + u.Subject
	}
	return "sub-" + u.Subject + "/ses-" + u.Session
}

// UnitError is a unit that did not complete.
type UnitError struct {
	Unit Unit
	Err  error
}

// Summary is the outcome of a run. A unit appears in exactly one list.
type Summary struct {
	Done    []Unit
	Skipped []UnitError
	Failed  []UnitError
}

// Err combines the failures, or returns nil.
func (s *Summary) Err() error {
	var group errs.Group
	for _, f := range s.Failed {
		group.Add(errs.New("%s: %v", f.Unit, f.Err))
	}
	return group.Err()
}

// Pipeline processes a dataset according to its Config.
type Pipeline struct {
	Config    Config
	Tools     Tools
	Log       *zap.Logger
	Confirmer revert.Confirmer
	Now       func() time.Time
}

// New validates cfg and returns a Pipeline.
func New(cfg Config, tools Tools, log *zap.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Pipeline{
		Config:    cfg,
		Tools:     tools,
		Log:       log,
		Confirmer: revert.NewPromptConfirmer(os.Stdin, os.Stderr),
		Now:       time.Now,
	}, nil
}

// Run resolves every unit, validates the dataset and processes the units one
// at a time. Errors resolving the selection or validating abort the run
// before anything is written, as does a missing T1w or requested modality of
// a subject named in ParticipantLabels. Units of subjects selected
// implicitly that lack an image are skipped. Errors inside a unit are
// collected in the summary and the remaining units still run; configuration
// errors and cancellation stop the run.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	layout, err := bids.Open(p.Config.BIDSDir)
	if err != nil {
		return nil, err
	}

	all, err := layout.Subjects(nil)
	if err != nil {
		return nil, err
	}
	subjects, err := layout.Subjects(p.Config.SubjectFilter())
	if err != nil {
		return nil, err
	}

	units, err := p.resolveUnits(layout, subjects)
	if err != nil {
		return nil, err
	}

	// Inputs are located for every unit before anything is written. A
	// missing image aborts the run for a subject named on the command line
	// and skips the unit otherwise.
	explicit := len(p.Config.SubjectFilter()) > 0
	summary := &Summary{}
	inputs := make(map[Unit]*unitInputs, len(units))
	var ready []Unit
	for _, unit := range units {
		in, err := p.locate(layout, unit)
		switch {
		case err == nil:
			inputs[unit] = in
			ready = append(ready, unit)
		case bidsonym.NotFoundError.Has(err) && !explicit:
			p.Log.Warn("skipping unit", zap.Stringer("unit", unit), zap.Error(err))
			summary.Skipped = append(summary.Skipped, UnitError{Unit: unit, Err: err})
		default:
			return nil, err
		}
	}

	p.warnParticipantMismatch(layout)

	if p.Config.SkipBIDSValidation {
		p.Log.Warn("skipping BIDS validation")
	} else if err := p.Tools.Validator.Validate(ctx, layout.Root, all, subjects); err != nil {
		return nil, err
	}

	for _, unit := range ready {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if err := p.processUnit(ctx, layout, unit, inputs[unit]); err != nil {
			if ctx.Err() != nil || bidsonym.ConfigurationError.Has(err) {
				return summary, err
			}
			if bidsonym.IsUnitError(err) {
				p.Log.Error("unit failed; continuing with the next one", zap.Stringer("unit", unit), zap.Error(err))
			} else {
				p.Log.Error("unit failed with an unexpected error; continuing with the next one", zap.Stringer("unit", unit), zap.Error(err))
			}
			summary.Failed = append(summary.Failed, UnitError{Unit: unit, Err: err})
			continue
		}
		summary.Done = append(summary.Done, unit)
	}

	p.Log.Info("run complete",
		zap.Int("done", len(summary.Done)), zap.Int("skipped", len(summary.Skipped)), zap.Int("failed", len(summary.Failed)))
	return summary, nil
}

// unitInputs are the images of a unit to deface.
type unitInputs struct {
	t1s       []string
	secondary map[bids.Modality][]string
}

// locate finds the T1w images of a unit and the requested secondary
// modalities. Either one missing is a NotFoundError.
func (p *Pipeline) locate(layout *bids.Layout, unit Unit) (*unitInputs, error) {
	t1s, err := layout.Images(unit.Subject, unit.Session, bids.T1w)
	if err != nil {
		return nil, err
	}
	if len(t1s) == 0 {
		return nil, bidsonym.NotFoundError.New("%s has no T1w image", unit)
	}

	in := &unitInputs{t1s: t1s, secondary: make(map[bids.Modality][]string)}
	for _, m := range p.Config.SecondaryModalities() {
		images, err := layout.Images(unit.Subject, unit.Session, m)
		if err != nil {
			return nil, err
		}
		if len(images) == 0 {
			return nil, bidsonym.NotFoundError.New("%s has no %s image to deface", unit, m)
		}
		in.secondary[m] = images
	}

	return in, nil
}

// resolveUnits expands subjects into units. A requested session must exist
// for every selected subject.
func (p *Pipeline) resolveUnits(layout *bids.Layout, subjects []string) ([]Unit, error) {
	filter := p.Config.SessionFilter()

	var units []Unit
	for _, subject := range subjects {
		sessions, err := layout.Sessions(subject)
		if err != nil {
			return nil, err
		}

		if len(filter) == 0 {
			if len(sessions) == 0 {
				units = append(units, Unit{Subject: subject})
			}
			for _, ses := range sessions {
				units = append(units, Unit{Subject: subject, Session: ses})
			}
			continue
		}

		known := make(map[string]struct{}, len(sessions))
		for _, ses := range sessions {
			known[ses] = struct{}{}
		}
		for _, ses := range filter {
			if _, ok := known[ses]; !ok {
				return nil, bidsonym.NotFoundError.New("session ses-%s not found for sub-%s", ses, subject)
			}
			units = append(units, Unit{Subject: subject, Session: ses})
		}
	}

	return units, nil
}

func (p *Pipeline) warnParticipantMismatch(layout *bids.Layout) {
	listedOnly, diskOnly, err := layout.ParticipantMismatch()
	if err != nil {
		p.Log.Debug("could not read participants.tsv", zap.Error(err))
		return
	}
	if len(listedOnly) > 0 || len(diskOnly) > 0 {
		p.Log.Warn("participants.tsv does not match the subject directories",
			zap.Strings("listed_without_directory", listedOnly),
			zap.Strings("directory_not_listed", diskOnly))
	}
}

// unitRun carries the state of one unit through processUnit.
type unitRun struct {
	*Pipeline
	layout     *bids.Layout
	unit       Unit
	log        *zap.Logger
	staging    *staging.Manager
	backupRoot string
	state      State
	staged     []string
}

func (u *unitRun) transition(to State) {
	u.log.Info("state transition", zap.Stringer("unit", u.unit), zap.Stringer("from", u.state), zap.Stringer("to", to))
	u.state = to
}

func (p *Pipeline) processUnit(ctx context.Context, layout *bids.Layout, unit Unit, in *unitInputs) (err error) {
	subject, session := unit.Subject, unit.Session
	t1s, secondary := in.t1s, in.secondary

	mgr := staging.New(layout.Root, p.Log)
	if err := mgr.CheckFresh(subject, session); err != nil {
		return err
	}

	opLog := oplog.New(p.Log, layout.Root, subject, session, "deface", p.Now())
	defer opLog.Close()
	mgr.Log = opLog.Logger

	u := &unitRun{
		Pipeline:   p,
		layout:     layout,
		unit:       unit,
		log:        opLog.Logger,
		staging:    mgr,
		backupRoot: mgr.BackupRoot(subject, session),
		state:      Init,
	}
	defer func() {
		if err != nil {
			u.cleanup()
		}
	}()

	if _, err := mgr.EnsureBackupRoot(subject, session); err != nil {
		return err
	}
	u.transition(OutpathReady)

	for _, t1 := range t1s {
		out := filepath.Join(u.backupRoot, brainmask.OutputName(t1))
		if err := p.Tools.BrainExtractor.Extract(ctx, t1, out); err != nil {
			return err
		}
	}
	u.transition(BrainExtracted)

	u.checkMetadata()
	if err := u.scrubMetadata(); err != nil {
		return err
	}
	u.transition(MetadataChecked)

	backups := make(map[string]string, len(t1s))
	for _, t1 := range t1s {
		backup, err := u.stage(t1)
		if err != nil {
			return err
		}
		backups[t1] = backup
	}
	u.transition(Staged)

	for _, t1 := range t1s {
		if err := u.deface(ctx, t1, backups[t1]); err != nil {
			return err
		}
	}
	u.transition(Defaced)

	if len(secondary) > 0 {
		for _, m := range p.Config.SecondaryModalities() {
			for _, img := range secondary[m] {
				if err := u.defaceSecondary(ctx, img, t1s[0]); err != nil {
					return err
				}
			}
		}
		u.transition(SecondaryDefaced)
	}

	if _, err := mgr.FinalizeBackupNaming(subject, session); err != nil {
		return err
	}
	u.transition(Finalized)

	u.render(t1s, secondary)
	u.transition(Visualized)

	if _, err := reorg.Reorganize(u.log, layout.Root, subject, session); err != nil {
		return err
	}
	u.transition(Reorganized)

	u.transition(Done)
	return nil
}

// cleanup runs after a failure. Before staging it empties the backup root,
// which CheckFresh found empty, so the unit can be run again. After staging
// it tags the backups so that a revert can restore them.
func (u *unitRun) cleanup() {
	if len(u.staged) == 0 {
		u.clearBackupRoot()
		return
	}

	u.log.Warn("unit failed after originals were staged; tagging backups so the unit can be reverted",
		zap.Stringer("state", u.state), zap.String("backup_root", u.backupRoot))
	if _, err := u.staging.FinalizeBackupNaming(u.unit.Subject, u.unit.Session); err != nil {
		u.log.Error("could not tag backups", zap.Error(err))
	}
}

// clearBackupRoot removes everything this run wrote into the backup root:
// brain masks, QC reports and any partial output. Session directories of a
// session-less subject belong to other units and are kept.
func (u *unitRun) clearBackupRoot() {
	entries, err := os.ReadDir(u.backupRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			u.log.Warn("could not read backup root", zap.String("backup_root", u.backupRoot), zap.Error(err))
		}
		return
	}

	kept := 0
	for _, e := range entries {
		if u.unit.Session == "" && e.IsDir() && strings.HasPrefix(e.Name(), "ses-") {
			kept++
			continue
		}
		path := filepath.Join(u.backupRoot, e.Name())
		if err := os.RemoveAll(path); err != nil {
			u.log.Warn("could not remove partial output", zap.String("file", path), zap.Error(err))
			kept++
			continue
		}
		u.log.Debug("removed partial output", zap.String("file", path))
	}

	if kept == 0 {
		if err := os.Remove(u.backupRoot); err != nil {
			u.log.Warn("could not remove backup root", zap.String("backup_root", u.backupRoot), zap.Error(err))
		}
	}
}

func (u *unitRun) stage(path string) (string, error) {
	backup, err := u.staging.StageOriginal(path, u.unit.Subject, u.unit.Session)
	if err != nil {
		return "", err
	}
	u.staged = append(u.staged, backup)
	return backup, nil
}

func (u *unitRun) stageCopy(path string) (string, error) {
	backup, err := u.staging.StageCopy(path, u.unit.Subject, u.unit.Session)
	if err != nil {
		return "", err
	}
	u.staged = append(u.staged, backup)
	return backup, nil
}

// deface writes the defaced image over canonical. On failure the original is
// copied back so the canonical path is never left empty.
func (u *unitRun) deface(ctx context.Context, canonical, backup string) error {
	u.log.Info("defacing", zap.String("image", canonical))
	if err := u.Tools.Defacer.Deface(ctx, backup, canonical, u.backupRoot); err != nil {
		if rerr := u.staging.RestoreCanonical(backup, canonical); rerr != nil {
			return errs.Combine(err, rerr)
		}
		return err
	}
	return nil
}

// defaceSecondary stages img, registers the defaced T1w onto it and masks
// img with the result.
func (u *unitRun) defaceSecondary(ctx context.Context, img, t1 string) error {
	backup, err := u.stage(img)
	if err != nil {
		return err
	}

	reg := filepath.Join(u.backupRoot, register.RegisteredName(img))
	u.log.Info("defacing through registration", zap.String("image", img), zap.String("reference", t1))

	err = u.Tools.Registrar.Register(ctx, t1, backup, reg)
	if err == nil {
		err = u.Tools.Masker.Mask(ctx, backup, reg, img)
	}
	if err != nil {
		if rerr := u.staging.RestoreCanonical(backup, img); rerr != nil {
			return errs.Combine(err, rerr)
		}
		return err
	}
	return nil
}

// checkMetadata writes the suspect field reports. It never fails the unit.
func (u *unitRun) checkMetadata() {
	checker := metadata.Checker{OutDir: u.backupRoot, ExtraTerms: u.Config.CheckMeta, Log: u.log}
	subject, session := u.unit.Subject, u.unit.Session

	if images, err := u.layout.ImageFiles(subject, session); err != nil {
		u.log.Warn("could not list images for metadata check", zap.Error(err))
	} else {
		checker.CheckAll(metadata.HeaderKind, images)
	}

	sidecars, err := u.sidecars()
	if err != nil {
		u.log.Warn("could not list side-cars for metadata check", zap.Error(err))
	} else {
		checker.CheckAll(metadata.JSONKind, sidecars)
	}

	if dicoms, err := u.layout.RawDICOMs(subject); err != nil {
		u.log.Warn("could not list raw DICOMs for metadata check", zap.Error(err))
	} else if len(dicoms) > 0 {
		checker.CheckAll(metadata.DICOMKind, dicoms)
	}
}

func (u *unitRun) sidecars() ([]string, error) {
	unitCars, err := u.layout.SideCars(u.unit.Subject, u.unit.Session)
	if err != nil {
		return nil, err
	}
	rootCars, err := u.layout.RootSideCars()
	if err != nil {
		return nil, err
	}
	return append(rootCars, unitCars...), nil
}

// scrubMetadata backs up and scrubs every side-car holding one of the fields
// to delete. Root task files already scrubbed for another unit are skipped.
func (u *unitRun) scrubMetadata() error {
	if len(u.Config.DelMeta) == 0 {
		return nil
	}

	sidecars, err := u.sidecars()
	if err != nil {
		return err
	}

	for _, path := range sidecars {
		doc, err := metadata.LoadDocument(path)
		if err != nil {
			return err
		}
		if doc.FullyScrubbed(u.Config.DelMeta) {
			var absent []string
			for _, field := range u.Config.DelMeta {
				if !doc.Has(field) {
					absent = append(absent, field)
				}
			}
			u.log.Info("side-car has no fields to delete; leaving it untouched",
				zap.String("file", path), zap.Strings("absent", absent))
			continue
		}

		if _, err := u.stageCopy(path); err != nil {
			return err
		}
		if _, err := metadata.ScrubFile(u.log, path, u.Config.DelMeta); err != nil {
			return err
		}
	}

	return nil
}

// render draws QC images for the processed modalities. Failures are
// warnings.
func (u *unitRun) render(t1s []string, secondary map[bids.Modality][]string) {
	if u.Tools.Renderer == nil {
		return
	}

	processed := map[bids.Modality][]string{bids.T1w: t1s}
	for m, images := range secondary {
		processed[m] = images
	}

	for _, m := range u.Config.ReportModalities() {
		for _, img := range processed[m] {
			mask := filepath.Join(u.backupRoot, bids.Parse(brainmask.OutputName(img)).WithTerminalTag().Base())
			if _, err := os.Stat(mask); err != nil {
				mask = ""
			}

			if _, err := u.Tools.Renderer.Render(img, mask, u.backupRoot); err != nil {
				u.log.Warn("could not render QC images; continuing", zap.String("image", img), zap.Error(err))
			}
		}
	}
}
