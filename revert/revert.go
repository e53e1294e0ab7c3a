// Package revert undoes processing for a subject or session: it restores the
// tagged originals from the backup root into the canonical BIDS tree and then
// deletes the backup root.
//
// Revert is not transactional. Removal and restore are best-effort passes
// that record every failure; when one occurs the dataset may be left between
// states and the backup root is kept so the revert can be inspected and
// resumed.
package revert

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/carbocation/pfx"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/bids"
	"github.com/PeerHerholz/BIDSonym/deface"
	"github.com/PeerHerholz/BIDSonym/oplog"
	"github.com/PeerHerholz/BIDSonym/report"
	"github.com/PeerHerholz/BIDSonym/staging"
)

// Guard failures. They are returned wrapped in bidsonym.RevertGuardError and
// are raised before anything is written.
var (
	NoBackupFound   = errs.Class("no backup found")
	NothingToRevert = errs.Class("nothing to revert")
	UserCancelled   = errs.Class("cancelled by user")
)

// Restore is one backup and the canonical path it is copied to.
type Restore struct {
	Backup string
	Target string
}

// Plan is the read-only result of inspecting a unit before reverting it.
type Plan struct {
	Subject    string
	Session    string
	BackupRoot string

	Restores []Restore
	Remove   []string
}

// Failure is a file that could not be removed or restored.
type Failure struct {
	Path string
	Err  error
}

// Result lists what a revert did.
type Result struct {
	Restored []string
	Removed  []string
	Failed   []Failure

	BackupRemoved bool
	LogPath       string
}

// Engine reverts units of the dataset at BIDSRoot.
type Engine struct {
	BIDSRoot  string
	Log       *zap.Logger
	Confirmer Confirmer
	Now       func() time.Time
}

// New returns an Engine that prompts on stdin.
func New(bidsRoot string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		BIDSRoot:  bidsRoot,
		Log:       log,
		Confirmer: NewPromptConfirmer(os.Stdin, os.Stderr),
		Now:       time.Now,
	}
}

// Revert plans and executes a revert of one unit. When confirm is true the
// user must answer yes before anything is changed.
func (e *Engine) Revert(subject, session string, confirm bool) (*Result, error) {
	plan, err := e.Plan(subject, session)
	if err != nil {
		return nil, err
	}
	return e.Execute(plan, confirm)
}

// Plan finds the tagged backups of a unit and the canonical files a revert
// would replace. It does not write anything.
func (e *Engine) Plan(subject, session string) (*Plan, error) {
	subject, session = bids.TrimSubject(subject), bids.TrimSession(session)
	root := staging.BackupRootPath(e.BIDSRoot, subject, session)

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, bidsonym.RevertGuardError.Wrap(NoBackupFound.New("%s does not exist; sub-%s was not processed", root, subject))
	}

	plan := &Plan{Subject: subject, Session: session, BackupRoot: root}

	targets := make(map[string]string)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		name := bids.Parse(path)
		if !(name.HasTerminalTag() || name.HasLegacyTag()) || name.IsDerived() {
			return nil
		}

		target := e.canonicalPath(subject, session, name.WithoutTerminalTag())
		if prev, dup := targets[target]; dup {
			e.Log.Warn("two backups restore to the same file; keeping the first",
				zap.String("target", target), zap.String("kept", prev), zap.String("ignored", path))
			return nil
		}
		targets[target] = path
		plan.Restores = append(plan.Restores, Restore{Backup: path, Target: target})
		return nil
	})
	if err != nil {
		return nil, pfx.Err(err)
	}

	for _, r := range plan.Restores {
		if _, err := os.Lstat(r.Target); err == nil {
			plan.Remove = append(plan.Remove, r.Target)
		}
	}

	for _, path := range derivedArtifacts(plan.Restores) {
		if _, restored := targets[path]; !restored {
			plan.Remove = append(plan.Remove, path)
		}
	}

	sort.Slice(plan.Restores, func(i, j int) bool { return plan.Restores[i].Target < plan.Restores[j].Target })
	sort.Strings(plan.Remove)

	if len(plan.Restores) == 0 && len(plan.Remove) == 0 {
		return nil, bidsonym.RevertGuardError.Wrap(NothingToRevert.New("no tagged backups under %s and no processed files for sub-%s", root, subject))
	}

	return plan, nil
}

// canonicalPath places a restored file by its name: the datatype folder of the
// session named in the file, or the dataset root for task JSON files.
func (e *Engine) canonicalPath(subject, session string, name bids.Filename) string {
	datatype := bids.Datatype(name)
	if datatype == "" {
		return name.InDir(e.BIDSRoot).Path()
	}

	if ses := name.Session(); ses != "" {
		session = ses
	}
	return name.InDir(filepath.Join(bids.UnitDir(e.BIDSRoot, subject, session), datatype)).Path()
}

// derivedArtifacts lists the files processing leaves next to a restored
// image: its slice animation and its deface mask. Other files in the
// canonical tree are never touched.
func derivedArtifacts(restores []Restore) []string {
	var out []string
	for _, r := range restores {
		switch bids.Parse(r.Target).Ext() {
		case ".nii.gz", ".nii":
		default:
			continue
		}

		candidates := []string{
			filepath.Join(filepath.Dir(r.Target), report.AnimationName(r.Target)),
			deface.MaskPath(r.Target),
		}
		for _, path := range candidates {
			if _, err := os.Lstat(path); err == nil {
				out = append(out, path)
			}
		}
	}
	return out
}

// Execute carries out a plan. If confirm is true the Confirmer is asked first
// and a refusal returns UserCancelled without changes. Failures to remove or
// restore individual files do not stop the pass; they are returned in the
// result and as a PartialError, and the backup root is then kept.
func (e *Engine) Execute(plan *Plan, confirm bool) (*Result, error) {
	if confirm {
		ok, err := e.confirm(plan)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, bidsonym.RevertGuardError.Wrap(UserCancelled.New("revert of sub-%s aborted", plan.Subject))
		}
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	opLog := oplog.New(e.Log, e.BIDSRoot, plan.Subject, plan.Session, "revert", now())
	defer opLog.Close()
	log := opLog.Logger

	result := &Result{LogPath: opLog.Path}

	log.Info("removing processed files", zap.Int("files", len(plan.Remove)))
	for _, path := range plan.Remove {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Error("could not remove file", zap.String("file", path), zap.Error(err))
			result.Failed = append(result.Failed, Failure{Path: path, Err: err})
			continue
		}
		log.Debug("removed", zap.String("file", path))
		result.Removed = append(result.Removed, path)
	}

	log.Info("restoring originals", zap.Int("files", len(plan.Restores)))
	for _, r := range plan.Restores {
		if err := staging.CopyFile(r.Backup, r.Target); err != nil {
			log.Error("could not restore file", zap.String("backup", r.Backup), zap.String("target", r.Target), zap.Error(err))
			result.Failed = append(result.Failed, Failure{Path: r.Target, Err: err})
			continue
		}
		log.Info("restored", zap.String("file", r.Target))
		result.Restored = append(result.Restored, r.Target)
	}

	if len(result.Failed) > 0 {
		var group errs.Group
		for _, f := range result.Failed {
			group.Add(errs.New("%s: %v", f.Path, f.Err))
		}
		log.Error("revert incomplete; the dataset may be in an intermediate state and the backup was kept",
			zap.String("backup_root", plan.BackupRoot),
			zap.Int("restored", len(result.Restored)),
			zap.Int("failed", len(result.Failed)))
		return result, bidsonym.PartialError.Wrap(group.Err())
	}

	log.Info("deleting backup directory", zap.String("backup_root", plan.BackupRoot))
	if err := os.RemoveAll(plan.BackupRoot); err != nil {
		log.Error("could not delete backup directory", zap.Error(err))
		return result, bidsonym.PartialError.Wrap(err)
	}
	result.BackupRemoved = true
	removeEmptyParents(log, filepath.Dir(plan.BackupRoot), e.BIDSRoot)

	log.Info("revert complete",
		zap.Int("restored", len(result.Restored)),
		zap.Int("removed", len(result.Removed)))
	return result, nil
}

func (e *Engine) confirm(plan *Plan) (bool, error) {
	if e.Confirmer == nil {
		return false, bidsonym.ConfigurationError.New("confirmation requested but no confirmer configured")
	}
	return e.Confirmer.Confirm(plan)
}

// removeEmptyParents removes dir and its ancestors below stop for as long as
// they are empty.
func removeEmptyParents(log *zap.Logger, dir, stop string) {
	stop = filepath.Clean(stop)
	for dir = filepath.Clean(dir); dir != stop && len(dir) > len(stop); dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		log.Debug("removed empty directory", zap.String("dir", dir))
	}
}
