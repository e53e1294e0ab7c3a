// Package validate runs the external BIDS validator over the dataset before
// any subject is touched.
package validate

import (
	"context"
	"os"
	"path/filepath"

	"github.com/carbocation/pfx"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/exttool"
)

// IgnoredCodes are validator issues that do not affect de-identification.
var IgnoredCodes = []string{
	"EVENTS_COLUMN_ONSET",
	"EVENTS_COLUMN_DURATION",
	"TSV_EQUAL_ROWS",
	"TSV_EMPTY_CELL",
	"TSV_IMPROPER_NA",
	"VOLUME_COUNT_MISMATCH",
	"BVAL_MULTIPLE_ROWS",
	"BVEC_NUMBER_ROWS",
	"DWI_MISSING_BVAL",
	"INCONSISTENT_SUBJECTS",
	"INCONSISTENT_PARAMETERS",
	"BVEC_ROW_LENGTH",
	"B_FILE",
	"PARTICIPANT_ID_COLUMN",
	"PARTICIPANT_ID_MISMATCH",
	"TASK_NAME_MUST_DEFINE",
	"PHENOTYPE_SUBJECTS_MISSING",
	"STIMULUS_FILE_MISSING",
	"DWI_MISSING_BVEC",
	"EVENTS_TSV_MISSING",
	"ACQTIME_FMT",
	"Participants age 89 or higher",
	"DATASET_DESCRIPTION_JSON_MISSING",
	"FILENAME_COLUMN",
	"WRONG_NEW_LINE",
	"UNUSED_STIMULUS",
	"CUSTOM_COLUMN_WITHOUT_DESCRIPTION",
	"MISSING_SESSION",
}

// ErrorCodes are promoted to errors: every processed subject needs a T1w.
var ErrorCodes = []string{"NO_T1W"}

// InContainer reports whether we run inside the published container image.
func InContainer() bool {
	return os.Getenv(bidsonym.ContainerEnv) != ""
}

// Validator runs bids-validator.
type Validator struct {
	Runner      exttool.Runner
	Log         *zap.Logger
	InContainer bool
}

// Config returns the validator configuration. Subjects present in the
// dataset but not selected are excluded from validation.
func Config(all, selected []string) ([]byte, error) {
	keep := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		keep[s] = struct{}{}
	}

	ignoredFiles := []string{}
	for _, s := range all {
		if _, ok := keep[s]; !ok {
			ignoredFiles = append(ignoredFiles, "/sub-"+s+"/**")
		}
	}

	cfg := []byte(`{}`)
	var err error
	if cfg, err = sjson.SetBytes(cfg, "ignore", IgnoredCodes); err != nil {
		return nil, pfx.Err(err)
	}
	if cfg, err = sjson.SetBytes(cfg, "error", ErrorCodes); err != nil {
		return nil, pfx.Err(err)
	}
	if cfg, err = sjson.SetBytes(cfg, "ignoredFiles", ignoredFiles); err != nil {
		return nil, pfx.Err(err)
	}

	return pretty.Pretty(cfg), nil
}

// Validate checks bidsRoot, restricted to the selected subjects. Failures
// are ValidationErrors whose message depends on where we run.
func (v Validator) Validate(ctx context.Context, bidsRoot string, all, selected []string) error {
	log := v.Log
	if log == nil {
		log = zap.NewNop()
	}

	cfg, err := Config(all, selected)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "bidsonym-validator")
	if err != nil {
		return pfx.Err(err)
	}
	defer os.RemoveAll(dir)

	cfgPath := filepath.Join(dir, "bids_validator_config.json")
	if err := os.WriteFile(cfgPath, cfg, 0o644); err != nil {
		return pfx.Err(err)
	}

	log.Info("validating BIDS dataset", zap.String("bids_dir", bidsRoot), zap.Strings("subjects", selected))
	if err := v.Runner.Run(ctx, "bids-validator", bidsRoot, "-c", cfgPath); err != nil {
		if v.InContainer {
			return bidsonym.ValidationError.New("the input dataset is not BIDS compliant; fix the issues reported above or pass --skip_bids_validation (%v)", err)
		}
		return bidsonym.ValidationError.New("BIDS validation failed; make sure bids-validator is installed and the dataset is BIDS compliant, or pass --skip_bids_validation (%v)", err)
	}

	log.Info("BIDS validation passed")
	return nil
}
