package bidsonym

import "github.com/zeebo/errs"

// Error classes shared by every package. Run-level classes (configuration,
// validation) abort before any subject is touched; unit-level classes abort a
// single subject/session and let the batch continue.
var (
	// ConfigurationError marks a missing or invalid flag or parameter.
	ConfigurationError = errs.Class("configuration error")

	// NotFoundError marks a requested subject, session or modality that does
	// not exist in the dataset.
	NotFoundError = errs.Class("not found")

	// AlreadyStagedError marks a backup collision. The existing backup is
	// never touched.
	AlreadyStagedError = errs.Class("already staged")

	// ExternalToolError marks a non-zero exit from a wrapped algorithm.
	ExternalToolError = errs.Class("external tool failed")

	// ValidationError marks a structural BIDS issue reported by the
	// validator.
	ValidationError = errs.Class("validation failed")

	// RevertGuardError marks a revert that stopped before mutating anything.
	RevertGuardError = errs.Class("revert not performed")

	// PartialError marks a revert that mutated the dataset but could not
	// complete every step.
	PartialError = errs.Class("revert partially failed")
)

// IsUnitError reports whether err should only abort the current
// subject/session unit rather than the whole run.
func IsUnitError(err error) bool {
	return NotFoundError.Has(err) ||
		AlreadyStagedError.Has(err) ||
		ExternalToolError.Has(err)
}
