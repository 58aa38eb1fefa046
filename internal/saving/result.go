package saving

import "github.com/nexusforms/collect/internal/xform"

// ResultCode is the outcome of a save.
type ResultCode string

const (
	Saved            ResultCode = "SAVED"
	SavedAndExit     ResultCode = "SAVED_AND_EXIT"
	SaveError        ResultCode = "SAVE_ERROR"
	EncryptionError  ResultCode = "ENCRYPTION_ERROR"
	ValidationFailed ResultCode = "VALIDATION_FAILED"
)

// Result is returned by SaveForm. Validation is set only for
// ValidationFailed.
type Result struct {
	Code       ResultCode
	Message    string
	Validation *xform.ValidationResult
}

// Succeeded reports whether the instance was written.
func (r Result) Succeeded() bool {
	return r.Code == Saved || r.Code == SavedAndExit
}

// ProgressListener receives human-readable progress steps.
type ProgressListener interface {
	OnProgressStep(message string)
}

// ProgressFunc adapts a function to ProgressListener.
type ProgressFunc func(message string)

func (f ProgressFunc) OnProgressStep(message string) { f(message) }

const (
	StepValidating = "validating"
	StepCollecting = "collecting"
	StepSaving     = "saving"
	StepFinalizing = "finalizing"
	StepEncrypting = "encrypting"
)
