package xform

// ValidationOutcome is the validator's failure code.
type ValidationOutcome int

const (
	ValidationOK ValidationOutcome = iota
	ValidationRequiredMissing
	ValidationConstraintViolated
)

func (o ValidationOutcome) String() string {
	switch o {
	case ValidationOK:
		return "ok"
	case ValidationRequiredMissing:
		return "required answer missing"
	case ValidationConstraintViolated:
		return "constraint violated"
	}
	return "unknown"
}

// ValidationResult reports the first answer that failed validation.
type ValidationResult struct {
	Outcome ValidationOutcome
	// Field is the reference of the failing answer.
	Field   string
	Message string
}

func (v ValidationResult) OK() bool { return v.Outcome == ValidationOK }

// SubmissionMetadata is read from the meta block of the instance.
type SubmissionMetadata struct {
	InstanceName string
	InstanceID   string
}

// FormSession is one in-progress form-filling session. It is passed
// explicitly to the operations that need it.
type FormSession interface {
	// ValidateAnswers checks the answers. markCompleted enables the checks
	// that only apply when finalizing (required answers).
	ValidateAnswers(markCompleted bool) (ValidationResult, error)

	// PostProcess runs end-of-form processing before finalization.
	PostProcess() error

	SubmissionMetadata() SubmissionMetadata

	// FilledInXML serializes the full instance.
	FilledInXML() ([]byte, error)

	// SubmissionXML serializes what is actually uploaded, which may be a
	// subset of the instance.
	SubmissionXML() ([]byte, error)

	IsSubmissionEntireForm() bool

	// InstanceFile is the absolute path of the canonical instance XML.
	InstanceFile() string

	// LastSavedPath is the absolute path of the last-saved snapshot.
	LastSavedPath() string

	FormIdentity() (formID, version string)
}
