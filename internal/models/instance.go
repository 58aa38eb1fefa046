// Package models defines the instance and form records persisted by the
// collect engine.
package models

import "time"

// Status is the lifecycle state of a filled-in form instance.
type Status string

const (
	StatusIncomplete       Status = "incomplete"
	StatusComplete         Status = "complete"
	StatusSubmitted        Status = "submitted"
	StatusSubmissionFailed Status = "submissionFailed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIncomplete, StatusComplete, StatusSubmitted, StatusSubmissionFailed:
		return true
	}
	return false
}

// Instance is one form-filling session. The instance folder on disk is its
// durable external key; the row is the source of truth for Status.
type Instance struct {
	// ID is assigned by the repository on first save and never changes.
	ID int64

	// InstanceFilePath is the instance XML path relative to the storage root.
	InstanceFilePath string

	SubmissionURI string
	JrFormID      string
	JrVersion     string
	DisplayName   string

	Status Status

	// CanEditWhenComplete is false once the submission package differs from
	// the editable instance (encryption or a partial submission profile).
	CanEditWhenComplete bool

	// GeometryType and Geometry hold GeoJSON extracted from the instance.
	// Both are empty for encrypted instances.
	GeometryType string
	Geometry     string

	LastStatusChangeDate time.Time

	// DeletedDate is set when a submitted instance is deleted: the files are
	// gone but the row proves the submission happened.
	DeletedDate *time.Time
}

// Copy returns a shallow copy suitable for read-modify-write updates.
func (i *Instance) Copy() *Instance {
	c := *i
	if i.DeletedDate != nil {
		d := *i.DeletedDate
		c.DeletedDate = &d
	}
	return &c
}

// IsDeleted reports whether the instance has been soft-deleted.
func (i *Instance) IsDeleted() bool {
	return i.DeletedDate != nil
}
