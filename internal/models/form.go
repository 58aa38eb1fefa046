package models

import "time"

// Form is an imported form definition. Rows are immutable after import
// except for the Deleted flag.
type Form struct {
	ID          int64
	DisplayName string
	Description string

	JrFormID  string
	JrVersion string

	FormFilePath  string
	SubmissionURI string

	// BASE64RSAPublicKey, when set, makes every finalized instance of this
	// form encrypted.
	BASE64RSAPublicKey string

	// GeometryXPath selects the geopoint used to place instances on a map.
	GeometryXPath string

	AutoSend   string
	AutoDelete string

	Deleted bool

	// Date is the import time; the newest row wins "latest" lookups.
	Date time.Time
}

// IsEncrypted reports whether the form carries public key material.
func (f *Form) IsEncrypted() bool {
	return f != nil && f.BASE64RSAPublicKey != ""
}
