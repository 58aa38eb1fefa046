// Package common defines shared constants and sentinel errors used across
// the collect engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Form lookup errors.
	ErrorFormNotFound = errors.New("no matching form")

	// Instance file errors.
	ErrorNoInstanceFile = errors.New("instance file not set")

	// Upload errors.
	ErrorNoSubmissionURL = errors.New("no submission url")
	ErrorAlreadySent     = errors.New("instance already submitted")
	ErrorNotFinalized    = errors.New("instance is not finalized")
)
