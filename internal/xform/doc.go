// Package xform reads XForm definitions and filled-in instance documents.
//
// It is not a forms engine. Definition parsing extracts the metadata the
// persistence pipeline needs (identity, submission target, public key,
// geometry and required binds). Document is a small XML-backed FormSession
// so instances can be saved and finalized without a full evaluator.
package xform
