package encryption

import "fmt"

// EncryptionError reports a failure to produce an encrypted submission. The
// plaintext instance is left untouched when it is returned.
type EncryptionError struct {
	Op  string
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption failed: %s: %v", e.Op, e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

func fail(op string, err error) error {
	return &EncryptionError{Op: op, Err: err}
}
