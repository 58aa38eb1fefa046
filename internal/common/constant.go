package common

// File names and suffixes shared by the disk writer, the encryption engine
// and the instance sync scanner.
const (
	SubmissionFileName = "submission.xml"
	EncryptedSuffix    = ".enc"

	SavepointSuffix = ".save"
	IndexSuffix     = ".index"
)

// EncryptedSubmissionFileName is the encrypted payload produced for submission.xml.
const EncryptedSubmissionFileName = SubmissionFileName + EncryptedSuffix
