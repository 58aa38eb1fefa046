package encryption

import (
	"crypto/md5"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/nexusforms/collect/internal/common"
	"github.com/nexusforms/collect/internal/cryptox"
)

// Decrypted is the plaintext recovered from an encrypted submission.
type Decrypted struct {
	FormID     string
	Version    string
	InstanceID string
	// Submission is the decrypted submission XML.
	Submission []byte
	// Media maps attachment names (without .enc) to their content.
	Media map[string][]byte
}

// DecryptFile reads the manifest at manifestPath, unwraps the submission
// key with priv, verifies the signature and decrypts every listed file from
// the manifest's folder.
func DecryptFile(manifestPath string, priv *rsa.PrivateKey) (*Decrypted, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := xmlquery.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	root := xmlquery.FindOne(doc, "/*[local-name()='data']")
	if root == nil || root.SelectAttr("encrypted") != "yes" {
		return nil, errors.New("not an encrypted submission manifest")
	}

	text := func(expr string) string {
		if n := xmlquery.FindOne(root, expr); n != nil {
			return strings.TrimSpace(n.InnerText())
		}
		return ""
	}

	out := &Decrypted{
		FormID:     root.SelectAttr("id"),
		Version:    root.SelectAttr("version"),
		InstanceID: text("*[local-name()='meta']/*[local-name()='instanceID']"),
		Media:      map[string][]byte{},
	}

	b64Key := text("*[local-name()='base64EncryptedKey']")
	wrapped, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid wrapped key: %w", err)
	}
	key, err := cryptox.UnwrapKey(priv, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key: %w", err)
	}

	dir := filepath.Dir(manifestPath)
	var files []string
	for _, n := range xmlquery.Find(root, "*[local-name()='media']/*[local-name()='file']") {
		files = append(files, filepath.Join(dir, strings.TrimSpace(n.InnerText())))
	}
	submission := text("*[local-name()='encryptedXmlFile']")
	if submission == "" {
		submission = common.EncryptedSubmissionFileName
	}
	files = append(files, filepath.Join(dir, submission))

	if err := verifySignature(out, b64Key, files, text("*[local-name()='base64EncryptedElementSignature']"), priv); err != nil {
		return nil, err
	}

	ivs := cryptox.NewIVSequence(out.InstanceID, key)
	for n, p := range files {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		plain, err := cryptox.Decrypt(data, key, ivs.Next())
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %s: %w", filepath.Base(p), err)
		}
		if n == len(files)-1 {
			out.Submission = plain
		} else {
			out.Media[strings.TrimSuffix(filepath.Base(p), common.EncryptedSuffix)] = plain
		}
	}
	return out, nil
}

func verifySignature(d *Decrypted, b64Key string, files []string, b64Sig string, priv *rsa.PrivateKey) error {
	sig, err := base64.StdEncoding.DecodeString(b64Sig)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	digest, err := cryptox.UnwrapKey(priv, sig)
	if err != nil {
		return fmt.Errorf("failed to decrypt signature: %w", err)
	}
	input, err := signatureInput(&FormInfo{FormID: d.FormID, Version: d.Version, InstanceID: d.InstanceID}, b64Key, files)
	if err != nil {
		return err
	}
	want := md5.Sum([]byte(input))
	if string(digest) != string(want[:]) {
		return errors.New("signature mismatch")
	}
	return nil
}
