// Package encryption packages finalized instances into the encrypted
// submission format: every attachment and the submission XML are encrypted
// with a per-submission key, and submission.xml is replaced by a manifest
// holding the wrapped key and a signature over the encrypted files.
package encryption

import (
	"context"
	"crypto/md5"
	"crypto/rsa"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nexusforms/collect/internal/common"
	"github.com/nexusforms/collect/internal/cryptox"
	"github.com/nexusforms/collect/internal/filex"
	"github.com/nexusforms/collect/internal/logging"
	"github.com/nexusforms/collect/internal/models"
	"github.com/nexusforms/collect/internal/xform"
)

const (
	submissionsNamespace = "http://opendatakit.org/submissions"
	openRosaNamespace    = "http://openrosa.org/xforms"
)

// FormInfo is what the engine needs to encrypt one submission.
type FormInfo struct {
	FormID     string
	Version    string
	InstanceID string
	PublicKey  *rsa.PublicKey
}

// IsRequired reports whether instances of form must be encrypted.
func IsRequired(form *models.Form) bool {
	return form.IsEncrypted()
}

// NewFormInfo builds the encryption parameters for one instance of form.
// It returns nil when the form is not encrypted.
func NewFormInfo(form *models.Form, md xform.SubmissionMetadata) (*FormInfo, error) {
	if !IsRequired(form) {
		return nil, nil
	}
	if md.InstanceID == "" {
		return nil, fail("form info", errors.New("no instanceID in the meta block"))
	}
	pub, err := cryptox.ParsePublicKey(form.BASE64RSAPublicKey)
	if err != nil {
		return nil, fail("form info", err)
	}
	return &FormInfo{
		FormID:     form.JrFormID,
		Version:    form.JrVersion,
		InstanceID: md.InstanceID,
		PublicKey:  pub,
	}, nil
}

// Engine encrypts instances and removes their plaintext.
type Engine struct {
	log logging.Logger
}

func NewEngine(log logging.Logger) *Engine {
	return &Engine{log: log}
}

// Encrypt encrypts the attachments next to instanceXML and the submission
// XML, then overwrites submissionXML with the manifest. On failure every
// .enc file written by this call is removed and an *EncryptionError is
// returned.
func (e *Engine) Encrypt(ctx context.Context, instanceXML, submissionXML string, info *FormInfo) (err error) {
	if info == nil || info.PublicKey == nil {
		return fail("encrypt", errors.New("missing form encryption info"))
	}

	key, err := cryptox.NewKey()
	if err != nil {
		return fail("generate key", err)
	}
	defer cryptox.Wipe(key)
	wrapped, err := cryptox.WrapKey(info.PublicKey, key)
	if err != nil {
		return fail("wrap key", err)
	}
	b64Key := base64.StdEncoding.EncodeToString(wrapped)

	media, err := mediaFiles(instanceXML)
	if err != nil {
		return fail("list attachments", err)
	}

	var written []string
	defer func() {
		if err == nil {
			return
		}
		for _, p := range written {
			if rmErr := filex.DeleteIfExists(p); rmErr != nil {
				e.log.Warn(ctx, "failed to remove partial encrypted file", "path", p, "error", rmErr)
			}
		}
	}()

	ivs := cryptox.NewIVSequence(info.InstanceID, key)
	var encMedia []string
	for _, m := range media {
		out := m + common.EncryptedSuffix
		written = append(written, out)
		if err := encryptFile(m, out, key, ivs.Next()); err != nil {
			return fail("encrypt attachment", err)
		}
		encMedia = append(encMedia, out)
	}

	encSubmission := filepath.Join(filepath.Dir(submissionXML), common.EncryptedSubmissionFileName)
	written = append(written, encSubmission)
	if err := encryptFile(submissionXML, encSubmission, key, ivs.Next()); err != nil {
		return fail("encrypt submission", err)
	}

	signature, err := signature(info, b64Key, append(encMedia, encSubmission))
	if err != nil {
		return fail("sign", err)
	}

	manifest := buildManifest(info, b64Key, encMedia, encSubmission, signature)
	if err := filex.WriteFileSync(submissionXML, manifest); err != nil {
		return fail("write manifest", err)
	}

	e.log.Info(ctx, "instance encrypted", "form", info.FormID, "instance", info.InstanceID, "attachments", len(encMedia))
	return nil
}

// mediaFiles lists the attachments of an instance: regular files in its
// folder that are neither the instance XML, submission.xml, hidden nor
// already encrypted. Sorted by name.
func mediaFiles(instanceXML string) ([]string, error) {
	dir := filepath.Dir(instanceXML)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ent := range entries {
		name := ent.Name()
		switch {
		case !ent.Type().IsRegular(),
			strings.HasPrefix(name, "."),
			name == filepath.Base(instanceXML),
			name == common.SubmissionFileName,
			strings.HasSuffix(name, common.EncryptedSuffix):
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

func encryptFile(src, dst string, key, iv []byte) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o660)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if err := cryptox.EncryptStream(out, in, key, iv); err != nil {
		return fmt.Errorf("encrypt %s: %w", filepath.Base(src), err)
	}
	return out.Sync()
}

// signatureInput is the text whose MD5 is signed:
// formId, [version,] wrapped key, instanceID, then name::md5 per file.
func signatureInput(info *FormInfo, b64Key string, files []string) (string, error) {
	var b strings.Builder
	b.WriteString(info.FormID + "\n")
	if info.Version != "" {
		b.WriteString(info.Version + "\n")
	}
	b.WriteString(b64Key + "\n")
	b.WriteString(info.InstanceID + "\n")
	for _, f := range files {
		sum, err := filex.MD5Hex(f)
		if err != nil {
			return "", err
		}
		b.WriteString(filepath.Base(f) + "::" + sum + "\n")
	}
	return b.String(), nil
}

func signature(info *FormInfo, b64Key string, files []string) (string, error) {
	input, err := signatureInput(info, b64Key, files)
	if err != nil {
		return "", err
	}
	digest := md5.Sum([]byte(input))
	sig, err := cryptox.WrapKey(info.PublicKey, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func buildManifest(info *FormInfo, b64Key string, media []string, submission, signature string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<data xmlns="` + submissionsNamespace + `" encrypted="yes" id="`)
	escape(&b, info.FormID)
	b.WriteString(`"`)
	if info.Version != "" {
		b.WriteString(` version="`)
		escape(&b, info.Version)
		b.WriteString(`"`)
	}
	b.WriteString(">\n")

	element(&b, "base64EncryptedKey", b64Key)
	b.WriteString(`<orx:meta xmlns:orx="` + openRosaNamespace + `">`)
	element(&b, "orx:instanceID", info.InstanceID)
	b.WriteString("</orx:meta>\n")
	for _, m := range media {
		b.WriteString("<media>")
		element(&b, "file", filepath.Base(m))
		b.WriteString("</media>\n")
	}
	element(&b, "encryptedXmlFile", filepath.Base(submission))
	element(&b, "base64EncryptedElementSignature", signature)
	b.WriteString("</data>\n")
	return []byte(b.String())
}

func element(b *strings.Builder, name, value string) {
	b.WriteString("<" + name + ">")
	escape(b, value)
	b.WriteString("</" + name + ">")
}

func escape(w io.Writer, s string) {
	_ = xml.EscapeText(w, []byte(s))
}

// DeletePlaintextFiles removes every file in the instance folder that is
// not the instance XML and not encrypted, then the last-saved snapshot.
// Failures are logged; the return value reports whether all deletions
// succeeded.
func (e *Engine) DeletePlaintextFiles(ctx context.Context, instanceXML, lastSaved string) bool {
	ok := true
	dir := filepath.Dir(instanceXML)
	entries, err := os.ReadDir(dir)
	if err != nil {
		e.log.Warn(ctx, "failed to list instance folder", "dir", dir, "error", err)
		return false
	}
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || name == filepath.Base(instanceXML) || strings.HasSuffix(name, common.EncryptedSuffix) {
			continue
		}
		p := filepath.Join(dir, name)
		if err := os.Remove(p); err != nil {
			e.log.Warn(ctx, "failed to delete plaintext file", "path", p, "error", err)
			ok = false
		}
	}
	if lastSaved != "" {
		if err := filex.DeleteIfExists(lastSaved); err != nil {
			e.log.Warn(ctx, "failed to delete last-saved snapshot", "path", lastSaved, "error", err)
			ok = false
		}
	}
	return ok
}
