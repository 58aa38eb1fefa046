package encryption

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusforms/collect/internal/common"
	"github.com/nexusforms/collect/internal/logging"
	"github.com/nexusforms/collect/internal/models"
	"github.com/nexusforms/collect/internal/testutil"
	"github.com/nexusforms/collect/internal/xform"
)

type instanceFixture struct {
	dir        string
	instance   string
	submission string
	lastSaved  string
}

func newInstanceFixture(t *testing.T) instanceFixture {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "instances", "a_2024")
	require.NoError(t, os.MkdirAll(dir, 0o700))

	f := instanceFixture{
		dir:        dir,
		instance:   filepath.Join(dir, "a_2024.xml"),
		submission: filepath.Join(dir, common.SubmissionFileName),
		lastSaved:  filepath.Join(root, ".cache", "last-saved", "a_2024.xml"),
	}
	xml := `<data id="X" version="1"><photo>photo.jpg</photo><meta><instanceID>uuid:1</instanceID></meta></data>`
	require.NoError(t, os.WriteFile(f.instance, []byte(xml), 0o600))
	require.NoError(t, os.WriteFile(f.submission, []byte(xml), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("jpeg bytes"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audio.m4a"), []byte("audio bytes"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Dir(f.lastSaved), 0o700))
	require.NoError(t, os.WriteFile(f.lastSaved, []byte(xml), 0o600))
	return f
}

func formWithKey(key string) *models.Form {
	return &models.Form{JrFormID: "X", JrVersion: "1", BASE64RSAPublicKey: key}
}

func TestNewFormInfo(t *testing.T) {
	_, pub := testutil.NewRSAKey(t)

	info, err := NewFormInfo(&models.Form{JrFormID: "X"}, xform.SubmissionMetadata{InstanceID: "uuid:1"})
	require.NoError(t, err)
	assert.Nil(t, info, "plain forms need no info")

	info, err = NewFormInfo(formWithKey(pub), xform.SubmissionMetadata{InstanceID: "uuid:1"})
	require.NoError(t, err)
	assert.Equal(t, "X", info.FormID)
	assert.Equal(t, "uuid:1", info.InstanceID)
	assert.NotNil(t, info.PublicKey)

	_, err = NewFormInfo(formWithKey(pub), xform.SubmissionMetadata{})
	var encErr *EncryptionError
	require.ErrorAs(t, err, &encErr)

	_, err = NewFormInfo(formWithKey("bm90IGEga2V5"), xform.SubmissionMetadata{InstanceID: "uuid:1"})
	require.ErrorAs(t, err, &encErr)
}

func TestEncrypt_ProducesManifestAndDecryptsBack(t *testing.T) {
	priv, pub := testutil.NewRSAKey(t)
	f := newInstanceFixture(t)
	ctx := context.Background()

	info, err := NewFormInfo(formWithKey(pub), xform.SubmissionMetadata{InstanceID: "uuid:1"})
	require.NoError(t, err)

	e := NewEngine(logging.NewNop())
	require.NoError(t, e.Encrypt(ctx, f.instance, f.submission, info))

	for _, name := range []string{"photo.jpg.enc", "audio.m4a.enc", common.EncryptedSubmissionFileName} {
		assert.FileExists(t, filepath.Join(f.dir, name))
	}

	data, err := os.ReadFile(f.submission)
	require.NoError(t, err)
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	root := xmlquery.FindOne(doc, "/*")
	assert.Equal(t, "yes", root.SelectAttr("encrypted"))
	assert.Equal(t, "X", root.SelectAttr("id"))
	assert.Equal(t, "1", root.SelectAttr("version"))
	files := xmlquery.Find(doc, "//*[local-name()='media']/*[local-name()='file']")
	require.Len(t, files, 2)
	assert.Equal(t, "audio.m4a.enc", files[0].InnerText())
	assert.Equal(t, "photo.jpg.enc", files[1].InnerText())

	dec, err := DecryptFile(f.submission, priv)
	require.NoError(t, err)
	assert.Equal(t, "uuid:1", dec.InstanceID)
	assert.Equal(t, []byte("jpeg bytes"), dec.Media["photo.jpg"])
	assert.Equal(t, []byte("audio bytes"), dec.Media["audio.m4a"])
	assert.Contains(t, string(dec.Submission), "<photo>photo.jpg</photo>")
}

func TestDecryptFile_DetectsTampering(t *testing.T) {
	priv, pub := testutil.NewRSAKey(t)
	f := newInstanceFixture(t)

	info, err := NewFormInfo(formWithKey(pub), xform.SubmissionMetadata{InstanceID: "uuid:1"})
	require.NoError(t, err)
	require.NoError(t, NewEngine(logging.NewNop()).Encrypt(context.Background(), f.instance, f.submission, info))

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "photo.jpg.enc"), []byte("0123456789abcdef"), 0o600))

	_, err = DecryptFile(f.submission, priv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature mismatch")
}

func TestEncrypt_FailureRemovesPartialFiles(t *testing.T) {
	_, pub := testutil.NewRSAKey(t)
	f := newInstanceFixture(t)

	info, err := NewFormInfo(formWithKey(pub), xform.SubmissionMetadata{InstanceID: "uuid:1"})
	require.NoError(t, err)

	require.NoError(t, os.Remove(f.submission))

	err = NewEngine(logging.NewNop()).Encrypt(context.Background(), f.instance, f.submission, info)
	var encErr *EncryptionError
	require.True(t, errors.As(err, &encErr))

	assert.NoFileExists(t, filepath.Join(f.dir, "photo.jpg.enc"))
	assert.NoFileExists(t, filepath.Join(f.dir, "audio.m4a.enc"))
	assert.NoFileExists(t, filepath.Join(f.dir, common.EncryptedSubmissionFileName))
	assert.FileExists(t, f.instance, "plaintext instance stays intact")
}

func TestEncrypt_NilInfo(t *testing.T) {
	f := newInstanceFixture(t)
	err := NewEngine(logging.NewNop()).Encrypt(context.Background(), f.instance, f.submission, nil)
	var encErr *EncryptionError
	require.ErrorAs(t, err, &encErr)
}

func TestDeletePlaintextFiles(t *testing.T) {
	f := newInstanceFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "photo.jpg.enc"), []byte("x"), 0o600))

	ok := NewEngine(logging.NewNop()).DeletePlaintextFiles(context.Background(), f.instance, f.lastSaved)
	assert.True(t, ok)

	assert.FileExists(t, f.instance)
	assert.FileExists(t, filepath.Join(f.dir, "photo.jpg.enc"))
	assert.NoFileExists(t, filepath.Join(f.dir, "photo.jpg"))
	assert.NoFileExists(t, filepath.Join(f.dir, "audio.m4a"))
	assert.NoFileExists(t, f.submission)
	assert.NoFileExists(t, f.lastSaved)
}

func TestDeletePlaintextFiles_MissingFolder(t *testing.T) {
	ok := NewEngine(logging.NewNop()).DeletePlaintextFiles(context.Background(),
		filepath.Join(t.TempDir(), "gone", "gone.xml"), "")
	assert.False(t, ok)
}
