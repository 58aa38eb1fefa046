// Package cryptox implements the cipher primitives of the encrypted
// submission format: AES-256/CFB with PKCS#5 padding for files and
// RSA-OAEP (SHA-256) for the symmetric key and the manifest signature.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// NewKey returns a random symmetric key for one submission.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParsePublicKey decodes a base64 X.509 SubjectPublicKeyInfo RSA key, the
// form a definition carries in base64RsaPublicKey.
func ParsePublicKey(b64 string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(b64), ""))
	if err != nil {
		return nil, fmt.Errorf("public key is not base64: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an RSA key")
	}
	return rsaPub, nil
}

// WrapKey encrypts data with RSA-OAEP using SHA-256 for both the hash and MGF1.
func WrapKey(pub *rsa.PublicKey, data []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, data, nil)
}

// UnwrapKey reverses WrapKey.
func UnwrapKey(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, data, nil)
}

// IVSequence yields the per-file initialization vectors of one submission.
// The seed is MD5(instanceID || key); before each file one byte of the seed
// is incremented, cycling through the 16 positions.
type IVSequence struct {
	seed    [md5.Size]byte
	counter int
}

func NewIVSequence(instanceID string, key []byte) *IVSequence {
	h := md5.New()
	h.Write([]byte(instanceID))
	h.Write(key)

	s := &IVSequence{}
	copy(s.seed[:], h.Sum(nil))
	return s
}

// Next returns the IV for the next file.
func (s *IVSequence) Next() []byte {
	s.seed[s.counter%len(s.seed)]++
	s.counter++
	iv := make([]byte, len(s.seed))
	copy(iv, s.seed[:])
	return iv
}

// EncryptStream copies r to w through AES/CFB and appends PKCS#5 padding.
func EncryptStream(w io.Writer, r io.Reader, key, iv []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	// CFB is what submission decrypters expect.
	sw := cipher.StreamWriter{S: cipher.NewCFBEncrypter(block, iv), W: w}

	n, err := io.Copy(sw, r)
	if err != nil {
		return err
	}
	pad := aes.BlockSize - int(n%aes.BlockSize)
	if _, err := sw.Write(bytes.Repeat([]byte{byte(pad)}, pad)); err != nil {
		return err
	}
	return nil
}

// Decrypt reverses EncryptStream on an in-memory ciphertext.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(plain, ciphertext)

	if len(plain) == 0 {
		return nil, errors.New("empty ciphertext")
	}
	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(plain) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range plain[len(plain)-pad:] {
		if int(b) != pad {
			return nil, errors.New("invalid padding")
		}
	}
	return plain[:len(plain)-pad], nil
}

// Wipe overwrites b with zeros. Use it on key material once it is no longer
// needed.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
