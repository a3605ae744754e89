// Package credstore implements the optional encrypted local credential
// cache (SPEC_FULL.md §C.4): a publish/push session may stash the S3/GTL
// credentials it resolved from the environment so repeated pushes in the
// same session don't re-prompt. It has no equivalent in the original tool,
// which always re-reads credentials straight from the environment
// (packman.py's get_s3_credentials/get_gtl_credentials) -- this is purely
// additive and is never consulted unless PM_CRED_PASSPHRASE is set.
package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
	"gopkg.in/yaml.v2"

	"github.com/packman-project/packman/internal/pmerrors"
)

// PassphraseEnvVar is the environment variable a passphrase is read from;
// the cache is inert (Load returns an empty Store, Save is a no-op) when
// it's unset.
const PassphraseEnvVar = "PM_CRED_PASSPHRASE"

const (
	saltSize       = 16
	pbkdf2Iter     = 100000
	pbkdf2KeyBytes = 32
)

// Credential is the (id, key) pair get_credentials returns for s3/gtl
// remotes.
type Credential struct {
	ID  string `yaml:"id"`
	Key string `yaml:"key"`
}

// Store holds every cached credential, keyed by remote name.
type Store struct {
	Path       string
	passphrase string
	entries    map[string]Credential
}

// Open loads path under passphrase (read from PassphraseEnvVar if empty).
// A missing file or an unset passphrase both yield a usable, empty Store --
// only a file that exists but fails to decrypt is an error.
func Open(path string) (*Store, error) {
	passphrase := os.Getenv(PassphraseEnvVar)
	store := &Store{Path: path, passphrase: passphrase, entries: map[string]Credential{}}
	if passphrase == "" {
		return store, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "reading credential cache %q", path)
	}

	plaintext, err := decrypt(data, passphrase)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindCredentialsMissing, err, "decrypting credential cache %q (wrong %s?)", path, PassphraseEnvVar)
	}
	if err := yaml.Unmarshal(plaintext, &store.entries); err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindParseError, err, "parsing credential cache %q", path)
	}
	if store.entries == nil {
		store.entries = map[string]Credential{}
	}
	return store, nil
}

// Get returns the cached credential for remoteName, if the cache is active
// and holds one.
func (s *Store) Get(remoteName string) (Credential, bool) {
	if s.passphrase == "" {
		return Credential{}, false
	}
	c, ok := s.entries[remoteName]
	return c, ok
}

// Put records cred for remoteName and persists the cache immediately. A no-op
// when no passphrase is configured.
func (s *Store) Put(remoteName string, cred Credential) error {
	if s.passphrase == "" {
		return nil
	}
	s.entries[remoteName] = cred
	return s.save()
}

func (s *Store) save() error {
	plaintext, err := yaml.Marshal(s.entries)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindParseError, err, "serializing credential cache")
	}
	ciphertext, err := encrypt(plaintext, s.passphrase)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindInternal, err, "encrypting credential cache")
	}
	if err := os.WriteFile(s.Path, ciphertext, 0o600); err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "writing credential cache %q", s.Path)
	}
	return nil
}

// encrypt derives a key from passphrase via PBKDF2 and seals plaintext with
// AES-256-GCM, storing salt || nonce || ciphertext.
func encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iter, pbkdf2KeyBytes, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := append([]byte{}, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

func decrypt(data []byte, passphrase string) ([]byte, error) {
	if len(data) < saltSize {
		return nil, pmerrors.New(pmerrors.KindCredentialsMissing, "credential cache is truncated")
	}
	salt, rest := data[:saltSize], data[saltSize:]
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iter, pbkdf2KeyBytes, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, pmerrors.New(pmerrors.KindCredentialsMissing, "credential cache is truncated")
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
