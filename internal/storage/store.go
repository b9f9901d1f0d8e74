// Package storage implements the identity store (C1): an encrypted
// credential file sealed with a key sourced from the OS keyring, legacy
// plaintext migration, and the three-location credential discovery order.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "aim-sdk"
	keyringAccount = "encryption-key"

	credentialsDirName  = ".aim"
	credentialsFileName = "credentials.json"
	encryptedSuffix     = ".encrypted"

	sealedFileMode = 0o600
	sealedDirMode  = 0o700
)

// ErrCorruptCredentials is returned when the sealed credential file exists
// but cannot be decrypted - either the ciphertext was tampered with, or the
// keyring key has changed since it was written.
var ErrCorruptCredentials = errCorrupt

// Store provides read/write/exists/delete of credential blobs, sealed
// under OS-level encryption with a keyring-sourced key, including
// transparent migration of legacy plaintext files.
type Store struct {
	credentialsPath string // plaintext legacy location
	encryptedPath   string // sealed location
	logger          *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger overrides the store's logger. Defaults to a discarding logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithCredentialsPath overrides the plaintext/sealed base path. Defaults to
// the discovered path (see Discover).
func WithCredentialsPath(path string) Option {
	return func(s *Store) {
		s.credentialsPath = path
		s.encryptedPath = path + encryptedSuffix
	}
}

// NewStore builds a Store rooted at the discovered credentials path.
func NewStore(opts ...Option) (*Store, error) {
	path, err := Discover()
	if err != nil {
		return nil, err
	}
	s := &Store{
		credentialsPath: path,
		encryptedPath:   path + encryptedSuffix,
		logger:          log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HomeCredentialsPath returns ~/.aim/credentials.json.
func HomeCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("storage: resolve home directory: %w", err)
	}
	return filepath.Join(home, credentialsDirName, credentialsFileName), nil
}

// Discover implements the three-location credential discovery order:
// (1) user home, (2) SDK-package-embedded (modeled here as the directory
// containing the running executable, the closest Go analogue to a
// co-installed package directory), (3) current working directory. On
// first resolution from location 2, the file is copied to location 1 with
// owner-only permissions.
func Discover() (string, error) {
	home, err := HomeCredentialsPath()
	if err != nil {
		return "", err
	}
	if fileExists(home) || fileExists(home+encryptedSuffix) {
		return home, nil
	}

	if exe, err := os.Executable(); err == nil {
		embedded := filepath.Join(filepath.Dir(exe), credentialsDirName, credentialsFileName)
		if fileExists(embedded) {
			if err := copyEmbeddedToHome(embedded, home); err != nil {
				return embedded, nil // fall through to embedded if the copy failed
			}
			return home, nil
		}
		if fileExists(embedded + encryptedSuffix) {
			return embedded, nil
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, credentialsDirName, credentialsFileName)
		if fileExists(local) || fileExists(local+encryptedSuffix) {
			return local, nil
		}
	}

	return home, nil
}

func copyEmbeddedToHome(embedded, home string) error {
	data, err := os.ReadFile(embedded)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(home), sealedDirMode); err != nil {
		return err
	}
	return os.WriteFile(home, data, sealedFileMode)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// cipher lazily fetches (or generates) the 256-bit master key from the OS
// keyring and derives the sealed cipher from it. Missing keyring support
// is a fatal configuration error; there is deliberately no plaintext
// fallback path.
func (s *Store) cipher() (*sealedCipher, error) {
	key, err := keyring.Get(keyringService, keyringAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		generated, genErr := generateMasterKey()
		if genErr != nil {
			return nil, fmt.Errorf("storage: generate encryption key: %w", genErr)
		}
		if setErr := keyring.Set(keyringService, keyringAccount, generated); setErr != nil {
			return nil, fmt.Errorf("storage: OS keyring unavailable, refusing plaintext storage: %w", setErr)
		}
		key = generated
	} else if err != nil {
		return nil, fmt.Errorf("storage: OS keyring unavailable, refusing plaintext storage: %w", err)
	}

	masterKey, err := decodeMasterKey(key)
	if err != nil {
		return nil, err
	}
	return newSealedCipher(masterKey)
}

// Save writes credentials, always sealed, never plaintext. The sealed
// file is created with owner-only permissions and verified to decrypt
// before any stale plaintext file at the same base path is removed.
func (s *Store) Save(credentials interface{}) error {
	c, err := s.cipher()
	if err != nil {
		return err
	}

	plaintext, err := json.MarshalIndent(credentials, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode credentials: %w", err)
	}

	sealed, err := c.seal(plaintext)
	if err != nil {
		return fmt.Errorf("storage: seal credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.encryptedPath), sealedDirMode); err != nil {
		return fmt.Errorf("storage: create credentials directory: %w", err)
	}
	if err := writeFileAtomic(s.encryptedPath, sealed, sealedFileMode); err != nil {
		return fmt.Errorf("storage: write sealed credentials: %w", err)
	}

	// Read the sealed file back and confirm it decrypts before retiring
	// any plaintext copy: a corrupted write must never leave the user
	// with no decryptable credential.
	written, err := os.ReadFile(s.encryptedPath)
	if err != nil {
		return fmt.Errorf("storage: read back sealed credentials: %w", err)
	}
	if _, err := c.open(written); err != nil {
		return fmt.Errorf("storage: verify sealed credentials after write: %w", err)
	}

	if fileExists(s.credentialsPath) {
		if err := os.Remove(s.credentialsPath); err != nil {
			s.logger.Printf("storage: failed to remove legacy plaintext file: %v", err)
		}
	}
	return nil
}

// Load reads credentials, decrypting the sealed file if present. If only
// a legacy plaintext file exists, it is migrated to the sealed location
// (encrypted, verified, then deleted) before being returned. Failures
// during migration must never leave both files missing: the plaintext
// file is removed only after Save has succeeded.
func (s *Store) Load(out interface{}) error {
	if fileExists(s.encryptedPath) {
		return s.loadEncrypted(out)
	}

	if fileExists(s.credentialsPath) {
		return s.migrateAndLoad(out)
	}

	return os.ErrNotExist
}

func (s *Store) loadEncrypted(out interface{}) error {
	sealed, err := os.ReadFile(s.encryptedPath)
	if err != nil {
		return fmt.Errorf("storage: read sealed credentials: %w", err)
	}
	c, err := s.cipher()
	if err != nil {
		return err
	}
	plaintext, err := c.open(sealed)
	if err != nil {
		return ErrCorruptCredentials
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return ErrCorruptCredentials
	}
	return nil
}

func (s *Store) migrateAndLoad(out interface{}) error {
	raw, err := os.ReadFile(s.credentialsPath)
	if err != nil {
		return fmt.Errorf("storage: read plaintext credentials: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("storage: decode plaintext credentials: %w", err)
	}

	s.logger.Printf("storage: migrating plaintext credentials at %s to encrypted storage", s.credentialsPath)
	if err := s.Save(out); err != nil {
		s.logger.Printf("storage: migration to encrypted storage failed, leaving plaintext in place: %v", err)
		return nil // plaintext is still present and was already decoded into out
	}

	return nil
}

// Exists reports whether any credential file (encrypted or plaintext)
// exists at this store's base path.
func (s *Store) Exists() bool {
	return fileExists(s.encryptedPath) || fileExists(s.credentialsPath)
}

// Delete removes both the sealed and plaintext files, if present.
func (s *Store) Delete() error {
	var firstErr error
	if fileExists(s.encryptedPath) {
		if err := os.Remove(s.encryptedPath); err != nil {
			firstErr = err
		}
	}
	if fileExists(s.credentialsPath) {
		if err := os.Remove(s.credentialsPath); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
