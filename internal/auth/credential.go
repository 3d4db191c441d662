// Package auth resolves the KuDoS session credential. How it is obtained is
// hidden behind Source; the rest of the CLI only sees a Credential.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CookieName is the session cookie KuDoS authenticates with.
const CookieName = "KuDoSAuth"

// ErrNoCredential is returned when a source has nothing to offer.
var ErrNoCredential = errors.New("auth: no credential available")

// Credential is loaded once per run and never mutated afterwards.
type Credential struct {
	CRSID string `json:"crsid"`
	Auth  string `json:"auth"`
}

// Validate checks both fields are present.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.CRSID) == "" {
		return fmt.Errorf("auth: credential must contain 'crsid'")
	}
	if strings.TrimSpace(c.Auth) == "" {
		return fmt.Errorf("auth: credential must contain 'auth'")
	}
	return nil
}

// Source produces a credential, interactively or otherwise.
type Source interface {
	Acquire(ctx context.Context) (Credential, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Credential, error)

// Acquire implements Source.
func (f SourceFunc) Acquire(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// FileStore persists the credential as config.json.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file backing the store.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the stored credential. A missing file yields ErrNoCredential.
func (s *FileStore) Load() (Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credential{}, ErrNoCredential
		}
		return Credential{}, fmt.Errorf("auth: read %s: %w", s.path, err)
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, fmt.Errorf("auth: invalid JSON in %s: %w", s.path, err)
	}
	if err := cred.Validate(); err != nil {
		return Credential{}, fmt.Errorf("%w (in %s)", err, s.path)
	}
	return cred, nil
}

// Save writes the credential with owner-only permissions.
func (s *FileStore) Save(cred Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("auth: ensure dir: %w", err)
		}
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("auth: encode credential: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("auth: write %s: %w", s.path, err)
	}
	return nil
}

// Resolve returns the stored credential, acquiring and saving one from the
// fallback when the file does not exist yet.
func (s *FileStore) Resolve(ctx context.Context, fallback Source) (Credential, error) {
	cred, err := s.Load()
	if err == nil {
		return cred, nil
	}
	if !errors.Is(err, ErrNoCredential) || fallback == nil {
		return Credential{}, err
	}
	return s.Refresh(ctx, fallback)
}

// Refresh always acquires from src and overwrites the stored credential.
func (s *FileStore) Refresh(ctx context.Context, src Source) (Credential, error) {
	cred, err := src.Acquire(ctx)
	if err != nil {
		return Credential{}, err
	}
	if err := s.Save(cred); err != nil {
		return Credential{}, err
	}
	return cred, nil
}
