package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/org/vaultgate/pkg/models"
	"gopkg.in/yaml.v3"
)

// FileBackend stores the credential list as a YAML file. Suitable for
// single-host deployments where the vault lives on the same disk.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to the given path. The file is
// created on first save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (f *FileBackend) Close() {}

func (f *FileBackend) LoadCredentials(_ context.Context) ([]*models.Credential, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	var doc struct {
		Credentials []*models.Credential `yaml:"credentials"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	return doc.Credentials, nil
}

// SaveCredentials writes the list atomically via a rename. Secrets are
// stored in the clear, so the file is kept 0600.
func (f *FileBackend) SaveCredentials(_ context.Context, creds []*models.Credential) error {
	doc := struct {
		Credentials []*models.Credential `yaml:"credentials"`
	}{Credentials: creds}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding settings file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return os.Rename(tmp, f.path)
}
