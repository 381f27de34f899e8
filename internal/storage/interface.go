package storage

import (
	"context"
	"errors"

	"github.com/org/vaultgate/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// SettingsBackend persists the full credential store state as an opaque
// blob. The engine treats it as injected initial state plus a
// save-on-mutation hook; the storage format is the backend's business.
// Credential order — and with it each policy's rule order — must survive a
// load/save round trip.
type SettingsBackend interface {
	LoadCredentials(ctx context.Context) ([]*models.Credential, error)
	SaveCredentials(ctx context.Context, creds []*models.Credential) error
	Close()
}
