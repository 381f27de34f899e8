package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/org/vaultgate/pkg/models"
	"golang.org/x/crypto/hkdf"
)

const secretPrefix = "vgt_"

// SaveFunc persists the full credential list. It is invoked after every
// mutation (issue, revoke, touch) while the store lock is held, so the
// snapshot it receives is consistent.
type SaveFunc func(ctx context.Context, creds []*models.Credential) error

// Store is the authoritative list of issued credentials. It is an explicitly
// constructed object passed by reference to handlers; all access goes
// through the mutex since the HTTP host serves requests from many
// goroutines.
type Store struct {
	mu    sync.Mutex
	creds []*models.Credential
	save  SaveFunc
}

// NewStore creates a Store seeded with previously persisted credentials.
// Order is preserved: credential order and each policy's rule order are
// significant.
func NewStore(initial []*models.Credential, save SaveFunc) *Store {
	return &Store{creds: initial, save: save}
}

// Issue generates a new credential with a random 256-bit secret and a
// permissive default policy, persists it, and returns it with the secret
// included. The secret is recoverable only from this return value.
func (s *Store) Issue(ctx context.Context, name string, caps models.CapabilitySet) (*models.Credential, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating credential secret: %w", err)
	}

	c := &models.Credential{
		ID:        uuid.NewString(),
		Name:      name,
		Secret:    secretPrefix + base64.RawURLEncoding.EncodeToString(raw),
		CreatedAt: time.Now().UTC(),
		Caps:      caps,
		Policy:    models.PermissivePolicy(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = append(s.creds, c)
	if err := s.persist(ctx); err != nil {
		s.creds = s.creds[:len(s.creds)-1]
		return nil, fmt.Errorf("persisting credential: %w", err)
	}
	return c, nil
}

// Revoke removes a credential by ID and reports whether one existed.
func (s *Store) Revoke(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.creds {
		if c.ID == id {
			s.creds = append(s.creds[:i], s.creds[i+1:]...)
			_ = s.persist(ctx)
			return true
		}
	}
	return false
}

// FindBySecret returns the credential whose secret exactly matches, or nil.
// Each candidate is compared in constant time; the scan is O(n) over an
// expected handful of credentials.
func (s *Store) FindBySecret(secret string) *models.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creds {
		if len(c.Secret) == len(secret) &&
			subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) == 1 {
			return c
		}
	}
	return nil
}

// Touch updates the credential's last-used timestamp.
func (s *Store) Touch(ctx context.Context, c *models.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.LastUsedAt = time.Now().UTC()
	_ = s.persist(ctx)
}

// List returns every credential with the secret field removed.
func (s *Store) List() []*models.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Credential, len(s.creds))
	for i, c := range s.creds {
		out[i] = c.Redacted()
	}
	return out
}

// Len returns the number of issued credentials. The authentication gate
// fails closed when this is zero.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creds)
}

func (s *Store) persist(ctx context.Context) error {
	if s.save == nil {
		return nil
	}
	return s.save(ctx, s.creds)
}

// Fingerprint derives a short non-reversible tag of a secret, safe for logs
// and listings.
func Fingerprint(secret string) string {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("vaultgate-credential-fingerprint"))
	tag := make([]byte, 8)
	if _, err := io.ReadFull(r, tag); err != nil {
		return ""
	}
	return hex.EncodeToString(tag)
}
