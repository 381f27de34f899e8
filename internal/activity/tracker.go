// Package activity keeps a bounded, best-effort in-memory log of what each
// credential has done. It is telemetry, not a ledger: nothing here is
// persisted, nothing here feeds an access decision, and recording never
// fails a request.
package activity

import (
	"sort"
	"sync"
	"time"

	"github.com/org/vaultgate/pkg/models"
)

const (
	DefaultMaxActionsPerCredential = 500
	DefaultMaxTrackedCredentials   = 100
	DefaultListLimit               = 50
)

// Tracker records per-credential activity with two caps: a FIFO limit on
// records per credential and a global limit on tracked credentials, evicted
// least-recently-active first.
type Tracker struct {
	mu                      sync.Mutex
	byName                  map[string]*models.CredentialActivity
	maxActionsPerCredential int
	maxTrackedCredentials   int
}

// NewTracker creates a Tracker. Non-positive caps fall back to the defaults.
func NewTracker(maxActionsPerCredential, maxTrackedCredentials int) *Tracker {
	if maxActionsPerCredential <= 0 {
		maxActionsPerCredential = DefaultMaxActionsPerCredential
	}
	if maxTrackedCredentials <= 0 {
		maxTrackedCredentials = DefaultMaxTrackedCredentials
	}
	return &Tracker{
		byName:                  make(map[string]*models.CredentialActivity),
		maxActionsPerCredential: maxActionsPerCredential,
		maxTrackedCredentials:   maxTrackedCredentials,
	}
}

// Record appends one activity record for the named credential, creating the
// aggregate lazily on first sight. Oldest records are dropped past the
// per-credential cap; whole aggregates are evicted past the global cap,
// ordered by ascending last-active time.
func (t *Tracker) Record(credentialName string, rec models.ActivityRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	agg, ok := t.byName[credentialName]
	if !ok {
		agg = &models.CredentialActivity{
			CredentialName: credentialName,
			FirstSeen:      rec.Timestamp,
		}
		t.byName[credentialName] = agg
	}

	agg.Records = append(agg.Records, rec)
	if n := len(agg.Records) - t.maxActionsPerCredential; n > 0 {
		agg.Records = append(agg.Records[:0], agg.Records[n:]...)
	}

	for len(t.byName) > t.maxTrackedCredentials {
		t.evictOldestLocked()
	}
}

// evictOldestLocked drops the aggregate with the oldest last-active time.
// An aggregate with zero records reports "now" as its last-active time, so
// it survives eviction over credentials with real but older history.
func (t *Tracker) evictOldestLocked() {
	var victim string
	var oldest time.Time
	for name, agg := range t.byName {
		la := agg.LastActive()
		if victim == "" || la.Before(oldest) {
			victim = name
			oldest = la
		}
	}
	if victim != "" {
		delete(t.byName, victim)
	}
}

// Get returns the aggregate for a credential name, or nil if none has been
// recorded.
func (t *Tracker) Get(credentialName string) *models.CredentialActivity {
	t.mu.Lock()
	defer t.mu.Unlock()
	agg, ok := t.byName[credentialName]
	if !ok {
		return nil
	}
	return cloneActivity(agg)
}

// List returns tracked aggregates sorted by descending last-active time,
// truncated to limit (DefaultListLimit when non-positive).
func (t *Tracker) List(limit int) []*models.CredentialActivity {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*models.CredentialActivity, 0, len(t.byName))
	for _, agg := range t.byName {
		out = append(out, cloneActivity(agg))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActive().After(out[j].LastActive())
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Clear drops all tracked state.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byName = make(map[string]*models.CredentialActivity)
}

func cloneActivity(a *models.CredentialActivity) *models.CredentialActivity {
	cp := &models.CredentialActivity{
		CredentialName: a.CredentialName,
		FirstSeen:      a.FirstSeen,
		Records:        make([]models.ActivityRecord, len(a.Records)),
	}
	copy(cp.Records, a.Records)
	return cp
}
