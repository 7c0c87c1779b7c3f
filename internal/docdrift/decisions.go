// Package docdrift detects undocumented surface changes and remembers how
// the user chose to handle them.
package docdrift

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zyahav/cloud-harness/internal/state"
)

// DecisionsRelPath is the decision store's location inside a project repo.
const DecisionsRelPath = ".harness/doc_decisions.json"

// DeferWindow is how long a deferred item stays quiet, measured from the
// decision's creation time. Re-surfacing does not extend it.
const DeferWindow = 7 * 24 * time.Hour

// Decision is the user's ruling on a drift item.
type Decision string

const (
	// DecisionInternal marks the surface as intentionally undocumented.
	// Internal decisions never expire.
	DecisionInternal Decision = "internal"
	// DecisionDeferred postpones the item until DeferWindow elapses.
	DecisionDeferred Decision = "deferred"
	// DecisionDocumented records that docs were updated.
	DecisionDocumented Decision = "documented"
)

// Record is one persisted decision.
type Record struct {
	ItemID      string     `json:"item_id"`
	Decision    Decision   `json:"decision"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether a deferred record has lapsed. Expiry is strict:
// exactly at ExpiresAt the record still holds.
func (r *Record) Expired(now time.Time) bool {
	if r.Decision != DecisionDeferred || r.ExpiresAt == nil {
		return false
	}
	return now.After(*r.ExpiresAt)
}

// Store persists decisions for one project.
type Store struct {
	path    string
	records map[string]*Record
}

// OpenStore loads the decision store at <repoRoot>/.harness/doc_decisions.json.
// A missing file is an empty store.
func OpenStore(repoRoot string) (*Store, error) {
	s := &Store{
		path:    filepath.Join(repoRoot, DecisionsRelPath),
		records: make(map[string]*Record),
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	for _, r := range records {
		s.records[r.ItemID] = r
	}
	return s, nil
}

// Get returns the decision for an item, or nil.
func (s *Store) Get(itemID string) *Record {
	return s.records[itemID]
}

// Put records a decision and persists the store atomically. Deferred
// decisions get an expiry stamped from now.
func (s *Store) Put(itemID string, decision Decision, description string) error {
	now := time.Now().UTC()
	rec := &Record{
		ItemID:      itemID,
		Decision:    decision,
		Description: description,
		CreatedAt:   now,
	}
	if decision == DecisionDeferred {
		exp := now.Add(DeferWindow)
		rec.ExpiresAt = &exp
	}
	s.records[itemID] = rec
	return s.save()
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	records := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ItemID < records[j].ItemID })
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return state.AtomicWrite(s.path, "", append(data, '\n'))
}
