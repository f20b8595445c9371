package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"vcissuer/internal/accreditation"
	"vcissuer/internal/catalog"
	"vcissuer/pkg/platform/sentinel"
)

// InMemoryStore keeps accreditation state in memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	grants    []accreditation.Grant
	terms     []accreditation.TermsOfUse
	whitelist map[whitelistKey]*accreditation.WhitelistEntry
	proxy     *accreditation.ProxyRegistration
}

type whitelistKey struct {
	kind catalog.AccreditationKind
	did  string
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{whitelist: make(map[whitelistKey]*accreditation.WhitelistEntry)}
}

func (s *InMemoryStore) CreateGrants(_ context.Context, attributeID string, grants []accreditation.Grant, terms []accreditation.TermsOfUse) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grants {
		if g.AttributeID == attributeID {
			return false, false, nil
		}
	}
	firstEver := len(s.grants) == 0
	for _, g := range grants {
		s.grants = append(s.grants, cloneGrant(g))
	}
	s.terms = append(s.terms, terms...)
	return true, firstEver, nil
}

func (s *InMemoryStore) ListGrants(_ context.Context) ([]accreditation.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]accreditation.Grant, len(s.grants))
	for i, g := range s.grants {
		out[i] = cloneGrant(g)
	}
	return out, nil
}

func (s *InMemoryStore) FindGrants(_ context.Context, ids []uuid.UUID) ([]accreditation.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []accreditation.Grant
	for _, g := range s.grants {
		if slices.Contains(ids, g.ID) {
			out = append(out, cloneGrant(g))
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindGrantByKind(_ context.Context, kind catalog.AccreditationKind) (*accreditation.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.grants {
		if g.Kind == kind {
			out := cloneGrant(g)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("grant of kind %s: %w", kind, sentinel.ErrNotFound)
}

// SaveWhitelistEntry merges grant ids into an existing (kind, did) entry.
func (s *InMemoryStore) SaveWhitelistEntry(_ context.Context, entry *accreditation.WhitelistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := whitelistKey{kind: entry.Kind, did: entry.DID}
	if existing, ok := s.whitelist[key]; ok {
		for _, id := range entry.GrantIDs {
			if !slices.Contains(existing.GrantIDs, id) {
				existing.GrantIDs = append(existing.GrantIDs, id)
			}
		}
		entry.ID = existing.ID
		entry.GrantIDs = slices.Clone(existing.GrantIDs)
		return nil
	}
	stored := *entry
	stored.GrantIDs = slices.Clone(entry.GrantIDs)
	s.whitelist[key] = &stored
	return nil
}

func (s *InMemoryStore) FindWhitelistEntry(_ context.Context, kind catalog.AccreditationKind, did string) (*accreditation.WhitelistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.whitelist[whitelistKey{kind: kind, did: did}]
	if !ok {
		return nil, fmt.Errorf("whitelist entry %s/%s: %w", kind, did, sentinel.ErrNotFound)
	}
	out := *entry
	out.GrantIDs = slices.Clone(entry.GrantIDs)
	return &out, nil
}

func (s *InMemoryStore) DeleteByAttribute(_ context.Context, attributeID string) (accreditation.Removal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removal accreditation.Removal
	var dropped []uuid.UUID
	s.grants = slices.DeleteFunc(s.grants, func(g accreditation.Grant) bool {
		if g.AttributeID != attributeID {
			return false
		}
		dropped = append(dropped, g.ID)
		return true
	})
	removal.Grants = len(dropped)

	before := len(s.terms)
	s.terms = slices.DeleteFunc(s.terms, func(t accreditation.TermsOfUse) bool {
		return t.AttributeID == attributeID
	})
	removal.Terms = before - len(s.terms)

	for key, entry := range s.whitelist {
		if slices.ContainsFunc(entry.GrantIDs, func(id uuid.UUID) bool { return slices.Contains(dropped, id) }) {
			delete(s.whitelist, key)
			removal.Whitelist++
		}
	}
	return removal, nil
}

func (s *InMemoryStore) FindProxyRegistration(_ context.Context) (*accreditation.ProxyRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.proxy == nil {
		return nil, fmt.Errorf("proxy registration: %w", sentinel.ErrNotFound)
	}
	out := *s.proxy
	return &out, nil
}

func (s *InMemoryStore) SaveProxyRegistration(_ context.Context, reg accreditation.ProxyRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proxy != nil {
		return fmt.Errorf("proxy registration: %w", sentinel.ErrConflict)
	}
	s.proxy = &reg
	return nil
}

// TermsOfUse returns every stored terms-of-use row.
func (s *InMemoryStore) TermsOfUse() []accreditation.TermsOfUse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.terms)
}

func cloneGrant(g accreditation.Grant) accreditation.Grant {
	g.AccreditedFor = slices.Clone(g.AccreditedFor)
	return g
}
