package oauthinfra

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/iam/oauth"
	"github.com/Abraxas-365/tenantry/pkg/logx"
)

type memoryEntry struct {
	record   oauth.PendingAuthorization
	deadline time.Time
}

// MemoryStateStore is a single-process store for development. Entries are
// evicted lazily on read and actively by the sweeper.
type MemoryStateStore struct {
	mu        sync.Mutex
	flows     map[string]memoryEntry
	codes     map[string]string
	retention time.Duration
	now       func() time.Time
}

func NewMemoryStateStore(retention time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		flows:     make(map[string]memoryEntry),
		codes:     make(map[string]string),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryStateStore) Save(_ context.Context, p *oauth.PendingAuthorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.flows[p.FlowID]; ok && prev.record.AuthCode != "" && prev.record.AuthCode != p.AuthCode {
		delete(s.codes, prev.record.AuthCode)
	}
	s.flows[p.FlowID] = memoryEntry{record: clone(p), deadline: p.ExpiresAt.Add(s.retention)}
	if p.AuthCode != "" {
		s.codes[p.AuthCode] = p.FlowID
	}
	return nil
}

func (s *MemoryStateStore) Get(_ context.Context, flowID string) (*oauth.PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(flowID)
}

func (s *MemoryStateStore) FindByCode(_ context.Context, code string) (*oauth.PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flowID, ok := s.codes[code]
	if !ok {
		return nil, oauth.ErrFlowNotFound("")
	}
	return s.getLocked(flowID)
}

func (s *MemoryStateStore) Delete(_ context.Context, flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(flowID)
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, flowID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(flowID), nil
}

// StartSweeper evicts entries past their retention deadline every interval
// until ctx is done.
func (s *MemoryStateStore) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logx.Debugf("Evicted %d pending authorizations", n)
			}
		}
	}
}

// Sweep evicts every entry past its deadline and returns how many it removed.
func (s *MemoryStateStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, e := range s.flows {
		if now.After(e.deadline) {
			s.removeLocked(id)
			evicted++
		}
	}
	return evicted
}

func (s *MemoryStateStore) getLocked(flowID string) (*oauth.PendingAuthorization, error) {
	e, ok := s.flows[flowID]
	if !ok {
		return nil, oauth.ErrFlowNotFound(flowID)
	}
	if s.now().After(e.deadline) {
		s.removeLocked(flowID)
		return nil, oauth.ErrFlowNotFound(flowID)
	}
	p := clone(&e.record)
	return &p, nil
}

func (s *MemoryStateStore) removeLocked(flowID string) bool {
	e, ok := s.flows[flowID]
	if !ok {
		return false
	}
	delete(s.flows, flowID)
	if e.record.AuthCode != "" {
		delete(s.codes, e.record.AuthCode)
	}
	return true
}

func clone(p *oauth.PendingAuthorization) oauth.PendingAuthorization {
	c := *p
	c.Scope = append([]string(nil), p.Scope...)
	if p.LoginUserClaims != nil {
		c.LoginUserClaims = make(map[string]interface{}, len(p.LoginUserClaims))
		for k, v := range p.LoginUserClaims {
			c.LoginUserClaims[k] = v
		}
	}
	if p.AuthCodeExpiresAt != nil {
		t := *p.AuthCodeExpiresAt
		c.AuthCodeExpiresAt = &t
	}
	return c
}
