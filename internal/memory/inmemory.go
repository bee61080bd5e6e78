package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

type conversation struct {
	turns        []Turn
	lastActivity time.Time
}

// InMemoryStore is a mutex-guarded in-process store for local/dev use.
// Expired conversations are removed by a janitor goroutine.
type InMemoryStore struct {
	mu            sync.RWMutex
	ttl           time.Duration
	conversations map[string]*conversation
	summaries     map[string]string
	preferences   map[string]map[string]any
}

func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &InMemoryStore{
		ttl:           ttl,
		conversations: make(map[string]*conversation),
		summaries:     make(map[string]string),
		preferences:   make(map[string]map[string]any),
	}
}

func (s *InMemoryStore) AppendTurn(_ context.Context, conversationID string, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		c = &conversation{}
		s.conversations[conversationID] = c
	}
	c.turns = append(c.turns, turn)
	c.lastActivity = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) Turns(_ context.Context, conversationID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conversations[conversationID]
	delete(s.conversations, conversationID)
	delete(s.summaries, conversationID)
	return ok, nil
}

func (s *InMemoryStore) ListConversations(_ context.Context, limit int) ([]ConversationInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	infos := make([]ConversationInfo, 0, len(s.conversations))
	for id, c := range s.conversations {
		infos = append(infos, ConversationInfo{
			ConversationID: id,
			MessageCount:   len(c.turns),
			LastUpdated:    c.lastActivity,
		})
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastUpdated.After(infos[j].LastUpdated)
	})
	if len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

func (s *InMemoryStore) Summary(_ context.Context, conversationID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[conversationID]
	return summary, ok, nil
}

func (s *InMemoryStore) StoreSummary(_ context.Context, conversationID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[conversationID] = summary
	return nil
}

func (s *InMemoryStore) StorePreferences(_ context.Context, key string, value map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make(map[string]any, len(value))
	for k, v := range value {
		stored[k] = v
	}
	s.preferences[key] = stored
	return nil
}

// Preferences returns a stored preference record. Used by tests and the
// escalation endpoint; redis/postgres expose the same read path.
func (s *InMemoryStore) Preferences(_ context.Context, key string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.preferences[key]
	return v, ok
}

func (s *InMemoryStore) Health(_ context.Context) Health {
	return Health{Status: "healthy", Timestamp: time.Now().UTC()}
}

func (s *InMemoryStore) Close() error { return nil }

// StartJanitor periodically expires conversations that have been idle past
// the retention window.
func (s *InMemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireIdle()
			}
		}
	}()
}

func (s *InMemoryStore) expireIdle() {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.conversations {
		if now.Sub(c.lastActivity) < s.ttl {
			continue
		}
		delete(s.conversations, id)
		delete(s.summaries, id)
	}
}
