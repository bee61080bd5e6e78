package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists conversation state in Redis. Keys carry the retention
// TTL natively, so idle conversations expire without a janitor.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStore{client: redis.NewClient(opts), ttl: ttl}, nil
}

func conversationKey(id string) string { return "conversation:" + id }
func summaryKey(id string) string      { return "summary:" + id }
func preferencesKey(id string) string  { return "preferences:" + id }

type conversationRecord struct {
	Turns        []Turn    `json:"messages"`
	LastUpdated  time.Time `json:"last_updated"`
	MessageCount int       `json:"message_count"`
}

func (s *RedisStore) AppendTurn(ctx context.Context, conversationID string, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	var rec conversationRecord
	data, err := s.client.Get(ctx, conversationKey(conversationID)).Bytes()
	switch {
	case err == redis.Nil:
		// First turn of a new conversation.
	case err != nil:
		return fmt.Errorf("get conversation: %w", err)
	default:
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode conversation: %w", err)
		}
	}

	rec.Turns = append(rec.Turns, turn)
	rec.LastUpdated = time.Now().UTC()
	rec.MessageCount = len(rec.Turns)

	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	if err := s.client.Set(ctx, conversationKey(conversationID), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("store conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) Turns(ctx context.Context, conversationID string) ([]Turn, error) {
	data, err := s.client.Get(ctx, conversationKey(conversationID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	var rec conversationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return rec.Turns, nil
}

func (s *RedisStore) Delete(ctx context.Context, conversationID string) (bool, error) {
	removed, err := s.client.Del(ctx, conversationKey(conversationID), summaryKey(conversationID)).Result()
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return removed > 0, nil
}

func (s *RedisStore) ListConversations(ctx context.Context, limit int) ([]ConversationInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	keys, err := s.client.Keys(ctx, "conversation:*").Result()
	if err != nil {
		return nil, fmt.Errorf("list conversation keys: %w", err)
	}
	if len(keys) > limit {
		keys = keys[:limit]
	}

	infos := make([]ConversationInfo, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// Key expired between KEYS and GET.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get conversation: %w", err)
		}
		var rec conversationRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode conversation: %w", err)
		}
		infos = append(infos, ConversationInfo{
			ConversationID: strings.TrimPrefix(key, "conversation:"),
			MessageCount:   rec.MessageCount,
			LastUpdated:    rec.LastUpdated,
		})
	}
	return infos, nil
}

func (s *RedisStore) Summary(ctx context.Context, conversationID string) (string, bool, error) {
	summary, err := s.client.Get(ctx, summaryKey(conversationID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get summary: %w", err)
	}
	return summary, true, nil
}

func (s *RedisStore) StoreSummary(ctx context.Context, conversationID, summary string) error {
	if err := s.client.Set(ctx, summaryKey(conversationID), summary, s.ttl).Err(); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	return nil
}

func (s *RedisStore) StorePreferences(ctx context.Context, key string, value map[string]any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.client.Set(ctx, preferencesKey(key), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("store preferences: %w", err)
	}
	return nil
}

func (s *RedisStore) Health(ctx context.Context) Health {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return Health{Status: "unhealthy", Error: err.Error(), Timestamp: time.Now().UTC()}
	}
	return Health{Status: "healthy", Timestamp: time.Now().UTC()}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
