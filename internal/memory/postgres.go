package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversation state in PostgreSQL. Retention is
// enforced by PruneExpired, driven by a janitor in the process wiring.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewPostgresStore(ctx context.Context, databaseURL string, ttl time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &PostgresStore{pool: pool, ttl: ttl}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_conv_created
			ON conversation_turns (conversation_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS conversation_summaries (
			conversation_id TEXT PRIMARY KEY,
			summary TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS preference_records (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, conversationID string, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_turns (conversation_id, role, content, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		conversationID, string(turn.Role), turn.Content, turn.PIIRedacted, turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) Turns(ctx context.Context, conversationID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, pii_redacted, created_at
		 FROM conversation_turns WHERE conversation_id=$1 ORDER BY created_at, id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&role, &t.Content, &t.PIIRedacted, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Role = Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, limit int) ([]ConversationInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT conversation_id, COUNT(*), MAX(created_at)
		 FROM conversation_turns
		 GROUP BY conversation_id
		 ORDER BY MAX(created_at) DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var infos []ConversationInfo
	for rows.Next() {
		var info ConversationInfo
		if err := rows.Scan(&info.ConversationID, &info.MessageCount, &info.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return infos, nil
}

func (s *PostgresStore) Delete(ctx context.Context, conversationID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_turns WHERE conversation_id=$1`, conversationID)
	if err != nil {
		return false, fmt.Errorf("delete turns: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_summaries WHERE conversation_id=$1`, conversationID); err != nil {
		return false, fmt.Errorf("delete summary: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Summary(ctx context.Context, conversationID string) (string, bool, error) {
	var summary string
	err := s.pool.QueryRow(ctx,
		`SELECT summary FROM conversation_summaries WHERE conversation_id=$1`,
		conversationID,
	).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query summary: %w", err)
	}
	return summary, true, nil
}

func (s *PostgresStore) StoreSummary(ctx context.Context, conversationID, summary string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_summaries (conversation_id, summary, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (conversation_id) DO UPDATE SET summary=EXCLUDED.summary, updated_at=now()`,
		conversationID, summary,
	)
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) StorePreferences(ctx context.Context, key string, value map[string]any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO preference_records (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`,
		key, encoded,
	)
	if err != nil {
		return fmt.Errorf("store preferences: %w", err)
	}
	return nil
}

// PruneExpired removes conversations whose most recent turn is older than
// the retention window, along with their summaries.
func (s *PostgresStore) PruneExpired(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.ttl)
	_, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_turns WHERE conversation_id IN (
			SELECT conversation_id FROM conversation_turns
			GROUP BY conversation_id HAVING max(created_at) < $1
		)`, cutoff)
	if err != nil {
		return fmt.Errorf("prune turns: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_summaries WHERE updated_at < $1`, cutoff); err != nil {
		return fmt.Errorf("prune summaries: %w", err)
	}
	return nil
}

func (s *PostgresStore) Health(ctx context.Context) Health {
	if err := s.pool.Ping(ctx); err != nil {
		return Health{Status: "unhealthy", Error: err.Error(), Timestamp: time.Now().UTC()}
	}
	return Health{Status: "healthy", Timestamp: time.Now().UTC()}
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
