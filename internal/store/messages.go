package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser is a question asked in a room.
	RoleUser Role = "user"
	// RoleAssistant is a generated answer.
	RoleAssistant Role = "assistant"
)

// Source is a cited chunk stored with an assistant message.
type Source struct {
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
	ChunkText  string  `json:"chunk_text,omitempty"`
}

// Message is a single turn of a room's conversation.
type Message struct {
	ID         int64
	RoomID     int64
	Role       Role
	Content    string
	Sources    []Source
	TokensUsed int
	CreatedAt  time.Time
}

// AppendExchange persists a question and its answer as two messages in one
// transaction and returns the assistant message ID.
func (s *SQLiteStore) AppendExchange(ctx context.Context, roomID int64, question, answer string, sources []Source, tokensUsed int, at time.Time) (int64, error) {
	if sources == nil {
		sources = []Source{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return 0, fmt.Errorf("store: append exchange: encode sources: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: append exchange: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO messages (room_id, role, content, sources, tokens_used, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	ts := at.UnixMilli()
	if _, err := tx.ExecContext(ctx, q, roomID, string(RoleUser), question, "[]", 0, ts); err != nil {
		return 0, fmt.Errorf("store: append question: %w", err)
	}
	res, err := tx.ExecContext(ctx, q, roomID, string(RoleAssistant), answer, string(encoded), tokensUsed, ts)
	if err != nil {
		return 0, fmt.Errorf("store: append answer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: append answer id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: append exchange: commit: %w", err)
	}
	return id, nil
}

// History returns up to limit of the most recent messages of a room, oldest
// first. A non-positive limit returns all messages.
func (s *SQLiteStore) History(ctx context.Context, roomID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	const q = `
SELECT id, room_id, role, content, sources, tokens_used, created_at FROM (
    SELECT id, room_id, role, content, sources, tokens_used, created_at
    FROM   messages
    WHERE  room_id = ?
    ORDER  BY id DESC
    LIMIT  ?
) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var (
			m             Message
			role, sources string
			ts            int64
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &role, &m.Content, &sources, &m.TokensUsed, &ts); err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = fromMillis(ts)
		if err := json.Unmarshal([]byte(sources), &m.Sources); err != nil {
			return nil, fmt.Errorf("store: history decode sources of message %d: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: history rows: %w", err)
	}
	return msgs, nil
}
