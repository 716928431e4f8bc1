package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Room is a user-visible collection of documents sharing one index namespace.
type Room struct {
	ID          int64
	Name        string
	Description string
	// Namespace partitions the vector index. Assigned at creation, never changes.
	Namespace string
	CreatedAt time.Time
}

// NewNamespace returns a fresh "room_<8 hex>" namespace.
func NewNamespace() string {
	return "room_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateRoom inserts a room with a freshly generated namespace.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name, description string) (*Room, error) {
	r := &Room{
		Name:        name,
		Description: description,
		Namespace:   NewNamespace(),
		CreatedAt:   fromMillis(s.timestamp()),
	}
	const q = `INSERT INTO rooms (name, description, namespace, created_at) VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, r.Name, r.Description, r.Namespace, r.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: create room: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("store: create room id: %w", err)
	}
	return r, nil
}

const roomColumns = `id, name, description, namespace, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(sc scanner) (*Room, error) {
	var (
		r  Room
		ts int64
	)
	if err := sc.Scan(&r.ID, &r.Name, &r.Description, &r.Namespace, &ts); err != nil {
		return nil, err
	}
	r.CreatedAt = fromMillis(ts)
	return &r, nil
}

// GetRoom returns the room with the given id or ErrNotFound.
func (s *SQLiteStore) GetRoom(ctx context.Context, id int64) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	r, err := scanRoom(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("room %d", id))
	}
	return r, nil
}

// GetRoomByNamespace returns the room owning namespace or ErrNotFound.
func (s *SQLiteStore) GetRoomByNamespace(ctx context.Context, namespace string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE namespace = ?`, namespace)
	r, err := scanRoom(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("room namespace %q", namespace))
	}
	return r, nil
}

// ListRooms returns every room, newest first.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]*Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []*Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list rooms scan: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rooms rows: %w", err)
	}
	return rooms, nil
}

// DeleteRoom removes a room together with its document and message rows.
// Stored files and vectors are the caller's responsibility.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete room %d: begin: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM messages WHERE room_id = ?`,
		`DELETE FROM documents WHERE room_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("store: delete room %d: %w", id, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete room %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: room %d: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete room %d: commit: %w", id, err)
	}
	return nil
}
