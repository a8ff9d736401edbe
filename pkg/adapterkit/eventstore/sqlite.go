package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// SQLiteStore persists event messages to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db   *sql.DB
	opts options

	mu     sync.RWMutex
	last   time.Time
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates an event store at path.
// The path should be a file path (e.g., "./events.db") or ":memory:" for testing.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS event_messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			written INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			id TEXT NOT NULL,
			category TEXT NOT NULL,
			priority INTEGER NOT NULL,
			message TEXT NOT NULL,
			properties BLOB
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_event_messages_ts
		ON event_messages(ts, seq)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	// cursors of a reopened store continue after the last stored one
	var last sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(written) FROM event_messages`).Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("read last write time: %w", err)
	}
	s := &SQLiteStore{db: db, opts: buildOptions(opts)}
	if last.Valid {
		s.last = time.Unix(0, last.Int64).UTC()
	}
	return s, nil
}

// WriteEventMessages implements features.WriteEventMessages.
// The batch is written in one transaction.
func (s *SQLiteStore) WriteEventMessages(ctx context.Context, items []types.WriteEventMessageItem) (*stream.Channel[types.WriteEventMessageResult], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, akerrors.Runtime("write_events", akerrors.ErrClosed, "event store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	results := make([]types.WriteEventMessageResult, 0, len(items))
	stored := make([]types.EventMessage, 0, len(items))
	last := s.last
	for _, item := range items {
		msg := s.opts.normalize(item.Message)
		props, err := json.Marshal(msg.Properties)
		if err != nil {
			results = append(results, types.WriteEventMessageResult{
				CorrelationID: item.CorrelationID,
				Status:        types.WriteStatusFail,
				Notes:         fmt.Sprintf("encode properties: %v", err),
			})
			continue
		}

		written := s.opts.writeTime(last)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO event_messages (written, ts, id, category, priority, message, properties)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, written.UnixNano(), msg.Timestamp.UnixNano(), msg.ID, msg.Category, int(msg.Priority), msg.Message, props)
		if err != nil {
			return nil, fmt.Errorf("insert event message: %w", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}

		last = written
		cur := CursorPosition{Time: written, Sequence: uint64(seq)}
		stored = append(stored, msg)
		results = append(results, types.WriteEventMessageResult{
			CorrelationID:  item.CorrelationID,
			Status:         types.WriteStatusSuccess,
			CursorPosition: cur.Encode(),
		})
	}

	if err := s.evict(ctx, tx); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit write: %w", err)
	}
	s.last = last

	for _, msg := range stored {
		s.opts.forward(msg)
	}
	return stream.FromSlice(results), nil
}

func (s *SQLiteStore) evict(ctx context.Context, tx *sql.Tx) error {
	if s.opts.capacity <= 0 {
		return nil
	}
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_messages`).Scan(&count); err != nil {
		return fmt.Errorf("count event messages: %w", err)
	}
	over := count - s.opts.capacity
	if over <= 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM event_messages WHERE seq IN (
			SELECT seq FROM event_messages ORDER BY seq LIMIT ?
		)
	`, over); err != nil {
		return fmt.Errorf("evict event messages: %w", err)
	}
	return nil
}

// ReadEventMessagesForTimeRange implements features.ReadEventMessagesForTimeRange.
// Both bounds are inclusive. Messages come in timestamp order, with equal
// timestamps in write order.
func (s *SQLiteStore) ReadEventMessagesForTimeRange(ctx context.Context, req types.ReadEventMessagesForTimeRangeRequest) (*stream.Channel[types.EventMessage], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	order := "ASC"
	if req.Direction == types.Backwards {
		order = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT seq, written, ts, id, category, priority, message, properties
		FROM event_messages
		WHERE ts >= ? AND ts <= ?
		ORDER BY ts %s, seq %s
		LIMIT ? OFFSET ?
	`, order, order)

	entries, err := s.query(ctx, "read_events", query,
		req.Start.UnixNano(), req.End.UnixNano(), req.PageSize, (req.Page-1)*req.PageSize)
	if err != nil {
		return nil, err
	}

	msgs := make([]types.EventMessage, len(entries))
	for i, e := range entries {
		msgs[i] = e.msg
	}
	return emit(ctx, msgs), nil
}

// ReadEventMessagesUsingCursor implements features.ReadEventMessagesUsingCursor.
// The message at the cursor itself is not returned.
func (s *SQLiteStore) ReadEventMessagesUsingCursor(ctx context.Context, req types.ReadEventMessagesUsingCursorRequest) (*stream.Channel[types.EventMessageWithCursor], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		entries []entry
		err     error
	)
	switch {
	case req.CursorPosition == "" && req.Direction == types.Backwards:
		entries, err = s.query(ctx, "read_events_cursor", `
			SELECT seq, written, ts, id, category, priority, message, properties
			FROM event_messages ORDER BY seq DESC LIMIT ?
		`, req.PageSize)
	case req.CursorPosition == "":
		entries, err = s.query(ctx, "read_events_cursor", `
			SELECT seq, written, ts, id, category, priority, message, properties
			FROM event_messages ORDER BY seq LIMIT ?
		`, req.PageSize)
	default:
		cur, perr := ParseCursor(req.CursorPosition)
		if perr != nil {
			return nil, perr
		}
		// seq and written grow together, so seq alone orders cursors
		seq := int64(cur.Sequence)
		if req.Direction == types.Backwards {
			entries, err = s.query(ctx, "read_events_cursor", `
				SELECT seq, written, ts, id, category, priority, message, properties
				FROM event_messages
				WHERE seq < ?
				ORDER BY seq DESC LIMIT ?
			`, seq, req.PageSize)
		} else {
			entries, err = s.query(ctx, "read_events_cursor", `
				SELECT seq, written, ts, id, category, priority, message, properties
				FROM event_messages
				WHERE seq > ?
				ORDER BY seq LIMIT ?
			`, seq, req.PageSize)
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]types.EventMessageWithCursor, len(entries))
	for i, e := range entries {
		out[i] = withCursor(e)
	}
	return emit(ctx, out), nil
}

func (s *SQLiteStore) query(ctx context.Context, op, query string, args ...any) ([]entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, akerrors.Runtime(op, akerrors.ErrClosed, "event store is closed")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query event messages: %w", err)
	}
	defer rows.Close()

	var entries []entry
	for rows.Next() {
		var (
			seq      int64
			written  int64
			ts       int64
			priority int
			props    []byte
			msg      types.EventMessage
		)
		if err := rows.Scan(&seq, &written, &ts, &msg.ID, &msg.Category, &priority, &msg.Message, &props); err != nil {
			return nil, fmt.Errorf("scan event message: %w", err)
		}
		msg.Timestamp = time.Unix(0, ts).UTC()
		msg.Priority = types.EventPriority(priority)
		if len(props) > 0 {
			if err := json.Unmarshal(props, &msg.Properties); err != nil {
				return nil, fmt.Errorf("decode properties of %s: %w", msg.ID, err)
			}
		}
		entries = append(entries, entry{
			cursor: CursorPosition{Time: time.Unix(0, written).UTC(), Sequence: uint64(seq)},
			msg:    msg,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event messages: %w", err)
	}
	return entries, nil
}

// Len implements Store.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, akerrors.Runtime("event_store_len", akerrors.ErrClosed, "event store is closed")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count event messages: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
