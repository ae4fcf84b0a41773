package thread

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bytesec/byte/internal/log"
)

var (
	// ErrNotFound indicates the thread does not exist or is not visible to
	// the user.
	ErrNotFound = errors.New("thread not found")

	// ErrNotOwner indicates the thread belongs to a different user.
	ErrNotOwner = errors.New("not authorized for this thread")
)

// NewThreadID is the sentinel clients send to start a fresh conversation.
const NewThreadID = "new"

const (
	insertThreadSQL = `
		INSERT INTO chat_threads (id, user_id, title)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	selectThreadSQL = `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_threads
		WHERE id = $1`

	touchThreadSQL = `
		UPDATE chat_threads
		SET updated_at = now()
		WHERE id = $1`

	listThreadsSQL = `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_threads
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	insertLogSQL = `
		INSERT INTO conversation_logs (user_id, thread_id, role, content, mode, tool_calls, thinking)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	threadLogsSQL = `
		SELECT id, user_id, thread_id, role, content, mode, tool_calls, COALESCE(thinking, ''), created_at
		FROM conversation_logs
		WHERE thread_id = $1
		ORDER BY created_at ASC, id ASC`

	recentLogsSQL = `
		SELECT id, user_id, thread_id, role, content, mode, tool_calls, COALESCE(thinking, ''), created_at
		FROM conversation_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	insertToolRecordSQL = `
		INSERT INTO tool_history (user_id, tool_name, input_data, output_data)
		VALUES ($1, $2, $3, $4)`

	toolHistorySQL = `
		SELECT id, user_id, tool_name, input_data, output_data, created_at
		FROM tool_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
)

// Store persists threads, conversation logs, and tool history in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a thread store.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// Resolve maps a client-supplied thread ID to a real thread. "new" or an
// empty ID creates a thread titled after the first message; an unknown ID
// silently creates a replacement; a thread owned by someone else is
// rejected; an owned thread gets its updated_at bumped.
func (s *Store) Resolve(ctx context.Context, userID int64, threadID, firstMessage string) (*Thread, error) {
	if threadID == NewThreadID || threadID == "" {
		return s.create(ctx, userID, titleFromMessage(firstMessage))
	}

	existing, err := s.get(ctx, threadID)
	if errors.Is(err, ErrNotFound) {
		return s.create(ctx, userID, "New Chat")
	}
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID {
		return nil, ErrNotOwner
	}

	if _, err := s.pool.Exec(ctx, touchThreadSQL, threadID); err != nil {
		return nil, fmt.Errorf("touch thread: %w", err)
	}
	return existing, nil
}

func (s *Store) create(ctx context.Context, userID int64, title string) (*Thread, error) {
	t := &Thread{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  title,
	}
	err := s.pool.QueryRow(ctx, insertThreadSQL, t.ID, userID, title).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}

	s.logger.Info("thread created", "thread_id", t.ID, "user_id", userID)
	return t, nil
}

// Get returns a thread if it exists and belongs to the user. Threads of
// other users are indistinguishable from missing ones.
func (s *Store) Get(ctx context.Context, userID int64, threadID string) (*Thread, error) {
	t, err := s.get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *Store) get(ctx context.Context, threadID string) (*Thread, error) {
	var t Thread
	err := s.pool.QueryRow(ctx, selectThreadSQL, threadID).
		Scan(&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select thread: %w", err)
	}
	return &t, nil
}

// List returns the user's threads, most recently active first.
func (s *Store) List(ctx context.Context, userID int64) ([]Thread, error) {
	rows, err := s.pool.Query(ctx, listThreadsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// AppendExchange logs one completed request/response pair atomically.
func (s *Store) AppendExchange(
	ctx context.Context,
	userID int64,
	threadID, mode, userMessage, answer, thinking string,
	toolCalls []string,
) error {
	if toolCalls == nil {
		toolCalls = []string{}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin exchange log: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, insertLogSQL,
		userID, threadID, "user", userMessage, mode, []string{}, nil)
	if err != nil {
		return fmt.Errorf("log user turn: %w", err)
	}

	var thinkingVal any
	if thinking != "" {
		thinkingVal = thinking
	}
	_, err = tx.Exec(ctx, insertLogSQL,
		userID, threadID, "assistant", answer, mode, toolCalls, thinkingVal)
	if err != nil {
		return fmt.Errorf("log assistant turn: %w", err)
	}

	return tx.Commit(ctx)
}

// Logs returns a thread's conversation log in chronological order.
func (s *Store) Logs(ctx context.Context, userID int64, threadID string) ([]LogEntry, error) {
	if _, err := s.Get(ctx, userID, threadID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, threadLogsSQL, threadID)
	if err != nil {
		return nil, fmt.Errorf("select thread logs: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

// RecentLogs returns the user's latest messages across all threads, in
// chronological order.
func (s *Store) RecentLogs(ctx context.Context, userID int64, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, recentLogsSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(logs)
	return logs, nil
}

func scanLogs(rows pgx.Rows) ([]LogEntry, error) {
	var logs []LogEntry
	for rows.Next() {
		var e LogEntry
		err := rows.Scan(&e.ID, &e.UserID, &e.ThreadID, &e.Role, &e.Content,
			&e.Mode, &e.ToolCalls, &e.Thinking, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// RecordToolUse appends one entry to the user's tool audit trail.
func (s *Store) RecordToolUse(ctx context.Context, userID int64, toolName, input, output string) error {
	_, err := s.pool.Exec(ctx, insertToolRecordSQL, userID, toolName, input, output)
	if err != nil {
		return fmt.Errorf("record tool use: %w", err)
	}
	return nil
}

// ToolHistory returns the user's most recent tool invocations, newest first.
func (s *Store) ToolHistory(ctx context.Context, userID int64, limit int) ([]ToolRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, toolHistorySQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select tool history: %w", err)
	}
	defer rows.Close()

	var records []ToolRecord
	for rows.Next() {
		var r ToolRecord
		err := rows.Scan(&r.ID, &r.UserID, &r.ToolName, &r.Input, &r.Output, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan tool record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
