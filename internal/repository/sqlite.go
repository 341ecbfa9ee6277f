package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kidlearn/tutor/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := store.seedSubjects(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed subjects: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS subjects (
			subject_id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			subject_id TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_message_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, started_at)`,
		// seq breaks ties between messages written within the same timestamp.
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			turn_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			incomplete INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

func (s *SQLiteStore) seedSubjects() error {
	subjects := []struct{ id, name string }{
		{"math", "Math"},
		{"reading", "Reading"},
		{"science", "Science"},
		{"history", "History"},
		{"coding", "Coding"},
	}
	for _, subj := range subjects {
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO subjects (subject_id, name) VALUES (?, ?)`,
			subj.id, subj.name); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, subject_id, created_at) VALUES (?, ?, ?, ?)`,
		session.SessionID, session.UserID, nullString(session.SubjectID), session.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. It returns nil, nil when the session does not exist.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var subjectID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, subject_id, created_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.UserID, &subjectID, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.SubjectID = subjectID.String
	return &session, nil
}

// ListSessionsForUser lists a user's sessions newest first, each with its
// subject name and earliest message as a preview.
func (s *SQLiteStore) ListSessionsForUser(ctx context.Context, userID string) ([]domain.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.created_at, sub.name,
			(SELECT m.content FROM messages m WHERE m.session_id = s.session_id
				ORDER BY m.created_at ASC, m.seq ASC LIMIT 1) AS first_message
		FROM sessions s
		LEFT JOIN subjects sub ON sub.subject_id = s.subject_id
		WHERE s.user_id = ?
		ORDER BY s.created_at DESC, s.rowid DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	summaries := []domain.SessionSummary{}
	for rows.Next() {
		var sum domain.SessionSummary
		var subjectName, firstMessage sql.NullString
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &subjectName, &firstMessage); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.SubjectName = subjectName.String
		sum.FirstMessage = firstMessage.String
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// BeginTurn records a new streaming turn together with its user message.
func (s *SQLiteStore) BeginTurn(ctx context.Context, turn *domain.Turn, userMessage *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (turn_id, session_id, user_message_id, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		turn.TurnID, turn.SessionID, turn.UserMessageID, turn.Status, turn.StartedAt.UTC()); err != nil {
		return fmt.Errorf("failed to create turn: %w", err)
	}
	if err := insertMessage(ctx, tx, userMessage); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

// FinishTurn moves a turn to its final status.
func (s *SQLiteStore) FinishTurn(ctx context.Context, turnID string, status domain.TurnStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE turns SET status = ?, error = ?, ended_at = ? WHERE turn_id = ?`,
		status, nullString(errMsg), time.Now().UTC(), turnID)
	if err != nil {
		return fmt.Errorf("failed to finish turn: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish turn: turn %s not found", turnID)
	}
	return nil
}

// FailInterruptedTurns marks every turn still STREAMING as FAILED. It is run
// at startup, before any turn can be live, to close turns left open by a
// process that died mid-stream.
func (s *SQLiteStore) FailInterruptedTurns(ctx context.Context, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE turns SET status = ?, error = ?, ended_at = ? WHERE status = ?`,
		domain.TurnStatusFailed, nullString(reason), time.Now().UTC(), domain.TurnStatusStreaming)
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted turns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count interrupted turns: %w", err)
	}
	return n, nil
}

// GetTurn retrieves a turn by ID. It returns nil, nil when the turn does not exist.
func (s *SQLiteStore) GetTurn(ctx context.Context, turnID string) (*domain.Turn, error) {
	var turn domain.Turn
	var errMsg sql.NullString
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT turn_id, session_id, user_message_id, status, error, started_at, ended_at FROM turns WHERE turn_id = ?`,
		turnID).Scan(&turn.TurnID, &turn.SessionID, &turn.UserMessageID, &turn.Status, &errMsg, &turn.StartedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get turn: %w", err)
	}
	turn.Error = errMsg.String
	if endedAt.Valid {
		turn.EndedAt = &endedAt.Time
	}
	return &turn, nil
}

// AppendMessage appends a message to its session.
func (s *SQLiteStore) AppendMessage(ctx context.Context, message *domain.Message) error {
	return insertMessage(ctx, s.db, message)
}

// ListRecentMessages returns the most recent limit messages of a session, oldest first.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	messages, err := s.queryMessages(ctx,
		`SELECT message_id, session_id, turn_id, role, content, incomplete, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at DESC, seq DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListMessages returns every message of a session, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return s.queryMessages(ctx,
		`SELECT message_id, session_id, turn_id, role, content, incomplete, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC, seq ASC`,
		sessionID)
}

// GetSubjectName resolves a subject label. Unknown subjects yield "".
func (s *SQLiteStore) GetSubjectName(ctx context.Context, subjectID string) (string, error) {
	if subjectID == "" {
		return "", nil
	}
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM subjects WHERE subject_id = ?`, subjectID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get subject: %w", err)
	}
	return name, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...interface{}) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var turnID sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &turnID, &msg.Role, &msg.Content, &msg.Incomplete, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.TurnID = turnID.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, message *domain.Message) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, turn_id, role, content, incomplete, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, nullString(message.TurnID), message.Role, message.Content, message.Incomplete, message.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
