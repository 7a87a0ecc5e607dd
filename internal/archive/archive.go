// Package archive keeps finished transcripts and the agent's login token in
// a local SQLite database. The live transcript store stays in memory; the
// archive is only written when the user asks for it.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

var ErrNotFound = errors.New("not found in archive")

// Kinds of archived transcripts.
const (
	KindChat   = "chat"
	KindAgent  = "agent"
	KindReplay = "replay"
)

// Transcript is an archived conversation.
type Transcript struct {
	ID        string
	BotID     string
	SessionID string
	HandoffID string
	Kind      string
	SavedAt   time.Time
	Messages  []transcript.Message
}

// Summary is a listing row.
type Summary struct {
	ID           string
	BotID        string
	Kind         string
	SavedAt      time.Time
	MessageCount int
}

// Archive wraps the SQLite database.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the archive at path. Use ":memory:" for a
// throwaway archive.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	createTranscriptsTable := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		bot_id TEXT,
		session_id TEXT,
		handoff_id TEXT,
		kind TEXT,
		saved_at DATETIME
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transcript_id TEXT,
		message_id TEXT,
		sender TEXT,
		content TEXT,
		timestamp DATETIME,
		is_system INTEGER,
		FOREIGN KEY(transcript_id) REFERENCES transcripts(id)
	);`

	createCredentialsTable := `
	CREATE TABLE IF NOT EXISTS credentials (
		email TEXT PRIMARY KEY,
		token TEXT,
		saved_at DATETIME
	);`

	for _, stmt := range []string{createTranscriptsTable, createMessagesTable, createCredentialsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return &Archive{db: db, logger: logger}, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveTranscript stores t, replacing any earlier version with the same id.
func (a *Archive) SaveTranscript(t Transcript) error {
	if t.ID == "" {
		return errors.New("transcript id must not be empty")
	}
	if t.SavedAt.IsZero() {
		t.SavedAt = time.Now()
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO transcripts (id, bot_id, session_id, handoff_id, kind, saved_at) VALUES (?, ?, ?, ?, ?, ?)",
		t.ID, t.BotID, t.SessionID, t.HandoffID, t.Kind, t.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE transcript_id = ?", t.ID); err != nil {
		return fmt.Errorf("failed to clear previous messages: %w", err)
	}

	for _, msg := range t.Messages {
		_, err = tx.Exec(
			"INSERT INTO messages (transcript_id, message_id, sender, content, timestamp, is_system) VALUES (?, ?, ?, ?, ?, ?)",
			t.ID, msg.ID, string(msg.Sender), msg.Content, msg.Timestamp, msg.IsSystemMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	a.logger.Info("transcript archived", "transcript_id", t.ID, "message_count", len(t.Messages))
	return nil
}

// LoadTranscript reads an archived transcript.
func (a *Archive) LoadTranscript(id string) (*Transcript, error) {
	t := Transcript{ID: id}
	err := a.db.QueryRow(
		"SELECT bot_id, session_id, handoff_id, kind, saved_at FROM transcripts WHERE id = ?", id,
	).Scan(&t.BotID, &t.SessionID, &t.HandoffID, &t.Kind, &t.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transcript %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	rows, err := a.db.Query(
		"SELECT message_id, sender, content, timestamp, is_system FROM messages WHERE transcript_id = ? ORDER BY id",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg transcript.Message
		var sender string
		if err := rows.Scan(&msg.ID, &sender, &msg.Content, &msg.Timestamp, &msg.IsSystemMessage); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Sender = transcript.Sender(sender)
		t.Messages = append(t.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return &t, nil
}

// ListTranscripts returns archived transcripts, newest first.
func (a *Archive) ListTranscripts() ([]Summary, error) {
	rows, err := a.db.Query(`
		SELECT t.id, t.bot_id, t.kind, t.saved_at, COUNT(m.id)
		FROM transcripts t LEFT JOIN messages m ON m.transcript_id = t.id
		GROUP BY t.id
		ORDER BY t.saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.BotID, &s.Kind, &s.SavedAt, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveToken remembers the agent token for email.
func (a *Archive) SaveToken(email, token string) error {
	_, err := a.db.Exec(
		"INSERT OR REPLACE INTO credentials (email, token, saved_at) VALUES (?, ?, ?)",
		email, token, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken returns the saved token for email.
func (a *Archive) LoadToken(email string) (string, error) {
	var token string
	err := a.db.QueryRow("SELECT token FROM credentials WHERE email = ?", email).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: token for %s", ErrNotFound, email)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

// DeleteToken forgets the token for email.
func (a *Archive) DeleteToken(email string) error {
	if _, err := a.db.Exec("DELETE FROM credentials WHERE email = ?", email); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
