// Package persistence provides the gateway's local storage adapters: the
// SQLite-backed conversation log and the in-memory repositories used when no
// commerce backend is configured (and by tests).
package persistence

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/domain/conversation"
)

const conversationSchema = `
CREATE TABLE IF NOT EXISTS conversation_messages (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_phone TEXT NOT NULL,
	role           TEXT NOT NULL,
	content        TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_conversation_phone
	ON conversation_messages (customer_phone, id);
`

// SQLiteConversationRepository persists per-customer dialogue logs in a
// local SQLite file.
type SQLiteConversationRepository struct {
	db *sql.DB
}

// NewSQLiteConversationRepository opens (and migrates) the store at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteConversationRepository(path string) (*SQLiteConversationRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}
	if _, err := db.Exec(conversationSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate conversation store: %w", err)
	}
	return &SQLiteConversationRepository{db: db}, nil
}

// Close releases the underlying database handle.
func (r *SQLiteConversationRepository) Close() error { return r.db.Close() }

// Append writes one dialogue turn through to the store.
func (r *SQLiteConversationRepository) Append(customerPhone string, role domain.MessageRole, content string) error {
	_, err := r.db.Exec(
		`INSERT INTO conversation_messages (customer_phone, role, content) VALUES (?, ?, ?)`,
		customerPhone, string(role), content,
	)
	if err != nil {
		return fmt.Errorf("append conversation turn: %w", err)
	}
	return nil
}

// FindByPhone hydrates the most recent turns for a customer, oldest first.
func (r *SQLiteConversationRepository) FindByPhone(customerPhone string, limit int) ([]conversation.Entry, error) {
	rows, err := r.db.Query(
		`SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at
			FROM conversation_messages
			WHERE customer_phone = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC`,
		customerPhone, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	defer rows.Close()

	var entries []conversation.Entry
	for rows.Next() {
		var e conversation.Entry
		var role string
		var created sql.NullTime
		if err := rows.Scan(&role, &e.Content, &created); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		e.Role = domain.MessageRole(role)
		if created.Valid {
			e.Timestamp = domain.TimestampFrom(created.Time)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteByPhone removes a customer's entire dialogue log.
func (r *SQLiteConversationRepository) DeleteByPhone(customerPhone string) error {
	_, err := r.db.Exec(`DELETE FROM conversation_messages WHERE customer_phone = ?`, customerPhone)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// Compile-time verification
var _ conversation.Repository = (*SQLiteConversationRepository)(nil)
