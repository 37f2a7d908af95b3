// Package storage persists conversations, their user turns and the result
// maps produced by council queries in a SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/llmcouncil/core"
)

// DefaultTitle is assigned to newly created conversations.
const DefaultTitle = "New Conversation"

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store wraps the SQLite database connection
type Store struct {
	conn *sql.DB
}

// Message is one entry of a conversation. User messages carry Content;
// assistant messages carry the Results of one council query and the text
// that represents them in follow-up history.
type Message struct {
	Role      core.Role      `json:"role"`
	Content   string         `json:"content"`
	Results   core.ResultMap `json:"results,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Conversation is a stored conversation with its messages in order.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// Metadata summarizes a conversation for listings.
type Metadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// Open opens (creating if needed) the database at path and initializes the
// schema. Use ":memory:" for a transient store.
func Open(path string) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// initSchema creates the required tables if they don't exist
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversation (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		title TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS message (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		results TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_message_conversation ON message(conversation_id, id);
	CREATE INDEX IF NOT EXISTS idx_conversation_created ON conversation(created_at);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// Create inserts a new, empty conversation. An empty id is replaced by a
// generated one.
func (s *Store) Create(ctx context.Context, id string) (*Conversation, error) {
	if id == "" {
		id = core.NewID()
	}
	conv := &Conversation{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Title:     DefaultTitle,
		Messages:  []Message{},
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO conversation (id, created_at, title) VALUES (?, ?, ?)`,
		conv.ID, conv.CreatedAt, conv.Title,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// Get loads a conversation with all of its messages.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, created_at, title FROM conversation WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.CreatedAt, &conv.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT role, content, results, created_at FROM message WHERE conversation_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	conv.Messages = []Message{}
	for rows.Next() {
		var (
			msg     Message
			role    string
			results sql.NullString
		)
		if err := rows.Scan(&role, &msg.Content, &results, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = core.Role(role)
		if results.Valid && results.String != "" {
			if err := jsoniter.UnmarshalFromString(results.String, &msg.Results); err != nil {
				return nil, fmt.Errorf("failed to decode results: %w", err)
			}
		}
		conv.Messages = append(conv.Messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &conv, nil
}

// List returns the metadata of every conversation, newest first.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	query := `
		SELECT c.id, c.created_at, c.title, COUNT(m.id)
		FROM conversation c
		LEFT JOIN message m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.created_at DESC, c.rowid DESC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	out := []Metadata{}
	for rows.Next() {
		var md Metadata
		if err := rows.Scan(&md.ID, &md.CreatedAt, &md.Title, &md.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, md)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}

// AddUserMessage appends a user message to the conversation.
func (s *Store) AddUserMessage(ctx context.Context, id, content string) error {
	return s.addMessage(ctx, id, core.RoleUser, content, nil)
}

// AddAssistantResults appends the outcome of one council query. The text of
// the first successful model (in model id order) becomes the message content
// used for follow-up history.
func (s *Store) AddAssistantResults(ctx context.Context, id string, results core.ResultMap) error {
	var content string
	if ok := results.Succeeded(); len(ok) > 0 {
		content = results[ok[0]].Text()
	}
	return s.addMessage(ctx, id, core.RoleAssistant, content, results)
}

func (s *Store) addMessage(ctx context.Context, id string, role core.Role, content string, results core.ResultMap) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}

	var encoded sql.NullString
	if results != nil {
		b, err := jsoniter.MarshalToString(results)
		if err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		encoded = sql.NullString{String: b, Valid: true}
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO message (conversation_id, role, content, results, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(role), content, encoded, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// UpdateTitle replaces the title of a conversation.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE conversation SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, id string) error {
	var one int
	err := s.conn.QueryRowContext(ctx, `SELECT 1 FROM conversation WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to query conversation: %w", err)
	}
	return nil
}

// Turns rebuilds the conversation history for the next query. Assistant
// messages without successful content are skipped.
func (c *Conversation) Turns() []core.Turn {
	turns := make([]core.Turn, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role == core.RoleAssistant && m.Content == "" {
			continue
		}
		turns = append(turns, core.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}
