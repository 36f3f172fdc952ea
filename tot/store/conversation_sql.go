package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/branchchat/tot/model"
)

const (
	conversationColumns = "id, name, message_id, created_unix_ms"
	messageColumns      = "id, conversation_id, role, content, reasoning_summary, num_of_children, referred_message_id, referred_content, created_unix_ms"
)

// sqlConversations implements ConversationStore on database/sql. Its
// statements run unchanged on SQLite and MySQL; the stores differ only in
// their DDL.
type sqlConversations struct {
	db   *sql.DB
	open func() error
}

// CreateConversation implements ConversationStore.
func (s *sqlConversations) CreateConversation(ctx context.Context, name string, branchFrom *int64) (Conversation, error) {
	if err := s.open(); err != nil {
		return Conversation{}, err
	}
	if err := validateConversationName(name); err != nil {
		return Conversation{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if branchFrom != nil {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, *branchFrom).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, fmt.Errorf("branch message %d: %w", *branchFrom, ErrNotFound)
		}
		if err != nil {
			return Conversation{}, fmt.Errorf("failed to load branch message: %w", err)
		}
	}

	created := now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (name, message_id, created_unix_ms) VALUES (?, ?, ?)`,
		name, nullID(branchFrom), created.UnixMilli())
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to read conversation ID: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Conversation{}, fmt.Errorf("failed to commit conversation: %w", err)
	}
	return Conversation{ID: id, Name: name, MessageID: copyID(branchFrom), CreatedAt: created}, nil
}

// GetConversation implements ConversationStore.
func (s *sqlConversations) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	if err := s.open(); err != nil {
		return Conversation{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}

// ListConversations implements ConversationStore.
func (s *sqlConversations) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations ORDER BY created_unix_ms DESC, id DESC LIMIT ?`,
		normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return collectConversations(rows)
}

// ListBranches implements ConversationStore.
func (s *sqlConversations) ListBranches(ctx context.Context, conversationID int64) ([]Conversation, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.message_id, c.created_unix_ms
		FROM conversations c
		JOIN messages m ON c.message_id = m.id
		WHERE m.conversation_id = ?
		ORDER BY c.created_unix_ms, c.id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return collectConversations(rows)
}

// AddMessage implements ConversationStore.
func (s *sqlConversations) AddMessage(ctx context.Context, msg Message) (Message, error) {
	if err := s.open(); err != nil {
		return Message{}, err
	}
	if err := validateMessage(msg); err != nil {
		return Message{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var parent sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT message_id FROM conversations WHERE id = ?`, msg.ConversationID).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, fmt.Errorf("conversation %d: %w", msg.ConversationID, ErrNotFound)
	}
	if err != nil {
		return Message{}, fmt.Errorf("failed to load conversation: %w", err)
	}

	msg.CreatedAt = now()
	msg.NumOfChildren = 0
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, reasoning_summary, num_of_children, referred_message_id, referred_content, created_unix_ms)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)
	`, msg.ConversationID, msg.Role, msg.Content, msg.ReasoningSummary, nullID(msg.ReferredMessageID), msg.ReferredContent, msg.CreatedAt.UnixMilli())
	if err != nil {
		return Message{}, fmt.Errorf("failed to add message: %w", err)
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return Message{}, fmt.Errorf("failed to read message ID: %w", err)
	}

	if parent.Valid && msg.Role == model.RoleAssistant {
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET num_of_children = num_of_children + 1 WHERE id = ?`, parent.Int64); err != nil {
			return Message{}, fmt.Errorf("failed to count branch reply: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("failed to commit message: %w", err)
	}
	msg.ReferredMessageID = copyID(msg.ReferredMessageID)
	return msg, nil
}

// GetMessage implements ConversationStore.
func (s *sqlConversations) GetMessage(ctx context.Context, id int64) (Message, error) {
	if err := s.open(); err != nil {
		return Message{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Message{}, fmt.Errorf("failed to load message: %w", err)
	}
	return msg, nil
}

// UpdateMessage implements ConversationStore.
func (s *sqlConversations) UpdateMessage(ctx context.Context, id int64, content, reasoningSummary string) error {
	if err := s.open(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, reasoning_summary = ? WHERE id = ?`,
		content, reasoningSummary, id)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	// MySQL reports zero affected rows when the values are unchanged, so a
	// miss is confirmed with a lookup.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := s.GetMessage(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ListMessages implements ConversationStore.
func (s *sqlConversations) ListMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func collectConversations(rows *sql.Rows) ([]Conversation, error) {
	defer rows.Close()
	out := []Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func scanConversation(row rowScanner) (Conversation, error) {
	var (
		conv          Conversation
		parent        sql.NullInt64
		createdMillis int64
	)
	if err := row.Scan(&conv.ID, &conv.Name, &parent, &createdMillis); err != nil {
		return Conversation{}, err
	}
	conv.MessageID = fromNullID(parent)
	conv.CreatedAt = time.UnixMilli(createdMillis).UTC()
	return conv, nil
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg           Message
		referred      sql.NullInt64
		createdMillis int64
	)
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.ReasoningSummary,
		&msg.NumOfChildren, &referred, &msg.ReferredContent, &createdMillis)
	if err != nil {
		return Message{}, err
	}
	msg.ReferredMessageID = fromNullID(referred)
	msg.CreatedAt = time.UnixMilli(createdMillis).UTC()
	return msg, nil
}
