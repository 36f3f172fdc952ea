package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/branchchat/tot/model"
)

// Conversation is a chat thread. A conversation with a MessageID is a
// branch: it continues the thread of that message's conversation from that
// message on.
type Conversation struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	MessageID *int64    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one turn of a conversation.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`

	// ReasoningSummary is the reasoning shown alongside an assistant
	// answer, when the workflow produced one.
	ReasoningSummary string `json:"reasoning_summary,omitempty"`

	// NumOfChildren counts assistant turns taken in conversations that
	// branch from this message.
	NumOfChildren int `json:"num_of_children"`

	// ReferredMessageID and ReferredContent record the message, and the
	// excerpt of it, that a reply refers to.
	ReferredMessageID *int64 `json:"referred_message_id,omitempty"`
	ReferredContent   string `json:"referred_message_content,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ConversationStore persists conversations and their messages.
//
// Implementations must be safe for concurrent use. Lists are ordered by
// creation, and IDs are assigned in creation order.
type ConversationStore interface {
	// CreateConversation creates a conversation named name. A non-nil
	// branchFrom forks it from that message, which must exist.
	CreateConversation(ctx context.Context, name string, branchFrom *int64) (Conversation, error)

	// GetConversation returns the conversation with id, or ErrNotFound.
	GetConversation(ctx context.Context, id int64) (Conversation, error)

	// ListConversations returns up to limit conversations, branches
	// included, newest first.
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)

	// AddMessage appends msg to its conversation and returns it with ID and
	// CreatedAt set. NumOfChildren is ignored. Adding an assistant message
	// to a branch increments NumOfChildren on the branch's parent message.
	AddMessage(ctx context.Context, msg Message) (Message, error)

	// GetMessage returns the message with id, or ErrNotFound.
	GetMessage(ctx context.Context, id int64) (Message, error)

	// UpdateMessage replaces the content and reasoning summary of message
	// id.
	UpdateMessage(ctx context.Context, id int64, content, reasoningSummary string) error

	// ListMessages returns the messages of a conversation, oldest first.
	ListMessages(ctx context.Context, conversationID int64) ([]Message, error)

	// ListBranches returns the conversations forked from any message of
	// conversationID, oldest first.
	ListBranches(ctx context.Context, conversationID int64) ([]Conversation, error)
}

// ConversationPath returns the chain of conversations leading to id, root
// first and id last.
func ConversationPath(ctx context.Context, cs ConversationStore, id int64) ([]Conversation, error) {
	var path []Conversation
	err := walkAncestors(ctx, cs, id, func(conv Conversation, _ *Message) error {
		path = append(path, conv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// ThreadHistory returns the messages a new turn in conversation id builds
// on. Every ancestor contributes its messages up to and including the one
// its child branched from, root first, and id contributes all of its own.
// Messages with empty content (unfinished assistant turns) are skipped.
func ThreadHistory(ctx context.Context, cs ConversationStore, id int64) ([]Message, error) {
	var segments [][]Message
	err := walkAncestors(ctx, cs, id, func(conv Conversation, branch *Message) error {
		msgs, err := cs.ListMessages(ctx, conv.ID)
		if err != nil {
			return err
		}
		segment := make([]Message, 0, len(msgs))
		for _, m := range msgs {
			if branch != nil && m.ID > branch.ID {
				break
			}
			if m.Content != "" {
				segment = append(segment, m)
			}
		}
		segments = append(segments, segment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []Message
	for i := len(segments) - 1; i >= 0; i-- {
		out = append(out, segments[i]...)
	}
	return out, nil
}

// ChatHistory converts stored messages into model messages.
func ChatHistory(msgs []Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, model.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// walkAncestors calls fn for id and then for each ancestor up to the root.
// branch is the message the previously visited conversation forked from,
// nil for id itself.
func walkAncestors(ctx context.Context, cs ConversationStore, id int64, fn func(conv Conversation, branch *Message) error) error {
	conv, err := cs.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(conv, nil); err != nil {
		return err
	}

	seen := map[int64]bool{conv.ID: true}
	for conv.MessageID != nil {
		branch, err := cs.GetMessage(ctx, *conv.MessageID)
		if err != nil {
			return fmt.Errorf("conversation %d branch message: %w", conv.ID, err)
		}
		if conv, err = cs.GetConversation(ctx, branch.ConversationID); err != nil {
			return err
		}
		if seen[conv.ID] {
			return fmt.Errorf("conversation %d: branch cycle at conversation %d", id, conv.ID)
		}
		seen[conv.ID] = true
		if err := fn(conv, &branch); err != nil {
			return err
		}
	}
	return nil
}

func validateConversationName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("conversation requires a name")
	}
	return nil
}

func validateMessage(msg Message) error {
	switch msg.Role {
	case model.RoleUser, model.RoleAssistant:
	default:
		return fmt.Errorf("unsupported message role %q", msg.Role)
	}
	if msg.ConversationID <= 0 {
		return errors.New("message requires a conversation ID")
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func fromNullID(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

var (
	_ ConversationStore = (*MemStore)(nil)
	_ ConversationStore = (*SQLiteStore)(nil)
	_ ConversationStore = (*MySQLStore)(nil)
)
