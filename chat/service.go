// Package chat runs branching conversations: it names new conversations,
// assembles the history a turn sees across branches, runs the selected
// workflow and persists both sides of the turn.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dshills/branchchat/tot/model"
	"github.com/dshills/branchchat/tot/store"
	"github.com/dshills/branchchat/workflow"
)

const (
	// namingInstruction is appended to the first message when asking the
	// summary workflow for a conversation name.
	namingInstruction = "\nSummarize the user query in less than 10 words. DO NOT use bullet point list, stages or steps."

	// maxNameRunes bounds stored conversation names.
	maxNameRunes = 100
)

// DeltaType labels a streamed piece of an answer.
type DeltaType string

// Delta types.
const (
	DeltaContent   DeltaType = "real_content"
	DeltaReasoning DeltaType = "reasoning_summary"
)

// Delta is one streamed piece of the assistant message MessageID.
type Delta struct {
	MessageID int64     `json:"message_id"`
	Content   string    `json:"content"`
	Type      DeltaType `json:"type"`
}

// SendRequest is one user turn in an existing conversation.
type SendRequest struct {
	ConversationID int64
	Query          string

	// IsNewConversation marks the turn that answers the first message,
	// which StartConversation already stored.
	IsNewConversation bool

	Mode       workflow.Mode
	PromptMode workflow.PromptMode
	PromptData workflow.PromptData
}

// MessageView is a stored message with the conversations branched from it.
type MessageView struct {
	store.Message
	ChildConversations []ConversationRef `json:"child_conversations"`
}

// ConversationRef names a conversation.
type ConversationRef struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	MessageID *int64 `json:"message_id,omitempty"`
}

// Details is a conversation's messages and its path from the root.
type Details struct {
	Conversation store.Conversation `json:"conversation"`
	Messages     []MessageView      `json:"messages"`
	Path         []ConversationRef  `json:"path"`
}

// Service runs conversations over a store and a workflow registry.
type Service struct {
	store    store.ConversationStore
	registry *workflow.Registry
	logger   *slog.Logger
}

// NewService creates a Service. The registry must serve
// workflow.ModeSummary, which names new conversations.
func NewService(st store.ConversationStore, registry *workflow.Registry) *Service {
	return &Service{store: st, registry: registry, logger: slog.Default()}
}

// WithLogger sets the service logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// StartConversation creates a conversation for firstMessage and stores it
// as the first user message. The name is a short summary of firstMessage.
// A non-nil branchFrom forks the conversation from that message.
func (s *Service) StartConversation(ctx context.Context, firstMessage string, branchFrom *int64) (store.Conversation, error) {
	if strings.TrimSpace(firstMessage) == "" {
		return store.Conversation{}, workflow.ErrEmptyQuery
	}
	if branchFrom != nil {
		if _, err := s.store.GetMessage(ctx, *branchFrom); err != nil {
			return store.Conversation{}, err
		}
	}

	res, err := s.registry.Run(ctx, workflow.ModeSummary, workflow.Request{Query: firstMessage + namingInstruction})
	if err != nil {
		return store.Conversation{}, fmt.Errorf("name conversation: %w", err)
	}
	name := conversationName(res.Answer, firstMessage)

	conv, err := s.store.CreateConversation(ctx, name, branchFrom)
	if err != nil {
		return store.Conversation{}, err
	}
	if _, err := s.store.AddMessage(ctx, store.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: firstMessage}); err != nil {
		return store.Conversation{}, err
	}
	s.logger.Info("conversation started", "conversation_id", conv.ID, "branch_from", branchFrom, "name", name)
	return conv, nil
}

// SendMessage answers req and streams the answer to sink before storing
// it. The user message and an empty assistant message are stored before
// the workflow runs; the assistant message is filled in afterwards, even
// when sink fails because the client went away. Validation errors are
// returned before anything is stored.
func (s *Service) SendMessage(ctx context.Context, req SendRequest, sink func(Delta) error) (store.Message, error) {
	if strings.TrimSpace(req.Query) == "" {
		return store.Message{}, workflow.ErrEmptyQuery
	}
	mode := req.Mode
	if mode == "" {
		mode = workflow.ModeDefault
	}
	if _, err := s.registry.Get(mode); err != nil {
		return store.Message{}, err
	}

	conv, err := s.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return store.Message{}, err
	}
	stored, err := store.ThreadHistory(ctx, s.store, conv.ID)
	if err != nil {
		return store.Message{}, err
	}
	if req.IsNewConversation {
		stored = dropTrailingQuery(stored, req.Query)
	}

	data, err := s.resolveReferences(ctx, req.PromptMode, req.PromptData)
	if err != nil {
		return store.Message{}, err
	}
	wreq, err := workflow.Prepare(req.Query, store.ChatHistory(stored), req.PromptMode, data)
	if err != nil {
		return store.Message{}, err
	}

	if !req.IsNewConversation {
		user := store.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: req.Query}
		if req.PromptMode == workflow.PromptReply {
			user.ReferredMessageID = &data.ReferredMessage.ID
			user.ReferredContent = data.SubStr
		}
		if _, err := s.store.AddMessage(ctx, user); err != nil {
			return store.Message{}, err
		}
	}
	placeholder, err := s.store.AddMessage(ctx, store.Message{ConversationID: conv.ID, Role: model.RoleAssistant})
	if err != nil {
		return store.Message{}, err
	}

	logger := s.logger.With("conversation_id", conv.ID, "message_id", placeholder.ID, "mode", mode)
	logger.Info("chat turn", "history", len(wreq.History), "prompt_mode", req.PromptMode)

	res, err := s.registry.Run(ctx, mode, wreq)
	if err != nil {
		logger.Warn("chat turn failed", "error", err)
		return placeholder, err
	}

	reasoning := reasoningSummary(res)
	streamed := true
	send := func(content string, typ DeltaType) {
		if !streamed || sink == nil {
			return
		}
		if err := sink(Delta{MessageID: placeholder.ID, Content: content, Type: typ}); err != nil {
			logger.Warn("stream interrupted", "error", err)
			streamed = false
		}
	}
	if reasoning != "" {
		send(reasoning, DeltaReasoning)
	}
	for _, chunk := range splitChunks(res.Answer) {
		send(chunk, DeltaContent)
	}

	// The answer is kept even if the request was cancelled mid-stream.
	saveCtx := context.WithoutCancel(ctx)
	if err := s.store.UpdateMessage(saveCtx, placeholder.ID, res.Answer, reasoning); err != nil {
		return placeholder, err
	}
	return s.store.GetMessage(saveCtx, placeholder.ID)
}

// ListConversations returns up to limit conversations, newest first.
func (s *Service) ListConversations(ctx context.Context, limit int) ([]store.Conversation, error) {
	return s.store.ListConversations(ctx, limit)
}

// Details returns the messages of conversation id, each with the
// conversations branched from it, and the path from the root conversation.
func (s *Service) Details(ctx context.Context, id int64) (Details, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return Details{}, err
	}
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return Details{}, err
	}
	branches, err := s.store.ListBranches(ctx, id)
	if err != nil {
		return Details{}, err
	}
	path, err := store.ConversationPath(ctx, s.store, id)
	if err != nil {
		return Details{}, err
	}

	children := make(map[int64][]ConversationRef, len(branches))
	for _, b := range branches {
		children[*b.MessageID] = append(children[*b.MessageID], ConversationRef{ID: b.ID, Name: b.Name})
	}

	out := Details{Conversation: conv, Messages: make([]MessageView, 0, len(msgs)), Path: make([]ConversationRef, 0, len(path))}
	for _, m := range msgs {
		refs := children[m.ID]
		if refs == nil {
			refs = []ConversationRef{}
		}
		out.Messages = append(out.Messages, MessageView{Message: m, ChildConversations: refs})
	}
	for _, c := range path {
		out.Path = append(out.Path, ConversationRef{ID: c.ID, Name: c.Name, MessageID: c.MessageID})
	}
	return out, nil
}

// resolveReferences replaces client-supplied content of referred messages
// with the stored content when an ID is given.
func (s *Service) resolveReferences(ctx context.Context, mode workflow.PromptMode, data workflow.PromptData) (workflow.PromptData, error) {
	switch mode {
	case workflow.PromptReply:
		if data.ReferredMessage == nil || data.ReferredMessage.ID == 0 {
			return data, fmt.Errorf("%w: reply requires referred_message.id", workflow.ErrInvalidPrompt)
		}
		msg, err := s.store.GetMessage(ctx, data.ReferredMessage.ID)
		if err != nil {
			return data, err
		}
		data.ReferredMessage = &workflow.ReferredMessage{ID: msg.ID, Content: msg.Content}

	case workflow.PromptSelect:
		selected := make([]workflow.ReferredMessage, 0, len(data.SelectedMessages))
		for _, ref := range data.SelectedMessages {
			if ref.ID != 0 {
				msg, err := s.store.GetMessage(ctx, ref.ID)
				if err != nil {
					return data, err
				}
				ref.Content = msg.Content
			}
			selected = append(selected, ref)
		}
		data.SelectedMessages = selected
	}
	return data, nil
}

// conversationName cleans a model-written summary into a one line name,
// falling back to the first message.
func conversationName(summary, firstMessage string) string {
	name := strings.TrimSpace(summary)
	if i := strings.IndexByte(name, '\n'); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	name = strings.Trim(name, "\"'`*# ")
	if name == "" {
		name = strings.Join(strings.Fields(firstMessage), " ")
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = string([]rune(name)[:maxNameRunes])
	}
	return name
}

// dropTrailingQuery removes the stored copy of the first message so the
// query is not sent twice.
func dropTrailingQuery(msgs []store.Message, query string) []store.Message {
	if n := len(msgs); n > 0 && msgs[n-1].Role == model.RoleUser && msgs[n-1].Content == query {
		return msgs[:n-1]
	}
	return msgs
}

// reasoningSummary describes the kept thoughts of a tree search, level by
// level. Other workflows have no reasoning to show.
func reasoningSummary(res workflow.Result) string {
	if res.Trace == nil {
		return ""
	}
	var b strings.Builder
	for depth, level := range res.Trace.Levels {
		for _, entry := range level {
			if entry.Kept {
				fmt.Fprintf(&b, "Step %d: %s (score %.2f)\n", depth+1, entry.Candidate.Text, entry.Score)
			}
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// splitChunks cuts an answer into line-sized pieces for streaming.
// Concatenating the pieces yields the answer.
func splitChunks(answer string) []string {
	var chunks []string
	for _, line := range strings.SplitAfter(answer, "\n") {
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}
