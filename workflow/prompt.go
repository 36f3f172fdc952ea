package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/branchchat/tot/model"
)

// PromptMode selects how a chat turn refers to earlier messages.
type PromptMode string

// Supported prompt modes. PromptDefault and PromptNewThread send the query
// as written.
const (
	PromptDefault   PromptMode = ""
	PromptReply     PromptMode = "reply"
	PromptSelect    PromptMode = "select"
	PromptNewThread PromptMode = "new_thread"
)

// ErrInvalidPrompt is returned for an unknown prompt mode or when a reply
// or select turn is missing the messages it refers to.
var ErrInvalidPrompt = errors.New("invalid prompt")

// ParsePromptMode normalizes s into a PromptMode.
func ParsePromptMode(s string) (PromptMode, error) {
	mode := PromptMode(strings.ToLower(strings.TrimSpace(s)))
	switch mode {
	case PromptDefault, PromptReply, PromptSelect, PromptNewThread:
		return mode, nil
	}
	return "", fmt.Errorf("%w: unknown prompt mode %q", ErrInvalidPrompt, s)
}

// ReferredMessage is a stored message a turn points at.
type ReferredMessage struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// PromptData carries what a reply or select turn refers to.
type PromptData struct {
	// ReferredMessage and SubStr are used by PromptReply. SubStr is the
	// highlighted excerpt of the message and may be empty.
	ReferredMessage *ReferredMessage `json:"referred_message,omitempty"`
	SubStr          string           `json:"sub_str,omitempty"`

	// SelectedMessages is used by PromptSelect.
	SelectedMessages []ReferredMessage `json:"selected_messages,omitempty"`
}

// Prepare builds the request for query under mode. Reply and select turns
// rewrite the query so the model sees what it refers to; history is passed
// through unchanged.
func Prepare(query string, history []model.Message, mode PromptMode, data PromptData) (Request, error) {
	req := Request{Query: query, History: history}
	switch mode {
	case PromptDefault, PromptNewThread:
		return req, nil

	case PromptReply:
		if data.ReferredMessage == nil {
			return Request{}, fmt.Errorf("%w: reply requires referred_message", ErrInvalidPrompt)
		}
		if data.SubStr == "" {
			req.Query = fmt.Sprintf("I am referring to the message %q.\nAnswer this query: %s",
				data.ReferredMessage.Content, query)
		} else {
			req.Query = fmt.Sprintf("I am referring to the sub text %q of the message %q.\nAnswer this query: %s",
				data.SubStr, data.ReferredMessage.Content, query)
		}
		return req, nil

	case PromptSelect:
		if len(data.SelectedMessages) == 0 {
			return Request{}, fmt.Errorf("%w: select requires selected_messages", ErrInvalidPrompt)
		}
		var b strings.Builder
		b.WriteString("I am referring to these messages:\n")
		for _, m := range data.SelectedMessages {
			fmt.Fprintf(&b, "- %q\n", m.Content)
		}
		b.WriteString("Answer this query based on the referred messages and the given context: ")
		b.WriteString(query)
		req.Query = b.String()
		return req, nil
	}
	return Request{}, fmt.Errorf("%w: unknown prompt mode %q", ErrInvalidPrompt, mode)
}
