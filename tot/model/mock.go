package model

import (
	"context"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests of oracles and
// workflows.
//
// Responses are replayed in order and the final one repeats once the script
// runs out. Respond, when set, takes precedence and lets a test answer
// based on the prompt, which matters when a search level issues calls
// concurrently and their order is not fixed. Err fails every call.
//
//	mock := &MockChatModel{
//	    Responses: []ChatOut{
//	        {Text: `{"thoughts":[{"text":"Go to Lisbon","rationale":"mild","score":0.8}]}`},
//	    },
//	}
//	gen := oracle.NewGenerator(mock)
//
// All methods are safe for concurrent use.
type MockChatModel struct {
	Responses []ChatOut
	Respond   func(messages []Message) (ChatOut, error)
	Err       error

	// Calls records every request, failed ones included.
	Calls []MockChatCall

	mu   sync.Mutex
	next int
}

// MockChatCall is one recorded request.
type MockChatCall struct {
	Messages []Message
	Options  CallOptions
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, opts CallOptions) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockChatCall{Messages: messages, Options: opts})

	switch {
	case m.Err != nil:
		return ChatOut{}, m.Err
	case m.Respond != nil:
		return m.Respond(messages)
	case len(m.Responses) == 0:
		return ChatOut{}, nil
	}

	out := m.Responses[min(m.next, len(m.Responses)-1)]
	if m.next < len(m.Responses) {
		m.next++
	}
	return out, nil
}

// Reset forgets recorded calls and rewinds the script.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.next = 0
}

// CallCount reports how many requests were made.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
