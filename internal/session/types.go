// Package session tracks in-memory conversations between callers and the
// agent. Nothing here survives a process restart.
package session

import (
	"sync"
	"time"

	"github.com/mkarolys/handbox/internal/llm"
)

// Message is a single turn in a conversation.
type Message struct {
	Role      string         `json:"role"` // user, assistant, system
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Conversation is one chat thread with its history.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	mu        sync.RWMutex
	messages  []Message
	updatedAt time.Time
}

// NewConversation creates an empty conversation.
func NewConversation(id, title string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		updatedAt: now,
	}
}

// AddMessage appends a turn.
func (c *Conversation) AddMessage(role, content string, metadata map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
	c.updatedAt = time.Now()
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// History converts the conversation into LLM messages, keeping at most
// the last maxMessages turns (all of them when maxMessages <= 0).
func (c *Conversation) History(maxMessages int) []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.messages
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// MessageCount returns the number of turns.
func (c *Conversation) MessageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// UpdatedAt returns the time of the last append.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Info is a summary of one conversation.
type Info struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Info returns the conversation's summary.
func (c *Conversation) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Info{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: len(c.messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.updatedAt,
	}
}
