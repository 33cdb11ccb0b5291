package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkarolys/handbox/internal/events"
)

// ErrConversationNotFound is returned for an unknown conversation id.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrTooManyConversations is returned when the manager is at capacity.
var ErrTooManyConversations = errors.New("conversation limit reached")

const janitorInterval = time.Minute

// Manager owns the table of live conversations. It caps how many exist
// at once and evicts idle ones from a background janitor.
type Manager struct {
	log         *zap.Logger
	bus         *events.Bus
	maxConvos   int
	idleTimeout time.Duration

	mu     sync.RWMutex
	convos map[string]*Conversation
}

// NewManager creates a manager. bus may be nil. maxConversations <= 0
// means unlimited; idleTimeout <= 0 disables eviction.
func NewManager(maxConversations int, idleTimeout time.Duration, bus *events.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		log:         logger,
		bus:         bus,
		maxConvos:   maxConversations,
		idleTimeout: idleTimeout,
		convos:      make(map[string]*Conversation),
	}
}

// Create starts a new conversation.
func (m *Manager) Create(title string) (*Conversation, error) {
	m.mu.Lock()
	if m.maxConvos > 0 && len(m.convos) >= m.maxConvos {
		m.mu.Unlock()
		return nil, ErrTooManyConversations
	}
	conv := NewConversation(uuid.NewString(), title)
	m.convos[conv.ID] = conv
	m.mu.Unlock()

	m.publish(events.KindConversationCreated, conv.ID)
	m.log.Debug("conversation created", zap.String("id", conv.ID))
	return conv, nil
}

// Get looks up a conversation by id.
func (m *Manager) Get(id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.convos[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// Delete removes a conversation.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.convos[id]
	if !ok {
		m.mu.Unlock()
		return ErrConversationNotFound
	}
	delete(m.convos, id)
	m.mu.Unlock()

	m.publish(events.KindConversationDeleted, id)
	return nil
}

// List returns summaries of all conversations, most recently updated
// first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.convos))
	for _, conv := range m.convos {
		infos = append(infos, conv.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos
}

// Count returns the number of live conversations.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.convos)
}

// RunJanitor evicts idle conversations on a fixed interval until the
// context is cancelled. Call it on its own goroutine.
func (m *Manager) RunJanitor(ctx context.Context) {
	if m.idleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

// evictIdle removes conversations untouched for longer than the idle
// timeout.
func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var evicted []string
	for id, conv := range m.convos {
		if conv.UpdatedAt().Before(cutoff) {
			delete(m.convos, id)
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()

	for _, id := range evicted {
		m.publish(events.KindConversationDeleted, id)
		m.log.Info("idle conversation evicted", zap.String("id", id))
	}
}

func (m *Manager) publish(kind events.Kind, id string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.New(kind, id, nil))
}
