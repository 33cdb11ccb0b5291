// Package events carries lifecycle notifications between the daemon's
// components: action submission and completion, container churn, and
// conversation activity. Producers publish without blocking on consumers;
// subscribers register per event kind.
package events

import "time"

// Kind classifies an event.
type Kind string

const (
	KindActionSubmitted     Kind = "action.submitted"
	KindActionFinished      Kind = "action.finished"
	KindActionCancelled     Kind = "action.cancelled"
	KindContainerCreated    Kind = "container.created"
	KindContainerRemoved    Kind = "container.removed"
	KindContainerStatus     Kind = "container.status"
	KindConversationCreated Kind = "conversation.created"
	KindConversationDeleted Kind = "conversation.deleted"
	KindAgentMessage        Kind = "agent.message"
)

// Event is one lifecycle notification. Subject identifies what the event
// is about: an action id, a container id, or a conversation id.
type Event struct {
	Kind      Kind           `json:"kind"`
	Subject   string         `json:"subject"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New builds an event stamped with the current time.
func New(kind Kind, subject string, payload map[string]any) Event {
	return Event{
		Kind:      kind,
		Subject:   subject,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
