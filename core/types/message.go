package types

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleLiveAgent Role = "live_agent"
)

// Message is one visible turn of a conversation. An in-flight assistant
// message is mutated in place while its response streams in; once Completed
// is set no other writer may touch it.
type Message struct {
	ID              string    `json:"id"`
	Role            Role      `json:"role"`
	Text            string    `json:"text"`
	Completed       bool      `json:"completed"`
	IsLiveAgentCard bool      `json:"isLiveAgentCard,omitempty"`
	AgentName       string    `json:"agentName,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewMessage returns a finished message carrying its full text.
func NewMessage(role Role, text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Completed: true,
		CreatedAt: time.Now(),
	}
}

// NewPendingMessage returns an empty assistant placeholder to be filled in
// by a streaming response.
func NewPendingMessage() *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
	}
}
