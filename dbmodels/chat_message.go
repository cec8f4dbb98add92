package dbmodels

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	ID             uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:char(36);index;not null" json:"conversationId"`
	Role           string    `gorm:"type:varchar(32);not null" json:"role"` // user, assistant, system, live_agent
	Content        string    `gorm:"type:text;not null" json:"content"`
	AgentName      string    `gorm:"type:varchar(255)" json:"agentName,omitempty"`
	CreatedAt      time.Time `gorm:"not null" json:"createdAt"`
}
