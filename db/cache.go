// Package db is the local conversation cache: a sqlite mirror of finished
// turns so history renders even when the conversation store is unreachable.
package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/workpal/pulse/core/types"
	"github.com/workpal/pulse/dbmodels"
)

// Cache is a sqlite-backed store of conversations and their messages.
type Cache struct {
	db *gorm.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	gormDB, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if err := gormDB.AutoMigrate(&dbmodels.Conversation{}, &dbmodels.ChatMessage{}); err != nil {
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: gormDB}, nil
}

// CreateConversation inserts a new conversation header for a user.
func (c *Cache) CreateConversation(userID, title string) (*dbmodels.Conversation, error) {
	now := time.Now()
	conv := dbmodels.Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.db.Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

// AppendMessage stores one turn and bumps the conversation's activity.
func (c *Cache) AppendMessage(conversationID uuid.UUID, msg *types.Message) error {
	row := dbmodels.ChatMessage{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           string(msg.Role),
		Content:        msg.Text,
		AgentName:      msg.AgentName,
		CreatedAt:      time.Now(),
	}
	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("store message: %w", err)
		}
		if err := tx.Model(&dbmodels.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", time.Now()).Error; err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		return nil
	})
}

// Messages loads the turns of a conversation in order.
func (c *Cache) Messages(conversationID uuid.UUID) ([]*types.Message, error) {
	var rows []dbmodels.ChatMessage
	if err := c.db.
		Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	msgs := make([]*types.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, &types.Message{
			ID:        row.ID.String(),
			Role:      types.Role(row.Role),
			Text:      row.Content,
			AgentName: row.AgentName,
			Completed: true,
			CreatedAt: row.CreatedAt,
		})
	}
	return msgs, nil
}

// Conversations lists a user's conversations, most recently active first.
func (c *Cache) Conversations(userID string) ([]dbmodels.Conversation, error) {
	var rows []dbmodels.Conversation
	if err := c.db.
		Where("user_id = ?", userID).
		Order("updated_at desc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return rows, nil
}

// DeleteConversation removes a conversation and all of its messages.
func (c *Cache) DeleteConversation(conversationID uuid.UUID) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&dbmodels.ChatMessage{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("id = ?", conversationID).Delete(&dbmodels.Conversation{}).Error; err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		return nil
	})
}
