package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"unicode/utf8"

	"github.com/mudler/xlog"

	"github.com/workpal/pulse/core/types"
)

// StoreClient talks to the REST conversation store. The chat core itself
// only needs SaveInteraction and LoadMessages; the rest backs the history
// sidebar.
type StoreClient struct {
	client *Client
	userID string

	// activeConversation is the conversation new interactions append to.
	activeConversation string
}

// Conversation is a stored conversation header.
type Conversation struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Summary      string          `json:"summary,omitempty"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	MessageCount int             `json:"message_count,omitempty"`
	Messages     []StoredMessage `json:"messages,omitempty"`
}

// StoredMessage is one stored turn.
type StoredMessage struct {
	ID          string `json:"id"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
}

// NewStoreClient creates a store client scoped to one user.
func NewStoreClient(baseURL, userID string) *StoreClient {
	return &StoreClient{
		client: NewClient(baseURL, 0),
		userID: userID,
	}
}

// SetActiveConversation selects the conversation new turns are saved to.
func (s *StoreClient) SetActiveConversation(conversationID string) {
	s.activeConversation = conversationID
}

// Health pings the store.
func (s *StoreClient) Health(ctx context.Context) error {
	resp, err := s.client.doRequest(ctx, http.MethodGet, "/conversations/health", nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// CreateConversation creates an empty conversation and returns it.
func (s *StoreClient) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	body := map[string]interface{}{"title": title, "user_id": s.userID}
	resp, err := s.client.doRequest(ctx, http.MethodPost, "/conversations", body, nil)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	defer resp.Body.Close()

	var conv Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &conv, nil
}

// GetConversation loads a conversation, optionally with a message window.
func (s *StoreClient) GetConversation(ctx context.Context, conversationID string, includeMessages bool, offset, limit int) (*Conversation, error) {
	path := fmt.Sprintf("/conversations/%s?include_messages=%t&message_offset=%d&message_limit=%d",
		url.PathEscape(conversationID), includeMessages, offset, limit)
	resp, err := s.client.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", conversationID, err)
	}
	defer resp.Body.Close()

	var conv Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &conv, nil
}

// UpdateConversation changes a conversation's title.
func (s *StoreClient) UpdateConversation(ctx context.Context, conversationID, title string) error {
	path := fmt.Sprintf("/conversations/%s?title=%s", url.PathEscape(conversationID), url.QueryEscape(title))
	resp, err := s.client.doRequest(ctx, http.MethodPut, path, nil, nil)
	if err != nil {
		return fmt.Errorf("update conversation %s: %w", conversationID, err)
	}
	resp.Body.Close()
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (s *StoreClient) DeleteConversation(ctx context.Context, conversationID string) error {
	path := fmt.Sprintf("/conversations/%s/delete", url.PathEscape(conversationID))
	resp, err := s.client.doRequest(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", conversationID, err)
	}
	resp.Body.Close()
	return nil
}

// AddMessage appends a single message to a conversation.
func (s *StoreClient) AddMessage(ctx context.Context, conversationID string, role types.Role, content string) error {
	path := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(conversationID))
	body := map[string]interface{}{"message_type": string(role), "content": content}
	resp, err := s.client.doRequest(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	resp.Body.Close()
	return nil
}

// AddMessages appends several messages in one request.
func (s *StoreClient) AddMessages(ctx context.Context, conversationID string, msgs []*types.Message) error {
	entries := make([]map[string]interface{}, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, map[string]interface{}{"message_type": string(m.Role), "content": m.Text})
	}
	path := fmt.Sprintf("/conversations/%s/messages/bulk", url.PathEscape(conversationID))
	resp, err := s.client.doRequest(ctx, http.MethodPost, path, map[string]interface{}{"messages": entries}, nil)
	if err != nil {
		return fmt.Errorf("bulk add messages: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Search finds conversations matching a query.
func (s *StoreClient) Search(ctx context.Context, query string, limit int) ([]Conversation, error) {
	path := fmt.Sprintf("/conversations/search?q=%s&limit=%d", url.QueryEscape(query), limit)
	resp, err := s.client.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	return out.Conversations, nil
}

// UserConversations lists the user's conversations, newest first.
func (s *StoreClient) UserConversations(ctx context.Context, limit, offset int) ([]Conversation, error) {
	path := fmt.Sprintf("/conversations/user/%s?limit=%d&offset=%d", url.PathEscape(s.userID), limit, offset)
	resp, err := s.client.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return out.Conversations, nil
}

// SaveInteraction persists a finished question/answer pair to the active
// conversation, creating one when none is selected.
func (s *StoreClient) SaveInteraction(ctx context.Context, question, answer string) error {
	if s.activeConversation == "" {
		title := question
		if len(title) > 50 {
			cut := 50
			for cut > 0 && !utf8.RuneStart(title[cut]) {
				cut--
			}
			title = title[:cut]
		}
		conv, err := s.CreateConversation(ctx, title)
		if err != nil {
			return err
		}
		s.activeConversation = conv.ID
		xlog.Debug("Created conversation", "id", conv.ID)
	}

	return s.AddMessages(ctx, s.activeConversation, []*types.Message{
		{Role: types.RoleUser, Text: question},
		{Role: types.RoleAssistant, Text: answer},
	})
}

// ReplaceAnswer persists a regenerated answer for the active conversation.
// The question is already stored from the first pass; the new answer is
// appended flagged regenerated so the backend keeps both versions. Without
// an active conversation this degrades to a plain save.
func (s *StoreClient) ReplaceAnswer(ctx context.Context, question, answer string) error {
	if s.activeConversation == "" {
		return s.SaveInteraction(ctx, question, answer)
	}

	path := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(s.activeConversation))
	body := map[string]interface{}{
		"message_type": string(types.RoleAssistant),
		"content":      answer,
		"regenerated":  true,
	}
	resp, err := s.client.doRequest(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return fmt.Errorf("save regenerated answer: %w", err)
	}
	resp.Body.Close()
	return nil
}

// LoadMessages returns a conversation's messages as renderable turns.
func (s *StoreClient) LoadMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	conv, err := s.GetConversation(ctx, conversationID, true, 0, 200)
	if err != nil {
		return nil, err
	}

	msgs := make([]*types.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		msgs = append(msgs, &types.Message{
			ID:        m.ID,
			Role:      types.Role(m.MessageType),
			Text:      m.Content,
			Completed: true,
		})
	}
	return msgs, nil
}
