package liveagent

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workpal/pulse/core/types"
)

// Channel is the bidirectional live-agent connection, addressed by request
// id. Exactly one session owns a channel; only that session closes it.
type Channel interface {
	ReadPayload() ([]byte, error)
	Send(text string) error
	Close() error
}

// Dialer opens a Channel for a request id.
type Dialer interface {
	Dial(ctx context.Context, requestID string) (Channel, error)
}

// WSDialer dials the workforce-agent websocket endpoint.
type WSDialer struct {
	BaseURL  string
	Token    string
	Timezone string
	Identity types.UserIdentity
}

func (d *WSDialer) Dial(ctx context.Context, requestID string) (Channel, error) {
	url := fmt.Sprintf("%s/%s", d.BaseURL, requestID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial live-agent channel: %w", err)
	}
	return &wsChannel{
		conn:      conn,
		requestID: requestID,
		token:     d.Token,
		timezone:  d.Timezone,
		identity:  d.Identity,
	}, nil
}

type wsChannel struct {
	conn      *websocket.Conn
	requestID string
	token     string
	timezone  string
	identity  types.UserIdentity
}

func (c *wsChannel) ReadPayload() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *wsChannel) Send(text string) error {
	return c.conn.WriteJSON(types.AgentEnvelope{
		RequestID:     c.requestID,
		Token:         c.token,
		BotToBot:      true,
		SilentMessage: false,
		Message:       types.AgentText{Text: text, Typed: true},
		UserID:        c.identity.UserID,
		EmailID:       c.identity.EmailID,
		Timestamp:     time.Now().UnixMilli(),
		Timezone:      c.timezone,
	})
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}
