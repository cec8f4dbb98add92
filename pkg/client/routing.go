package client

import (
	"context"
	"net/http"
	"time"

	"github.com/workpal/pulse/core/types"
)

// RoutingClient notifies the backend about live-agent hand-off transitions.
// Both directions (SWITCH and END_CONVERSATION) go through the same
// endpoint and payload shape.
type RoutingClient struct {
	client   *Client
	token    string
	timezone string
	identity types.UserIdentity
}

// firstMessage is the canned text the backend expects on a SWITCH.
const firstMessage = "First_Message"

// NewRoutingClient creates a routing client acting on behalf of identity.
func NewRoutingClient(baseURL, token, timezone string, identity types.UserIdentity) *RoutingClient {
	return &RoutingClient{
		client:   NewClient(baseURL, 0),
		token:    token,
		timezone: timezone,
		identity: identity,
	}
}

// SwitchToAgent asks the backend to route requestID to the given agent
// group.
func (r *RoutingClient) SwitchToAgent(ctx context.Context, requestID, group string) error {
	return r.post(ctx, types.AgentEnvelope{
		RequestID:     requestID,
		Token:         r.token,
		BotToBot:      true,
		SilentMessage: false,
		Message:       types.AgentText{Text: firstMessage, Typed: true},
		UserID:        r.identity.UserID,
		EmailID:       r.identity.EmailID,
		Username:      r.identity.Name,
		AgentGroup:    group,
		Timestamp:     time.Now().UnixMilli(),
		Timezone:      r.timezone,
		Action:        types.ActionSwitch,
		Topic:         &types.Topic{Name: group},
	})
}

// EndConversation tells the backend the session for requestID is over.
func (r *RoutingClient) EndConversation(ctx context.Context, requestID, reason string) error {
	return r.post(ctx, types.AgentEnvelope{
		RequestID:     requestID,
		Token:         r.token,
		BotToBot:      true,
		SilentMessage: false,
		Message:       types.AgentText{Text: reason, Typed: true},
		UserID:        r.identity.UserID,
		EmailID:       r.identity.EmailID,
		Timestamp:     time.Now().UnixMilli(),
		Timezone:      r.timezone,
		Action:        types.ActionEndConversation,
	})
}

func (r *RoutingClient) post(ctx context.Context, envelope types.AgentEnvelope) error {
	resp, err := r.client.doRequest(ctx, http.MethodPost, "/user/to/agent/servicenow", envelope, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
