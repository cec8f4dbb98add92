package types

// Action values accepted by the routing endpoint.
const (
	ActionSwitch          = "SWITCH"
	ActionEndConversation = "END_CONVERSATION"
)

// AgentText is the message part of an outbound envelope.
type AgentText struct {
	Text  string `json:"text"`
	Typed bool   `json:"typed"`
}

// Topic names the agent group a SWITCH routes to.
type Topic struct {
	Name string `json:"name"`
}

// AgentEnvelope is the payload shape the routing endpoint and the outbound
// side of the live-agent channel both expect.
type AgentEnvelope struct {
	RequestID       string    `json:"requestId"`
	Token           string    `json:"token"`
	BotToBot        bool      `json:"botToBot"`
	ClientSessionID string    `json:"clientSessionId"`
	SilentMessage   bool      `json:"silentMessage"`
	Message         AgentText `json:"message"`
	UserID          string    `json:"userId"`
	EmailID         string    `json:"emailId"`
	Username        string    `json:"username,omitempty"`
	AgentGroup      string    `json:"agent_group,omitempty"`
	Timestamp       int64     `json:"timestamp"`
	Timezone        string    `json:"timezone"`
	Action          string    `json:"action,omitempty"`
	Topic           *Topic    `json:"topic,omitempty"`
}

// UserIdentity is who the envelope is sent on behalf of.
type UserIdentity struct {
	UserID  string
	EmailID string
	Name    string
}
