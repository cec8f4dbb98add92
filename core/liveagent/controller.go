// Package liveagent manages the lifecycle of a human hand-off: routing the
// request, owning the websocket channel, rendering inbound agent messages,
// enforcing the inactivity timeout and tearing the session down exactly
// once, whatever ends it.
package liveagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"github.com/workpal/pulse/core/types"
)

// Status of a live-agent session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusEnded      Status = "ended"
)

// DestinationBot is the routing choice that declines the hand-off and stays
// with the bot. No channel is opened for it.
const DestinationBot = "bot"

// User-facing termination reasons. The backend's own terminal phrases take
// precedence when present.
const (
	ReasonDisconnected = "Disconnected from the live agent."
	ReasonNoAgents     = "No agents available. Ending session."
	ReasonTechnical    = "Apologies, your live agent session was disconnected due to a technical issue. Kindly try again later."
	ReasonInactivity   = "Live agent chat ended due to inactivity."
	ReasonCompleted    = "Live agent session ended."
	ReasonUserEnded    = "You ended the live agent chat."
)

// RoutingNotifier tells the backend about hand-off transitions.
type RoutingNotifier interface {
	SwitchToAgent(ctx context.Context, requestID, group string) error
	EndConversation(ctx context.Context, requestID, reason string) error
}

// MessageSink receives messages to render into the conversation.
type MessageSink interface {
	Append(*types.Message)
}

// Controller is the live-agent session state machine. At most one session is
// active at a time; starting a new one terminates the previous one first.
type Controller struct {
	notifier RoutingNotifier
	dialer   Dialer
	sink     MessageSink

	idleTimeout     time.Duration
	terminalPhrases []string
	newTimer        TimerFactory

	mu             sync.Mutex
	status         Status
	gen            int
	requestID      string
	agentName      string
	ch             Channel
	idle           Timer
	lastActivityAt time.Time
	endChatPending bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithIdleTimeout overrides the inactivity window.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Controller) { c.idleTimeout = d }
}

// WithTerminalPhrases overrides the end-of-session phrase heuristics.
func WithTerminalPhrases(phrases []string) Option {
	return func(c *Controller) { c.terminalPhrases = phrases }
}

// WithTimerFactory substitutes the idle timer implementation, for tests.
func WithTimerFactory(f TimerFactory) Option {
	return func(c *Controller) { c.newTimer = f }
}

// New creates an idle controller.
func New(notifier RoutingNotifier, dialer Dialer, sink MessageSink, opts ...Option) *Controller {
	c := &Controller{
		notifier:        notifier,
		dialer:          dialer,
		sink:            sink,
		idleTimeout:     19 * time.Minute,
		terminalPhrases: []string{"no agents available", "please try again later", "your chat with the live agent has ended"},
		newTimer:        newRealTimer,
		status:          StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the current session status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// RequestID returns the id correlating this session with backend routing.
func (c *Controller) RequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID
}

// AgentName returns the agent name learned from the first inbound message.
func (c *Controller) AgentName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentName
}

// Start begins a hand-off to the given agent group. DestinationBot declines
// the hand-off and returns straight to idle. A session already running is
// terminated first, so two channels are never open at once.
func (c *Controller) Start(ctx context.Context, destination string) error {
	if st := c.Status(); st == StatusConnecting || st == StatusActive {
		c.terminate(ctx, ReasonDisconnected, true, c.currentGen())
	}

	if destination == DestinationBot {
		c.mu.Lock()
		c.status = StatusIdle
		c.mu.Unlock()
		c.sink.Append(types.NewMessage(types.RoleSystem, "Continuing with the bot."))
		return nil
	}

	requestID := "REQ-" + uuid.NewString()

	c.mu.Lock()
	c.status = StatusConnecting
	c.gen++
	gen := c.gen
	c.requestID = requestID
	c.agentName = ""
	c.endChatPending = false
	c.mu.Unlock()

	if err := c.notifier.SwitchToAgent(ctx, requestID, destination); err != nil {
		c.mu.Lock()
		c.status = StatusIdle
		c.mu.Unlock()
		c.sink.Append(types.NewMessage(types.RoleSystem, ReasonTechnical))
		return fmt.Errorf("notify agent routing: %w", err)
	}

	ch, err := c.dialer.Dial(ctx, requestID)
	if err != nil {
		c.mu.Lock()
		c.status = StatusIdle
		c.mu.Unlock()
		c.sink.Append(types.NewMessage(types.RoleSystem, ReasonTechnical))
		return fmt.Errorf("open live-agent channel: %w", err)
	}

	if !c.onChannelOpen(ch, gen) {
		// The session was torn down while the dial was in flight.
		ch.Close()
		return nil
	}
	go c.readLoop(ch, gen)

	xlog.Info("Live-agent session started", "requestId", requestID, "group", destination)
	return nil
}

// onChannelOpen transitions connecting to active and arms the idle timer.
// The generation gates late callbacks from a replaced session and refuses
// the transition when a concurrent terminate already ended this session.
func (c *Controller) onChannelOpen(ch Channel, gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.status != StatusConnecting {
		return false
	}
	c.ch = ch
	c.status = StatusActive
	c.lastActivityAt = time.Now()
	c.idle = c.newTimer(c.idleTimeout, func() {
		c.terminate(context.Background(), ReasonInactivity, true, gen)
	})
	return true
}

// Send relays user text to the agent and counts as activity.
func (c *Controller) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.status != StatusActive {
		c.mu.Unlock()
		return fmt.Errorf("no active live-agent session")
	}
	ch := c.ch
	c.mu.Unlock()

	if err := ch.Send(text); err != nil {
		c.Terminate(ctx, ReasonTechnical)
		return fmt.Errorf("send to live agent: %w", err)
	}

	c.touch()
	c.sink.Append(types.NewMessage(types.RoleUser, text))
	return nil
}

// RequestEndChat starts the two-phase end-chat confirmation.
func (c *Controller) RequestEndChat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusActive {
		return fmt.Errorf("no active live-agent session")
	}
	c.endChatPending = true
	return nil
}

// ConfirmEndChat resolves a pending end-chat request. Declining keeps the
// session active with no state change.
func (c *Controller) ConfirmEndChat(ctx context.Context, confirmed bool) {
	c.mu.Lock()
	pending := c.endChatPending
	c.endChatPending = false
	c.mu.Unlock()

	if pending && confirmed {
		c.Terminate(ctx, ReasonUserEnded)
	}
}

// Terminate tears the session down exactly once: cancel the idle timer,
// close the channel, best-effort notify the backend, append one system
// message. Calling it on an ended session is a no-op.
func (c *Controller) Terminate(ctx context.Context, reason string) {
	c.terminate(ctx, reason, true, c.currentGen())
}

// Close tears down without notifying the backend or rendering a message.
// Used when the user switches conversations mid-session.
func (c *Controller) Close() {
	c.terminate(context.Background(), "", false, c.currentGen())
}

func (c *Controller) currentGen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Controller) terminate(ctx context.Context, reason string, notify bool, gen int) {
	c.mu.Lock()
	if gen != c.gen || (c.status != StatusConnecting && c.status != StatusActive) {
		c.mu.Unlock()
		return
	}
	c.status = StatusEnded
	c.endChatPending = false
	ch := c.ch
	c.ch = nil
	requestID := c.requestID
	if c.idle != nil {
		c.idle.Stop()
		c.idle = nil
	}
	c.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			xlog.Debug("Closing live-agent channel", "error", err)
		}
	}

	if !notify {
		return
	}

	if requestID != "" {
		if err := c.notifier.EndConversation(ctx, requestID, reason); err != nil {
			// Local cleanup is already done; the backend will time the
			// session out on its own.
			xlog.Warn("Failed to notify session end", "requestId", requestID, "error", err)
		}
	}

	c.sink.Append(types.NewMessage(types.RoleSystem, reason+" You can continue chatting with the bot."))
	xlog.Info("Live-agent session ended", "requestId", requestID, "reason", reason)
}

// readLoop renders inbound frames until the channel dies or a terminal
// signal arrives. Channel errors are never retried; the user re-initiates.
func (c *Controller) readLoop(ch Channel, gen int) {
	for {
		data, err := ch.ReadPayload()
		if err != nil {
			c.terminate(context.Background(), ReasonTechnical, true, gen)
			return
		}

		c.touchGen(gen)

		p := types.ClassifyAgentPayload(data, c.terminalPhrases)
		switch p.Kind {
		case types.PayloadCompleted:
			c.terminate(context.Background(), ReasonCompleted, true, gen)
			return
		case types.PayloadTerminal:
			reason := p.Text
			if reason == "" {
				reason = ReasonNoAgents
			}
			c.terminate(context.Background(), reason, true, gen)
			return
		case types.PayloadMalformed:
			c.terminate(context.Background(), ReasonTechnical, true, gen)
			return
		default:
			c.renderInbound(p)
		}
	}
}

func (c *Controller) renderInbound(p types.ClassifiedPayload) {
	c.mu.Lock()
	if c.agentName == "" && p.AgentName != "" {
		c.agentName = p.AgentName
	}
	name := c.agentName
	c.mu.Unlock()

	if p.Text == "" {
		return
	}

	msg := types.NewMessage(types.RoleLiveAgent, p.Text)
	msg.AgentName = name
	c.sink.Append(msg)
}

// touch records activity and pushes the idle deadline out.
func (c *Controller) touch() {
	c.touchGen(c.currentGen())
}

func (c *Controller) touchGen(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.status != StatusActive {
		return
	}
	c.lastActivityAt = time.Now()
	if c.idle != nil {
		c.idle.Reset(c.idleTimeout)
	}
}
