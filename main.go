// pulse is a terminal client for the workforce-agent chat backend. It
// streams answers word by word, follows the live-agent hand-off flow and
// keeps a local history cache.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"github.com/workpal/pulse/core/conversations"
	"github.com/workpal/pulse/core/liveagent"
	"github.com/workpal/pulse/core/reconciler"
	"github.com/workpal/pulse/core/types"
	"github.com/workpal/pulse/db"
	"github.com/workpal/pulse/pkg/client"
	"github.com/workpal/pulse/pkg/config"
)

var (
	domainID   = os.Getenv("PULSE_DOMAIN_ID")
	emailID    = os.Getenv("PULSE_EMAIL_ID")
	userName   = os.Getenv("PULSE_USER_NAME")
	configPath = os.Getenv("PULSE_CONFIG")
	stateDir   = os.Getenv("PULSE_STATE_DIR")
)

func init() {
	if domainID == "" {
		panic("PULSE_DOMAIN_ID not set")
	}
	if emailID == "" {
		emailID = domainID + "@example.com"
	}
	if stateDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		stateDir = filepath.Join(cwd, "state")
	}
}

var (
	botColor    = color.New(color.FgGreen)
	agentColor  = color.New(color.FgMagenta)
	systemColor = color.New(color.FgYellow)
	promptColor = color.New(color.FgCyan, color.Bold)
)

// chatSink renders messages to the terminal and mirrors them into the
// in-memory tracker and the local cache.
type chatSink struct {
	tracker        *conversations.Tracker[string]
	cache          *db.Cache
	conversationID string
	cacheID        uuid.UUID
	haveCache      bool
}

func (s *chatSink) Append(msg *types.Message) {
	switch msg.Role {
	case types.RoleSystem:
		systemColor.Println(msg.Text)
	case types.RoleLiveAgent:
		name := msg.AgentName
		if name == "" {
			name = "Agent"
		}
		agentColor.Printf("%s: %s\n", name, msg.Text)
	}

	s.tracker.Append(s.conversationID, msg)
	if s.haveCache {
		if err := s.cache.AppendMessage(s.cacheID, msg); err != nil {
			xlog.Warn("Failed to cache message", "error", err)
		}
	}
}

func main() {
	cfg, err := config.Load(configPath)
	if err != nil {
		xlog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	identity := types.UserIdentity{UserID: domainID, EmailID: emailID, Name: userName}

	tokens := client.NewTokenClient(cfg.BaseURL, cfg.TokenAuthorization, cfg.TokenTTL)
	chat := client.NewChatClient(cfg.BaseURL, tokens)
	routing := client.NewRoutingClient(cfg.BaseURL, cfg.AgentToken, cfg.Timezone, identity)
	store := client.NewStoreClient(cfg.StoreBaseURL, domainID)

	os.MkdirAll(stateDir, 0755)
	sink := &chatSink{
		tracker:        conversations.NewTracker[string](cfg.IdleTimeout),
		conversationID: uuid.NewString(),
	}
	if cache, err := db.Open(filepath.Join(stateDir, "pulse.db")); err != nil {
		xlog.Warn("Local cache unavailable", "error", err)
	} else if conv, err := cache.CreateConversation(domainID, "New Chat"); err != nil {
		xlog.Warn("Local cache unavailable", "error", err)
	} else {
		sink.cache = cache
		sink.cacheID = conv.ID
		sink.haveCache = true
	}

	dialer := &liveagent.WSDialer{
		BaseURL:  cfg.WSBaseURL,
		Token:    cfg.AgentToken,
		Timezone: cfg.Timezone,
		Identity: identity,
	}
	controller := liveagent.New(routing, dialer, sink,
		liveagent.WithIdleTimeout(cfg.IdleTimeout),
		liveagent.WithTerminalPhrases(cfg.TerminalPhrases),
	)
	defer controller.Close()

	ctx := context.Background()
	fmt.Println("Hello! I'm here to help you with any questions you might have.")
	fmt.Println("Commands: /agent hr, /agent cc, /bot, /retry, /end, /quit")

	var lastQuestion string
	var lastAnswer *types.Message

	scanner := bufio.NewScanner(os.Stdin)
	for {
		promptColor.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "/retry" {
			if lastAnswer == nil || controller.Status() == liveagent.StatusActive {
				systemColor.Println("Nothing to regenerate.")
				continue
			}
			ask(ctx, cfg, chat, store, sink, lastQuestion, lastAnswer, true)
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := command(ctx, line, controller); quit {
				break
			}
			continue
		}

		if controller.Status() == liveagent.StatusActive {
			if err := controller.Send(ctx, line); err != nil {
				systemColor.Println(err.Error())
			}
			continue
		}

		msg := types.NewPendingMessage()
		ask(ctx, cfg, chat, store, sink, line, msg, false)
		lastQuestion, lastAnswer = line, msg
	}
}

func command(ctx context.Context, line string, controller *liveagent.Controller) bool {
	switch {
	case line == "/quit":
		return true
	case line == "/agent hr":
		controller.Start(ctx, config.GroupHRAdvisor)
	case line == "/agent cc":
		controller.Start(ctx, config.GroupContactCenter)
	case line == "/bot":
		controller.Start(ctx, liveagent.DestinationBot)
	case line == "/end":
		if err := controller.RequestEndChat(); err != nil {
			systemColor.Println(err.Error())
		} else {
			systemColor.Println("End the live agent chat? (/yes or /no)")
		}
	case line == "/yes":
		controller.ConfirmEndChat(ctx, true)
	case line == "/no":
		controller.ConfirmEndChat(ctx, false)
	default:
		systemColor.Println("Unknown command:", line)
	}
	return false
}

// ask runs one bot turn: stream the answer into msg, then offer the
// hand-off choices if the marker showed up. In replace mode msg is a
// previous answer being regenerated, so no user turn is recorded and the
// message is already tracked.
func ask(ctx context.Context, cfg *config.Config, chat *client.ChatClient, store *client.StoreClient, sink *chatSink, question string, msg *types.Message, replace bool) {
	if !replace {
		sink.Append(types.NewMessage(types.RoleUser, question))
	}

	printed := 0
	opts := []reconciler.Option{
		reconciler.WithMarker(cfg.HandoffMarker),
		reconciler.WithFramingPrefix(cfg.FramingPrefix),
		reconciler.WithWordDelay(cfg.WordDelay),
		reconciler.WithShortResponseBytes(cfg.ShortResponseBytes),
		reconciler.WithRecorder(store),
		reconciler.WithOnUpdate(func(m *types.Message) {
			if len(m.Text) > printed {
				botColor.Print(m.Text[printed:])
				printed = len(m.Text)
			}
		}),
	}
	if replace {
		opts = append(opts, reconciler.WithReplace())
	}
	session := reconciler.NewSession(msg, question, opts...)

	body, err := chat.StreamChat(ctx, question, domainID)
	if err != nil {
		session.Fail(err)
		fmt.Println()
		if !replace {
			sink.tracker.Append(sink.conversationID, msg)
		}
		return
	}
	defer body.Close()

	result, err := session.Run(ctx, body)
	fmt.Println()
	if err != nil && !errors.Is(err, context.Canceled) {
		xlog.Error("Stream failed", "error", err)
	}
	if !replace {
		sink.tracker.Append(sink.conversationID, msg)
	}

	if result.HandOff {
		systemColor.Println("A live agent is available for this request.")
		systemColor.Println("Choose: /agent hr (HR advisor), /agent cc (contact center), /bot (keep chatting with the bot)")
	}
}
