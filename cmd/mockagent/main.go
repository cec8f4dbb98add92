// mockagent is a local stand-in for the workforce-agent backend so the chat
// client can be exercised without network access: token issuance, a
// word-streamed chat reply with framing artifact lines, the routing
// endpoint and a live-agent websocket that echoes back.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/mudler/xlog"
	"github.com/valyala/fasthttp"

	"github.com/workpal/pulse/core/types"
)

var (
	httpAddr = envOr("MOCKAGENT_ADDR", ":8088")
	wsAddr   = envOr("MOCKAGENT_WS_ADDR", ":8089")
)

const canned = "Our PTO policy allows 15 days of paid time off per year, " +
	"accrued monthly. Unused days roll over up to a cap of 30 days. " +
	"Submit requests through the usual portal at least two weeks ahead."

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	go serveWebsocket()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Post("/token", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"access_token": "mock-token-" + fmt.Sprint(time.Now().Unix())})
	})

	app.Get("/workforceagent/chat", func(c *fiber.Ctx) error {
		question := c.Get("question")
		handoff := strings.Contains(strings.ToLower(question), "agent")

		c.Context().SetContentType("text/plain; charset=utf-8")
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			words := strings.Split(canned, " ")
			for i, word := range words {
				if i > 0 {
					fmt.Fprint(w, " ")
				}
				fmt.Fprint(w, word)
				// framing artifact lines the real backend leaks
				if i%7 == 6 {
					fmt.Fprintf(w, "\nid: %d\n", i)
				}
				w.Flush()
				time.Sleep(20 * time.Millisecond)
			}
			if handoff {
				fmt.Fprint(w, " <<LiveAgent>>")
				w.Flush()
			}
		}))
		return nil
	})

	app.Post("/user/to/agent/servicenow", func(c *fiber.Ctx) error {
		var envelope types.AgentEnvelope
		if err := c.BodyParser(&envelope); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad payload"})
		}
		xlog.Info("Routing notification", "requestId", envelope.RequestID, "action", envelope.Action)
		return c.JSON(fiber.Map{"status": "ok"})
	})

	xlog.Info("mockagent listening", "http", httpAddr, "ws", wsAddr)
	if err := app.Listen(httpAddr); err != nil {
		xlog.Error("mockagent exited", "error", err)
		os.Exit(1)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveWebsocket runs the live-agent channel on its own listener: fasthttp
// cannot host a gorilla upgrade.
func serveWebsocket() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimPrefix(r.URL.Path, "/ws/")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			xlog.Error("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()
		xlog.Info("agent channel open", "requestId", requestID)

		greeting := types.AgentPayload{
			Text:      "Hi, this is Morgan. How can I help you today?",
			AgentName: "Morgan",
		}
		if err := conn.WriteJSON(greeting); err != nil {
			return
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				xlog.Info("agent channel closed", "requestId", requestID)
				return
			}

			var envelope types.AgentEnvelope
			if err := json.Unmarshal(data, &envelope); err != nil {
				continue
			}

			if strings.Contains(strings.ToLower(envelope.Message.Text), "bye") {
				conn.WriteJSON(types.AgentPayload{Completed: true, AgentName: "Morgan"})
				return
			}

			reply := types.AgentPayload{
				Body: []types.BodyEntry{
					{UIType: "OutputText", Value: "You said: " + envelope.Message.Text},
				},
				AgentName: "Morgan",
			}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	})

	if err := http.ListenAndServe(wsAddr, mux); err != nil {
		xlog.Error("websocket listener exited", "error", err)
	}
}
