package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/workpal/pulse/core/types"
)

func tokenHandler(mux *http.ServeMux) {
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	})
}

var _ = Describe("ChatClient", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("streams the response with question and domain in headers", func() {
		mux := http.NewServeMux()
		tokenHandler(mux)
		mux.HandleFunc("/workforceagent/chat", func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Method).To(Equal(http.MethodGet))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer tok-1"))
			Expect(r.Header.Get("domainid")).To(Equal("AB12345"))
			Expect(r.Header.Get("question")).To(Equal("How many PTO days do I have?"))
			io.WriteString(w, "You have 12 days left.")
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		tokens := NewTokenClient(server.URL, "", time.Hour)
		cc := NewChatClient(server.URL, tokens)

		body, err := cc.StreamChat(ctx, "How many PTO days do I have?", "ab12345")
		Expect(err).NotTo(HaveOccurred())
		defer body.Close()

		data, err := io.ReadAll(body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("You have 12 days left."))
	})

	It("wraps error statuses in a transport error", func() {
		mux := http.NewServeMux()
		tokenHandler(mux)
		mux.HandleFunc("/workforceagent/chat", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		tokens := NewTokenClient(server.URL, "", time.Hour)
		cc := NewChatClient(server.URL, tokens)

		_, err := cc.StreamChat(ctx, "hello", "ab12345")
		Expect(err).To(HaveOccurred())

		var chatErr *types.ChatError
		Expect(errors.As(err, &chatErr)).To(BeTrue())
		Expect(chatErr.Status).To(Equal(http.StatusServiceUnavailable))
		Expect(chatErr.UserNote()).To(Equal(types.NoteUnavailable))
	})

	It("fails before sending when no token can be issued", func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusUnauthorized)
		})
		chatHit := false
		mux.HandleFunc("/workforceagent/chat", func(w http.ResponseWriter, r *http.Request) {
			chatHit = true
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		tokens := NewTokenClient(server.URL, "", time.Hour)
		cc := NewChatClient(server.URL, tokens)

		_, err := cc.StreamChat(ctx, "hello", "ab12345")
		Expect(err).To(HaveOccurred())
		Expect(chatHit).To(BeFalse())
	})
})
