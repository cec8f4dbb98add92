package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/workpal/pulse/core/types"
)

// ChatClient opens streaming chat responses. The question and domain travel
// in headers, the reply comes back as a text stream that may embed the
// hand-off marker anywhere.
type ChatClient struct {
	baseURL string
	tokens  *TokenClient
	// streaming reads must not be cut off by a client timeout, the server
	// owns stream lifetime
	httpClient *http.Client
}

// NewChatClient creates a streaming chat client backed by the given token
// issuer.
func NewChatClient(baseURL string, tokens *TokenClient) *ChatClient {
	return &ChatClient{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{},
	}
}

// StreamChat sends a question and returns the response body stream. The
// caller owns the stream and must close it.
func (c *ChatClient) StreamChat(ctx context.Context, question, domainID string) (io.ReadCloser, error) {
	token, err := c.tokens.GetToken(ctx, domainID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/workforceagent/chat", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("domainid", strings.ToUpper(domainID))
	req.Header.Set("question", question)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewTransportError(0, err)
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, types.NewTransportError(resp.StatusCode, fmt.Errorf("chat endpoint: %s", strings.TrimSpace(string(body))))
	}

	return resp.Body, nil
}
