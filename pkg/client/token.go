package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mudler/xlog"

	"github.com/workpal/pulse/core/types"
)

// TokenClient issues and caches bearer tokens per domain id. Tokens are
// reused until their TTL runs out; a forced refresh bypasses the cache.
type TokenClient struct {
	client        *Client
	authorization string
	ttl           time.Duration

	mu    sync.Mutex
	cache map[string]cachedToken

	now func() time.Time
}

type cachedToken struct {
	token  string
	expiry time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// NewTokenClient creates a token client. authorization is the value sent in
// the Authorization header of the token request.
func NewTokenClient(baseURL, authorization string, ttl time.Duration) *TokenClient {
	return &TokenClient{
		client:        NewClient(baseURL, 0),
		authorization: authorization,
		ttl:           ttl,
		cache:         map[string]cachedToken{},
		now:           time.Now,
	}
}

// GetToken returns a bearer token for the domain, from cache when still
// valid.
func (t *TokenClient) GetToken(ctx context.Context, domainID string) (string, error) {
	return t.getToken(ctx, domainID, false)
}

// RefreshToken fetches a fresh token regardless of the cache.
func (t *TokenClient) RefreshToken(ctx context.Context, domainID string) (string, error) {
	return t.getToken(ctx, domainID, true)
}

func (t *TokenClient) getToken(ctx context.Context, domainID string, force bool) (string, error) {
	if !force {
		t.mu.Lock()
		cached, ok := t.cache[domainID]
		t.mu.Unlock()
		if ok && t.now().Before(cached.expiry) {
			return cached.token, nil
		}
	}

	headers := map[string]string{}
	if t.authorization != "" {
		headers["Authorization"] = t.authorization
	}

	resp, err := t.client.doRequest(ctx, http.MethodPost, "/token", map[string]string{"domainid": domainID}, headers)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return "", &types.ChatError{Kind: types.ErrToken, Status: status, Err: err}
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", &types.ChatError{Kind: types.ErrToken, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return "", &types.ChatError{Kind: types.ErrToken, Err: fmt.Errorf("empty access token for domain %s", domainID)}
	}

	t.mu.Lock()
	t.cache[domainID] = cachedToken{token: tr.AccessToken, expiry: t.now().Add(t.ttl)}
	t.mu.Unlock()

	xlog.Debug("Fetched token", "domain", domainID)
	return tr.AccessToken, nil
}

// ClearToken drops the cached token for a domain.
func (t *TokenClient) ClearToken(domainID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cache, domainID)
}

// ClearAllTokens drops every cached token.
func (t *TokenClient) ClearAllTokens() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = map[string]cachedToken{}
}
