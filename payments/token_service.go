package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tokenRefreshMargin keeps a cached token from expiring mid-request.
const tokenRefreshMargin = 5 * time.Minute

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// tokenCache holds an OAuth client-credentials token and refreshes it once
// it is close to expiry.
type tokenCache struct {
	url          string
	clientID     string
	clientSecret string
	client       *http.Client
	now          func() time.Time
	logger       *zap.Logger

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

func (c *tokenCache) get(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.token != "" && c.now().Before(c.expiry) {
		token := c.token
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry) {
		return c.token, nil
	}

	c.logger.Debug("fetching access token")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{op: "fetch access token", code: resp.StatusCode, body: readSnippet(resp)}
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decoding access token: %w", err)
	}

	c.token = tokenResp.AccessToken
	c.expiry = c.now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - tokenRefreshMargin)
	return c.token, nil
}

// invalidate drops the cached token after the provider rejected it.
func (c *tokenCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}
