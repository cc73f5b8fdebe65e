// Package glpi writes tickets to a GLPI-compatible REST API.
//
// The API is session-based: every call after initSession carries the
// Session-Token and App-Token headers, and write payloads are wrapped in an
// {"input": ...} envelope. When the server invalidates a session mid-run the
// client re-authenticates once and replays the failed call through
// [transport.Caller].
package glpi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/deskbridge/deskbridge/internal/domain"
	"github.com/deskbridge/deskbridge/internal/ports"
	"github.com/deskbridge/deskbridge/internal/transport"
)

// Config carries the connection and credential settings. UserToken wins
// over Username/Password when both are present.
type Config struct {
	BaseURL   string
	AppToken  string
	UserToken string
	Username  string
	Password  string
}

// Client implements ports.Target against a GLPI REST endpoint.
type Client struct {
	baseURL   string
	appToken  string
	userToken string
	username  string
	password  string

	http ports.HTTPClient
	log  zerolog.Logger

	// call replays authenticated requests after a session refresh;
	// sessionCall only retries transient failures, so a bad credential
	// cannot loop through re-authentication.
	call        *transport.Caller
	sessionCall *transport.Caller

	mu      sync.RWMutex
	session string

	cacheMu sync.RWMutex
	caches  map[domain.ReferenceKind]map[string]int
}

// NewClient builds a target client. The retry policy is copied so the
// session refresh hook can bind to this instance without mutating the
// caller's policy.
func NewClient(cfg Config, httpClient ports.HTTPClient, caller *transport.Caller, log zerolog.Logger) *Client {
	c := &Client{
		baseURL:   cfg.BaseURL,
		appToken:  cfg.AppToken,
		userToken: cfg.UserToken,
		username:  cfg.Username,
		password:  cfg.Password,
		http:      httpClient,
		log:       log.With().Str("component", "glpi").Logger(),
		caches:    make(map[domain.ReferenceKind]map[string]int),
	}

	session := *caller
	session.Refresh = nil
	c.sessionCall = &session

	authed := *caller
	authed.Refresh = c.reopenSession
	c.call = &authed
	return c
}

// OpenSession authenticates and stores the session token. The user token
// is tried first; when the server rejects it and a username/password pair
// is also configured, basic auth gets one try before the failure surfaces.
// Opening an already-active session is an error.
func (c *Client) OpenSession(ctx context.Context) error {
	c.mu.RLock()
	active := c.session != ""
	c.mu.RUnlock()
	if active {
		return domain.ErrSessionOpen
	}

	token, err := c.initSession(ctx, c.authorization())
	if errors.Is(err, domain.ErrUnauthorized) && c.userToken != "" && c.username != "" {
		c.log.Warn().Msg("user token rejected, trying basic auth")
		token, err = c.initSession(ctx, c.basicAuthorization())
	}
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	if token == "" {
		return errors.New("open session: server returned an empty session token")
	}

	c.mu.Lock()
	c.session = token
	c.mu.Unlock()
	c.log.Debug().Msg("session opened")
	return nil
}

// CloseSession invalidates the session. Closing a closed or never opened
// session is a no-op, so teardown paths can always call it.
func (c *Client) CloseSession(ctx context.Context) error {
	c.mu.Lock()
	token := c.session
	c.session = ""
	c.mu.Unlock()
	if token == "" {
		return nil
	}

	err := c.sessionCall.Call(ctx, "kill session", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/killSession", nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Session-Token", token)
		req.Header.Set("App-Token", c.appToken)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		// A 401 here means the server already dropped the session,
		// which is the outcome we wanted.
		if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusUnauthorized {
			return transport.NewStatusError("kill session", resp)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	c.log.Debug().Msg("session closed")
	return nil
}

// reopenSession discards the stored token and authenticates again. Wired
// into the retry policy as the auth-failure refresh hook.
func (c *Client) reopenSession(ctx context.Context) error {
	c.log.Warn().Msg("session rejected by server, re-authenticating")
	c.mu.Lock()
	c.session = ""
	c.mu.Unlock()
	return c.OpenSession(ctx)
}

// initSession performs one authentication attempt with the given
// Authorization header value and returns the granted session token.
func (c *Client) initSession(ctx context.Context, auth string) (string, error) {
	var token string
	err := c.sessionCall.Call(ctx, "init session", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/initSession", nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("App-Token", c.appToken)
		req.Header.Set("Authorization", auth)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %v", domain.ErrUnauthorized, transport.NewStatusError("init session", resp))
		}
		if resp.StatusCode/100 != 2 {
			return transport.NewStatusError("init session", resp)
		}

		var out struct {
			SessionToken string `json:"session_token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		token = out.SessionToken
		return nil
	})
	return token, err
}

func (c *Client) authorization() string {
	if c.userToken != "" {
		return "user_token " + c.userToken
	}
	return c.basicAuthorization()
}

func (c *Client) basicAuthorization() string {
	creds := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
	return "Basic " + creds
}

// inputPayload is the write envelope every mutating endpoint expects.
type inputPayload struct {
	Input any `json:"input"`
}

// do performs one authenticated request under the retry policy, decoding
// the response into out when out is non-nil. The session token is read
// inside the retried closure so a replay after re-authentication picks up
// the fresh token.
func (c *Client) do(ctx context.Context, op, method, rawurl string, payload, out any) error {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode payload: %w", op, err)
		}
	}

	return c.call.Call(ctx, op, func(ctx context.Context) error {
		c.mu.RLock()
		token := c.session
		c.mu.RUnlock()
		if token == "" {
			return domain.ErrNoSession
		}

		var body io.Reader
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawurl, body)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Session-Token", token)
		req.Header.Set("App-Token", c.appToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %v", domain.ErrSessionExpired, transport.NewStatusError(op, resp))
		}
		if resp.StatusCode/100 != 2 {
			return transport.NewStatusError(op, resp)
		}
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}
