package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gqlchat/internal/chat"
)

var (
	httpTimeout = 10 * time.Second

	// ErrNetwork wraps failures where the request never produced a response.
	ErrNetwork = errors.New("network error")
)

// AuthError is a non-2xx answer from the identity service.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// LoginResult is the credential and user record issued by a successful login.
type LoginResult struct {
	Token string    `json:"token"`
	User  chat.User `json:"user"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// Identity talks to the authentication endpoints.
type Identity struct {
	baseURL    string
	httpClient *http.Client
}

func NewIdentity(baseURL string) *Identity {
	return &Identity{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: httpTimeout},
	}
}

// Login exchanges username and password for a credential. The returned user
// may be incomplete; callers fall back to identity recovery in that case.
func (c *Identity) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var resp LoginResult
	if err := c.doJSON(ctx, "/auth/login", loginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: login response carries no token", ErrInvalidPayload)
	}
	return &resp, nil
}

// Register creates an account. Any 2xx answer counts as success.
func (c *Identity) Register(ctx context.Context, username, password, displayName string) error {
	req := registerRequest{Username: username, Password: password, DisplayName: strings.TrimSpace(displayName)}
	return c.doJSON(ctx, "/auth/register", req, nil)
}

func (c *Identity) doJSON(ctx context.Context, path string, payload any, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &AuthError{Status: resp.StatusCode, Message: readResponseError(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if !isJSON(resp.Header.Get("Content-Type"), data) {
		return fmt.Errorf("%w: expected a JSON body", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func isJSON(contentType string, body []byte) bool {
	if strings.Contains(contentType, "json") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func readResponseError(data []byte) string {
	if len(bytes.TrimSpace(data)) == 0 {
		return "Authentication failed"
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err == nil {
		for _, field := range []string{"message", "error"} {
			if msg, ok := parsed[field].(string); ok && msg != "" {
				return msg
			}
		}
		return "Authentication failed"
	}
	return strings.TrimSpace(string(data))
}
