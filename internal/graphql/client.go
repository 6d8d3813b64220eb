package graphql

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
)

var (
	httpTimeout = 10 * time.Second

	// ErrUnauthorized is returned when the server rejects the credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// Operation is a GraphQL document plus its variables.
type Operation struct {
	Name      string
	Query     string
	Variables map[string]any
}

// TokenSource returns the bearer credential for the next request; "" sends none.
type TokenSource func() string

type tokenKey struct{}

// WithToken scopes a credential to ctx. It takes precedence over the
// client's TokenSource for requests and subscriptions made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// Bearer returns the credential requests made with ctx are sent with.
func (c *Client) Bearer(ctx context.Context) string {
	if token, ok := ctx.Value(tokenKey{}).(string); ok && token != "" {
		return token
	}
	return c.token()
}

// Client talks to a GraphQL endpoint over HTTP for queries and mutations and
// over a websocket for subscriptions.
type Client struct {
	endpoint        string
	subscriptionURL string
	token           TokenSource
	httpClient      *http.Client
}

// NewClient builds a client. subscriptionURL may be empty, in which case it
// is derived from endpoint by switching the scheme to ws/wss.
func NewClient(endpoint, subscriptionURL string, token TokenSource) *Client {
	if subscriptionURL == "" {
		subscriptionURL = WebsocketURL(endpoint)
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		endpoint:        endpoint,
		subscriptionURL: subscriptionURL,
		token:           token,
		httpClient:      &http.Client{Timeout: httpTimeout},
	}
}

type request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorEntry    `json:"errors"`
}

// ErrorEntry is one item of a GraphQL errors array.
type ErrorEntry struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// ResponseError reports GraphQL-level errors returned alongside a 2xx status.
type ResponseError struct {
	Errors []ErrorEntry
}

func (e *ResponseError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, entry := range e.Errors {
		msgs = append(msgs, entry.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graphql: server returned %d: %s", e.Code, e.Body)
}

// Do executes a query or mutation and decodes the data object into out.
func (c *Client) Do(ctx context.Context, op Operation, out any) error {
	payload, err := json.Marshal(request{Query: op.Query, Variables: op.Variables, OperationName: op.Name})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.Bearer(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("graphql: decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return &ResponseError{Errors: decoded.Errors}
	}
	if out == nil || len(decoded.Data) == 0 || string(decoded.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("graphql: decode data: %w", err)
	}
	return nil
}

// WebsocketURL switches an http(s) endpoint to ws(s). Other values are
// returned unchanged.
func WebsocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}
