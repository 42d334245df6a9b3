// Package gateway is the single choke point for every JSON request the
// client core sends to the PRM backend. It attaches the bearer token,
// classifies failures and reports them through an injected notifier so UI
// code never has to duplicate error toasts.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"ainstein.io/client/session"
)

const defaultTimeout = 15 * time.Second

// Notifier receives a human-readable message for every failed request
// before the error is returned to the caller.
type Notifier func(message string)

// Gateway issues authenticated JSON requests against a fixed base URL.
type Gateway struct {
	baseURL string
	client  *http.Client
	tokens  session.Store
	notify  Notifier
	timeout time.Duration
}

// Option configures Gateway behavior.
type Option func(*Gateway)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithNotifier installs the failure notifier.
func WithNotifier(fn Notifier) Option {
	return func(g *Gateway) { g.notify = fn }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// New constructs a Gateway. The session store is read for the bearer token
// on every request; the gateway never writes it.
func New(baseURL string, tokens session.Store, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		tokens:  tokens,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Get issues a GET request and decodes the JSON response into out.
func (g *Gateway) Get(ctx context.Context, path string, out any) error {
	return g.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST request with an optional JSON body.
func (g *Gateway) Post(ctx context.Context, path string, body, out any) error {
	return g.Do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT request with an optional JSON body.
func (g *Gateway) Put(ctx context.Context, path string, body, out any) error {
	return g.Do(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE request.
func (g *Gateway) Delete(ctx context.Context, path string) error {
	return g.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do executes one request. A non-JSON or empty success response leaves out
// untouched and returns nil. Every failure path runs through the notifier
// exactly once before being returned.
func (g *Gateway) Do(ctx context.Context, method, path string, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return g.fail(&Error{Kind: KindTransport, Message: "encode request: " + err.Error()})
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return g.fail(&Error{Kind: KindTransport, Message: err.Error()})
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := g.tokens.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return g.fail(&Error{Kind: KindTransport, Message: transportMessage, cause: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return g.fail(serverError(resp))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return g.fail(&Error{Kind: KindTransport, Message: transportMessage, cause: err})
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return g.fail(&Error{Kind: KindServer, Status: resp.StatusCode, Message: "malformed server response"})
	}
	return nil
}

func (g *Gateway) fail(err *Error) error {
	if g.notify != nil {
		g.notify(err.Message)
	}
	return err
}

func serverError(resp *http.Response) *Error {
	kind := KindServer
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = KindAuth
	}
	message := strings.TrimSpace(http.StatusText(resp.StatusCode))
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && isJSON(resp.Header.Get("Content-Type")) {
		var envelope struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && strings.TrimSpace(envelope.Error.Message) != "" {
			message = strings.TrimSpace(envelope.Error.Message)
		}
	}
	return &Error{Kind: kind, Status: resp.StatusCode, Message: message}
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
