// Package assistant proxies chat requests to the backing language-model
// endpoint and meters AI token consumption against the organization's
// subscription.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

const (
	defaultBaseURL     = "https://api.mistral.ai"
	defaultModel       = "mistral-small-latest"
	completionsPath    = "/v1/chat/completions"
	defaultHTTPTimeout = 30 * time.Second
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is the assistant's answer plus the tokens the exchange consumed.
type Reply struct {
	Content    string
	TokensUsed int64
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client.
func NewClient(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = defaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// NewClientFromEnv reads AINSTEIN_LLM_API_KEY, AINSTEIN_LLM_MODEL and
// AINSTEIN_LLM_BASE.
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("AINSTEIN_LLM_API_KEY")
	if apiKey == "" {
		return nil, errors.New("AINSTEIN_LLM_API_KEY is not set")
	}
	return NewClient(apiKey, os.Getenv("AINSTEIN_LLM_MODEL"), os.Getenv("AINSTEIN_LLM_BASE")), nil
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends the conversation and returns the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message) (Reply, error) {
	if len(messages) == 0 {
		return Reply{}, errors.New("no messages to send")
	}
	payload := completionRequest{Model: c.model, Messages: messages}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return Reply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, &buf)
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Reply{}, fmt.Errorf("chat completion status %d", resp.StatusCode)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Reply{}, err
	}
	if len(out.Choices) == 0 {
		return Reply{}, errors.New("empty completion response")
	}
	return Reply{
		Content:    out.Choices[0].Message.Content,
		TokensUsed: out.Usage.TotalTokens,
	}, nil
}
