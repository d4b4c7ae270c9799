package localllm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"recipebox/internal/extract"
)

// DefaultModel is the vision model requested when none is configured.
const DefaultModel = "gemma-3-12b-it"

// Client is a recognizer backed by an OpenAI-compatible chat completions
// endpoint, such as a locally hosted vision model.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	model      string
}

// NewClient creates a client for the endpoint at apiURL. The apiKey is
// optional and sent as a bearer token when present.
func NewClient(apiURL, apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
	}
}

// Request represents the request body for the local LLM.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	User        string    `json:"user,omitempty"`
}

// Message represents a message in the request.
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content represents the content of a message.
type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents the image URL in the content.
type ImageURL struct {
	URL string `json:"url"`
}

// Response represents the response from the local LLM.
type Response struct {
	Choices []Choice `json:"choices"`
}

// Choice represents a choice in the response.
type Choice struct {
	Message ResponseMessage `json:"message"`
}

// ResponseMessage represents a message in the response.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Configured reports whether an endpoint was supplied.
func (c *Client) Configured() bool {
	return c.apiURL != ""
}

// Recognize sends the prompts and image in one chat completion request.
func (c *Client) Recognize(ctx context.Context, r extract.Recognition) (string, error) {
	if !c.Configured() {
		return "", extract.ErrMissingCredential
	}

	reqBody := Request{
		Model: c.model,
		Messages: []Message{
			{
				Role:    "system",
				Content: []Content{{Type: "text", Text: r.SystemPrompt}},
			},
			{
				Role: "user",
				Content: []Content{
					{
						Type: "text",
						Text: r.UserPrompt,
					},
					{
						Type: "image_url",
						ImageURL: &ImageURL{
							URL: "data:" + r.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(r.Image),
						},
					},
				},
			},
		},
		Temperature: 0.2,
		MaxTokens:   2048,
		User:        r.SessionID,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received non-OK status code: %d", resp.StatusCode)
	}

	var llmResp Response
	if err := json.NewDecoder(resp.Body).Decode(&llmResp); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(llmResp.Choices) == 0 {
		return "", fmt.Errorf("no content found in response")
	}
	slog.Debug("local LLM responded", "session_id", r.SessionID, "chars", len(llmResp.Choices[0].Message.Content))
	return llmResp.Choices[0].Message.Content, nil
}
