package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"recipebox/internal/extract"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-1.5-flash"

// Client is a recognizer backed by the Gemini API.
type Client struct {
	client    *genai.Client
	modelName string
}

// NewClient creates a new Gemini client. An empty apiKey yields an
// unconfigured client that never touches the network, so the missing
// credential surfaces per request instead of at startup.
func NewClient(ctx context.Context, apiKey, modelName string) (*Client, error) {
	if modelName == "" {
		modelName = DefaultModel
	}
	if apiKey == "" {
		return &Client{modelName: modelName}, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Client{client: client, modelName: modelName}, nil
}

// Configured reports whether an API key was supplied.
func (c *Client) Configured() bool {
	return c.client != nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Recognize starts a new chat session for req and returns the model's text.
func (c *Client) Recognize(ctx context.Context, req extract.Recognition) (string, error) {
	if c.client == nil {
		return "", extract.ErrMissingCredential
	}

	model := c.client.GenerativeModel(c.modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	model.ResponseMIMEType = "text/plain"

	// Each extraction runs in its own session; nothing is carried over.
	session := model.StartChat()
	slog.Debug("sending image to Gemini", "session_id", req.SessionID, "model", c.modelName, "bytes", len(req.Image))

	resp, err := session.SendMessage(ctx,
		genai.ImageData(imageFormat(req.MIMEType), req.Image),
		genai.Text(req.UserPrompt),
	)
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return sb.String(), nil
}

// imageFormat maps "image/png" to the "png" suffix genai.ImageData expects.
func imageFormat(mimeType string) string {
	if format, ok := strings.CutPrefix(mimeType, "image/"); ok && format != "" {
		return format
	}
	return "jpeg"
}
