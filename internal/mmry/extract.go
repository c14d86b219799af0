// Package mmry is the memory-extraction exporter: it asks a model to
// distill a conversation into durable, reusable notes (decisions made,
// preferences stated, facts learned) rather than re-exporting the
// conversation verbatim.
package mmry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/byteowlz/hstry/internal/types"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second

	// DefaultModel is used when no model override is configured; chosen
	// for cost since extraction runs over potentially many conversations.
	DefaultModel = "claude-3-5-haiku-latest"
)

var errAPIKeyRequired = errors.New("mmry: ANTHROPIC_API_KEY not set")

// Client extracts durable memories from conversations via the
// Anthropic Messages API.
type Client struct {
	client     anthropic.Client
	model      anthropic.Model
	promptTmpl *template.Template
}

// NewClient builds a Client. apiKey is used only if ANTHROPIC_API_KEY
// is unset in the environment.
func NewClient(apiKey, model string) (*Client, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if model == "" {
		model = DefaultModel
	}

	tmpl, err := template.New("extract").Parse(extractPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("mmry: parse prompt template: %w", err)
	}

	return &Client{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:      anthropic.Model(model),
		promptTmpl: tmpl,
	}, nil
}

// Extract distills conv into a short, durable memory note.
func (c *Client) Extract(ctx context.Context, conv *types.Conversation) (string, error) {
	prompt, err := c.renderPrompt(conv)
	if err != nil {
		return "", fmt.Errorf("mmry: render prompt: %w", err)
	}
	return c.callWithRetry(ctx, prompt)
}

func (c *Client) renderPrompt(conv *types.Conversation) (string, error) {
	var b strings.Builder
	for _, m := range conv.Messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}

	var out strings.Builder
	err := c.promptTmpl.Execute(&out, extractData{
		Title:     conv.Title,
		Workspace: conv.Workspace,
		Body:      b.String(),
	})
	return out.String(), err
}

type extractData struct {
	Title     string
	Workspace string
	Body      string
}

func (c *Client) callWithRetry(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", fmt.Errorf("mmry: empty response")
			}
			block := message.Content[0]
			if block.Type != "text" {
				return "", fmt.Errorf("mmry: unexpected response block type %q", block.Type)
			}
			return block.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("mmry: non-retryable: %w", err)
		}
	}
	return "", fmt.Errorf("mmry: failed after %d attempts: %w", maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

const extractPromptTemplate = `You are extracting durable, reusable memories from a conversation transcript. Ignore small talk and transient tool chatter. Keep only: decisions made, preferences stated, facts learned, and open commitments.

Conversation: {{.Title}}
{{if .Workspace}}Workspace: {{.Workspace}}{{end}}

Transcript:
{{.Body}}

Write the extracted memories as a short bullet list. If nothing durable was said, respond with exactly: (nothing to extract)`
