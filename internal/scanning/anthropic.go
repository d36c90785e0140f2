package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic implements the Scanner interface using the Claude Messages API
type Anthropic struct {
	api     *anthropic.Client
	model   anthropic.Model
	timeout time.Duration
}

// NewAnthropic creates a new Anthropic Scanner instance
func NewAnthropic(apiKey, modelName string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if modelName == "" {
		modelName = "claude-haiku-4-5-20251001"
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{
		api:     &client,
		model:   anthropic.Model(modelName),
		timeout: 60 * time.Second,
	}, nil
}

// Invoke sends the image block followed by the prompt text
func (a *Anthropic) Invoke(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if mimeType == "" {
		mimeType = "image/png"
	}

	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   MaxTokens,
		Temperature: anthropic.Float(Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(image)),
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classifyCallError("anthropic API call", apiErr.StatusCode, err)
		}
		return "", classifyCallError("anthropic API call", 0, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return text.String(), nil
}

// Close is a no-op; the client holds no resources
func (a *Anthropic) Close() error {
	return nil
}
