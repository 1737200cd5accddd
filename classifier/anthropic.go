package classifier

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/bosley/signspeak/camera"
)

// Anthropic classifies frames with a Claude vision model.
type Anthropic struct {
	APIKey string
	Model  string
}

func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (a *Anthropic) Classify(ctx context.Context, frame camera.Frame) (Prediction, error) {
	if a.APIKey == "" {
		return Prediction{}, errors.New("ANTHROPIC_API_KEY is empty")
	}
	if len(frame.Data) == 0 {
		return Prediction{}, ErrEmptyFrame
	}

	client := anthropic.NewClient(option.WithAPIKey(a.APIKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(frameMIME(frame.MIMEType, frame.Data), base64.StdEncoding.EncodeToString(frame.Data)),
				anthropic.NewTextBlock(userPrompt),
			),
		},
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("anthropic classify: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			slog.Debug("Anthropic classifier reply",
				"size", len(block.Text),
				"tokensIn", message.Usage.InputTokens,
				"tokensOut", message.Usage.OutputTokens)
			return parseReply(block.Text)
		}
	}
	return Prediction{}, fmt.Errorf("%w: no text content in Anthropic response", ErrBadReply)
}
