package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bosley/signspeak/camera"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini classifies frames with a Google Gemini vision model.
type Gemini struct {
	APIKey string
	Model  string
}

func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (g *Gemini) Classify(ctx context.Context, frame camera.Frame) (Prediction, error) {
	if g.APIKey == "" {
		return Prediction{}, errors.New("GEMINI_API_KEY is empty")
	}
	if len(frame.Data) == 0 {
		return Prediction{}, ErrEmptyFrame
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return Prediction{}, fmt.Errorf("gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt())},
	}

	resp, err := m.GenerateContent(ctx,
		genai.Text(userPrompt),
		&genai.Blob{MIMEType: frameMIME(frame.MIMEType, frame.Data), Data: frame.Data},
	)
	if err != nil {
		return Prediction{}, fmt.Errorf("gemini classify: %w", err)
	}

	return parseReply(firstText(resp))
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok && strings.TrimSpace(string(t)) != "" {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
