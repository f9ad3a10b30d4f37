package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/Cadence/internal/core"
)

const imageFetchTimeout = 30 * time.Second

type GeminiLLM struct {
	client      *genai.Client
	modelName   string
	temperature float32
	httpClient  *http.Client
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string, temperature float32) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName, temperature: temperature, httpClient: newImageClient(imageFetchTimeout)}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) model(systemPrompt string) *genai.GenerativeModel {
	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(g.temperature)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	return m
}

func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := g.model(systemPrompt).GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w: %w", core.ErrModelCallFailure, err)
	}
	return responseText(resp), nil
}

// GenerateWithImage fetches the image itself since Gemini takes inline bytes
// rather than URLs.
func (g *GeminiLLM) GenerateWithImage(ctx context.Context, systemPrompt, userPrompt, imageURL string) (string, error) {
	data, mimeType, err := fetchImage(ctx, g.httpClient, imageURL)
	if err != nil {
		return "", fmt.Errorf("gemini image: %w: %w", core.ErrModelCallFailure, err)
	}
	format := strings.TrimPrefix(mimeType, "image/")
	resp, err := g.model(systemPrompt).GenerateContent(ctx, genai.Text(userPrompt), genai.ImageData(format, data))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w: %w", core.ErrModelCallFailure, err)
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
