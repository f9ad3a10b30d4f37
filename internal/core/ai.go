package core

import "context"

// EmbeddingProvider turns one text into one vector with a single network call.
// No retries happen at this layer.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// ModelName tags stored vectors so vectors from different models never mix.
	ModelName() string
}

// LLMProvider makes single-turn, non-streaming generation calls.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
	// GenerateWithImage sends the prompt and one image URL in the same user message.
	GenerateWithImage(ctx context.Context, systemPrompt, userPrompt, imageURL string) (string, error)
}
