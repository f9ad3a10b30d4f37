package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/core"
)

type OpenAILLM struct {
	client      *openai.Client
	model       string
	temperature float64
}

func NewOpenAILLM(baseURL, apiKey, model string, temperature float32) *OpenAILLM {
	options := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey == "" {
		log.Info("no OpenAI API key configured, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(apiKey))
	}

	client := openai.NewClient(options...)
	return &OpenAILLM{client: &client, model: model, temperature: float64(temperature)}
}

func (o *OpenAILLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return o.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	})
}

func (o *OpenAILLM) GenerateWithImage(ctx context.Context, systemPrompt, userPrompt, imageURL string) (string, error) {
	return o.complete(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(userPrompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
		}),
	})
}

func (o *OpenAILLM) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       o.model,
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w: %w", core.ErrModelCallFailure, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: %w: no content choices", core.ErrModelCallFailure)
	}

	return resp.Choices[0].Message.Content, nil
}

var _ core.LLMProvider = (*OpenAILLM)(nil)
