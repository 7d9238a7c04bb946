package llm

import (
	"context"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultChatModel      = "gpt-4o-mini"
	defaultEmbeddingModel = openai.SmallEmbedding3
)

// OpenAIProvider exposes chat completion and embeddings through one client.
type OpenAIProvider struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
}

// OpenAIOptions configure the provider. Zero values pick sane defaults.
type OpenAIOptions struct {
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
}

// NewOpenAIProvider builds a provider from an API key. An empty BaseURL
// targets api.openai.com; point it at any OpenAI-compatible server
// otherwise.
func NewOpenAIProvider(apiKey string, opts OpenAIOptions) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	chatModel := opts.ChatModel
	if chatModel == "" {
		chatModel = defaultChatModel
		log.Printf("⚠️  chat model not set, defaulting to %s", chatModel)
	}
	embeddingModel := openai.EmbeddingModel(opts.EmbeddingModel)
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModel
	}
	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(cfg),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
	}, nil
}

// Generate satisfies ModelFunc.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a helpful assistant answering from the provided context."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed satisfies EmbeddingFunc.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: p.embeddingModel,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("OpenAI returned no embeddings")
	}
	return resp.Data[0].Embedding, nil
}
