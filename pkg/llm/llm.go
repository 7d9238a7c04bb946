// Package llm defines the model and embedding seams the retrieval engine
// depends on, plus an OpenAI-backed provider for both.
package llm

import (
	"context"
	"hash/fnv"
	"strings"
)

// ModelFunc generates an answer for prompt. The retrieval engine passes the
// assembled context inside the prompt; implementations decide everything
// else (model, temperature, system persona).
type ModelFunc func(ctx context.Context, prompt string) (string, error)

// EmbeddingFunc embeds a single text.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

// HashEmbedding returns a deterministic token-hashing embedding. It is the
// local fallback when no provider is configured: adequate for development
// and word-overlap retrieval, not a substitute for a real model.
func HashEmbedding(dimensions int) EmbeddingFunc {
	if dimensions <= 0 {
		dimensions = 256
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dimensions)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			word = strings.Trim(word, ".,;:!?\"'()[]")
			if word == "" {
				continue
			}
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			vec[h.Sum32()%uint32(dimensions)]++
		}
		return vec, nil
	}
}
