package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedding_Deterministic(t *testing.T) {
	embed := HashEmbedding(64)
	ctx := context.Background()

	a, err := embed(ctx, "the sky is blue")
	require.NoError(t, err)
	b, err := embed(ctx, "the sky is blue")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashEmbedding_WordOverlap(t *testing.T) {
	embed := HashEmbedding(64)
	ctx := context.Background()

	sky, _ := embed(ctx, "the sky is blue")
	similar, _ := embed(ctx, "what color is the sky")
	unrelated, _ := embed(ctx, "badger storage engine compaction")

	assert.Greater(t, dot(sky, similar), dot(sky, unrelated))
}

func TestHashEmbedding_DefaultDimensions(t *testing.T) {
	embed := HashEmbedding(0)
	vec, err := embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 256)
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
