package embed

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillscout/skillscout/internal/errors"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "extract tables from PDF files")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "extract tables from PDF files")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbedder_Normalized(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "database migration helper")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestStaticEmbedder_EmptyText(t *testing.T) {
	e := NewStaticEmbedder()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	query, _ := e.Embed(ctx, "work with pdf documents")
	near, _ := e.Embed(ctx, "tools for pdf documents and forms")
	far, _ := e.Embed(ctx, "kubernetes cluster autoscaling")

	assert.Greater(t, cosine(query, near), cosine(query, far))
}

func cosine(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestStaticEmbedder_Closed(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

// countingEmbedder wraps StaticEmbedder and counts inner calls, to
// observe cache behavior.
type countingEmbedder struct {
	*StaticEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(int64(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("repeat single embeds hit the cache", func(t *testing.T) {
		inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
		c := NewCachedEmbedder(inner, 16)

		first, err := c.Embed(ctx, "hello world")
		require.NoError(t, err)
		second, err := c.Embed(ctx, "hello world")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int64(1), inner.calls.Load())
	})

	t.Run("batch embeds only misses", func(t *testing.T) {
		inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
		c := NewCachedEmbedder(inner, 16)

		_, err := c.Embed(ctx, "alpha")
		require.NoError(t, err)

		vecs, err := c.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		for _, v := range vecs {
			assert.Len(t, v, StaticDimensions)
		}
		// alpha was cached; only beta and gamma reach the inner embedder.
		assert.Equal(t, int64(3), inner.calls.Load())
	})
}

func TestLazy(t *testing.T) {
	ctx := context.Background()

	t.Run("initializes once", func(t *testing.T) {
		var inits atomic.Int64
		l := NewLazy("static", func(context.Context) (Embedder, error) {
			inits.Add(1)
			return NewStaticEmbedder(), nil
		}, nil)

		assert.False(t, l.Loaded())
		assert.Zero(t, l.Dimensions())

		_, err := l.Embed(ctx, "first")
		require.NoError(t, err)
		_, err = l.EmbedBatch(ctx, []string{"second"})
		require.NoError(t, err)

		assert.Equal(t, int64(1), inits.Load())
		assert.True(t, l.Loaded())
		assert.Equal(t, StaticDimensions, l.Dimensions())
	})

	t.Run("failed init retried on next call", func(t *testing.T) {
		var inits atomic.Int64
		l := NewLazy("static", func(context.Context) (Embedder, error) {
			if inits.Add(1) == 1 {
				return nil, fmt.Errorf("model not ready")
			}
			return NewStaticEmbedder(), nil
		}, nil)

		_, err := l.Embed(ctx, "text")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeEmbedFailed))
		assert.False(t, l.Loaded())

		_, err = l.Embed(ctx, "text")
		require.NoError(t, err)
		assert.Equal(t, int64(2), inits.Load())
	})

	t.Run("available is optimistic before init", func(t *testing.T) {
		l := NewLazy("static", func(context.Context) (Embedder, error) {
			return NewStaticEmbedder(), nil
		}, nil)
		assert.True(t, l.Available(ctx))
	})
}

func TestNewProvider_SelectsStatic(t *testing.T) {
	l := NewProvider("static", "", nil)

	vec, err := l.Embed(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
	assert.Equal(t, "static", l.ModelName())
}

func TestNormalize(t *testing.T) {
	t.Run("unit length", func(t *testing.T) {
		v := Normalize([]float32{3, 4})
		assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		v := Normalize([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, v)
	})
}
