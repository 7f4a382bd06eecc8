package embed

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skillscout/skillscout/internal/errors"
)

// Factory constructs the real embedder. Invoked at most once per
// successful initialization; a failed attempt is retried on the next
// embedding call.
type Factory func(ctx context.Context) (Embedder, error)

// Lazy defers embedder construction until the first embedding call, so
// the process can answer list_skills and health requests while the model
// is still cold. Concurrent first use is serialized by the init mutex.
type Lazy struct {
	model   string
	factory Factory
	logger  *slog.Logger

	initMu sync.Mutex
	inner  Embedder
}

// NewLazy creates a lazy provider around factory. model is the
// identifier reported before initialization completes.
func NewLazy(model string, factory Factory, logger *slog.Logger) *Lazy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lazy{model: model, factory: factory, logger: logger}
}

// NewProvider builds the lazy provider for the configured model.
// Model names with a "static" prefix select the offline hash embedder;
// everything else goes to Ollama. The real embedder is wrapped in an
// LRU cache.
func NewProvider(model, ollamaHost string, logger *slog.Logger) *Lazy {
	factory := func(_ context.Context) (Embedder, error) {
		var inner Embedder
		if strings.HasPrefix(model, "static") {
			inner = NewStaticEmbedder()
		} else {
			inner = NewOllamaEmbedder(OllamaConfig{Host: ollamaHost, Model: model})
		}
		return NewCachedEmbedder(inner, DefaultCacheSize), nil
	}
	return NewLazy(model, factory, logger)
}

// get initializes the inner embedder exactly once. Callers racing on
// first use block until the winner finishes (or fails, in which case
// the next caller retries).
func (l *Lazy) get(ctx context.Context) (Embedder, error) {
	l.initMu.Lock()
	defer l.initMu.Unlock()

	if l.inner != nil {
		return l.inner, nil
	}

	l.logger.Info("loading embedding model", slog.String("model", l.model))
	start := time.Now()

	inner, err := l.factory(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeEmbedFailed, err)
	}

	l.logger.Info("embedding model ready",
		slog.String("model", l.model),
		slog.Duration("took", time.Since(start)))

	l.inner = inner
	return inner, nil
}

// Embed generates an embedding for a single text, initializing the
// model if needed.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	inner, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := inner.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(errors.CodeEmbedFailed, err)
	}
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts, initializing the
// model if needed.
func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inner, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	vecs, err := inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(errors.CodeEmbedFailed, err)
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension, or 0 before initialization.
func (l *Lazy) Dimensions() int {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	if l.inner == nil {
		return 0
	}
	return l.inner.Dimensions()
}

// ModelName returns the configured model identifier.
func (l *Lazy) ModelName() string { return l.model }

// Available reports whether the provider can serve embeddings. Before
// initialization it is optimistically true: the model loads on demand.
func (l *Lazy) Available(ctx context.Context) bool {
	l.initMu.Lock()
	inner := l.inner
	l.initMu.Unlock()

	if inner == nil {
		return true
	}
	return inner.Available(ctx)
}

// Loaded reports whether the model has been initialized.
func (l *Lazy) Loaded() bool {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	return l.inner != nil
}

// Close closes the inner embedder if it was initialized.
func (l *Lazy) Close() error {
	l.initMu.Lock()
	defer l.initMu.Unlock()
	if l.inner == nil {
		return nil
	}
	return l.inner.Close()
}
