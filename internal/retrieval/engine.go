package retrieval

import (
	"context"
	"log/slog"

	"github.com/contractclarity/engine/internal/domain"
)

// Searcher is the read-only view of the index the engine needs.
type Searcher interface {
	Search(ctx context.Context, category domain.Category, query []float32, topK int, floor float64) ([]domain.Citation, error)
}

// Engine retrieves the provisions grounding a contract analysis.
// Retrieval is an enhancement, not a requirement: every failure past
// category validation degrades to an empty context so the pipeline can
// proceed ungrounded.
type Engine struct {
	embedder Embedder
	index    Searcher
	maxTopK  int
	floor    float64
	logger   *slog.Logger
}

// NewEngine wires an embedder and an index into a retrieval engine.
// maxTopK caps requested fan-out; floor discards weak matches.
func NewEngine(embedder Embedder, index Searcher, maxTopK int, floor float64, logger *slog.Logger) *Engine {
	return &Engine{
		embedder: embedder,
		index:    index,
		maxTopK:  maxTopK,
		floor:    floor,
		logger:   logger,
	}
}

// Retrieve returns up to topK provisions from the category's partition,
// ranked by descending similarity. An unknown category is the only hard
// error; an unavailable or empty partition yields an empty context.
func (e *Engine) Retrieve(ctx context.Context, text string, category domain.Category, topK int) (domain.RetrievalContext, error) {
	if !category.Valid() {
		return domain.RetrievalContext{}, domain.ErrInvalidCategory(string(category))
	}
	if topK < 1 || topK > e.maxTopK {
		topK = e.maxTopK
	}

	rc := domain.RetrievalContext{Category: category}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("embedding failed, proceeding without citations",
			slog.String("category", string(category)),
			slog.String("error", err.Error()))
		return rc, nil
	}

	hits, err := e.index.Search(ctx, category, vec, topK, e.floor)
	if err != nil {
		e.logger.Warn("index search failed, proceeding without citations",
			slog.String("category", string(category)),
			slog.String("error", err.Error()))
		return rc, nil
	}

	rc.Citations = hits
	return rc, nil
}
