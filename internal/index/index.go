// Package index maintains the in-memory skill search index: an ordered
// skill sequence and a matrix of L2-normalized description embeddings,
// guarded together by one lock.
package index

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/skillscout/skillscout/internal/embed"
	"github.com/skillscout/skillscout/internal/skill"
)

// Result is one search hit: a skill snapshot plus its raw cosine score.
type Result struct {
	Skill skill.Skill
	// Score is the raw cosine similarity in [-1, 1]; no threshold is
	// applied.
	Score float64
}

// Index is the thread-safe mapping of skills to embedding rows.
// Mutations and queries hold the single mutex for their full duration;
// queries are a matrix-vector product over at most a few thousand rows,
// so coarse locking stays cheap. Embedding (network I/O) always happens
// before the lock is taken.
type Index struct {
	embedder embed.Embedder
	logger   *slog.Logger

	mu     sync.Mutex
	skills []skill.Skill
	matrix [][]float32 // row i is the normalized embedding of skills[i]
}

// New creates an empty index backed by the given embedder.
func New(embedder embed.Embedder, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{embedder: embedder, logger: logger}
}

// IndexSkills replaces the entire index with the given skills.
// All-or-nothing: on embedding failure the previous state is kept.
func (ix *Index) IndexSkills(ctx context.Context, skills []skill.Skill) error {
	rows, err := ix.embedRows(ctx, skills)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.skills = append([]skill.Skill(nil), skills...)
	ix.matrix = rows

	ix.logger.Info("index rebuilt", slog.Int("skills", len(skills)))
	return nil
}

// AddSkills appends skills to the index. Name collisions replace the
// existing entry: the old skill and its embedding row are removed before
// the new ones are appended, keeping names unique. All-or-nothing: on
// embedding failure the index is unchanged.
func (ix *Index) AddSkills(ctx context.Context, skills []skill.Skill) error {
	if len(skills) == 0 {
		return nil
	}

	rows, err := ix.embedRows(ctx, skills)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	incoming := make(map[string]struct{}, len(skills))
	for _, sk := range skills {
		incoming[sk.Name] = struct{}{}
	}
	ix.removeLocked(func(sk *skill.Skill) bool {
		_, collides := incoming[sk.Name]
		return collides
	})

	ix.skills = append(ix.skills, skills...)
	ix.matrix = append(ix.matrix, rows...)

	ix.logger.Info("skills added",
		slog.Int("added", len(skills)),
		slog.Int("total", len(ix.skills)))
	return nil
}

// ReplaceSource swaps every skill from sourceID for the given batch in
// one step: embedding happens first, so a failure leaves the old rows
// in place, and vanished skills are dropped together with the append.
func (ix *Index) ReplaceSource(ctx context.Context, sourceID string, skills []skill.Skill) error {
	rows, err := ix.embedRows(ctx, skills)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	incoming := make(map[string]struct{}, len(skills))
	for _, sk := range skills {
		incoming[sk.Name] = struct{}{}
	}
	removed := ix.removeLocked(func(sk *skill.Skill) bool {
		if sk.Source == sourceID {
			return true
		}
		_, collides := incoming[sk.Name]
		return collides
	})

	ix.skills = append(ix.skills, skills...)
	ix.matrix = append(ix.matrix, rows...)

	ix.logger.Info("source replaced",
		slog.String("source", sourceID),
		slog.Int("removed", removed),
		slog.Int("added", len(skills)))
	return nil
}

// RemoveBySource drops every skill whose Source matches sourceID and
// returns how many were removed.
func (ix *Index) RemoveBySource(sourceID string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := ix.removeLocked(func(sk *skill.Skill) bool {
		return sk.Source == sourceID
	})
	if removed > 0 {
		ix.logger.Info("skills removed",
			slog.String("source", sourceID),
			slog.Int("removed", removed))
	}
	return removed
}

// removeLocked filters skills and matrix rows in lockstep. Caller holds mu.
func (ix *Index) removeLocked(drop func(*skill.Skill) bool) int {
	kept := ix.skills[:0]
	keptRows := ix.matrix[:0]
	removed := 0

	for i := range ix.skills {
		if drop(&ix.skills[i]) {
			removed++
			continue
		}
		kept = append(kept, ix.skills[i])
		keptRows = append(keptRows, ix.matrix[i])
	}

	ix.skills = kept
	ix.matrix = keptRows
	return removed
}

// embedRows embeds all descriptions in one batch and normalizes them.
// Runs outside the index lock.
func (ix *Index) embedRows(ctx context.Context, skills []skill.Skill) ([][]float32, error) {
	descriptions := make([]string, len(skills))
	for i, sk := range skills {
		descriptions[i] = sk.Description
	}

	vecs, err := ix.embedder.EmbedBatch(ctx, descriptions)
	if err != nil {
		return nil, err
	}

	rows := make([][]float32, len(vecs))
	for i, v := range vecs {
		rows[i] = embed.Normalize(v)
	}
	return rows, nil
}

// Search returns the topK most similar visible skills for the query.
// Visibility follows the scope rules: global skills always qualify;
// tenant skills require a matching tenantID and explicit presence in
// allowedNames. Ties break on lower insertion index. A query embedding
// to the zero vector yields insertion-order results with equal scores.
func (ix *Index) Search(ctx context.Context, query string, topK int, tenantID string, allowedNames []string) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}

	// Embed before locking; no lock is held across network I/O.
	qvec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	q := embed.Normalize(qvec)

	allowed := make(map[string]struct{}, len(allowedNames))
	for _, name := range allowedNames {
		allowed[name] = struct{}{}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Candidate set first, similarity second.
	var candidates []int
	for i := range ix.skills {
		if ix.skills[i].VisibleTo(tenantID, allowed) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	sims := make([]scored, len(candidates))
	for n, i := range candidates {
		sims[n] = scored{idx: i, score: dot(q, ix.matrix[i])}
	}

	sort.SliceStable(sims, func(a, b int) bool {
		if sims[a].score != sims[b].score {
			return sims[a].score > sims[b].score
		}
		return sims[a].idx < sims[b].idx
	})

	if topK > len(sims) {
		topK = len(sims)
	}

	results := make([]Result, topK)
	for n := 0; n < topK; n++ {
		results[n] = Result{Skill: ix.skills[sims[n].idx], Score: sims[n].score}
	}
	return results, nil
}

// Get returns the indexed skill with the given name.
func (ix *Index) Get(name string) (skill.Skill, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for i := range ix.skills {
		if ix.skills[i].Name == name {
			return ix.skills[i], true
		}
	}
	return skill.Skill{}, false
}

// List returns a snapshot of every indexed skill in insertion order.
// No visibility filtering; used by the list_skills tool.
func (ix *Index) List() []skill.Snapshot {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	snaps := make([]skill.Snapshot, len(ix.skills))
	for i := range ix.skills {
		snaps[i] = ix.skills[i].Snapshot()
	}
	return snaps
}

// Len returns the number of indexed skills.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.skills)
}

// Rows returns the embedding row count. Always equals Len; exposed for
// invariant checks in tests and the health endpoint.
func (ix *Index) Rows() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.matrix)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
