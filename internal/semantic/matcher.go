package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/falox/observability-assistant-router/internal/config"
)

// MaxMessageLength bounds the text Match/ComputeSimilarity will embed, to
// prevent denial-of-service via oversized inputs.
const MaxMessageLength = 10000

// ErrNotInitialized is returned when Match/ComputeSimilarity is called
// before an index has been built — an operational failure, not a request
// validation failure.
var ErrNotInitialized = errors.New("semantic: matcher not initialized")

// ErrInvalidInput marks a request-level validation failure: an empty,
// whitespace-only, or over-length message.
var ErrInvalidInput = errors.New("semantic: invalid message")

// Match is one scored candidate returned by Matcher.Match: the agent, its
// best-scoring example, and that example's similarity to the query.
type Match struct {
	Agent   *config.Agent
	Score   float32
	Example string
}

type indexRow struct {
	agentIdx int
	example  string
	vector   []float32
}

// Index is the prebuilt set of L2-normalized example embeddings for every
// agent configured with routing examples. It is immutable once built;
// rebuilding produces a new Index rather than mutating this one, so the
// Reloader can swap it atomically alongside the Catalog it was built from.
type Index struct {
	agents []*config.Agent
	rows   []indexRow
}

// BuildIndex embeds every example utterance of every agent in catalog that
// has a non-empty routing.examples list. Agents without routing, or with
// an empty examples list, are intentionally absent from the index.
func BuildIndex(ctx context.Context, embedder Embedder, catalog *config.Catalog) (*Index, error) {
	agents := make([]*config.Agent, len(catalog.Agents))
	for i := range catalog.Agents {
		agents[i] = &catalog.Agents[i]
	}

	var texts []string
	var owners []int
	for agentIdx, agent := range agents {
		if !agent.HasExamples() {
			continue
		}
		for _, example := range agent.Routing.Examples {
			texts = append(texts, example)
			owners = append(owners, agentIdx)
		}
	}

	idx := &Index{agents: agents}
	if len(texts) == 0 {
		return idx, nil
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("build semantic index: %w", err)
	}

	idx.rows = make([]indexRow, len(texts))
	for i, v := range vectors {
		idx.rows[i] = indexRow{agentIdx: owners[i], example: texts[i], vector: v}
	}
	return idx, nil
}

// Matcher scores incoming messages against a prebuilt Index, using embedder
// for on-demand embedding when ComputeSimilarity is asked about an agent
// absent from the index, and cache to avoid repeatedly re-embedding the
// same agent's examples during a session's lifetime.
type Matcher struct {
	embedder Embedder
	cache    *lru.Cache[string, [][]float32]
	log      *slog.Logger
}

// NewMatcher constructs a Matcher with an on-demand embedding cache sized
// cacheSize (number of agents' example sets retained).
func NewMatcher(embedder Embedder, cacheSize int, log *slog.Logger) (*Matcher, error) {
	if cacheSize <= 0 {
		cacheSize = 32
	}
	cache, err := lru.New[string, [][]float32](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Matcher{embedder: embedder, cache: cache, log: log}, nil
}

func validateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return fmt.Errorf("%w: message cannot be empty", ErrInvalidInput)
	}
	if len(msg) > MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, MaxMessageLength)
	}
	return nil
}

// Match returns every agent whose best example exceeds its own routing
// threshold, sorted by descending score then ascending priority.
func (m *Matcher) Match(ctx context.Context, idx *Index, msg string) ([]Match, error) {
	if idx == nil {
		return nil, ErrNotInitialized
	}
	if err := validateMessage(msg); err != nil {
		return nil, err
	}
	if len(idx.rows) == 0 {
		return nil, nil
	}

	queryVec, err := m.embedder.Embed(ctx, []string{msg})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrNotInitialized, err)
	}
	query := queryVec[0]

	type best struct {
		score   float32
		example string
	}
	bestByAgent := make(map[int]best)
	for _, row := range idx.rows {
		score := dot(row.vector, query)
		cur, ok := bestByAgent[row.agentIdx]
		if !ok || score > cur.score {
			bestByAgent[row.agentIdx] = best{score: score, example: row.example}
		}
	}

	var matches []Match
	for agentIdx, b := range bestByAgent {
		agent := idx.agents[agentIdx]
		if agent.Routing == nil {
			continue
		}
		if b.score >= float32(agent.Routing.Threshold) {
			matches = append(matches, Match{Agent: agent, Score: b.score, Example: b.example})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Agent.Routing.Priority < matches[j].Agent.Routing.Priority
	})

	return matches, nil
}

// MatchBest returns the top-ranked Match, or nil if none exceed threshold.
func (m *Matcher) MatchBest(ctx context.Context, idx *Index, msg string) (*Match, error) {
	matches, err := m.Match(ctx, idx, msg)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// ComputeSimilarity returns the maximum similarity of msg against agent's
// examples: using the prebuilt index's cached vectors if agent is present
// in it, otherwise embedding the agent's examples on demand (and caching
// that result). Returns 0 if the agent has no examples.
func (m *Matcher) ComputeSimilarity(ctx context.Context, idx *Index, msg string, agent *config.Agent) (float32, error) {
	if idx == nil {
		return 0, ErrNotInitialized
	}
	if err := validateMessage(msg); err != nil {
		return 0, err
	}
	if !agent.HasExamples() {
		return 0, nil
	}

	queryVec, err := m.embedder.Embed(ctx, []string{msg})
	if err != nil {
		return 0, fmt.Errorf("%w: embed query: %v", ErrNotInitialized, err)
	}
	query := queryVec[0]

	var cachedVectors [][]float32
	for _, row := range idx.rows {
		if idx.agents[row.agentIdx].ID == agent.ID {
			cachedVectors = append(cachedVectors, row.vector)
		}
	}
	if len(cachedVectors) > 0 {
		return maxDot(cachedVectors, query), nil
	}

	if v, ok := m.cache.Get(agent.ID); ok {
		return maxDot(v, query), nil
	}

	vectors, err := m.embedder.Embed(ctx, agent.Routing.Examples)
	if err != nil {
		return 0, fmt.Errorf("embed agent examples on demand: %w", err)
	}
	m.cache.Add(agent.ID, vectors)
	return maxDot(vectors, query), nil
}

func maxDot(vectors [][]float32, query []float32) float32 {
	var max float32 = -1
	for _, v := range vectors {
		if s := dot(v, query); s > max {
			max = s
		}
	}
	return max
}
