// Package drift detects whether a sticky session's conversation has moved
// away from the agent it is currently pinned to.
package drift

import (
	"context"
	"log/slog"

	"github.com/falox/observability-assistant-router/internal/config"
	"github.com/falox/observability-assistant-router/internal/semantic"
)

// Result is the outcome of a drift check.
type Result struct {
	Drifted   bool
	Score     float32
	Threshold float32
}

// Detect reports whether msg has drifted away from agent's topic, by
// comparing agent's example-similarity against threshold. If the matcher
// returns any error (operational or invalid input), Detect conservatively returns
// Drifted=true, Score=0 to force re-routing rather than fail the request.
func Detect(ctx context.Context, log *slog.Logger, matcher *semantic.Matcher, idx *semantic.Index, msg string, agent *config.Agent, threshold float32) Result {
	score, err := matcher.ComputeSimilarity(ctx, idx, msg, agent)
	if err != nil {
		log.Warn("error computing drift, assuming drifted", "agent_id", agent.ID, "error", err)
		return Result{Drifted: true, Score: 0, Threshold: threshold}
	}

	drifted := score < threshold
	if drifted {
		log.Info("topic drift detected", "agent_id", agent.ID, "score", score, "threshold", threshold)
	} else {
		log.Debug("no topic drift", "agent_id", agent.ID, "score", score, "threshold", threshold)
	}
	return Result{Drifted: drifted, Score: score, Threshold: threshold}
}
