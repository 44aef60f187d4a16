package projects

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/tasks"
)

// LinkStats counts blocked-by link outcomes.
type LinkStats struct {
	Linked  int `json:"linked"`
	Already int `json:"already"`
	Skipped int `json:"skipped"`
}

// LinkDependencies adds a blocked-by link for every graph edge whose two
// tasks have issues. A link the API reports as existing counts as done.
func LinkDependencies(ctx context.Context, ops *github.Ops, h *Hierarchy, graph *tasks.DependencyGraph) (LinkStats, error) {
	var stats LinkStats
	for _, e := range graph.Edges() {
		task, blocker := h.Tasks[e.Task], h.Tasks[e.Blocker]
		if task == nil || blocker == nil {
			stats.Skipped++
			continue
		}
		if _, err := ops.AddBlockedBy(ctx, task.ID, blocker.ID); err != nil {
			if isAlreadyLinked(err) {
				stats.Already++
				continue
			}
			return stats, fmt.Errorf("linking %s blocked by %s: %w", e.Task, e.Blocker, err)
		}
		stats.Linked++
	}
	return stats, nil
}

func isAlreadyLinked(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already") && strings.Contains(msg, "block")
}
