package projects

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/tasks"
)

// CompletionStats counts state changes.
type CompletionStats struct {
	Closed    int `json:"closed"`
	Reopened  int `json:"reopened"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// SyncCompletionStates closes issues of checked tasks and reopens issues
// of unchecked ones. Refs are updated in place, so a second call with the
// same document makes no requests.
func SyncCompletionStates(ctx context.Context, ops *github.Ops, h *Hierarchy, doc *tasks.Document) (CompletionStats, error) {
	var stats CompletionStats
	for _, t := range doc.AllTasks() {
		ref := h.Tasks[t.ID]
		if ref == nil {
			stats.Skipped++
			continue
		}

		closed := strings.EqualFold(ref.State, github.StateClosed)
		if closed == t.Completed {
			stats.Unchanged++
			continue
		}

		want := github.StateOpen
		if t.Completed {
			want = github.StateClosed
		}
		if _, err := ops.UpdateIssue(ctx, github.UpdateIssueInput{ID: ref.ID, State: &want}); err != nil {
			return stats, fmt.Errorf("setting issue #%d to %s: %w", ref.Number, want, err)
		}
		ref.State = want
		if t.Completed {
			stats.Closed++
		} else {
			stats.Reopened++
		}
	}
	return stats, nil
}
