package projects

import (
	"context"
	"strings"

	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/tasks"
)

// Label colours (hex, no '#').
const (
	labelColorPhase     = "0969DA"
	labelColorUserStory = "BFD4F2"
	labelColorParallel  = "9C27B0"
)

// ParallelLabel marks tasks that can run alongside their siblings.
const ParallelLabel = "parallel"

var priorityLabels = map[string]struct{ name, color string }{
	"P1": {"p-critical", "D73A4A"},
	"P2": {"p-high", "FF9800"},
	"P3": {"p-medium", "FFC107"},
	"P4": {"p-low", "4CAF50"},
}

// LabelSpec is a label the sync wants in the repository.
type LabelSpec struct {
	Name  string
	Color string
}

// LabelSet maps label name -> label id for labels known to exist.
type LabelSet map[string]string

// LabelStats counts the outcome of CreateLabels.
type LabelStats struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Failed   int `json:"failed"`
}

func PhaseLabel(number string) string {
	return "phase-" + number
}

func UserStoryLabel(us string) string {
	return "user-story-" + strings.ToLower(us)
}

// PriorityLabel returns the label for "P1".."P4", or "".
func PriorityLabel(priority string) string {
	return priorityLabels[priority].name
}

// DesiredLabels lists the labels for doc: one per phase, one per user
// story, the four priority tiers and the parallel label.
func DesiredLabels(doc *tasks.Document) []LabelSpec {
	var specs []LabelSpec
	for _, p := range doc.Phases {
		specs = append(specs, LabelSpec{PhaseLabel(p.Number), labelColorPhase})
	}
	for _, us := range doc.UserStories() {
		specs = append(specs, LabelSpec{UserStoryLabel(us), labelColorUserStory})
	}
	for _, p := range []string{"P1", "P2", "P3", "P4"} {
		l := priorityLabels[p]
		specs = append(specs, LabelSpec{l.name, l.color})
	}
	return append(specs, LabelSpec{ParallelLabel, labelColorParallel})
}

// CreateLabels makes sure the labels for doc exist. It is best effort:
// listing or creation failures are counted, never returned. The result
// holds the ids of every label known to exist afterwards.
func CreateLabels(ctx context.Context, ops *github.Ops, repoID string, doc *tasks.Document) (LabelSet, LabelStats) {
	set := make(LabelSet)
	var stats LabelStats

	cursor := ""
	for {
		page, err := ops.RepositoryLabels(ctx, repoID, cursor)
		if err != nil {
			break
		}
		for _, l := range page.Nodes {
			set[l.Name] = l.ID
		}
		next, err := nextCursor(page.PageInfo, cursor)
		if err != nil || next == "" {
			break
		}
		cursor = next
	}

	for _, spec := range DesiredLabels(doc) {
		if _, ok := set[spec.Name]; ok {
			stats.Existing++
			continue
		}
		label, err := ops.CreateLabel(ctx, repoID, spec.Name, spec.Color)
		if err != nil {
			stats.Failed++
			continue
		}
		stats.Created++
		if label.ID != "" {
			set[spec.Name] = label.ID
		}
	}
	return set, stats
}

func (s LabelSet) ids(names ...string) []string {
	var out []string
	for _, name := range names {
		if name == "" {
			continue
		}
		if id, ok := s[name]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (s LabelSet) forPhase(p *tasks.Phase) []string {
	return s.ids(PhaseLabel(p.Number), PriorityLabel(p.Priority))
}

func (s LabelSet) forGroup(p *tasks.Phase, g *tasks.StoryGroup) []string {
	us := ""
	if g.UserStory != "" {
		us = UserStoryLabel(g.UserStory)
	}
	return s.ids(PhaseLabel(p.Number), us)
}

func (s LabelSet) forTask(p *tasks.Phase, g *tasks.StoryGroup, t *tasks.Task) []string {
	names := []string{PhaseLabel(p.Number), PriorityLabel(p.Priority)}
	if us := taskUserStory(g, t); us != "" {
		names = append(names, UserStoryLabel(us))
	}
	if t.Parallel {
		names = append(names, ParallelLabel)
	}
	return s.ids(names...)
}

// taskUserStory prefers the group's story over the task's own tag.
func taskUserStory(g *tasks.StoryGroup, t *tasks.Task) string {
	if g != nil && g.UserStory != "" {
		return g.UserStory
	}
	return t.UserStory
}
