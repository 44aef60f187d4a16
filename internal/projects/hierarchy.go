package projects

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/tasks"
)

// Kind tags an issue with the document entity it mirrors.
type Kind string

const (
	KindPhase Kind = "phase"
	KindGroup Kind = "group"
	KindTask  Kind = "task"
)

// IssueRef is the issue backing one phase, group or task.
type IssueRef struct {
	Kind     Kind   `json:"kind"`
	Key      string `json:"key"`
	ID       string `json:"id"`
	Number   int    `json:"number"`
	Title    string `json:"title"`
	State    string `json:"state"`
	ParentID string `json:"parent_id,omitempty"`
	URL      string `json:"url,omitempty"`
	Created  bool   `json:"created,omitempty"`
}

// Hierarchy holds the issues for a document, keyed by phase number,
// GroupKey and task id.
type Hierarchy struct {
	Phases map[string]*IssueRef
	Groups map[string]*IssueRef
	Tasks  map[string]*IssueRef
	Stats  HierarchyStats
}

// HierarchyStats counts the remote work done while building.
type HierarchyStats struct {
	Created  int `json:"created"`
	Reused   int `json:"reused"`
	Updated  int `json:"updated"`
	Attached int `json:"attached"`
}

func newHierarchy() *Hierarchy {
	return &Hierarchy{
		Phases: make(map[string]*IssueRef),
		Groups: make(map[string]*IssueRef),
		Tasks:  make(map[string]*IssueRef),
	}
}

// Refs returns every ref in build order: each phase, its groups and their
// tasks, then the phase's direct tasks.
func (h *Hierarchy) Refs(doc *tasks.Document) []*IssueRef {
	var out []*IssueRef
	add := func(ref *IssueRef) {
		if ref != nil {
			out = append(out, ref)
		}
	}
	for _, phase := range doc.Phases {
		add(h.Phases[phase.Number])
		for _, group := range phase.Groups {
			add(h.Groups[GroupKey(phase.Number, group.Title)])
			for _, t := range group.Tasks {
				add(h.Tasks[t.ID])
			}
		}
		for _, t := range phase.Tasks {
			add(h.Tasks[t.ID])
		}
	}
	return out
}

// GroupKey is the Hierarchy.Groups key for a group.
func GroupKey(phaseNumber, groupTitle string) string {
	return phaseNumber + ":" + groupTitle
}

func PhaseTitle(p *tasks.Phase) string {
	return fmt.Sprintf("Phase %s: %s", p.Number, p.Title)
}

func TaskTitle(t *tasks.Task) string {
	return fmt.Sprintf("[%s] %s", t.ID, t.Description)
}

func PhaseBody(p *tasks.Phase) string {
	var parts []string
	if p.Purpose != "" {
		parts = append(parts, "**Purpose**: "+p.Purpose)
	}
	if p.Goal != "" {
		parts = append(parts, "**Goal**: "+p.Goal)
	}
	if p.Checkpoint != "" {
		parts = append(parts, "**Checkpoint**: "+p.Checkpoint)
	}
	parts = append(parts, fmt.Sprintf("**Tasks**: %d total", len(p.AllTasks())))
	return strings.Join(parts, "\n\n")
}

func GroupBody(p *tasks.Phase, g *tasks.StoryGroup) string {
	body := fmt.Sprintf("**Phase**: %s\n\n**Tasks**: %d total", p.Number, len(g.Tasks))
	if g.UserStory != "" {
		body = fmt.Sprintf("**User Story**: %s\n\n", g.UserStory) + body
	}
	return body
}

func TaskBody(t *tasks.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Task ID**: %s\n\n**Description**: %s", t.ID, t.Description)
	if t.Parallel {
		b.WriteString("\n\n**Parallel**: Yes - Can be executed in parallel with other parallel tasks")
	}
	if len(t.FilePaths) > 0 {
		b.WriteString("\n\n**Files**:")
		for _, fp := range t.FilePaths {
			fmt.Fprintf(&b, "\n- `%s`", fp)
		}
	}
	return b.String()
}

type hierarchyBuilder struct {
	ops       *github.Ops
	state     *RunState
	repoID    string
	projectID string
	labels    LabelSet
	h         *Hierarchy
}

// BuildHierarchy reuses or creates the issue for every phase, group and
// task in doc. An existing issue is matched by title under its intended
// parent; its body is rewritten only when it changed and it is attached to
// the project only when not already an item. New issues are created as
// sub-issues with the project pre-attached and labels from labels applied.
func BuildHierarchy(ctx context.Context, ops *github.Ops, state *RunState, doc *tasks.Document, repoID, projectID string, labels LabelSet) (*Hierarchy, error) {
	b := &hierarchyBuilder{
		ops:       ops,
		state:     state,
		repoID:    repoID,
		projectID: projectID,
		labels:    labels,
		h:         newHierarchy(),
	}

	for _, phase := range doc.Phases {
		phaseRef, err := b.ensure(ctx, KindPhase, phase.Number, PhaseTitle(phase), PhaseBody(phase), "",
			labels.forPhase(phase))
		if err != nil {
			return nil, err
		}
		b.h.Phases[phase.Number] = phaseRef

		for _, group := range phase.Groups {
			key := GroupKey(phase.Number, group.Title)
			groupRef, err := b.ensure(ctx, KindGroup, key, group.Title, GroupBody(phase, group), phaseRef.ID,
				labels.forGroup(phase, group))
			if err != nil {
				return nil, err
			}
			b.h.Groups[key] = groupRef

			for _, t := range group.Tasks {
				if err := b.task(ctx, phase, group, t, groupRef.ID); err != nil {
					return nil, err
				}
			}
		}

		for _, t := range phase.Tasks {
			if err := b.task(ctx, phase, nil, t, phaseRef.ID); err != nil {
				return nil, err
			}
		}
	}
	return b.h, nil
}

func (b *hierarchyBuilder) task(ctx context.Context, phase *tasks.Phase, group *tasks.StoryGroup, t *tasks.Task, parentID string) error {
	ref, err := b.ensure(ctx, KindTask, t.ID, TaskTitle(t), TaskBody(t), parentID, b.labels.forTask(phase, group, t))
	if err != nil {
		return err
	}
	b.h.Tasks[t.ID] = ref
	return nil
}

func (b *hierarchyBuilder) ensure(ctx context.Context, kind Kind, key, title, body, parentID string, labelIDs []string) (*IssueRef, error) {
	if existing := b.state.Lookup(title, parentID); existing != nil {
		if existing.Body != body {
			if _, err := b.ops.UpdateIssue(ctx, github.UpdateIssueInput{ID: existing.ID, Body: &body}); err != nil {
				return nil, fmt.Errorf("updating %s issue #%d: %w", kind, existing.Number, err)
			}
			existing.Body = body
			b.h.Stats.Updated++
		}
		if !b.state.InProject(existing.ID) {
			itemID, err := b.ops.AddProjectItem(ctx, b.projectID, existing.ID)
			if err != nil {
				return nil, fmt.Errorf("adding %s issue #%d to project: %w", kind, existing.Number, err)
			}
			b.state.MarkInProject(existing.ID, existing.Number, itemID)
			b.h.Stats.Attached++
		}
		b.h.Stats.Reused++
		return refFor(kind, key, existing, false), nil
	}

	input := github.CreateIssueInput{
		RepositoryID:  b.repoID,
		Title:         title,
		Body:          body,
		ParentIssueID: parentID,
		LabelIDs:      labelIDs,
	}
	if b.projectID != "" {
		input.ProjectIDs = []string{b.projectID}
	}
	issue, err := b.ops.CreateIssue(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("creating %s issue %q: %w", kind, title, err)
	}
	b.state.Remember(issue)
	if b.projectID != "" {
		b.state.MarkInProject(issue.ID, issue.Number, "")
	}
	b.h.Stats.Created++
	return refFor(kind, key, issue, true), nil
}

func refFor(kind Kind, key string, issue *github.Issue, created bool) *IssueRef {
	return &IssueRef{
		Kind:     kind,
		Key:      key,
		ID:       issue.ID,
		Number:   issue.Number,
		Title:    issue.Title,
		State:    issue.State,
		ParentID: issue.ParentID(),
		URL:      issue.URL,
		Created:  created,
	}
}
