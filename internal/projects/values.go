package projects

import (
	"context"
	"fmt"

	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/tasks"
)

// AssignStats counts field writes.
type AssignStats struct {
	Items   int `json:"items"`
	Set     int `json:"set"`
	Skipped int `json:"skipped"`
	NoItem  int `json:"no_item"`
}

type valueAssigner struct {
	ops       *github.Ops
	projectID string
	items     map[int]string
	stats     AssignStats
}

// AssignFieldValues writes Task ID, Phase, User Story, Parallel and
// Priority on every task item, and Phase on every group item. Item ids
// come from state.ItemsByNumber, reloaded once when issues joined the
// project during this run. Values whose field or option is unknown are
// skipped and counted.
func AssignFieldValues(ctx context.Context, ops *github.Ops, state *RunState, projectID string, h *Hierarchy, doc *tasks.Document, fields *FieldSet) (AssignStats, error) {
	if state.ItemsStale() {
		if err := state.LoadProjectItems(ctx, ops, projectID); err != nil {
			return AssignStats{}, err
		}
	}

	a := &valueAssigner{ops: ops, projectID: projectID, items: state.ItemsByNumber}

	for _, phase := range doc.Phases {
		phaseOption := fields.Phase.OptionID(PhaseOption(phase))
		priorityOption := fields.Priority.OptionID(PriorityOption(phase.Priority))

		for _, group := range phase.Groups {
			if ref := h.Groups[GroupKey(phase.Number, group.Title)]; ref != nil {
				if itemID, ok := a.item(ref); ok {
					if err := a.option(ctx, itemID, fields.Phase.ID, phaseOption); err != nil {
						return a.stats, err
					}
				}
			}
		}

		for _, t := range phase.AllTasks() {
			ref := h.Tasks[t.ID]
			if ref == nil {
				continue
			}
			itemID, ok := a.item(ref)
			if !ok {
				continue
			}

			us := taskUserStory(groupOf(phase, t), t)
			if us == "" {
				us = OptionNA
			}
			parallel := OptionNo
			if t.Parallel {
				parallel = OptionYes
			}

			if err := a.text(ctx, itemID, fields.TaskID.ID, t.ID); err != nil {
				return a.stats, err
			}
			if err := a.option(ctx, itemID, fields.Phase.ID, phaseOption); err != nil {
				return a.stats, err
			}
			if err := a.option(ctx, itemID, fields.UserStory.ID, fields.UserStory.OptionID(us)); err != nil {
				return a.stats, err
			}
			if err := a.option(ctx, itemID, fields.Parallel.ID, fields.Parallel.OptionID(parallel)); err != nil {
				return a.stats, err
			}
			if err := a.option(ctx, itemID, fields.Priority.ID, priorityOption); err != nil {
				return a.stats, err
			}
		}
	}
	return a.stats, nil
}

func (a *valueAssigner) item(ref *IssueRef) (string, bool) {
	itemID, ok := a.items[ref.Number]
	if !ok {
		a.stats.NoItem++
		return "", false
	}
	a.stats.Items++
	return itemID, true
}

func (a *valueAssigner) text(ctx context.Context, itemID, fieldID, value string) error {
	if fieldID == "" {
		a.stats.Skipped++
		return nil
	}
	return a.set(ctx, itemID, fieldID, github.TextValue(value))
}

func (a *valueAssigner) option(ctx context.Context, itemID, fieldID, optionID string) error {
	if fieldID == "" || optionID == "" {
		a.stats.Skipped++
		return nil
	}
	return a.set(ctx, itemID, fieldID, github.OptionValue(optionID))
}

func (a *valueAssigner) set(ctx context.Context, itemID, fieldID string, value github.FieldValue) error {
	if err := a.ops.SetFieldValue(ctx, a.projectID, itemID, fieldID, value); err != nil {
		return fmt.Errorf("setting field %s on item %s: %w", fieldID, itemID, err)
	}
	a.stats.Set++
	return nil
}

// groupOf returns the group in phase that owns t, or nil for direct tasks.
func groupOf(phase *tasks.Phase, t *tasks.Task) *tasks.StoryGroup {
	if t.GroupTitle == "" {
		return nil
	}
	for _, g := range phase.Groups {
		if g.Title == t.GroupTitle {
			return g
		}
	}
	return nil
}
