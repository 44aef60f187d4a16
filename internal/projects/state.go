// Package projects mirrors a parsed tasks.md document into GitHub issues
// and a Projects (v2) board: one issue per phase, story group and task,
// linked as sub-issues, annotated with custom fields, and wired with
// blocked-by dependencies.
package projects

import (
	"context"
	"fmt"

	"github.com/steveyegge/specsync/internal/github"
)

// IssueKey identifies an issue for reuse: its title under a given parent.
// Top-level issues have an empty ParentID.
type IssueKey struct {
	Title    string
	ParentID string
}

// RunState is the per-sync cache of remote state. It is loaded once at
// the start of a run and mutated in place as issues are created or
// attached, so later steps see earlier writes.
type RunState struct {
	issues    map[IssueKey]*github.Issue
	inProject map[string]bool

	// ItemsByNumber maps issue number -> project item id.
	ItemsByNumber map[int]string

	// itemsStale is set when an issue joined the project without us
	// learning its item id (created with projectV2Ids).
	itemsStale bool

	IssuePages int
	ItemPages  int
}

func NewRunState() *RunState {
	return &RunState{
		issues:        make(map[IssueKey]*github.Issue),
		inProject:     make(map[string]bool),
		ItemsByNumber: make(map[int]string),
	}
}

// LoadState fetches every repository issue and, when projectID is set,
// every project item.
func LoadState(ctx context.Context, ops *github.Ops, repoID, projectID string) (*RunState, error) {
	s := NewRunState()
	if err := s.LoadIssues(ctx, ops, repoID); err != nil {
		return nil, err
	}
	if projectID != "" {
		if err := s.LoadProjectItems(ctx, ops, projectID); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadIssues drains the repository issue listing into the index.
func (s *RunState) LoadIssues(ctx context.Context, ops *github.Ops, repoID string) error {
	cursor := ""
	for {
		page, err := ops.RepositoryIssues(ctx, repoID, cursor)
		if err != nil {
			return fmt.Errorf("loading issues: %w", err)
		}
		s.IssuePages++
		for i := range page.Nodes {
			issue := page.Nodes[i]
			// Same title under one parent: the first listed issue wins.
			if s.Lookup(issue.Title, issue.ParentID()) != nil {
				continue
			}
			s.Remember(&issue)
		}
		next, err := nextCursor(page.PageInfo, cursor)
		if err != nil {
			return fmt.Errorf("loading issues: %w", err)
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}

// LoadProjectItems drains the project item listing, rebuilding both the
// content-id set and ItemsByNumber.
func (s *RunState) LoadProjectItems(ctx context.Context, ops *github.Ops, projectID string) error {
	s.inProject = make(map[string]bool)
	s.ItemsByNumber = make(map[int]string)

	cursor := ""
	for {
		page, err := ops.ProjectItems(ctx, projectID, cursor)
		if err != nil {
			return fmt.Errorf("loading project items: %w", err)
		}
		s.ItemPages++
		for _, item := range page.Nodes {
			if item.Content.ID == "" {
				continue // draft item or inaccessible content
			}
			s.inProject[item.Content.ID] = true
			if item.Content.Number > 0 {
				s.ItemsByNumber[item.Content.Number] = item.ID
			}
		}
		next, err := nextCursor(page.PageInfo, cursor)
		if err != nil {
			return fmt.Errorf("loading project items: %w", err)
		}
		if next == "" {
			s.itemsStale = false
			return nil
		}
		cursor = next
	}
}

// nextCursor returns "" when pagination is complete. A page that claims
// more results without advancing the cursor would loop forever.
func nextCursor(info github.PageInfo, current string) (string, error) {
	if !info.HasNextPage {
		return "", nil
	}
	if info.EndCursor == "" || info.EndCursor == current {
		return "", fmt.Errorf("pagination did not advance past cursor %q", current)
	}
	return info.EndCursor, nil
}

// Remember indexes issue under its title and parent.
func (s *RunState) Remember(issue *github.Issue) {
	s.issues[IssueKey{Title: issue.Title, ParentID: issue.ParentID()}] = issue
}

// Lookup returns the issue with title under parentID, or nil.
func (s *RunState) Lookup(title, parentID string) *github.Issue {
	return s.issues[IssueKey{Title: title, ParentID: parentID}]
}

// IssueCount returns the number of indexed issues.
func (s *RunState) IssueCount() int {
	return len(s.issues)
}

// MarkInProject records that contentID is a project item. itemID may be
// empty when the item id is not known yet.
func (s *RunState) MarkInProject(contentID string, number int, itemID string) {
	s.inProject[contentID] = true
	if itemID != "" && number > 0 {
		s.ItemsByNumber[number] = itemID
		return
	}
	s.itemsStale = true
}

func (s *RunState) InProject(contentID string) bool {
	return s.inProject[contentID]
}

// ItemsStale reports whether ItemsByNumber is missing items for issues
// that joined the project during this run.
func (s *RunState) ItemsStale() bool {
	return s.itemsStale
}
