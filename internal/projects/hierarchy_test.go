package projects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/tasks"
)

// twoPhaseDoc has 2 phases: phase 1 with one direct task and one group
// with one task, phase 2 with one group with one task.
const twoPhaseDoc = `# Tasks: Demo Feature

## Phase 1: Setup

**Purpose**: Project initialization

- [ ] T001 Create project structure in src/app/main.go

### Tooling (US1)

- [ ] T002 [P] [US1] Configure linting

## Phase 2: User Story 1 - Login (Priority: P1) 🎯 MVP

### Login flow (US1)

- [x] T003 [US1] Implement login in src/auth/login.go
`

func buildOnce(t *testing.T, gh *fakeGitHub, doc *tasks.Document) *Hierarchy {
	t.Helper()
	ctx := context.Background()
	state, err := LoadState(ctx, gh.ops(), gh.repoID, "PVT_1")
	require.NoError(t, err)
	h, err := BuildHierarchy(ctx, gh.ops(), state, doc, gh.repoID, "PVT_1", nil)
	require.NoError(t, err)
	return h
}

func TestBuildHierarchy_EndToEnd(t *testing.T) {
	gh := newFakeGitHub(t)
	doc := tasks.Parse(twoPhaseDoc)

	h := buildOnce(t, gh, doc)

	assert.Equal(t, 7, gh.count("CreateIssue"))
	assert.Equal(t, 0, gh.count("AddProjectItem"), "project is attached at creation")
	assert.Len(t, h.Phases, 2)
	assert.Len(t, h.Groups, 2)
	assert.Len(t, h.Tasks, 3)

	p1, p2 := h.Phases["1"], h.Phases["2"]
	g1, g2 := h.Groups[GroupKey("1", "Tooling")], h.Groups[GroupKey("2", "Login flow")]
	require.NotNil(t, g1)
	require.NotNil(t, g2)

	assert.Empty(t, p1.ParentID)
	assert.Empty(t, p2.ParentID)
	assert.Equal(t, p1.ID, g1.ParentID)
	assert.Equal(t, p2.ID, g2.ParentID)
	assert.Equal(t, p1.ID, h.Tasks["T001"].ParentID, "direct task is a child of its phase")
	assert.Equal(t, g1.ID, h.Tasks["T002"].ParentID)
	assert.Equal(t, g2.ID, h.Tasks["T003"].ParentID)

	for _, ref := range h.Refs(doc) {
		assert.True(t, ref.Created, ref.Key)
	}
	assert.Equal(t, KindPhase, p1.Kind)
	assert.Equal(t, KindGroup, g1.Kind)
	assert.Equal(t, KindTask, h.Tasks["T001"].Kind)
	assert.Equal(t, 7, h.Stats.Created)
}

func TestBuildHierarchy_Order(t *testing.T) {
	gh := newFakeGitHub(t)
	doc := tasks.Parse(twoPhaseDoc)
	buildOnce(t, gh, doc)

	var titles []string
	for _, is := range gh.issues {
		titles = append(titles, is.Title)
	}
	assert.Equal(t, []string{
		"Phase 1: Setup",
		"Tooling",
		"[T002] Configure linting",
		"[T001] Create project structure in src/app/main.go",
		"Phase 2: User Story 1 - Login",
		"Login flow",
		"[T003] Implement login in src/auth/login.go",
	}, titles)
}

func TestBuildHierarchy_Idempotent(t *testing.T) {
	gh := newFakeGitHub(t)
	doc := tasks.Parse(twoPhaseDoc)

	first := buildOnce(t, gh, doc)
	gh.resetCalls()
	second := buildOnce(t, gh, doc)

	assert.Equal(t, 0, gh.count("CreateIssue"))
	assert.Equal(t, 0, gh.count("AddProjectItem"))
	assert.Equal(t, 0, gh.count("UpdateIssue"), "bodies unchanged")
	assert.Equal(t, 7, second.Stats.Reused)

	for key, ref := range first.Tasks {
		assert.Equal(t, ref.ID, second.Tasks[key].ID, key)
	}
	for key, ref := range first.Groups {
		assert.Equal(t, ref.ID, second.Groups[key].ID, key)
	}
	for key, ref := range first.Phases {
		assert.Equal(t, ref.ID, second.Phases[key].ID, key)
	}
}

func TestBuildHierarchy_UpdatesChangedBody(t *testing.T) {
	gh := newFakeGitHub(t)
	buildOnce(t, gh, tasks.Parse(twoPhaseDoc))
	gh.resetCalls()

	changed := tasks.Parse(twoPhaseDoc)
	changed.Phases[0].Purpose = "New purpose"
	h := buildOnce(t, gh, changed)

	assert.Equal(t, 1, gh.count("UpdateIssue"))
	assert.Equal(t, 0, gh.count("CreateIssue"))
	assert.Equal(t, 1, h.Stats.Updated)
	assert.Contains(t, gh.issueByTitle("Phase 1: Setup").Body, "**Purpose**: New purpose")
}

func TestBuildHierarchy_AttachesIssueOutsideProject(t *testing.T) {
	gh := newFakeGitHub(t)
	doc := tasks.Parse(twoPhaseDoc)
	phase := doc.Phases[0]
	gh.addIssue(PhaseTitle(phase), PhaseBody(phase), github.StateOpen, "")

	h := buildOnce(t, gh, doc)

	assert.Equal(t, 1, gh.count("AddProjectItem"))
	assert.Equal(t, 6, gh.count("CreateIssue"))
	assert.Equal(t, 1, h.Stats.Attached)
	assert.False(t, h.Phases["1"].Created)
}

func TestBuildHierarchy_SameTitleDifferentParent(t *testing.T) {
	gh := newFakeGitHub(t)
	doc := tasks.Parse(`## Phase 1: A

### Docs

- [ ] T001 Write docs

## Phase 2: B

### Docs

- [ ] T002 Write docs
`)
	h := buildOnce(t, gh, doc)

	assert.Equal(t, 6, gh.count("CreateIssue"))
	assert.NotEqual(t, h.Groups["1:Docs"].ID, h.Groups["2:Docs"].ID)
}

func TestBuildHierarchy_CreateErrorNamesIssue(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.fail["CreateIssue"] = &github.GraphQLError{Messages: []string{"Resource not accessible by integration"}}

	state := NewRunState()
	_, err := BuildHierarchy(context.Background(), gh.ops(), state, tasks.Parse(twoPhaseDoc), gh.repoID, "PVT_1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Phase 1: Setup"`)
	assert.Contains(t, err.Error(), "Resource not accessible")
}

func TestBuildHierarchy_AppliesLabels(t *testing.T) {
	gh := newFakeGitHub(t)
	doc := tasks.Parse(twoPhaseDoc)
	labels := LabelSet{"phase-2": "LA_p2", "p-critical": "LA_crit", "user-story-us1": "LA_us1", "parallel": "LA_par"}

	_, err := BuildHierarchy(context.Background(), gh.ops(), NewRunState(), doc, gh.repoID, "PVT_1", labels)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"LA_p2", "LA_crit"}, gh.issueLabels["Phase 2: User Story 1 - Login"])
	assert.ElementsMatch(t, []string{"LA_p2", "LA_us1"}, gh.issueLabels["Login flow"])
	assert.ElementsMatch(t, []string{"LA_p2", "LA_crit", "LA_us1"}, gh.issueLabels["[T003] Implement login in src/auth/login.go"])
	assert.ElementsMatch(t, []string{"LA_us1", "LA_par"}, gh.issueLabels["[T002] Configure linting"])
	assert.Empty(t, gh.issueLabels["Phase 1: Setup"], "phase-1 label unknown and no priority")
}

func TestBodies(t *testing.T) {
	doc := tasks.Parse(twoPhaseDoc)
	p1 := doc.Phases[0]

	assert.Equal(t, "**Purpose**: Project initialization\n\n**Tasks**: 2 total", PhaseBody(p1))
	assert.Equal(t, "**Tasks**: 1 total", PhaseBody(doc.Phases[1]))
	assert.Equal(t, "**User Story**: US1\n\n**Phase**: 1\n\n**Tasks**: 1 total", GroupBody(p1, p1.Groups[0]))

	assert.Equal(t,
		"**Task ID**: T001\n\n**Description**: Create project structure in src/app/main.go\n\n**Files**:\n- `src/app/main.go`",
		TaskBody(p1.Tasks[0]))
	assert.Equal(t,
		"**Task ID**: T002\n\n**Description**: Configure linting\n\n**Parallel**: Yes - Can be executed in parallel with other parallel tasks",
		TaskBody(p1.Groups[0].Tasks[0]))
}
