package projects

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/steveyegge/specsync/internal/configfile"
	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/tasks"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// recordingStore keeps a copy of every saved state.
type recordingStore struct {
	saved []configfile.ProjectsConfig
	err   error
}

func (s *recordingStore) Save(cfg *configfile.ProjectsConfig) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, *cfg)
	return nil
}

func enabledConfig() *configfile.ProjectsConfig {
	return &configfile.ProjectsConfig{Enabled: true, RepoOwner: "octo", RepoName: "demo"}
}

func newTestEngine(gh *fakeGitHub, store StateStore) (*Engine, *[]string) {
	var messages []string
	e := NewEngine(gh.ops(), store)
	e.Now = func() time.Time { return fixedNow }
	e.OnMessage = func(msg string) { messages = append(messages, msg) }
	return e, &messages
}

func TestEngineSync_FullRun(t *testing.T) {
	gh := newFakeGitHub(t)
	root := t.TempDir()
	e, messages := newTestEngine(gh, configfile.FileStore{Root: root})
	cfg := enabledConfig()

	result, err := e.Sync(context.Background(), SyncRequest{Content: twoPhaseDoc, SourceName: "specs/001-demo/tasks.md"}, cfg)
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, 1, gh.count("CreateProject"))
	assert.Equal(t, 7, gh.count("CreateIssue"))
	assert.Equal(t, "octo/demo", result.Repository)
	require.NotNil(t, result.Project)
	assert.Equal(t, "PVT_1", result.Project.ID)
	assert.Equal(t, "Spec-Kit: Demo Feature", result.Project.Title)

	s := result.Stats
	assert.Equal(t, 2, s.Phases)
	assert.Equal(t, 2, s.Groups)
	assert.Equal(t, 3, s.Tasks)
	assert.Equal(t, 1, s.Completed)
	assert.Len(t, s.FieldsCreated, 5)
	assert.Equal(t, 8, s.Labels.Created)
	assert.Equal(t, 7, s.Issues.Created)
	assert.Equal(t, 17, s.Values.Set)
	assert.Equal(t, 1, s.Completion.Closed)
	assert.Equal(t, 2, s.Links.Linked)
	assert.True(t, result.Structure.OK())
	assert.NotEmpty(t, *messages)

	assert.Equal(t, ContentHash(twoPhaseDoc), result.Hash)
	assert.Equal(t, "2025-01-02T03:04:05Z", result.SyncedAt)

	saved, err := configfile.Load(root)
	require.NoError(t, err)
	assert.Equal(t, "PVT_1", saved.ProjectID)
	assert.Equal(t, 1, saved.ProjectNumber)
	assert.Equal(t, "https://github.com/users/octo/projects/1", saved.ProjectURL)
	assert.Len(t, saved.FieldIDs, 5)
	assert.NotEmpty(t, saved.FieldIDs[FieldPriority].Options["P1 - Critical"])
	assert.Equal(t, ContentHash(twoPhaseDoc), saved.LastSyncedTasksMDHash)
	assert.Equal(t, "2025-01-02T03:04:05Z", saved.LastSyncedAt)
	assert.False(t, NeedsSync(twoPhaseDoc, saved))
}

func TestEngineSync_SecondRunIsIdempotent(t *testing.T) {
	gh := newFakeGitHub(t)
	e, _ := newTestEngine(gh, &recordingStore{})
	cfg := enabledConfig()
	ctx := context.Background()

	_, err := e.Sync(ctx, SyncRequest{Content: twoPhaseDoc}, cfg)
	require.NoError(t, err)
	gh.resetCalls()

	result, err := e.Sync(ctx, SyncRequest{Content: twoPhaseDoc}, cfg)
	require.NoError(t, err)

	for _, op := range []string{"CreateProject", "CreateField", "CreateIssue", "AddProjectItem", "UpdateIssue", "CreateLabel"} {
		assert.Equal(t, 0, gh.count(op), op)
	}
	assert.Equal(t, 1, gh.count("GetProjectItems"), "items listed once")
	assert.Equal(t, 7, result.Stats.Issues.Reused)
	assert.Equal(t, 8, result.Stats.Labels.Existing)
	assert.Equal(t, 2, result.Stats.Links.Already)
	assert.Zero(t, result.Stats.Links.Linked)
}

func TestEngineSync_DryRun(t *testing.T) {
	gh := newFakeGitHub(t)
	root := t.TempDir()
	e, _ := newTestEngine(gh, configfile.FileStore{Root: root})
	cfg := enabledConfig()

	result, err := e.Sync(context.Background(), SyncRequest{Content: twoPhaseDoc, DryRun: true}, cfg)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.DryRun)
	assert.Zero(t, gh.mutations(), "calls: %v", gh.calls)
	assert.Empty(t, cfg.ProjectID)
	assert.Nil(t, result.Project)

	_, statErr := os.Stat(configfile.ConfigPath(root))
	assert.True(t, os.IsNotExist(statErr), "dry run must not write state")

	require.NotNil(t, result.Plan)
	assert.True(t, result.Plan.RemoteChecked)
	assert.Equal(t, 7, result.Plan.Phases.Create+result.Plan.Groups.Create+result.Plan.Tasks.Create)
}

func TestEngineSync_DryRunAgainstExistingProject(t *testing.T) {
	gh := newFakeGitHub(t)
	e, _ := newTestEngine(gh, &recordingStore{})
	cfg := enabledConfig()
	ctx := context.Background()
	_, err := e.Sync(ctx, SyncRequest{Content: twoPhaseDoc}, cfg)
	require.NoError(t, err)
	gh.resetCalls()

	store := &recordingStore{}
	e.Store = store
	result, err := e.Sync(ctx, SyncRequest{Content: twoPhaseDoc + "\n- [ ] T004 Polish\n", DryRun: true}, cfg)
	require.NoError(t, err)

	assert.Zero(t, gh.mutations())
	assert.Empty(t, store.saved)
	assert.True(t, result.Plan.ProjectExists)
	assert.Equal(t, PlanCounts{Reuse: 2}, result.Plan.Phases)
	assert.Equal(t, PlanCounts{Create: 1, Reuse: 3}, result.Plan.Tasks)
	assert.Empty(t, result.Plan.Fields)
	assert.Empty(t, result.Plan.Labels)
}

func TestEngineSync_DryRunWithoutGateway(t *testing.T) {
	e := NewEngine(nil, nil)
	result, err := e.Sync(context.Background(), SyncRequest{Content: twoPhaseDoc, DryRun: true}, enabledConfig())
	require.NoError(t, err)
	assert.False(t, result.Plan.RemoteChecked)
	assert.Equal(t, 3, result.Plan.Tasks.Create)
}

func TestEngineSync_ConfigErrorsBeforeRemoteCalls(t *testing.T) {
	tests := []struct {
		name string
		cfg  *configfile.ProjectsConfig
		want error
	}{
		{"not enabled", &configfile.ProjectsConfig{RepoOwner: "o", RepoName: "r"}, configfile.ErrNotEnabled},
		{"no repository", &configfile.ProjectsConfig{Enabled: true}, configfile.ErrRepositoryNotConfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gh := newFakeGitHub(t)
			e, _ := newTestEngine(gh, &recordingStore{})

			result, err := e.Sync(context.Background(), SyncRequest{Content: twoPhaseDoc}, tt.cfg)
			assert.ErrorIs(t, err, tt.want)
			var stepErr *StepError
			require.True(t, errors.As(err, &stepErr))
			assert.Equal(t, StepConfig, stepErr.Step)
			assert.False(t, result.Success)
			assert.Empty(t, gh.calls)
		})
	}
}

func TestEngineSync_InvalidGraphAbortsBeforeRemoteCalls(t *testing.T) {
	gh := newFakeGitHub(t)
	e, _ := newTestEngine(gh, &recordingStore{})
	content := `## Phase 1: A

- [ ] T001 First

## Phase 2: B

- [ ] T001 Again
`
	_, err := e.Sync(context.Background(), SyncRequest{Content: content}, enabledConfig())

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepGraph, stepErr.Step)
	var vErr *tasks.ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Empty(t, gh.calls)
}

func TestEngineSync_PersistsProjectBeforeLaterFailure(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.fail["CreateField"] = &github.GraphQLError{Messages: []string{"insufficient scopes"}}
	store := &recordingStore{}
	e, _ := newTestEngine(gh, store)

	result, err := e.Sync(context.Background(), SyncRequest{Content: twoPhaseDoc}, enabledConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fields: ")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "insufficient scopes")

	require.Len(t, store.saved, 1)
	assert.Equal(t, "PVT_1", store.saved[0].ProjectID)
	assert.Empty(t, store.saved[0].LastSyncedTasksMDHash)
}

func TestEngineSync_ResumesWithSavedProject(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.fail["CreateIssue"] = github.ErrUnauthorized
	e, _ := newTestEngine(gh, &recordingStore{})
	cfg := enabledConfig()
	ctx := context.Background()

	_, err := e.Sync(ctx, SyncRequest{Content: twoPhaseDoc}, cfg)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepHierarchy, stepErr.Step)
	assert.ErrorIs(t, err, github.ErrUnauthorized)

	delete(gh.fail, "CreateIssue")
	gh.resetCalls()
	result, err := e.Sync(ctx, SyncRequest{Content: twoPhaseDoc}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, gh.count("CreateProject"))
	assert.Equal(t, 0, gh.count("CreateField"))
	assert.Equal(t, 7, result.Stats.Issues.Created)
}

func TestEngineSync_LabelFailuresAreWarnings(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.fail["CreateLabel"] = errors.New("forbidden")
	e, _ := newTestEngine(gh, &recordingStore{})
	var warnings []string
	e.OnWarning = func(msg string) { warnings = append(warnings, msg) }

	result, err := e.Sync(context.Background(), SyncRequest{Content: twoPhaseDoc}, enabledConfig())
	require.NoError(t, err)
	assert.Equal(t, 8, result.Stats.Labels.Failed)
	assert.Contains(t, warnings, "8 labels could not be created")
	assert.Equal(t, warnings, result.Warnings)
}

func TestEngineSync_StoreFailure(t *testing.T) {
	gh := newFakeGitHub(t)
	e, _ := newTestEngine(gh, &recordingStore{err: errors.New("disk full")})

	_, err := e.Sync(context.Background(), SyncRequest{Content: twoPhaseDoc}, enabledConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project: saving sync state: disk full")
	assert.Equal(t, 0, gh.count("CreateField"))
}

func TestNeedsSync(t *testing.T) {
	assert.True(t, NeedsSync("x", nil))
	assert.True(t, NeedsSync("x", &configfile.ProjectsConfig{LastSyncedTasksMDHash: ContentHash("x")}), "no project yet")
	assert.True(t, NeedsSync("x", &configfile.ProjectsConfig{ProjectID: "P"}), "never synced")

	rapid.Check(t, func(rt *rapid.T) {
		content := rapid.String().Draw(rt, "content")
		other := rapid.String().Filter(func(s string) bool { return s != content }).Draw(rt, "other")

		cfg := &configfile.ProjectsConfig{ProjectID: "PVT_1", LastSyncedTasksMDHash: ContentHash(content)}
		if NeedsSync(content, cfg) {
			rt.Fatalf("unchanged content reported as needing sync")
		}
		if !NeedsSync(other, cfg) {
			rt.Fatalf("changed content reported as synced")
		}
	})
}

func TestStepError(t *testing.T) {
	err := &StepError{Step: StepLinks, Err: github.ErrUnauthorized}
	assert.Equal(t, "dependencies: "+github.ErrUnauthorized.Error(), err.Error())
	assert.ErrorIs(t, err, github.ErrUnauthorized)
}
