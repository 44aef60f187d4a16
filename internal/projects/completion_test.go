package projects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/tasks"
)

func TestSyncCompletionStates(t *testing.T) {
	gh := newFakeGitHub(t)
	doc := tasks.Parse(twoPhaseDoc)
	h := buildOnce(t, gh, doc)
	gh.resetCalls()

	stats, err := SyncCompletionStates(context.Background(), gh.ops(), h, doc)
	require.NoError(t, err)

	assert.Equal(t, CompletionStats{Closed: 1, Unchanged: 2}, stats)
	assert.Equal(t, 1, gh.count("UpdateIssue"))
	assert.Equal(t, github.StateClosed, h.Tasks["T003"].State)
	assert.Equal(t, github.StateClosed, gh.issueByTitle("[T003] Implement login in src/auth/login.go").State)
}

func TestSyncCompletionStates_Idempotent(t *testing.T) {
	gh := newFakeGitHub(t)
	doc := tasks.Parse(twoPhaseDoc)
	h := buildOnce(t, gh, doc)

	_, err := SyncCompletionStates(context.Background(), gh.ops(), h, doc)
	require.NoError(t, err)
	gh.resetCalls()

	stats, err := SyncCompletionStates(context.Background(), gh.ops(), h, doc)
	require.NoError(t, err)
	assert.Equal(t, 0, gh.count("UpdateIssue"))
	assert.Equal(t, 3, stats.Unchanged)
}

func TestSyncCompletionStates_Reopens(t *testing.T) {
	gh := newFakeGitHub(t)
	doc := tasks.Parse(twoPhaseDoc)
	h := buildOnce(t, gh, doc)
	h.Tasks["T001"].State = "closed" // state comparison ignores case

	stats, err := SyncCompletionStates(context.Background(), gh.ops(), h, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Reopened)
	assert.Equal(t, github.StateOpen, h.Tasks["T001"].State)
}

func TestSyncCompletionStates_UnknownTaskSkipped(t *testing.T) {
	gh := newFakeGitHub(t)
	doc := tasks.Parse(twoPhaseDoc)

	stats, err := SyncCompletionStates(context.Background(), gh.ops(), newHierarchy(), doc)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Skipped)
	assert.Empty(t, gh.calls)
}

func TestSyncCompletionStates_ErrorAborts(t *testing.T) {
	gh := newFakeGitHub(t)
	doc := tasks.Parse(twoPhaseDoc)
	h := buildOnce(t, gh, doc)
	gh.fail["UpdateIssue"] = github.ErrUnauthorized

	_, err := SyncCompletionStates(context.Background(), gh.ops(), h, doc)
	assert.ErrorIs(t, err, github.ErrUnauthorized)
	assert.Equal(t, github.StateOpen, h.Tasks["T003"].State, "cache untouched on failure")
}
