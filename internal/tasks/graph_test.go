package tasks

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edgeSet(g *DependencyGraph) map[Edge]bool {
	out := make(map[Edge]bool)
	for _, e := range g.Edges() {
		out[e] = true
	}
	return out
}

func TestBuildDependencyGraph_AnchorRule(t *testing.T) {
	doc := Parse("## Phase 1: Core\n" +
		"- [ ] T001 first\n" +
		"- [ ] T002 second\n" +
		"- [ ] T003 [P] fan out a\n" +
		"- [ ] T004 [P] fan out b\n" +
		"- [ ] T005 join\n")

	g := BuildDependencyGraph(doc)

	want := map[Edge]bool{
		{Task: "T002", Blocker: "T001"}: true,
		{Task: "T003", Blocker: "T002"}: true,
		{Task: "T004", Blocker: "T002"}: true,
		{Task: "T005", Blocker: "T002"}: true,
	}
	assert.Equal(t, want, edgeSet(g))
	assert.Empty(t, g.BlockersOf("T001"))
	assert.NotContains(t, g.BlockersOf("T004"), "T003", "parallel tasks must not block each other")
	assert.Equal(t, 4, g.EdgeCount())
}

func TestBuildDependencyGraph_CrossPhase(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name: "previous phase ends sequential",
			input: "## Phase 1: A\n- [ ] T001 a\n- [ ] T002 b\n" +
				"## Phase 2: B\n- [ ] T003 c\n",
			want: []string{"T002"},
		},
		{
			name: "previous phase ends with parallel tasks",
			input: "## Phase 1: A\n- [ ] T001 a\n- [ ] T002 [P] b\n- [ ] T003 [P] c\n" +
				"## Phase 2: B\n- [ ] T004 d\n",
			want: []string{"T001"},
		},
		{
			name: "previous phase only parallel",
			input: "## Phase 1: A\n- [ ] T001 [P] a\n- [ ] T002 [P] b\n" +
				"## Phase 2: B\n- [ ] T003 c\n",
			want: []string{"T002"},
		},
		{
			name: "empty phase in between is skipped",
			input: "## Phase 1: A\n- [ ] T001 a\n" +
				"## Phase 2: Empty\n" +
				"## Phase 3: C\n- [ ] T002 b\n",
			want: []string{"T001"},
		},
		{
			name: "grouped first task",
			input: "## Phase 1: A\n- [ ] T001 a\n" +
				"## Phase 2: B\n### Story (US1)\n- [ ] T002 [P] [US1] b\n",
			want: []string{"T001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(tt.input)
			g := BuildDependencyGraph(doc)
			last := doc.Phases[len(doc.Phases)-1].AllTasks()[0]
			assert.Equal(t, tt.want, g.BlockersOf(last.ID))
		})
	}
}

func TestDependencyGraph_AddDependencyDedupes(t *testing.T) {
	g := NewDependencyGraph()
	g.AddDependency("T002", "T001")
	g.AddDependency("T002", "T001")
	g.AddDependency("T003", "T001")
	g.AddDependency("T002", "T000")

	assert.Equal(t, []string{"T001", "T000"}, g.BlockersOf("T002"))
	assert.Equal(t, []Edge{
		{Task: "T002", Blocker: "T001"},
		{Task: "T002", Blocker: "T000"},
		{Task: "T003", Blocker: "T001"},
	}, g.Edges())
}

func TestDependencyGraph_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		doc := Parse(sampleTasks)
		require.NoError(t, BuildDependencyGraph(doc).Validate(doc))
	})

	t.Run("duplicate ids", func(t *testing.T) {
		doc := Parse("## Phase 1: A\n- [ ] T001 a\n- [ ] T002 b\n## Phase 2: B\n- [ ] T001 again\n")
		err := BuildDependencyGraph(doc).Validate(doc)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, err.Error(), "duplicate task id T001")
	})

	t.Run("self dependency", func(t *testing.T) {
		g := NewDependencyGraph()
		g.AddDependency("T001", "T001")
		err := g.Validate(&Document{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "T001 depends on itself")
		assert.NotContains(t, err.Error(), "cycle")
	})

	t.Run("cycle", func(t *testing.T) {
		g := NewDependencyGraph()
		g.AddDependency("T001", "T002")
		g.AddDependency("T002", "T003")
		g.AddDependency("T003", "T001")
		err := g.Validate(&Document{})
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "dependency cycle: T001 -> T002 -> T003 -> T001"), err.Error())
	})
}
