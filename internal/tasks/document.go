// Package tasks parses spec-kit tasks.md documents into phases, story groups
// and tasks, and infers the dependency graph between tasks.
package tasks

import "sort"

// Task is a single checkbox line in a tasks.md document.
type Task struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Completed   bool     `json:"completed"`
	Parallel    bool     `json:"parallel"`
	UserStory   string   `json:"user_story,omitempty"`
	FilePaths   []string `json:"file_paths,omitempty"`
	PhaseNumber string   `json:"phase_number"`
	GroupTitle  string   `json:"group_title,omitempty"`
	RawLine     string   `json:"-"`
}

// StoryGroup is a third-level heading inside a phase that owns tasks.
type StoryGroup struct {
	Title     string  `json:"title"`
	UserStory string  `json:"user_story,omitempty"`
	Tasks     []*Task `json:"tasks"`
}

// Phase is a "## Phase N: ..." section. Number is kept verbatim ("3", "3.1")
// and must never be treated as an integer.
type Phase struct {
	Number          string        `json:"number"`
	Title           string        `json:"title"`
	Purpose         string        `json:"purpose,omitempty"`
	Goal            string        `json:"goal,omitempty"`
	Checkpoint      string        `json:"checkpoint,omitempty"`
	IndependentTest string        `json:"independent_test,omitempty"`
	Priority        string        `json:"priority,omitempty"`
	UserStory       string        `json:"user_story,omitempty"`
	MVP             bool          `json:"mvp,omitempty"`
	Groups          []*StoryGroup `json:"groups,omitempty"`
	Tasks           []*Task       `json:"tasks,omitempty"`
}

// AllTasks returns the phase's direct tasks followed by the tasks of each
// group in group order.
func (p *Phase) AllTasks() []*Task {
	out := make([]*Task, 0, len(p.Tasks))
	out = append(out, p.Tasks...)
	for _, g := range p.Groups {
		out = append(out, g.Tasks...)
	}
	return out
}

// Document is the parsed form of a tasks.md file.
type Document struct {
	Title     string   `json:"title"`
	InputPath string   `json:"input_path,omitempty"`
	Branch    string   `json:"branch,omitempty"`
	Phases    []*Phase `json:"phases"`
}

// AllTasks flattens every phase's tasks in document order.
func (d *Document) AllTasks() []*Task {
	var out []*Task
	for _, p := range d.Phases {
		out = append(out, p.AllTasks()...)
	}
	return out
}

// TaskCount returns the total number of tasks.
func (d *Document) TaskCount() int {
	n := 0
	for _, p := range d.Phases {
		n += len(p.AllTasks())
	}
	return n
}

// CompletedCount returns the number of checked tasks.
func (d *Document) CompletedCount() int {
	n := 0
	for _, t := range d.AllTasks() {
		if t.Completed {
			n++
		}
	}
	return n
}

// GroupCount returns the number of story groups across all phases.
func (d *Document) GroupCount() int {
	n := 0
	for _, p := range d.Phases {
		n += len(p.Groups)
	}
	return n
}

// UserStories returns the sorted union of user-story tags found on groups
// and tasks.
func (d *Document) UserStories() []string {
	seen := make(map[string]bool)
	for _, p := range d.Phases {
		for _, g := range p.Groups {
			if g.UserStory != "" {
				seen[g.UserStory] = true
			}
		}
		for _, t := range p.AllTasks() {
			if t.UserStory != "" {
				seen[t.UserStory] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for us := range seen {
		out = append(out, us)
	}
	sort.Strings(out)
	return out
}

// Phase returns the phase with the given number, or nil.
func (d *Document) Phase(number string) *Phase {
	for _, p := range d.Phases {
		if p.Number == number {
			return p
		}
	}
	return nil
}
