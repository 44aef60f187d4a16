package projects

import (
	"fmt"
	"strings"

	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/tasks"
)

// PlanCounts splits entities into those that would get a new issue and
// those that would reuse one.
type PlanCounts struct {
	Create int `json:"create"`
	Reuse  int `json:"reuse"`
}

func (c PlanCounts) Total() int {
	return c.Create + c.Reuse
}

// Plan is what a sync would do, computed without writing anything.
type Plan struct {
	Repository    string     `json:"repository,omitempty"`
	ProjectTitle  string     `json:"project_title"`
	ProjectExists bool       `json:"project_exists"`
	RemoteChecked bool       `json:"remote_checked"`
	Phases        PlanCounts `json:"phases"`
	Groups        PlanCounts `json:"groups"`
	Tasks         PlanCounts `json:"tasks"`
	Completed     int        `json:"completed"`
	Dependencies  int        `json:"dependencies"`
	Labels        []string   `json:"labels,omitempty"`
	Fields        []string   `json:"fields,omitempty"`
}

// PlanInput carries the remote state a plan is computed against. Every
// member is optional; a nil State means nothing can be reused.
type PlanInput struct {
	Repository     string
	State          *RunState
	ProjectExists  bool
	ExistingFields []github.ProjectField
	ExistingLabels LabelSet
}

// ProjectTitle is the title of the project created for doc.
func ProjectTitle(doc *tasks.Document) string {
	return "Spec-Kit: " + doc.Title
}

// BuildPlan walks doc the way BuildHierarchy would, resolving reuse
// against in.State instead of creating issues.
func BuildPlan(doc *tasks.Document, graph *tasks.DependencyGraph, in PlanInput) *Plan {
	p := &Plan{
		Repository:    in.Repository,
		ProjectTitle:  ProjectTitle(doc),
		ProjectExists: in.ProjectExists,
		RemoteChecked: in.State != nil,
		Completed:     doc.CompletedCount(),
		Dependencies:  graph.EdgeCount(),
	}

	lookup := func(title, parentID string, counts *PlanCounts) string {
		if in.State == nil {
			counts.Create++
			return ""
		}
		if issue := in.State.Lookup(title, parentID); issue != nil {
			counts.Reuse++
			return issue.ID
		}
		counts.Create++
		return ""
	}

	// An entity whose parent would be created cannot be reused.
	child := func(title, parentID string, counts *PlanCounts) string {
		if parentID == "" {
			counts.Create++
			return ""
		}
		return lookup(title, parentID, counts)
	}

	for _, phase := range doc.Phases {
		phaseID := lookup(PhaseTitle(phase), "", &p.Phases)
		for _, group := range phase.Groups {
			groupID := child(group.Title, phaseID, &p.Groups)
			for _, t := range group.Tasks {
				child(TaskTitle(t), groupID, &p.Tasks)
			}
		}
		for _, t := range phase.Tasks {
			child(TaskTitle(t), phaseID, &p.Tasks)
		}
	}

	have := make(map[string]bool, len(in.ExistingFields))
	for _, f := range in.ExistingFields {
		have[f.Name] = true
	}
	for _, name := range []string{FieldTaskID, FieldPhase, FieldUserStory, FieldPriority, FieldParallel} {
		if !have[name] {
			p.Fields = append(p.Fields, name)
		}
	}

	for _, spec := range DesiredLabels(doc) {
		if _, ok := in.ExistingLabels[spec.Name]; !ok {
			p.Labels = append(p.Labels, spec.Name)
		}
	}
	return p
}

// Markdown renders the plan as a markdown summary.
func (p *Plan) Markdown() string {
	var b strings.Builder
	b.WriteString("## Dry run\n\n")
	if p.Repository != "" {
		fmt.Fprintf(&b, "Repository **%s**, ", p.Repository)
	}
	if p.ProjectExists {
		fmt.Fprintf(&b, "existing project **%s**.\n\n", p.ProjectTitle)
	} else {
		fmt.Fprintf(&b, "new project **%s**.\n\n", p.ProjectTitle)
	}

	b.WriteString("| Issues | Create | Reuse |\n")
	b.WriteString("|---|---:|---:|\n")
	fmt.Fprintf(&b, "| Phases | %d | %d |\n", p.Phases.Create, p.Phases.Reuse)
	fmt.Fprintf(&b, "| Groups | %d | %d |\n", p.Groups.Create, p.Groups.Reuse)
	fmt.Fprintf(&b, "| Tasks | %d | %d |\n", p.Tasks.Create, p.Tasks.Reuse)
	b.WriteString("\n")

	fmt.Fprintf(&b, "- Completed tasks: %d\n", p.Completed)
	fmt.Fprintf(&b, "- Dependencies: %d\n", p.Dependencies)
	if len(p.Fields) > 0 {
		fmt.Fprintf(&b, "- Fields to create: %s\n", strings.Join(p.Fields, ", "))
	}
	if len(p.Labels) > 0 {
		fmt.Fprintf(&b, "- Labels to create: %s\n", strings.Join(p.Labels, ", "))
	}
	if !p.RemoteChecked {
		b.WriteString("\n_Remote state was not read; every issue is counted as new._\n")
	}
	return b.String()
}
