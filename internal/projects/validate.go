package projects

import (
	"fmt"
	"strings"

	"github.com/steveyegge/specsync/internal/tasks"
)

// Severity of a structure finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one structural problem in a hierarchy.
type Finding struct {
	Severity Severity `json:"severity"`
	Kind     Kind     `json:"kind"`
	Key      string   `json:"key"`
	Message  string   `json:"message"`
}

// ValidationReport is the result of ValidateHierarchy.
type ValidationReport struct {
	Phases   int       `json:"phases"`
	Groups   int       `json:"groups"`
	Tasks    int       `json:"tasks"`
	Findings []Finding `json:"findings,omitempty"`
}

// OK reports whether the report has no errors. Warnings are allowed.
func (r *ValidationReport) OK() bool {
	return r.Count(SeverityError) == 0
}

func (r *ValidationReport) Count(sev Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

func (r *ValidationReport) add(sev Severity, kind Kind, key, format string, args ...interface{}) {
	r.Findings = append(r.Findings, Finding{
		Severity: sev,
		Kind:     kind,
		Key:      key,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Markdown renders the report as a markdown section.
func (r *ValidationReport) Markdown() string {
	var b strings.Builder
	b.WriteString("## Hierarchy\n\n")
	fmt.Fprintf(&b, "%d phases, %d groups, %d tasks.\n\n", r.Phases, r.Groups, r.Tasks)
	if len(r.Findings) == 0 {
		b.WriteString("Every issue is linked to its expected parent.\n")
		return b.String()
	}
	b.WriteString("| Severity | Kind | Key | Finding |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", f.Severity, f.Kind, escapeCell(f.Key), escapeCell(f.Message))
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// ValidateHierarchy checks h against doc: every entity has an issue, phases
// are top level, groups sit under their phase and tasks under their group
// (or phase for direct tasks). Titles that collide under one parent are
// reported because such entities share a single issue.
func ValidateHierarchy(doc *tasks.Document, h *Hierarchy) *ValidationReport {
	r := &ValidationReport{
		Phases: len(doc.Phases),
		Groups: doc.GroupCount(),
		Tasks:  doc.TaskCount(),
	}

	for _, phase := range doc.Phases {
		phaseRef := h.Phases[phase.Number]
		switch {
		case phaseRef == nil:
			r.add(SeverityError, KindPhase, phase.Number, "phase %s has no issue", phase.Number)
		case phaseRef.ParentID != "":
			r.add(SeverityError, KindPhase, phase.Number, "phase issue #%d has a parent", phaseRef.Number)
		}

		var groupTitles titleCounts
		for _, group := range phase.Groups {
			groupTitles.add(group.Title)
			key := GroupKey(phase.Number, group.Title)
			groupRef := h.Groups[key]
			if groupRef == nil {
				r.add(SeverityError, KindGroup, key, "group %q has no issue", group.Title)
				continue
			}
			if phaseRef != nil && groupRef.ParentID != phaseRef.ID {
				r.add(SeverityError, KindGroup, key, "group issue #%d is not a sub-issue of phase issue #%d",
					groupRef.Number, phaseRef.Number)
			}
			checkTasks(r, h, group.Tasks, groupRef, "group")
		}
		for _, title := range groupTitles.repeated() {
			r.add(SeverityWarning, KindGroup, GroupKey(phase.Number, title),
				"%d groups titled %q in phase %s share one issue", groupTitles.n[title], title, phase.Number)
		}

		checkTasks(r, h, phase.Tasks, phaseRef, "phase")
	}

	var phaseTitles titleCounts
	for _, phase := range doc.Phases {
		phaseTitles.add(PhaseTitle(phase))
	}
	for _, title := range phaseTitles.repeated() {
		r.add(SeverityWarning, KindPhase, title, "%d phases titled %q share one issue", phaseTitles.n[title], title)
	}
	return r
}

func checkTasks(r *ValidationReport, h *Hierarchy, list []*tasks.Task, parent *IssueRef, parentKind string) {
	var titles titleCounts
	for _, t := range list {
		titles.add(TaskTitle(t))
		ref := h.Tasks[t.ID]
		if ref == nil {
			r.add(SeverityError, KindTask, t.ID, "task %s has no issue", t.ID)
			continue
		}
		if parent != nil && ref.ParentID != parent.ID {
			r.add(SeverityError, KindTask, t.ID, "task issue #%d is not a sub-issue of %s issue #%d",
				ref.Number, parentKind, parent.Number)
		}
	}
	for _, title := range titles.repeated() {
		r.add(SeverityWarning, KindTask, title, "%d tasks titled %q share one issue", titles.n[title], title)
	}
}

// titleCounts counts titles and remembers first-seen order so findings
// come out in document order.
type titleCounts struct {
	order []string
	n     map[string]int
}

func (c *titleCounts) add(title string) {
	if c.n == nil {
		c.n = make(map[string]int)
	}
	if c.n[title] == 0 {
		c.order = append(c.order, title)
	}
	c.n[title]++
}

// repeated returns the titles seen more than once, in first-seen order.
func (c *titleCounts) repeated() []string {
	var out []string
	for _, title := range c.order {
		if c.n[title] > 1 {
			out = append(out, title)
		}
	}
	return out
}
