package projects

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/specsync/internal/configfile"
	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/tasks"
)

// Project field names.
const (
	FieldTaskID    = "Task ID"
	FieldPhase     = "Phase"
	FieldUserStory = "User Story"
	FieldPriority  = "Priority"
	FieldParallel  = "Parallel"
)

// Option names shared by several fields.
const (
	OptionNA  = "N/A"
	OptionYes = "Yes"
	OptionNo  = "No"
)

// PriorityOptions are the Priority field options, highest first.
var PriorityOptions = []string{"P1 - Critical", "P2 - High", "P3 - Medium", "P4 - Low", OptionNA}

// TextFieldRef is a free-text project field.
type TextFieldRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SingleSelectFieldRef is a single-select project field with its options
// keyed by display name.
type SingleSelectFieldRef struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Options map[string]string `json:"options"`
}

// OptionID returns the id of the named option, or "".
func (f SingleSelectFieldRef) OptionID(name string) string {
	return f.Options[name]
}

// FieldSet is the set of custom fields the sync writes to.
type FieldSet struct {
	TaskID    TextFieldRef         `json:"task_id"`
	Phase     SingleSelectFieldRef `json:"phase"`
	UserStory SingleSelectFieldRef `json:"user_story"`
	Priority  SingleSelectFieldRef `json:"priority"`
	Parallel  SingleSelectFieldRef `json:"parallel"`
}

// Names lists the field names in creation order.
func (fs *FieldSet) Names() []string {
	return []string{fs.TaskID.Name, fs.Phase.Name, fs.UserStory.Name, fs.Priority.Name, fs.Parallel.Name}
}

// ToFieldIDs converts the set to its persisted form.
func (fs *FieldSet) ToFieldIDs() configfile.FieldIDs {
	ids := configfile.FieldIDs{
		FieldTaskID: {ID: fs.TaskID.ID},
	}
	for _, f := range fs.selects() {
		ids[f.Name] = configfile.FieldRef{ID: f.ID, Options: copyOptions(f.Options)}
	}
	return ids
}

// FieldSetFromIDs rebuilds a FieldSet from persisted ids. Missing fields
// keep an empty id.
func FieldSetFromIDs(ids configfile.FieldIDs) *FieldSet {
	fs := emptyFieldSet()
	fs.TaskID.ID = ids[FieldTaskID].ID
	for _, f := range fs.selectPtrs() {
		ref := ids[f.Name]
		f.ID = ref.ID
		f.Options = copyOptions(ref.Options)
	}
	return fs
}

func emptyFieldSet() *FieldSet {
	return &FieldSet{
		TaskID:    TextFieldRef{Name: FieldTaskID},
		Phase:     SingleSelectFieldRef{Name: FieldPhase, Options: map[string]string{}},
		UserStory: SingleSelectFieldRef{Name: FieldUserStory, Options: map[string]string{}},
		Priority:  SingleSelectFieldRef{Name: FieldPriority, Options: map[string]string{}},
		Parallel:  SingleSelectFieldRef{Name: FieldParallel, Options: map[string]string{}},
	}
}

func (fs *FieldSet) selects() []SingleSelectFieldRef {
	return []SingleSelectFieldRef{fs.Phase, fs.UserStory, fs.Priority, fs.Parallel}
}

func (fs *FieldSet) selectPtrs() []*SingleSelectFieldRef {
	return []*SingleSelectFieldRef{&fs.Phase, &fs.UserStory, &fs.Priority, &fs.Parallel}
}

func copyOptions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// PhaseOption is the Phase field option for p.
func PhaseOption(p *tasks.Phase) string {
	return PhaseTitle(p)
}

// PriorityOption maps "P1".."P4" to its Priority option, else N/A.
func PriorityOption(priority string) string {
	switch priority {
	case "P1":
		return PriorityOptions[0]
	case "P2":
		return PriorityOptions[1]
	case "P3":
		return PriorityOptions[2]
	case "P4":
		return PriorityOptions[3]
	}
	return OptionNA
}

// OptionColor picks the display colour for a single-select option.
func OptionColor(option string) string {
	switch {
	case strings.HasPrefix(option, "P1"):
		return github.ColorRed
	case strings.HasPrefix(option, "P2"):
		return github.ColorOrange
	case strings.HasPrefix(option, "P3"):
		return github.ColorYellow
	case strings.HasPrefix(option, "P4"):
		return github.ColorGreen
	case option == OptionYes:
		return github.ColorBlue
	case option == OptionNo, option == OptionNA:
		return github.ColorGray
	}
	if rest, ok := strings.CutPrefix(option, "Phase "); ok {
		major, _, _ := strings.Cut(rest, ":")
		major, _, _ = strings.Cut(major, ".")
		switch major {
		case "1":
			return github.ColorPink
		case "2":
			return github.ColorPurple
		case "3":
			return github.ColorBlue
		case "4":
			return github.ColorGreen
		case "5":
			return github.ColorOrange
		}
	}
	return github.ColorGray
}

// DesiredOptions returns the options each single-select field is created
// with for doc.
func DesiredOptions(doc *tasks.Document) map[string][]string {
	phases := make([]string, 0, len(doc.Phases))
	for _, p := range doc.Phases {
		phases = append(phases, PhaseOption(p))
	}
	return map[string][]string{
		FieldPhase:     phases,
		FieldUserStory: append(doc.UserStories(), OptionNA),
		FieldPriority:  append([]string(nil), PriorityOptions...),
		FieldParallel:  {OptionYes, OptionNo},
	}
}

// SetupFields lists the project's fields once and reuses any field that
// already exists by name, options included. Missing fields are created.
func SetupFields(ctx context.Context, ops *github.Ops, projectID string, doc *tasks.Document) (*FieldSet, []string, error) {
	existing, err := ops.ProjectFields(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing project fields: %w", err)
	}
	byName := make(map[string]github.ProjectField, len(existing))
	for _, f := range existing {
		byName[f.Name] = f
	}

	fs := emptyFieldSet()
	var created []string

	if f, ok := byName[FieldTaskID]; ok {
		fs.TaskID.ID = f.ID
	} else {
		f, err := ops.CreateField(ctx, projectID, FieldTaskID, github.FieldTypeText, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("creating field %q: %w", FieldTaskID, err)
		}
		fs.TaskID.ID = f.ID
		created = append(created, FieldTaskID)
	}

	desired := DesiredOptions(doc)
	for _, ref := range fs.selectPtrs() {
		field, ok := byName[ref.Name]
		if !ok {
			opts := make([]github.NewOption, 0, len(desired[ref.Name]))
			for _, name := range desired[ref.Name] {
				opts = append(opts, github.NewOption{Name: name, Color: OptionColor(name)})
			}
			f, err := ops.CreateField(ctx, projectID, ref.Name, github.FieldTypeSingleSelect, opts)
			if err != nil {
				return nil, nil, fmt.Errorf("creating field %q: %w", ref.Name, err)
			}
			field = *f
			created = append(created, ref.Name)
		}
		ref.ID = field.ID
		for _, opt := range field.Options {
			ref.Options[opt.Name] = opt.ID
		}
	}
	return fs, created, nil
}
