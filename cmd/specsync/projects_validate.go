package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/specsync/internal/configfile"
	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/projects"
	"github.com/steveyegge/specsync/internal/tasks"
	"github.com/steveyegge/specsync/internal/ui"
)

var projectsValidateCmd = &cobra.Command{
	Use:   "validate [tasks.md]",
	Short: "Check a tasks.md without syncing",
	Long: `Parse a tasks.md and check its dependency graph for duplicate task ids,
self-dependencies and cycles.

When the integration is enabled and a token is available the sync plan
is also computed against the repository, read-only.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProjectsValidate,
}

var validateToken string

func init() {
	projectsValidateCmd.Flags().StringVar(&validateToken, "token", "", "GitHub personal access token")
	projectsCmd.AddCommand(projectsValidateCmd)
}

// validateReport is the --json shape of 'projects validate'.
type validateReport struct {
	Valid        bool           `json:"valid"`
	Path         string         `json:"path"`
	Title        string         `json:"title"`
	Phases       int            `json:"phases"`
	Groups       int            `json:"groups"`
	Tasks        int            `json:"tasks"`
	Completed    int            `json:"completed"`
	Dependencies int            `json:"dependencies"`
	Problems     []string       `json:"problems,omitempty"`
	Plan         *projects.Plan `json:"plan,omitempty"`
}

func runProjectsValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	root, err := projectRoot()
	if err != nil {
		return err
	}
	path, err := resolveTasksFile(root, args)
	if err != nil {
		return err
	}
	doc, content, err := tasks.ParseFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	graph := tasks.BuildDependencyGraph(doc)
	report := validateReport{
		Valid:        true,
		Path:         path,
		Title:        doc.Title,
		Phases:       len(doc.Phases),
		Groups:       doc.GroupCount(),
		Tasks:        doc.TaskCount(),
		Completed:    doc.CompletedCount(),
		Dependencies: graph.EdgeCount(),
	}
	var verr *tasks.ValidationError
	if err := graph.Validate(doc); err != nil {
		if !errors.As(err, &verr) {
			return err
		}
		report.Valid = false
		report.Problems = verr.Problems
	}

	if report.Valid {
		plan, err := remotePlan(cmd, root, string(content))
		if err != nil {
			return err
		}
		report.Plan = plan
	}

	if jsonOutput {
		if err := outputJSON(out, report); err != nil {
			return err
		}
	} else {
		printValidateReport(cmd, report)
	}
	if !report.Valid {
		return verr
	}
	return nil
}

// remotePlan computes a read-only plan when the project is configured and
// a token is found; otherwise it returns nil.
func remotePlan(cmd *cobra.Command, root, content string) (*projects.Plan, error) {
	cfg, err := configfile.Load(root)
	if err != nil {
		return nil, err
	}
	if cfg.Validate() != nil {
		return nil, nil
	}
	token, ok, err := resolveToken(cmd.Context(), validateToken)
	if err != nil || !ok {
		return nil, err
	}

	engine := projects.NewEngine(github.NewOps(newGateway(token)), nil)
	result, err := engine.Sync(cmd.Context(), projects.SyncRequest{Content: content, DryRun: true}, cfg)
	if err != nil {
		return nil, err
	}
	return result.Plan, nil
}

func printValidateReport(cmd *cobra.Command, r validateReport) {
	out := cmd.OutOrStdout()
	if r.Valid {
		_, _ = fmt.Fprintf(out, "%s %s is valid\n", ui.RenderPassIcon(), r.Path)
	} else {
		_, _ = fmt.Fprintf(out, "%s %s has %d problems\n", ui.RenderFailIcon(), r.Path, len(r.Problems))
		for _, p := range r.Problems {
			_, _ = fmt.Fprintf(out, "  - %s\n", p)
		}
	}
	_, _ = fmt.Fprintln(out, ui.RenderTable([]ui.Row{
		{Key: "Title", Value: r.Title},
		{Key: "Phases", Value: fmt.Sprint(r.Phases)},
		{Key: "Groups", Value: fmt.Sprint(r.Groups)},
		{Key: "Tasks", Value: fmt.Sprintf("%d (%d completed)", r.Tasks, r.Completed)},
		{Key: "Dependencies", Value: fmt.Sprint(r.Dependencies)},
	}))
	if r.Plan != nil {
		_, _ = fmt.Fprint(out, ui.RenderMarkdown(r.Plan.Markdown()))
	}
}
