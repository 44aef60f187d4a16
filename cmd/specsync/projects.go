package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/steveyegge/specsync/internal/configfile"
	"github.com/steveyegge/specsync/internal/debug"
	"github.com/steveyegge/specsync/internal/git"
	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/ui"
)

// projectsCmd is the root command for GitHub Projects integration.
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage GitHub Projects integration",
	Long: `Commands for mirroring a spec-kit tasks.md into a GitHub Project.

State is kept in .specify/github-projects.json at the repository root.
The token is taken from --token, GH_TOKEN, GITHUB_TOKEN, 'gh auth token'
or the git credential store, in that order.`,
}

var projectsEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable GitHub Projects integration for this repository",
	Long: `Enable GitHub Projects integration for the current repository.

The repository is read from the 'origin' remote unless --owner and --repo
are given. When a token is available the repository is checked against the
API before the configuration is written.`,
	Args: cobra.NoArgs,
	RunE: runProjectsEnable,
}

var projectsDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable GitHub Projects integration",
	Long:  `Disable syncing. The project and field configuration are kept so 'enable' can resume.`,
	Args:  cobra.NoArgs,
	RunE:  runProjectsDisable,
}

var projectsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show GitHub Projects integration status",
	Args:  cobra.NoArgs,
	RunE:  runProjectsStatus,
}

var (
	enableOwner string
	enableRepo  string
	enableForce bool
	enableToken string
)

// promptRepository asks for the repository when origin cannot be parsed.
// Replaced in tests.
var promptRepository = promptRepositoryForm

func init() {
	projectsCmd.AddCommand(projectsEnableCmd)
	projectsCmd.AddCommand(projectsDisableCmd)
	projectsCmd.AddCommand(projectsStatusCmd)

	projectsEnableCmd.Flags().StringVar(&enableOwner, "owner", "", "Repository owner (default: from the origin remote)")
	projectsEnableCmd.Flags().StringVar(&enableRepo, "repo", "", "Repository name (default: from the origin remote)")
	projectsEnableCmd.Flags().BoolVarP(&enableForce, "force", "f", false, "Reconfigure even if already enabled")
	projectsEnableCmd.Flags().StringVar(&enableToken, "token", "", "GitHub personal access token")

	rootCmd.AddCommand(projectsCmd)
}

func runProjectsEnable(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	root, err := projectRoot()
	if err != nil {
		return err
	}
	if !git.IsRepo(root) {
		return errors.New("not a git repository: GitHub Projects integration requires one")
	}

	cfg, err := configfile.Load(root)
	if err != nil {
		return err
	}
	if cfg.Enabled && !enableForce {
		if jsonOutput {
			return outputJSON(out, cfg)
		}
		_, _ = fmt.Fprintln(out, ui.RenderWarn("GitHub Projects is already enabled"))
		_, _ = fmt.Fprintf(out, "\nRepository: %s\n", cfg.RepoSlug())
		if cfg.ProjectURL != "" {
			_, _ = fmt.Fprintf(out, "Project URL: %s\n", cfg.ProjectURL)
		}
		_, _ = fmt.Fprintln(out, "\nUse --force to reconfigure.")
		return nil
	}

	owner, repo, err := repositoryFor(cmd, root)
	if err != nil {
		return err
	}

	token, haveToken, err := resolveToken(ctx, enableToken)
	if err != nil {
		return err
	}
	if haveToken {
		if _, err := github.NewOps(newGateway(token)).Repository(ctx, owner, repo); err != nil {
			return fmt.Errorf("cannot access %s/%s: %w", owner, repo, err)
		}
		debug.Logf("verified access to %s/%s\n", owner, repo)
	} else {
		debug.Warnf("%s No GitHub token found; repository access was not verified\n", ui.RenderWarnIcon())
	}

	if cfg.RepoOwner != owner || cfg.RepoName != repo {
		// A different repository means a different project.
		cfg = configfile.DefaultConfig()
	}
	cfg.Enabled = true
	cfg.RepoOwner = owner
	cfg.RepoName = repo
	if err := cfg.Save(root); err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(out, cfg)
	}
	_, _ = fmt.Fprintf(out, "%s GitHub Projects integration enabled\n", ui.RenderPassIcon())
	_, _ = fmt.Fprintf(out, "\nRepository: %s\n", cfg.RepoSlug())
	if !quietFlag {
		_, _ = fmt.Fprintln(out, "\nNext steps:")
		_, _ = fmt.Fprintln(out, "  1. Create a feature spec with tasks.md")
		_, _ = fmt.Fprintln(out, "  2. Run 'specsync projects sync' to create/update the GitHub Project")
	}
	return nil
}

// repositoryFor picks owner/repo from flags, the origin remote, or a prompt.
func repositoryFor(cmd *cobra.Command, root string) (string, string, error) {
	if enableOwner != "" && enableRepo != "" {
		return enableOwner, enableRepo, nil
	}

	owner, repo, err := git.OriginRepository(cmd.Context(), root)
	if err == nil {
		if enableOwner != "" {
			owner = enableOwner
		}
		if enableRepo != "" {
			repo = enableRepo
		}
		return owner, repo, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) || jsonOutput {
		return "", "", fmt.Errorf("%w (pass --owner and --repo)", err)
	}
	debug.Logf("origin lookup failed: %v\n", err)
	return promptRepository(enableOwner, enableRepo)
}

func promptRepositoryForm(owner, repo string) (string, string, error) {
	required := func(what string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", what)
			}
			if strings.ContainsAny(s, "/ ") {
				return fmt.Errorf("%s must not contain '/' or spaces", what)
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Repository owner").
				Description("User or organization that owns the repository").
				Value(&owner).
				Validate(required("owner")),
			huh.NewInput().
				Title("Repository name").
				Value(&repo).
				Validate(required("repository name")),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", "", errors.New("cancelled")
		}
		return "", "", fmt.Errorf("form error: %w", err)
	}
	return strings.TrimSpace(owner), strings.TrimSpace(repo), nil
}

func runProjectsDisable(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	root, err := projectRoot()
	if err != nil {
		return err
	}
	cfg, err := configfile.Load(root)
	if err != nil {
		return err
	}

	if !cfg.Enabled {
		if jsonOutput {
			return outputJSON(out, cfg)
		}
		_, _ = fmt.Fprintln(out, ui.RenderWarn("GitHub Projects is not enabled"))
		return nil
	}

	cfg.Enabled = false
	if err := cfg.Save(root); err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(out, cfg)
	}
	_, _ = fmt.Fprintf(out, "%s GitHub Projects integration disabled\n", ui.RenderPassIcon())
	_, _ = fmt.Fprintln(out, "\nConfiguration has been saved. To re-enable:")
	_, _ = fmt.Fprintln(out, "  specsync projects enable")
	return nil
}

// statusReport is the --json shape of 'projects status'.
type statusReport struct {
	Enabled       bool   `json:"enabled"`
	Repository    string `json:"repository,omitempty"`
	ProjectNumber int    `json:"project_number,omitempty"`
	ProjectURL    string `json:"project_url,omitempty"`
	Fields        int    `json:"fields"`
	LastSyncedAt  string `json:"last_synced_at,omitempty"`
	ConfigPath    string `json:"config_path"`
}

func runProjectsStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	root, err := projectRoot()
	if err != nil {
		return err
	}
	cfg, err := configfile.Load(root)
	if err != nil {
		return err
	}

	report := statusReport{
		Enabled:       cfg.Enabled,
		Repository:    cfg.RepoSlug(),
		ProjectNumber: cfg.ProjectNumber,
		ProjectURL:    cfg.ProjectURL,
		Fields:        len(cfg.FieldIDs),
		LastSyncedAt:  cfg.LastSyncedAt,
		ConfigPath:    configfile.ConfigPath(root),
	}
	if jsonOutput {
		return outputJSON(out, report)
	}

	_, _ = fmt.Fprintln(out, ui.RenderCategory("GitHub Projects Status"))
	rows := []ui.Row{{Key: "Enabled", Value: yesNo(cfg.Enabled)}}
	if cfg.Enabled {
		rows = append(rows, ui.Row{Key: "Repository", Value: orNotSet(report.Repository, "Not set")})
		project := ui.RenderMuted("No project created yet")
		if cfg.ProjectNumber != 0 {
			project = "#" + strconv.Itoa(cfg.ProjectNumber)
		}
		rows = append(rows, ui.Row{Key: "Project Number", Value: project})
		if cfg.ProjectURL != "" {
			rows = append(rows, ui.Row{Key: "Project URL", Value: cfg.ProjectURL})
		}
		if len(cfg.FieldIDs) > 0 {
			rows = append(rows, ui.Row{Key: "Fields", Value: strconv.Itoa(len(cfg.FieldIDs))})
		}
		if cfg.LastSyncedAt != "" {
			rows = append(rows, ui.Row{Key: "Last Synced", Value: cfg.LastSyncedAt})
		}
	}
	_, _ = fmt.Fprintln(out, ui.RenderTable(rows))

	switch {
	case !cfg.Enabled:
		_, _ = fmt.Fprintln(out, "\n"+ui.RenderMuted("Run 'specsync projects enable' to get started"))
	case cfg.ProjectNumber == 0:
		_, _ = fmt.Fprintln(out, "\n"+ui.RenderMuted("Run 'specsync projects sync' to create a project"))
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return ui.RenderPass("Yes")
	}
	return ui.RenderFail("No")
}

func orNotSet(s, placeholder string) string {
	if s == "" {
		return ui.RenderMuted(placeholder)
	}
	return s
}
