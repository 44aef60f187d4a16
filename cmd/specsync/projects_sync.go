package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/steveyegge/specsync/internal/config"
	"github.com/steveyegge/specsync/internal/configfile"
	"github.com/steveyegge/specsync/internal/debug"
	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/projects"
	"github.com/steveyegge/specsync/internal/ui"
)

var projectsSyncCmd = &cobra.Command{
	Use:   "sync [tasks.md]",
	Short: "Sync a tasks.md into the GitHub Project",
	Long: `Create or update the GitHub Project for a spec-kit tasks.md.

Without an argument the file is found under the specs directory
(<specs-dir>/*/tasks.md); exactly one match is required. The sync is
skipped when the file has not changed since the last successful run,
unless --force is given.

--dry-run prints what would be created without writing anything, and
works without a token.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProjectsSync,
}

var (
	syncToken  string
	syncDryRun bool
	syncForce  bool
	syncWatch  bool
)

func init() {
	projectsSyncCmd.Flags().StringVar(&syncToken, "token", "", "GitHub personal access token")
	projectsSyncCmd.Flags().BoolVarP(&syncDryRun, "dry-run", "n", false, "Show what would change without writing")
	projectsSyncCmd.Flags().BoolVar(&syncForce, "force", false, "Sync even if tasks.md is unchanged")
	projectsSyncCmd.Flags().BoolVar(&syncWatch, "watch", false, "Re-sync whenever tasks.md changes")

	projectsCmd.AddCommand(projectsSyncCmd)
}

func runProjectsSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	root, err := projectRoot()
	if err != nil {
		return err
	}

	cfg, err := configfile.Load(root)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if syncWatch && syncDryRun {
		return errors.New("--watch cannot be combined with --dry-run")
	}

	path, err := resolveTasksFile(root, args)
	if err != nil {
		return err
	}

	var ops *github.Ops
	if syncDryRun {
		// A dry run plans against remote state when it can, locally otherwise.
		token, ok, err := resolveToken(ctx, syncToken)
		if err != nil {
			return err
		}
		if ok {
			ops = github.NewOps(newGateway(token))
		}
	} else {
		ops, err = requireOps(ctx, syncToken)
		if err != nil {
			return err
		}
	}

	s := &syncRunner{
		root:   root,
		path:   path,
		ops:    ops,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}
	if err := s.run(ctx, cfg, syncForce); err != nil {
		return err
	}
	if !syncWatch {
		return nil
	}
	return s.watch(ctx, config.GetDuration("sync.watch-debounce"))
}

// resolveTasksFile returns the explicit argument, the configured
// tasks-file, or the single tasks.md under the specs directory.
func resolveTasksFile(root string, args []string) (string, error) {
	if len(args) == 1 {
		return existingFile(args[0])
	}

	local := config.LoadLocalConfigWithEnv(filepath.Join(root, config.ProjectDir))
	if local.TasksFile != "" {
		return existingFile(absUnder(root, local.TasksFile))
	}
	if tf := config.GetString("tasks-file"); tf != "" {
		return existingFile(absUnder(root, tf))
	}

	specsDir := local.SpecsDir
	if specsDir == "" {
		specsDir = config.GetString("specs.dir")
	}
	if specsDir == "" {
		specsDir = local.SpecsDirOrDefault()
	}
	return discoverTasksFile(absUnder(root, specsDir))
}

// discoverTasksFile finds <specsDir>/*/tasks.md. Zero or several matches
// are errors; the caller must then name the file.
func discoverTasksFile(specsDir string) (string, error) {
	matches, err := doublestar.Glob(os.DirFS(specsDir), "*/tasks.md")
	if err != nil {
		return "", fmt.Errorf("searching %s: %w", specsDir, err)
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no tasks.md found under %s (pass the path explicitly)", specsDir)
	case 1:
		return filepath.Join(specsDir, filepath.FromSlash(matches[0])), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "found %d tasks.md files under %s; pass one explicitly:", len(matches), specsDir)
	for _, m := range matches {
		b.WriteString("\n  ")
		b.WriteString(filepath.Join(specsDir, filepath.FromSlash(m)))
	}
	return "", errors.New(b.String())
}

func existingFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("tasks file not found: %s", path)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return path, nil
}

func absUnder(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// syncRunner runs one tasks.md through the engine, once or on every change.
type syncRunner struct {
	root   string
	path   string
	ops    *github.Ops
	out    io.Writer
	errOut io.Writer
}

func (s *syncRunner) run(ctx context.Context, cfg *configfile.ProjectsConfig, force bool) error {
	content, err := os.ReadFile(s.path) // #nosec G304 - path resolved by resolveTasksFile
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}

	if !syncDryRun && !force && !projects.NeedsSync(string(content), cfg) {
		if jsonOutput {
			return outputJSON(s.out, map[string]interface{}{
				"success": true,
				"skipped": true,
				"reason":  "tasks.md unchanged since last sync",
				"project": cfg.ProjectURL,
			})
		}
		_, _ = fmt.Fprintf(s.out, "%s %s is unchanged since the last sync (use --force to sync anyway)\n",
			ui.RenderPassIcon(), filepath.Base(filepath.Dir(s.path))+"/tasks.md")
		return nil
	}

	engine := projects.NewEngine(s.ops, &configfile.FileStore{Root: s.root})
	engine.OnMessage = func(msg string) {
		if !jsonOutput {
			debug.PrintNormal("  %s\n", msg)
		}
	}
	engine.OnWarning = func(msg string) {
		if !jsonOutput {
			_, _ = fmt.Fprintf(s.errOut, "%s %s\n", ui.RenderWarnIcon(), msg)
		}
	}

	if !jsonOutput && !syncDryRun {
		debug.PrintNormal("Syncing %s to %s...\n", s.path, cfg.RepoSlug())
	}
	result, err := engine.Sync(ctx, projects.SyncRequest{
		Content:    string(content),
		SourceName: s.path,
		DryRun:     syncDryRun,
	}, cfg)
	if jsonOutput {
		if jerr := outputJSON(s.out, result); jerr != nil {
			return jerr
		}
		return err
	}
	if err != nil {
		return err
	}
	s.report(result)
	return nil
}

func (s *syncRunner) report(result *projects.SyncResult) {
	if result.DryRun {
		_, _ = fmt.Fprint(s.out, ui.RenderMarkdown(result.Plan.Markdown()))
		return
	}

	_, _ = fmt.Fprintf(s.out, "%s Synced %d tasks to GitHub Projects\n", ui.RenderPassIcon(), result.Stats.Tasks)
	rows := []ui.Row{
		{Key: "Issues created", Value: fmt.Sprint(result.Stats.Issues.Created)},
		{Key: "Issues reused", Value: fmt.Sprint(result.Stats.Issues.Reused)},
		{Key: "Issues updated", Value: fmt.Sprint(result.Stats.Issues.Updated)},
		{Key: "Dependencies linked", Value: fmt.Sprint(result.Stats.Links.Linked)},
	}
	if result.Project != nil && result.Project.URL != "" {
		rows = append(rows, ui.Row{Key: "Project", Value: result.Project.URL})
	}
	_, _ = fmt.Fprintln(s.out, ui.RenderTable(rows))
	if n := len(result.Warnings); n > 0 {
		_, _ = fmt.Fprintf(s.out, "%s\n", ui.RenderWarn(fmt.Sprintf("%d warnings", n)))
	}
}

// watch re-syncs after the file settles for debounce. Syncs never overlap;
// changes made during a sync schedule one more run.
func (s *syncRunner) watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors often replace files, so watch the directory and filter by name.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	name := filepath.Base(s.path)
	debug.PrintNormal("Watching %s for changes (Ctrl+C to stop)\n", s.path)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debug.Logf("watch: %s\n", event)
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			debug.Warnf("%s watcher error: %v\n", ui.RenderWarnIcon(), err)

		case <-timer.C:
			cfg, err := configfile.Load(s.root)
			if err != nil {
				debug.Warnf("%s %v\n", ui.RenderFailIcon(), err)
				continue
			}
			if err := s.run(ctx, cfg, false); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				reportError(s.errOut, err)
			}
		}
	}
}
