package projects

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/specsync/internal/configfile"
	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/tasks"
)

// Pipeline steps, in execution order.
const (
	StepConfig     = "config"
	StepParse      = "parse"
	StepGraph      = "dependency-graph"
	StepRepository = "resolve-repository"
	StepProject    = "project"
	StepFields     = "fields"
	StepLabels     = "labels"
	StepHierarchy  = "hierarchy"
	StepValues     = "field-values"
	StepCompletion = "completion"
	StepLinks      = "dependencies"
	StepPersist    = "persist"
)

const tracerName = "github.com/steveyegge/specsync/internal/projects"

// StepError reports the pipeline step a sync failed in.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StateStore persists sync state between runs.
type StateStore interface {
	Save(cfg *configfile.ProjectsConfig) error
}

// SyncRequest is one sync of a tasks.md document.
type SyncRequest struct {
	Content    string
	SourceName string
	DryRun     bool
}

// ProjectInfo identifies the project a sync wrote to.
type ProjectInfo struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
}

// SyncStats summarizes a sync.
type SyncStats struct {
	Phases        int             `json:"phases"`
	Groups        int             `json:"groups"`
	Tasks         int             `json:"tasks"`
	Completed     int             `json:"completed"`
	Dependencies  int             `json:"dependencies"`
	FieldsCreated []string        `json:"fields_created,omitempty"`
	Labels        LabelStats      `json:"labels"`
	Issues        HierarchyStats  `json:"issues"`
	Values        AssignStats     `json:"values"`
	Completion    CompletionStats `json:"completion"`
	Links         LinkStats       `json:"links"`
}

// SyncResult is the outcome of Engine.Sync.
type SyncResult struct {
	Success    bool              `json:"success"`
	DryRun     bool              `json:"dry_run"`
	Repository string            `json:"repository,omitempty"`
	Project    *ProjectInfo      `json:"project,omitempty"`
	Stats      SyncStats         `json:"stats"`
	Plan       *Plan             `json:"plan,omitempty"`
	Structure  *ValidationReport `json:"structure,omitempty"`
	Hash       string            `json:"hash,omitempty"`
	SyncedAt   string            `json:"synced_at,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Engine runs the sync pipeline:
//
//	parse -> dependency graph -> resolve repository -> project -> fields ->
//	labels -> hierarchy -> field values -> completion -> dependencies -> persist
//
// Steps run strictly in order. The project id and field ids are persisted
// as soon as they are known so an interrupted sync resumes against the
// same project.
type Engine struct {
	Ops   *github.Ops
	Store StateStore

	// Callbacks for UI feedback (optional).
	OnMessage func(msg string)
	OnWarning func(msg string)

	// Now defaults to time.Now.
	Now func() time.Time

	tracer   trace.Tracer
	warnings []string
}

// NewEngine creates an engine that talks to GitHub through ops and saves
// state to store. Either may be nil for a local dry run.
func NewEngine(ops *github.Ops, store StateStore) *Engine {
	return &Engine{Ops: ops, Store: store}
}

// ContentHash is the hex sha256 of a tasks.md document.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NeedsSync reports whether content differs from what was last synced.
func NeedsSync(content string, cfg *configfile.ProjectsConfig) bool {
	if cfg == nil || !cfg.HasProject() || cfg.LastSyncedTasksMDHash == "" {
		return true
	}
	return cfg.LastSyncedTasksMDHash != ContentHash(content)
}

// Sync mirrors req.Content into the project described by cfg. cfg is
// updated in place and saved through Store as the run progresses, except
// in dry-run mode where nothing is written locally or remotely.
func (e *Engine) Sync(ctx context.Context, req SyncRequest, cfg *configfile.ProjectsConfig) (*SyncResult, error) {
	e.tracer = otel.Tracer(tracerName)
	e.warnings = nil

	ctx, span := e.tracer.Start(ctx, "specsync.sync",
		trace.WithAttributes(
			attribute.String("specsync.source", req.SourceName),
			attribute.Bool("specsync.dry_run", req.DryRun),
		))
	defer span.End()

	result := &SyncResult{DryRun: req.DryRun}
	fail := func(err error) (*SyncResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result.Success = false
		result.Error = err.Error()
		result.Warnings = e.warnings
		return result, err
	}

	if err := cfg.Validate(); err != nil {
		return fail(&StepError{Step: StepConfig, Err: err})
	}
	result.Repository = cfg.RepoSlug()

	var doc *tasks.Document
	if err := e.step(ctx, StepParse, func(ctx context.Context) error {
		doc = tasks.Parse(req.Content)
		doc.InputPath = req.SourceName
		if len(doc.Phases) == 0 {
			e.warn("No phases found in %s", sourceLabel(req.SourceName))
		}
		return nil
	}); err != nil {
		return fail(err)
	}
	result.Stats.Phases = len(doc.Phases)
	result.Stats.Groups = doc.GroupCount()
	result.Stats.Tasks = doc.TaskCount()
	result.Stats.Completed = doc.CompletedCount()
	e.msg("Parsed %d phases, %d groups, %d tasks (%d completed)",
		result.Stats.Phases, result.Stats.Groups, result.Stats.Tasks, result.Stats.Completed)

	var graph *tasks.DependencyGraph
	if err := e.step(ctx, StepGraph, func(ctx context.Context) error {
		graph = tasks.BuildDependencyGraph(doc)
		return graph.Validate(doc)
	}); err != nil {
		return fail(err)
	}
	result.Stats.Dependencies = graph.EdgeCount()
	e.msg("Inferred %d dependencies", result.Stats.Dependencies)

	if req.DryRun {
		plan, err := e.plan(ctx, doc, graph, cfg)
		if err != nil {
			return fail(err)
		}
		result.Plan = plan
		result.Success = true
		result.Warnings = e.warnings
		return result, nil
	}

	if e.Ops == nil {
		return fail(&StepError{Step: StepRepository, Err: fmt.Errorf("no GitHub gateway configured")})
	}

	var repo *github.Repository
	if err := e.step(ctx, StepRepository, func(ctx context.Context) error {
		var err error
		repo, err = e.Ops.Repository(ctx, cfg.RepoOwner, cfg.RepoName)
		return err
	}); err != nil {
		return fail(err)
	}

	if err := e.step(ctx, StepProject, func(ctx context.Context) error {
		return e.ensureProject(ctx, repo, doc, cfg)
	}); err != nil {
		return fail(err)
	}
	result.Project = &ProjectInfo{ID: cfg.ProjectID, Number: cfg.ProjectNumber, URL: cfg.ProjectURL, Title: ProjectTitle(doc)}

	var fields *FieldSet
	if err := e.step(ctx, StepFields, func(ctx context.Context) error {
		fs, created, err := SetupFields(ctx, e.Ops, cfg.ProjectID, doc)
		if err != nil {
			return err
		}
		fields = fs
		result.Stats.FieldsCreated = created
		cfg.FieldIDs = fs.ToFieldIDs()
		return e.save(cfg)
	}); err != nil {
		return fail(err)
	}
	e.msg("Fields ready (%d created)", len(result.Stats.FieldsCreated))

	var labels LabelSet
	_ = e.step(ctx, StepLabels, func(ctx context.Context) error {
		labels, result.Stats.Labels = CreateLabels(ctx, e.Ops, repo.ID, doc)
		return nil
	})
	if result.Stats.Labels.Failed > 0 {
		e.warn("%d labels could not be created", result.Stats.Labels.Failed)
	}

	var state *RunState
	var h *Hierarchy
	if err := e.step(ctx, StepHierarchy, func(ctx context.Context) error {
		var err error
		state, err = LoadState(ctx, e.Ops, repo.ID, cfg.ProjectID)
		if err != nil {
			return err
		}
		h, err = BuildHierarchy(ctx, e.Ops, state, doc, repo.ID, cfg.ProjectID, labels)
		return err
	}); err != nil {
		return fail(err)
	}
	result.Stats.Issues = h.Stats
	e.msg("Issues: %d created, %d reused, %d updated",
		h.Stats.Created, h.Stats.Reused, h.Stats.Updated)

	result.Structure = ValidateHierarchy(doc, h)
	for _, f := range result.Structure.Findings {
		e.warn("%s %s: %s", f.Kind, f.Key, f.Message)
	}

	if err := e.step(ctx, StepValues, func(ctx context.Context) error {
		var err error
		result.Stats.Values, err = AssignFieldValues(ctx, e.Ops, state, cfg.ProjectID, h, doc, fields)
		return err
	}); err != nil {
		return fail(err)
	}
	if n := result.Stats.Values.NoItem; n > 0 {
		e.warn("%d issues have no project item; their fields were not set", n)
	}

	if err := e.step(ctx, StepCompletion, func(ctx context.Context) error {
		var err error
		result.Stats.Completion, err = SyncCompletionStates(ctx, e.Ops, h, doc)
		return err
	}); err != nil {
		return fail(err)
	}
	e.msg("Issue states: %d closed, %d reopened",
		result.Stats.Completion.Closed, result.Stats.Completion.Reopened)

	if err := e.step(ctx, StepLinks, func(ctx context.Context) error {
		var err error
		result.Stats.Links, err = LinkDependencies(ctx, e.Ops, h, graph)
		return err
	}); err != nil {
		return fail(err)
	}
	e.msg("Dependencies: %d linked, %d already linked", result.Stats.Links.Linked, result.Stats.Links.Already)

	if err := e.step(ctx, StepPersist, func(ctx context.Context) error {
		cfg.LastSyncedTasksMDHash = ContentHash(req.Content)
		cfg.LastSyncedAt = e.now().UTC().Format(time.RFC3339)
		return e.save(cfg)
	}); err != nil {
		return fail(err)
	}
	result.Hash = cfg.LastSyncedTasksMDHash
	result.SyncedAt = cfg.LastSyncedAt
	result.Success = true
	result.Warnings = e.warnings
	return result, nil
}

// plan computes a dry-run plan. Remote state is only read, and only when
// a gateway is available.
func (e *Engine) plan(ctx context.Context, doc *tasks.Document, graph *tasks.DependencyGraph, cfg *configfile.ProjectsConfig) (*Plan, error) {
	in := PlanInput{Repository: cfg.RepoSlug(), ProjectExists: cfg.HasProject()}
	if e.Ops == nil {
		return BuildPlan(doc, graph, in), nil
	}

	var repo *github.Repository
	if err := e.step(ctx, StepRepository, func(ctx context.Context) error {
		var err error
		repo, err = e.Ops.Repository(ctx, cfg.RepoOwner, cfg.RepoName)
		return err
	}); err != nil {
		return nil, err
	}

	if err := e.step(ctx, StepHierarchy, func(ctx context.Context) error {
		state, err := LoadState(ctx, e.Ops, repo.ID, cfg.ProjectID)
		if err != nil {
			return err
		}
		in.State = state
		if cfg.HasProject() {
			fields, err := e.Ops.ProjectFields(ctx, cfg.ProjectID)
			if err != nil {
				return err
			}
			in.ExistingFields = fields
		}
		in.ExistingLabels = e.existingLabels(ctx, repo.ID)
		return nil
	}); err != nil {
		return nil, err
	}
	return BuildPlan(doc, graph, in), nil
}

func (e *Engine) existingLabels(ctx context.Context, repoID string) LabelSet {
	set := make(LabelSet)
	cursor := ""
	for {
		page, err := e.Ops.RepositoryLabels(ctx, repoID, cursor)
		if err != nil {
			e.warn("Could not list labels: %v", err)
			return set
		}
		for _, l := range page.Nodes {
			set[l.Name] = l.ID
		}
		next, err := nextCursor(page.PageInfo, cursor)
		if err != nil || next == "" {
			return set
		}
		cursor = next
	}
}

func (e *Engine) ensureProject(ctx context.Context, repo *github.Repository, doc *tasks.Document, cfg *configfile.ProjectsConfig) error {
	if cfg.HasProject() {
		e.msg("Using project #%d", cfg.ProjectNumber)
		return nil
	}
	project, err := e.Ops.CreateProject(ctx, repo.Owner.ID, ProjectTitle(doc))
	if err != nil {
		return err
	}
	cfg.ProjectID = project.ID
	cfg.ProjectNumber = project.Number
	cfg.ProjectURL = project.URL
	e.msg("Created project #%d: %s", project.Number, project.URL)
	return e.save(cfg)
}

func (e *Engine) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "specsync.sync."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StepError{Step: name, Err: err}
	}
	return nil
}

func (e *Engine) save(cfg *configfile.ProjectsConfig) error {
	if e.Store == nil {
		return nil
	}
	if err := e.Store.Save(cfg); err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}
	return nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) msg(format string, args ...interface{}) {
	if e.OnMessage != nil {
		e.OnMessage(fmt.Sprintf(format, args...))
	}
}

func (e *Engine) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.warnings = append(e.warnings, msg)
	if e.OnWarning != nil {
		e.OnWarning(msg)
	}
}

func sourceLabel(name string) string {
	if name == "" {
		return "input"
	}
	return name
}
