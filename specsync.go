// Package specsync provides a minimal public API for driving a sync from
// Go code instead of the specsync CLI.
//
// Most callers should run 'specsync projects sync'. This package exports
// only the types and constructors needed to parse a tasks.md and push it
// into a GitHub Project programmatically.
package specsync

import (
	"context"

	"github.com/steveyegge/specsync/internal/configfile"
	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/projects"
	"github.com/steveyegge/specsync/internal/tasks"
)

// Document model
type (
	Document        = tasks.Document
	Phase           = tasks.Phase
	StoryGroup      = tasks.StoryGroup
	Task            = tasks.Task
	DependencyGraph = tasks.DependencyGraph
)

// Sync types
type (
	Engine         = projects.Engine
	SyncRequest    = projects.SyncRequest
	SyncResult     = projects.SyncResult
	Plan           = projects.Plan
	ProjectsConfig = configfile.ProjectsConfig
	Gateway        = github.Gateway
)

// Parse converts tasks.md text into a Document.
func Parse(text string) *Document {
	return tasks.Parse(text)
}

// BuildDependencyGraph infers blocked-by edges and rejects duplicate ids,
// self-dependencies and cycles.
func BuildDependencyGraph(doc *Document) (*DependencyGraph, error) {
	g := tasks.BuildDependencyGraph(doc)
	if err := g.Validate(doc); err != nil {
		return nil, err
	}
	return g, nil
}

// NewGateway returns a retrying GraphQL gateway for token.
func NewGateway(token string) Gateway {
	return github.NewRetryGateway(github.NewClient(token), github.RetryOptions{})
}

// LoadConfig reads the sync state of the checkout at root.
func LoadConfig(root string) (*ProjectsConfig, error) {
	return configfile.Load(root)
}

// NewEngine creates an engine that saves its state under root. gw may be
// nil for a local dry run.
func NewEngine(gw Gateway, root string) *Engine {
	var ops *github.Ops
	if gw != nil {
		ops = github.NewOps(gw)
	}
	return projects.NewEngine(ops, &configfile.FileStore{Root: root})
}

// Sync loads the state under root and syncs content through gw.
func Sync(ctx context.Context, gw Gateway, root, content string, dryRun bool) (*SyncResult, error) {
	cfg, err := LoadConfig(root)
	if err != nil {
		return nil, err
	}
	return NewEngine(gw, root).Sync(ctx, SyncRequest{Content: content, DryRun: dryRun}, cfg)
}
