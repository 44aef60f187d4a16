// Package github provides a GraphQL gateway and data types for GitHub
// repositories, issues and Projects (v2).
//
// The gateway is a single Execute call. Transport concerns live in Client,
// retry policy in RetryGateway, and the named operations the sync engine
// needs in Ops.
package github

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// API configuration constants.
const (
	// DefaultGraphQLEndpoint is the GitHub GraphQL API URL.
	DefaultGraphQLEndpoint = "https://api.github.com/graphql"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the default number of retries after the first attempt.
	MaxRetries = 3

	// RetryDelay is the base delay between retries (exponential backoff).
	RetryDelay = time.Second

	// MaxRetryDelay caps a single backoff interval.
	MaxRetryDelay = 30 * time.Second

	// MaxPageSize is the page size for issue and project item listings.
	MaxPageSize = 100

	// LowRateLimitRemaining triggers a short courtesy pause before requests.
	LowRateLimitRemaining = 500

	// CriticalRateLimitRemaining triggers a longer courtesy pause.
	CriticalRateLimitRemaining = 100
)

// Gateway executes one GraphQL document and returns the "data" member.
type Gateway interface {
	Execute(ctx context.Context, query string, variables map[string]interface{}) (json.RawMessage, error)
}

// Client is the HTTP transport for the GitHub GraphQL API. A single Execute
// call makes exactly one request; wrap it in a RetryGateway for retries.
type Client struct {
	Token      string       // GitHub token (PAT, OAuth or app token)
	Endpoint   string       // GraphQL URL (default: https://api.github.com/graphql)
	HTTPClient *http.Client // Optional custom HTTP client

	// Sleep is used for rate-limit courtesy pauses; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	remaining int // last X-RateLimit-Remaining, -1 when unknown
	resetAt   time.Time
}

// RateLimit is the last rate-limit state seen in response headers.
type RateLimit struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
}

// GraphQLRequest represents a GraphQL request payload.
type GraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLResponse represents a generic GraphQL response.
type GraphQLResponse struct {
	Data   json.RawMessage    `json:"data"`
	Errors []GraphQLErrorItem `json:"errors,omitempty"`
}

// GraphQLErrorItem is one entry of a GraphQL "errors" array.
type GraphQLErrorItem struct {
	Message    string        `json:"message"`
	Type       string        `json:"type,omitempty"`
	Path       []interface{} `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

// PageInfo is the Relay cursor block returned by paginated connections.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// Owner is the user or organization that owns a repository.
type Owner struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

// Repository is the subset of repository fields the sync needs.
type Repository struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner Owner  `json:"owner"`
}

// Viewer is the authenticated user.
type Viewer struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

// Project is a Projects (v2) board.
type Project struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// IssueParent references an issue's parent issue.
type IssueParent struct {
	ID string `json:"id"`
}

// Issue states as reported by the GraphQL API.
const (
	StateOpen   = "OPEN"
	StateClosed = "CLOSED"
)

// Issue is a repository issue as seen by the sync engine.
type Issue struct {
	ID     string       `json:"id"`
	Number int          `json:"number"`
	Title  string       `json:"title"`
	Body   string       `json:"body"`
	State  string       `json:"state"`
	URL    string       `json:"url,omitempty"`
	Parent *IssueParent `json:"parent,omitempty"`
}

// ParentID returns the parent issue id or "".
func (i *Issue) ParentID() string {
	if i.Parent == nil {
		return ""
	}
	return i.Parent.ID
}

// IssuePage is one page of repository issues.
type IssuePage struct {
	PageInfo PageInfo `json:"pageInfo"`
	Nodes    []Issue  `json:"nodes"`
}

// ItemContent is the issue behind a project item. Draft items and pull
// requests decode with an empty ID.
type ItemContent struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	URL    string `json:"url,omitempty"`
}

// ProjectItem is the join record between an issue and a project.
type ProjectItem struct {
	ID      string      `json:"id"`
	Content ItemContent `json:"content"`
}

// ProjectItemPage is one page of project items.
type ProjectItemPage struct {
	PageInfo PageInfo      `json:"pageInfo"`
	Nodes    []ProjectItem `json:"nodes"`
}

// Field data types used by this tool.
const (
	FieldTypeText         = "TEXT"
	FieldTypeSingleSelect = "SINGLE_SELECT"
)

// Single-select option colours accepted by the API.
const (
	ColorGray   = "GRAY"
	ColorBlue   = "BLUE"
	ColorGreen  = "GREEN"
	ColorYellow = "YELLOW"
	ColorOrange = "ORANGE"
	ColorRed    = "RED"
	ColorPink   = "PINK"
	ColorPurple = "PURPLE"
)

// FieldOption is a single-select option.
type FieldOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// ProjectField is a project field definition. Options is only populated
// for single-select fields.
type ProjectField struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	DataType string        `json:"dataType"`
	Options  []FieldOption `json:"options,omitempty"`
}

// NewOption describes a single-select option to create.
type NewOption struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// FieldValue is the value of an updateProjectV2ItemFieldValue call.
// Exactly one of Text or SingleSelectOptionID is set.
type FieldValue struct {
	Text                 *string `json:"text,omitempty"`
	SingleSelectOptionID *string `json:"singleSelectOptionId,omitempty"`
}

// TextValue builds a text field value.
func TextValue(s string) FieldValue {
	return FieldValue{Text: &s}
}

// OptionValue builds a single-select field value.
func OptionValue(optionID string) FieldValue {
	return FieldValue{SingleSelectOptionID: &optionID}
}

// Label is a repository label.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CreateIssueInput is the input of the createIssue mutation.
type CreateIssueInput struct {
	RepositoryID  string   `json:"repositoryId"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	ParentIssueID string   `json:"parentIssueId,omitempty"`
	ProjectIDs    []string `json:"projectV2Ids,omitempty"`
	LabelIDs      []string `json:"labelIds,omitempty"`
}

// UpdateIssueInput is the input of the updateIssue mutation. Nil fields are
// left unchanged.
type UpdateIssueInput struct {
	ID    string  `json:"id"`
	Body  *string `json:"body,omitempty"`
	State *string `json:"state,omitempty"`
}

// BlockedByResult is returned by addBlockedBy.
type BlockedByResult struct {
	Issue         Issue `json:"issue"`
	BlockingIssue Issue `json:"blockingIssue"`
}

// LabelPage is one page of repository labels.
type LabelPage struct {
	PageInfo PageInfo `json:"pageInfo"`
	Nodes    []Label  `json:"nodes"`
}
