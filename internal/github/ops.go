package github

import (
	"context"
	"encoding/json"
	"fmt"
)

// Ops exposes the named GraphQL operations the sync engine uses. Each call
// is a single Execute on the underlying Gateway; pagination is left to the
// caller so it can stop on hasNextPage.
type Ops struct {
	gw Gateway
}

// NewOps returns typed operations over gw.
func NewOps(gw Gateway) *Ops {
	return &Ops{gw: gw}
}

// Gateway returns the underlying gateway.
func (o *Ops) Gateway() Gateway {
	return o.gw
}

func (o *Ops) do(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	data, err := o.gw.Execute(ctx, query, vars)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		name, _ := OperationName(query)
		return fmt.Errorf("failed to parse %s response: %w", name, err)
	}
	return nil
}

func cursorVar(cursor string) interface{} {
	if cursor == "" {
		return nil
	}
	return cursor
}

// Viewer returns the authenticated user.
func (o *Ops) Viewer(ctx context.Context) (*Viewer, error) {
	var resp struct {
		Viewer Viewer `json:"viewer"`
	}
	if err := o.do(ctx, getViewerQuery, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Viewer, nil
}

// Repository resolves owner/name to its node id and owner id.
func (o *Ops) Repository(ctx context.Context, owner, name string) (*Repository, error) {
	var resp struct {
		Repository *Repository `json:"repository"`
	}
	vars := map[string]interface{}{"owner": owner, "name": name}
	if err := o.do(ctx, getRepositoryQuery, vars, &resp); err != nil {
		return nil, err
	}
	if resp.Repository == nil || resp.Repository.ID == "" {
		return nil, fmt.Errorf("repository %s/%s not found", owner, name)
	}
	return resp.Repository, nil
}

// CreateProject creates a Projects (v2) board owned by ownerID.
func (o *Ops) CreateProject(ctx context.Context, ownerID, title string) (*Project, error) {
	var resp struct {
		CreateProjectV2 struct {
			ProjectV2 Project `json:"projectV2"`
		} `json:"createProjectV2"`
	}
	vars := map[string]interface{}{
		"input": map[string]interface{}{"ownerId": ownerID, "title": title},
	}
	if err := o.do(ctx, createProjectMutation, vars, &resp); err != nil {
		return nil, err
	}
	return &resp.CreateProjectV2.ProjectV2, nil
}

// ProjectFields lists the project's field definitions. Field kinds this
// tool does not query (iterations, built-ins without fragments) are skipped.
func (o *Ops) ProjectFields(ctx context.Context, projectID string) ([]ProjectField, error) {
	var resp struct {
		Node *struct {
			Fields struct {
				Nodes []ProjectField `json:"nodes"`
			} `json:"fields"`
		} `json:"node"`
	}
	vars := map[string]interface{}{"projectId": projectID}
	if err := o.do(ctx, getProjectFieldsQuery, vars, &resp); err != nil {
		return nil, err
	}
	if resp.Node == nil {
		return nil, fmt.Errorf("project %s not found", projectID)
	}
	fields := make([]ProjectField, 0, len(resp.Node.Fields.Nodes))
	for _, f := range resp.Node.Fields.Nodes {
		if f.ID != "" {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// CreateField adds a field to the project. options is only sent for
// single-select fields.
func (o *Ops) CreateField(ctx context.Context, projectID, name, dataType string, options []NewOption) (*ProjectField, error) {
	input := map[string]interface{}{
		"projectId": projectID,
		"name":      name,
		"dataType":  dataType,
	}
	if dataType == FieldTypeSingleSelect {
		input["singleSelectOptions"] = options
	}
	var resp struct {
		CreateProjectV2Field struct {
			ProjectV2Field ProjectField `json:"projectV2Field"`
		} `json:"createProjectV2Field"`
	}
	if err := o.do(ctx, createFieldMutation, map[string]interface{}{"input": input}, &resp); err != nil {
		return nil, err
	}
	return &resp.CreateProjectV2Field.ProjectV2Field, nil
}

// RepositoryIssues returns one page of the repository's issues, open and
// closed. Pass the previous page's EndCursor to continue.
func (o *Ops) RepositoryIssues(ctx context.Context, repoID, cursor string) (*IssuePage, error) {
	var resp struct {
		Node *struct {
			Issues IssuePage `json:"issues"`
		} `json:"node"`
	}
	vars := map[string]interface{}{"repoId": repoID, "cursor": cursorVar(cursor)}
	if err := o.do(ctx, getRepositoryIssuesQuery, vars, &resp); err != nil {
		return nil, err
	}
	if resp.Node == nil {
		return nil, fmt.Errorf("repository %s not found", repoID)
	}
	return &resp.Node.Issues, nil
}

// CreateIssue creates an issue, optionally as a sub-issue and already
// attached to projects.
func (o *Ops) CreateIssue(ctx context.Context, input CreateIssueInput) (*Issue, error) {
	var resp struct {
		CreateIssue struct {
			Issue Issue `json:"issue"`
		} `json:"createIssue"`
	}
	if err := o.do(ctx, createIssueMutation, map[string]interface{}{"input": input}, &resp); err != nil {
		return nil, err
	}
	issue := resp.CreateIssue.Issue
	if issue.Title == "" {
		issue.Title = input.Title
	}
	if issue.Body == "" {
		issue.Body = input.Body
	}
	if issue.State == "" {
		issue.State = StateOpen
	}
	if issue.Parent == nil && input.ParentIssueID != "" {
		issue.Parent = &IssueParent{ID: input.ParentIssueID}
	}
	return &issue, nil
}

// UpdateIssue changes an issue's body and/or state.
func (o *Ops) UpdateIssue(ctx context.Context, input UpdateIssueInput) (*Issue, error) {
	var resp struct {
		UpdateIssue struct {
			Issue Issue `json:"issue"`
		} `json:"updateIssue"`
	}
	if err := o.do(ctx, updateIssueMutation, map[string]interface{}{"input": input}, &resp); err != nil {
		return nil, err
	}
	return &resp.UpdateIssue.Issue, nil
}

// AddProjectItem attaches content (an issue) to a project and returns the
// new item id.
func (o *Ops) AddProjectItem(ctx context.Context, projectID, contentID string) (string, error) {
	var resp struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}
	vars := map[string]interface{}{
		"input": map[string]interface{}{"projectId": projectID, "contentId": contentID},
	}
	if err := o.do(ctx, addProjectItemMutation, vars, &resp); err != nil {
		return "", err
	}
	return resp.AddProjectV2ItemByID.Item.ID, nil
}

// ProjectItems returns one page of project items.
func (o *Ops) ProjectItems(ctx context.Context, projectID, cursor string) (*ProjectItemPage, error) {
	var resp struct {
		Node *struct {
			Items ProjectItemPage `json:"items"`
		} `json:"node"`
	}
	vars := map[string]interface{}{"projectId": projectID, "cursor": cursorVar(cursor)}
	if err := o.do(ctx, getProjectItemsQuery, vars, &resp); err != nil {
		return nil, err
	}
	if resp.Node == nil {
		return nil, fmt.Errorf("project %s not found", projectID)
	}
	return &resp.Node.Items, nil
}

// SetFieldValue sets one field of a project item.
func (o *Ops) SetFieldValue(ctx context.Context, projectID, itemID, fieldID string, value FieldValue) error {
	vars := map[string]interface{}{
		"input": map[string]interface{}{
			"projectId": projectID,
			"itemId":    itemID,
			"fieldId":   fieldID,
			"value":     value,
		},
	}
	return o.do(ctx, updateFieldValueMutation, vars, nil)
}

// RepositoryLabels returns one page of the repository's labels.
func (o *Ops) RepositoryLabels(ctx context.Context, repoID, cursor string) (*LabelPage, error) {
	var resp struct {
		Node *struct {
			Labels LabelPage `json:"labels"`
		} `json:"node"`
	}
	vars := map[string]interface{}{"repoId": repoID, "cursor": cursorVar(cursor)}
	if err := o.do(ctx, getRepositoryLabelsQuery, vars, &resp); err != nil {
		return nil, err
	}
	if resp.Node == nil {
		return nil, fmt.Errorf("repository %s not found", repoID)
	}
	return &resp.Node.Labels, nil
}

// CreateLabel creates a repository label. color is hex without '#'.
func (o *Ops) CreateLabel(ctx context.Context, repoID, name, color string) (*Label, error) {
	var resp struct {
		CreateLabel struct {
			Label Label `json:"label"`
		} `json:"createLabel"`
	}
	vars := map[string]interface{}{
		"input": map[string]interface{}{"repositoryId": repoID, "name": name, "color": color},
	}
	if err := o.do(ctx, createLabelMutation, vars, &resp); err != nil {
		return nil, err
	}
	return &resp.CreateLabel.Label, nil
}

// AddBlockedBy marks issueID as blocked by blockingIssueID.
func (o *Ops) AddBlockedBy(ctx context.Context, issueID, blockingIssueID string) (*BlockedByResult, error) {
	var resp struct {
		AddBlockedBy BlockedByResult `json:"addBlockedBy"`
	}
	vars := map[string]interface{}{
		"input": map[string]interface{}{"issueId": issueID, "blockingIssueId": blockingIssueID},
	}
	if err := o.do(ctx, addBlockedByMutation, vars, &resp); err != nil {
		return nil, err
	}
	return &resp.AddBlockedBy, nil
}
