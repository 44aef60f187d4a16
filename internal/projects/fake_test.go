package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/steveyegge/specsync/internal/github"
)

// fakeGitHub is an in-memory GitHub answering the operations the sync
// uses. It records every call by operation name.
type fakeGitHub struct {
	t *testing.T

	repoID    string
	ownerID   string
	pageSize  int
	nextID    int
	calls     []string
	fail      map[string]error
	issues    []*github.Issue
	items     []github.ProjectItem
	fields    []github.ProjectField
	labels    []github.Label
	values    map[string]map[string]github.FieldValue // item -> field -> value
	blockedBy map[string]bool
	projects  int

	issueLabels map[string][]string // title -> label ids at creation
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	return &fakeGitHub{
		t:         t,
		repoID:    "R_1",
		ownerID:   "U_1",
		pageSize:  100,
		fail:      make(map[string]error),
		values:    make(map[string]map[string]github.FieldValue),
		blockedBy: make(map[string]bool),

		issueLabels: make(map[string][]string),
	}
}

func (f *fakeGitHub) ops() *github.Ops {
	return github.NewOps(f)
}

// count returns how many times the named operation ran.
func (f *fakeGitHub) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeGitHub) mutations() int {
	n := 0
	for _, c := range f.calls {
		switch c {
		case "CreateProject", "CreateField", "CreateIssue", "UpdateIssue", "AddProjectItem",
			"UpdateFieldValue", "CreateLabel", "AddBlockedBy":
			n++
		}
	}
	return n
}

func (f *fakeGitHub) resetCalls() {
	f.calls = nil
}

func (f *fakeGitHub) issueByTitle(title string) *github.Issue {
	for _, is := range f.issues {
		if is.Title == title {
			return is
		}
	}
	return nil
}

// addIssue seeds an existing issue and returns it.
func (f *fakeGitHub) addIssue(title, body, state, parentID string) *github.Issue {
	f.nextID++
	is := &github.Issue{
		ID:     fmt.Sprintf("I_%d", f.nextID),
		Number: f.nextID,
		Title:  title,
		Body:   body,
		State:  state,
	}
	if parentID != "" {
		is.Parent = &github.IssueParent{ID: parentID}
	}
	f.issues = append(f.issues, is)
	return is
}

func (f *fakeGitHub) addItem(is *github.Issue) string {
	id := fmt.Sprintf("PVTI_%d", is.Number)
	f.items = append(f.items, github.ProjectItem{
		ID:      id,
		Content: github.ItemContent{ID: is.ID, Number: is.Number, Title: is.Title, State: is.State},
	})
	return id
}

func (f *fakeGitHub) Execute(ctx context.Context, query string, variables map[string]interface{}) (json.RawMessage, error) {
	name, _ := github.OperationName(query)
	f.calls = append(f.calls, name)
	if err := f.fail[name]; err != nil {
		return nil, err
	}

	vars := roundTrip(f.t, variables)
	input, _ := vars["input"].(map[string]interface{})

	switch name {
	case "GetRepository":
		return marshal(f.t, map[string]interface{}{
			"repository": map[string]interface{}{
				"id":    f.repoID,
				"name":  vars["name"],
				"owner": map[string]interface{}{"id": f.ownerID, "login": vars["owner"]},
			},
		}), nil

	case "CreateProject":
		f.projects++
		return marshal(f.t, map[string]interface{}{
			"createProjectV2": map[string]interface{}{
				"projectV2": map[string]interface{}{
					"id":     fmt.Sprintf("PVT_%d", f.projects),
					"number": f.projects,
					"title":  input["title"],
					"url":    fmt.Sprintf("https://github.com/users/octo/projects/%d", f.projects),
				},
			},
		}), nil

	case "GetProjectFields":
		return marshal(f.t, map[string]interface{}{
			"node": map[string]interface{}{"fields": map[string]interface{}{"nodes": f.fields}},
		}), nil

	case "CreateField":
		field := github.ProjectField{
			ID:       fmt.Sprintf("F_%d", len(f.fields)+1),
			Name:     input["name"].(string),
			DataType: input["dataType"].(string),
		}
		opts, _ := input["singleSelectOptions"].([]interface{})
		for i, o := range opts {
			om := o.(map[string]interface{})
			field.Options = append(field.Options, github.FieldOption{
				ID:    fmt.Sprintf("%s_O%d", field.ID, i+1),
				Name:  om["name"].(string),
				Color: om["color"].(string),
			})
		}
		f.fields = append(f.fields, field)
		return marshal(f.t, map[string]interface{}{
			"createProjectV2Field": map[string]interface{}{"projectV2Field": field},
		}), nil

	case "GetRepositoryIssues":
		start, end, info := f.page(vars["cursor"], len(f.issues))
		nodes := f.issues[start:end]
		return marshal(f.t, map[string]interface{}{
			"node": map[string]interface{}{"issues": map[string]interface{}{"pageInfo": info, "nodes": nodes}},
		}), nil

	case "CreateIssue":
		parent, _ := input["parentIssueId"].(string)
		is := f.addIssue(input["title"].(string), stringOr(input["body"]), github.StateOpen, parent)
		if ids, ok := input["projectV2Ids"].([]interface{}); ok && len(ids) > 0 {
			f.addItem(is)
		}
		if ids, ok := input["labelIds"].([]interface{}); ok {
			for _, id := range ids {
				f.issueLabels[is.Title] = append(f.issueLabels[is.Title], id.(string))
			}
		}
		return marshal(f.t, map[string]interface{}{"createIssue": map[string]interface{}{"issue": is}}), nil

	case "UpdateIssue":
		id := input["id"].(string)
		for _, is := range f.issues {
			if is.ID != id {
				continue
			}
			if body, ok := input["body"].(string); ok {
				is.Body = body
			}
			if state, ok := input["state"].(string); ok {
				is.State = state
			}
			return marshal(f.t, map[string]interface{}{"updateIssue": map[string]interface{}{"issue": is}}), nil
		}
		return nil, &github.GraphQLError{Messages: []string{"Could not resolve to a node with the global id of '" + id + "'"}}

	case "AddProjectItem":
		contentID := input["contentId"].(string)
		for _, is := range f.issues {
			if is.ID == contentID {
				itemID := f.addItem(is)
				return marshal(f.t, map[string]interface{}{
					"addProjectV2ItemById": map[string]interface{}{"item": map[string]interface{}{"id": itemID}},
				}), nil
			}
		}
		return nil, &github.GraphQLError{Messages: []string{"content not found"}}

	case "GetProjectItems":
		start, end, info := f.page(vars["cursor"], len(f.items))
		return marshal(f.t, map[string]interface{}{
			"node": map[string]interface{}{"items": map[string]interface{}{"pageInfo": info, "nodes": f.items[start:end]}},
		}), nil

	case "UpdateFieldValue":
		itemID := input["itemId"].(string)
		fieldID := input["fieldId"].(string)
		raw, _ := json.Marshal(input["value"])
		var v github.FieldValue
		if err := json.Unmarshal(raw, &v); err != nil {
			f.t.Errorf("bad field value: %v", err)
		}
		if f.values[itemID] == nil {
			f.values[itemID] = make(map[string]github.FieldValue)
		}
		f.values[itemID][fieldID] = v
		return marshal(f.t, map[string]interface{}{
			"updateProjectV2ItemFieldValue": map[string]interface{}{"projectV2Item": map[string]interface{}{"id": itemID}},
		}), nil

	case "GetRepositoryLabels":
		start, end, info := f.page(vars["cursor"], len(f.labels))
		return marshal(f.t, map[string]interface{}{
			"node": map[string]interface{}{"labels": map[string]interface{}{"pageInfo": info, "nodes": f.labels[start:end]}},
		}), nil

	case "CreateLabel":
		label := github.Label{
			ID:    fmt.Sprintf("LA_%d", len(f.labels)+1),
			Name:  input["name"].(string),
			Color: input["color"].(string),
		}
		for _, l := range f.labels {
			if l.Name == label.Name {
				return nil, &github.GraphQLError{Messages: []string{"Name has already been taken"}}
			}
		}
		f.labels = append(f.labels, label)
		return marshal(f.t, map[string]interface{}{"createLabel": map[string]interface{}{"label": label}}), nil

	case "AddBlockedBy":
		key := input["issueId"].(string) + "<-" + input["blockingIssueId"].(string)
		if f.blockedBy[key] {
			return nil, &github.GraphQLError{Messages: []string{"Issue is already blocked by this issue"}}
		}
		f.blockedBy[key] = true
		return marshal(f.t, map[string]interface{}{
			"addBlockedBy": map[string]interface{}{
				"issue":         map[string]interface{}{"id": input["issueId"]},
				"blockingIssue": map[string]interface{}{"id": input["blockingIssueId"]},
			},
		}), nil
	}

	f.t.Errorf("unexpected operation %s", name)
	return nil, fmt.Errorf("unexpected operation %s", name)
}

// page slices n results by pageSize. Cursors are "page-<k>" where k is the
// 1-based index of the next page.
func (f *fakeGitHub) page(cursor interface{}, n int) (int, int, github.PageInfo) {
	pageIdx := 0
	if c, ok := cursor.(string); ok && c != "" {
		k, err := strconv.Atoi(strings.TrimPrefix(c, "page-"))
		if err != nil {
			f.t.Errorf("bad cursor %q", c)
		}
		pageIdx = k - 1
	}
	start := pageIdx * f.pageSize
	if start > n {
		start = n
	}
	end := start + f.pageSize
	if end > n {
		end = n
	}
	info := github.PageInfo{}
	if end < n {
		info.HasNextPage = true
		info.EndCursor = fmt.Sprintf("page-%d", pageIdx+2)
	}
	return start, end, info
}

func roundTrip(t *testing.T, v map[string]interface{}) map[string]interface{} {
	t.Helper()
	if v == nil {
		return map[string]interface{}{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal variables: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal variables: %v", err)
	}
	return out
}

func marshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return raw
}

func stringOr(v interface{}) string {
	s, _ := v.(string)
	return s
}
