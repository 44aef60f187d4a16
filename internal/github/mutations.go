package github

// GraphQL mutation documents.
const (
	createProjectMutation = `mutation CreateProject($input: CreateProjectV2Input!) {
  createProjectV2(input: $input) {
    projectV2 {
      id
      number
      title
      url
    }
  }
}`

	createFieldMutation = `mutation CreateField($input: CreateProjectV2FieldInput!) {
  createProjectV2Field(input: $input) {
    projectV2Field {
      ... on ProjectV2Field {
        id
        name
        dataType
      }
      ... on ProjectV2SingleSelectField {
        id
        name
        dataType
        options {
          id
          name
          color
        }
      }
    }
  }
}`

	createIssueMutation = `mutation CreateIssue($input: CreateIssueInput!) {
  createIssue(input: $input) {
    issue {
      id
      number
      title
      body
      state
      url
      parent {
        id
      }
    }
  }
}`

	updateIssueMutation = `mutation UpdateIssue($input: UpdateIssueInput!) {
  updateIssue(input: $input) {
    issue {
      id
      state
    }
  }
}`

	addProjectItemMutation = `mutation AddProjectItem($input: AddProjectV2ItemByIdInput!) {
  addProjectV2ItemById(input: $input) {
    item {
      id
    }
  }
}`

	updateFieldValueMutation = `mutation UpdateFieldValue($input: UpdateProjectV2ItemFieldValueInput!) {
  updateProjectV2ItemFieldValue(input: $input) {
    projectV2Item {
      id
    }
  }
}`

	createLabelMutation = `mutation CreateLabel($input: CreateLabelInput!) {
  createLabel(input: $input) {
    label {
      id
      name
      color
    }
  }
}`

	addBlockedByMutation = `mutation AddBlockedBy($input: AddBlockedByInput!) {
  addBlockedBy(input: $input) {
    issue {
      id
      number
    }
    blockingIssue {
      id
      number
    }
  }
}`
)
