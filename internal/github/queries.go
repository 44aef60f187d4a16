package github

// GraphQL query documents.
const (
	getViewerQuery = `query GetViewer {
  viewer {
    id
    login
  }
}`

	getRepositoryQuery = `query GetRepository($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    id
    name
    owner {
      id
      login
    }
  }
}`

	getProjectFieldsQuery = `query GetProjectFields($projectId: ID!) {
  node(id: $projectId) {
    ... on ProjectV2 {
      fields(first: 50) {
        nodes {
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
    }
  }
}`

	getProjectItemsQuery = `query GetProjectItems($projectId: ID!, $cursor: String) {
  node(id: $projectId) {
    ... on ProjectV2 {
      items(first: 100, after: $cursor) {
        pageInfo {
          hasNextPage
          endCursor
        }
        nodes {
          id
          content {
            ... on Issue {
              id
              number
              title
              state
              url
            }
          }
        }
      }
    }
  }
}`

	getRepositoryIssuesQuery = `query GetRepositoryIssues($repoId: ID!, $cursor: String) {
  node(id: $repoId) {
    ... on Repository {
      issues(first: 100, after: $cursor, states: [OPEN, CLOSED]) {
        pageInfo {
          hasNextPage
          endCursor
        }
        nodes {
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
    }
  }
}`

	getRepositoryLabelsQuery = `query GetRepositoryLabels($repoId: ID!, $cursor: String) {
  node(id: $repoId) {
    ... on Repository {
      labels(first: 100, after: $cursor) {
        pageInfo {
          hasNextPage
          endCursor
        }
        nodes {
          id
          name
          color
        }
      }
    }
  }
}`
)
