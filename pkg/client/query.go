package client

// searchQuery is the fixed GraphQL document sent for every page. The rateLimit
// block is requested alongside the search so each response carries telemetry.
const searchQuery = `query($q: String!, $first: Int!, $after: String) {
  search(query: $q, type: REPOSITORY, first: $first, after: $after) {
    repositoryCount
    pageInfo { endCursor hasNextPage }
    nodes {
      ... on Repository {
        id
        name
        nameWithOwner
        url
        stargazerCount
        owner { login }
      }
    }
  }
  rateLimit {
    limit
    cost
    remaining
    resetAt
  }
}`

// requestBody is the JSON payload POSTed to the GraphQL endpoint.
type requestBody struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func newSearchRequest(q string, first int, after string) requestBody {
	vars := map[string]any{
		"q":     q,
		"first": first,
		"after": nil,
	}
	if after != "" {
		vars["after"] = after
	}
	return requestBody{Query: searchQuery, Variables: vars}
}
