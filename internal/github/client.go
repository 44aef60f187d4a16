package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NewClient creates a new GitHub GraphQL client.
func NewClient(token string) *Client {
	return &Client{
		Token:    token,
		Endpoint: DefaultGraphQLEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		Sleep:     sleepContext,
		remaining: -1,
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Token:      c.Token,
		Endpoint:   c.Endpoint,
		HTTPClient: httpClient,
		Sleep:      c.Sleep,
		remaining:  -1,
	}
}

// WithEndpoint returns a new client with a custom GraphQL URL (for testing
// or GitHub Enterprise).
func (c *Client) WithEndpoint(endpoint string) *Client {
	return &Client{
		Token:      c.Token,
		Endpoint:   endpoint,
		HTTPClient: c.HTTPClient,
		Sleep:      c.Sleep,
		remaining:  -1,
	}
}

// RateLimit returns the rate-limit state seen on the last response.
func (c *Client) RateLimit() RateLimit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return RateLimit{Remaining: c.remaining, ResetAt: c.resetAt}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// courtesyDelay returns how long to pause before the next request given the
// last seen remaining budget.
func courtesyDelay(remaining int) time.Duration {
	switch {
	case remaining < 0:
		return 0
	case remaining < CriticalRateLimitRemaining:
		return 5 * time.Second
	case remaining < LowRateLimitRemaining:
		return time.Second
	default:
		return 0
	}
}

func (c *Client) updateRateLimit(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.remaining = n
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.resetAt = time.Unix(n, 0)
		}
	}
}

// Execute sends one GraphQL request and returns its "data" member.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if d := courtesyDelay(c.RateLimit().Remaining); d > 0 && c.Sleep != nil {
		if err := c.Sleep(ctx, d); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(&GraphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	// parentIssueId and the blocked-by mutations sit behind feature flags.
	req.Header.Set("GraphQL-Features", "sub_issues,issue_types")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}

	const maxResponseSize = 50 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_ = resp.Body.Close()
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.updateRateLimit(resp.Header)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden && !rateLimited(resp.Header, respBody):
		return nil, fmt.Errorf("%w: %s", ErrForbidden, strings.TrimSpace(string(respBody)))
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{
			Message:    strings.TrimSpace(string(respBody)),
			RetryAfter: retryAfter(resp.Header),
		}
	case resp.StatusCode >= 500:
		return nil, &ServerError{StatusCode: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var gqlResp GraphQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(respBody))
	}

	if len(gqlResp.Errors) > 0 {
		gqlErr := &GraphQLError{}
		throttled := false
		for _, e := range gqlResp.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
			gqlErr.Types = append(gqlErr.Types, e.Type)
			if e.Type == "RATE_LIMITED" || isRateLimitMessage(e.Message) {
				throttled = true
			}
		}
		if throttled {
			return nil, &RateLimitError{Message: strings.Join(gqlErr.Messages, "; ")}
		}
		return nil, gqlErr
	}

	return gqlResp.Data, nil
}

// rateLimited reports whether a 403 is GitHub throttling rather than a
// permission failure.
func rateLimited(h http.Header, body []byte) bool {
	return h.Get("X-RateLimit-Remaining") == "0" ||
		h.Get("Retry-After") != "" ||
		isRateLimitMessage(string(body))
}

func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

var operationNameRe = regexp.MustCompile(`^\s*(query|mutation)\s+(\w+)`)

// OperationName returns the name of a GraphQL document ("CreateIssue") and
// whether it is a mutation.
func OperationName(query string) (name string, mutation bool) {
	m := operationNameRe.FindStringSubmatch(query)
	if m == nil {
		return "anonymous", false
	}
	return m[2], m[1] == "mutation"
}
