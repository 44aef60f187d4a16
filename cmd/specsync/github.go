package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/steveyegge/specsync/internal/auth"
	"github.com/steveyegge/specsync/internal/config"
	"github.com/steveyegge/specsync/internal/debug"
	"github.com/steveyegge/specsync/internal/git"
	"github.com/steveyegge/specsync/internal/github"
	"github.com/steveyegge/specsync/internal/telemetry"
)

// tokenResolver and newGateway are replaced in tests.
var (
	tokenResolver = auth.NewResolver()

	newGateway = func(token string) github.Gateway {
		client := github.NewClient(token)
		if endpoint := config.GetString("github.api-url"); endpoint != "" {
			client = client.WithEndpoint(endpoint)
		}
		if timeout := config.GetDuration("github.timeout"); timeout > 0 {
			client = client.WithHTTPClient(&http.Client{Timeout: timeout})
		}

		r := config.GetRetrySettings()
		retry := github.NewRetryGateway(client, github.RetryOptions{
			MaxAttempts:     r.MaxAttempts,
			InitialInterval: r.InitialInterval,
			MaxInterval:     r.MaxInterval,
		})
		retry.OnRetry = func(err error, wait time.Duration) {
			debug.Logf("retrying in %s: %v\n", wait.Round(time.Millisecond), err)
		}
		return telemetry.WrapGateway(retry)
	}
)

// resolveToken finds and sanity-checks a token. ok is false when no source
// has one.
func resolveToken(ctx context.Context, explicit string) (token string, ok bool, err error) {
	token, source, err := tokenResolver.Resolve(ctx, explicit)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", false, nil
	}
	if err := auth.ValidateToken(token); err != nil {
		return "", false, fmt.Errorf("invalid GitHub token from %s: %w", source, err)
	}
	debug.Logf("using GitHub token from %s (%s)\n", source, auth.MaskToken(token))
	return token, true, nil
}

// requireOps builds operations for a token that must exist.
func requireOps(ctx context.Context, explicit string) (*github.Ops, error) {
	token, ok, err := resolveToken(ctx, explicit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, auth.ErrNoToken
	}
	return github.NewOps(newGateway(token)), nil
}

// projectRoot is the work tree root, or the working directory outside git.
func projectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	if root, err := git.GetRepoRoot(cwd); err == nil {
		return root, nil
	}
	return cwd, nil
}
