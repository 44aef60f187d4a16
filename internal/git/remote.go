package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrNoOrigin is returned when the repository has no origin remote.
var ErrNoOrigin = errors.New("no git remote 'origin' found")

// IsRepo reports whether dir is inside a git work tree.
func IsRepo(dir string) bool {
	out, err := run(context.Background(), dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// GetRepoRoot returns the top-level directory of the work tree containing dir.
func GetRepoRoot(dir string) (string, error) {
	out, err := run(context.Background(), dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	return filepath.Clean(out), nil
}

// OriginURL returns the fetch URL of the origin remote.
func OriginURL(ctx context.Context, dir string) (string, error) {
	out, err := run(ctx, dir, "remote", "get-url", "origin")
	if err != nil || out == "" {
		return "", ErrNoOrigin
	}
	return out, nil
}

var githubRemoteRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/.]+)`)

// ParseGitHubRemote extracts owner and repository from an SSH or HTTPS
// GitHub remote URL.
func ParseGitHubRemote(url string) (owner, repo string, err error) {
	m := githubRemoteRe.FindStringSubmatch(url)
	if m == nil {
		return "", "", fmt.Errorf("could not parse GitHub repository from: %s", url)
	}
	return m[1], m[2], nil
}

// OriginRepository resolves owner and repository from dir's origin remote.
func OriginRepository(ctx context.Context, dir string) (owner, repo string, err error) {
	url, err := OriginURL(ctx, dir)
	if err != nil {
		return "", "", err
	}
	return ParseGitHubRemote(url)
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
