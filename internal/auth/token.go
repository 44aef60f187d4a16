// Package auth finds and sanity-checks the GitHub token used for sync.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Token sources, reported by Resolver.Resolve.
const (
	SourceFlag          = "flag"
	SourceGHToken       = "GH_TOKEN"
	SourceGitHubToken   = "GITHUB_TOKEN"
	SourceGHCLI         = "gh auth token"
	SourceGitCredential = "git credential"
)

// ErrNoToken is returned when no source yields a token.
var ErrNoToken = errors.New("no GitHub token found: pass --token, set GH_TOKEN or GITHUB_TOKEN, or run 'gh auth login'")

// commandTimeout bounds each helper command.
const commandTimeout = 5 * time.Second

// EnvGetter is a function type for getting environment variables.
// This allows mocking os.Getenv in tests.
type EnvGetter func(key string) string

// CommandRunner runs a command with optional stdin and returns its stdout.
type CommandRunner func(ctx context.Context, stdin string, name string, args ...string) ([]byte, error)

// Resolver looks up a token from the flag, the environment and the local
// credential helpers.
type Resolver struct {
	getEnv     EnvGetter
	runCommand CommandRunner
}

// NewResolver creates a Resolver backed by the real environment.
func NewResolver() *Resolver {
	return &Resolver{getEnv: os.Getenv, runCommand: defaultCommandRunner}
}

// NewResolverWithMocks creates a Resolver with custom implementations.
// This is used for testing.
func NewResolverWithMocks(getEnv EnvGetter, runCommand CommandRunner) *Resolver {
	return &Resolver{getEnv: getEnv, runCommand: runCommand}
}

func defaultCommandRunner(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = bytes.NewBufferString(stdin)
	}
	return cmd.Output()
}

// Resolve returns the first token found and where it came from.
// Discovery order (first found wins):
//  1. explicit (the --token flag)
//  2. GH_TOKEN environment variable
//  3. GITHUB_TOKEN environment variable
//  4. gh auth token CLI command (if gh is installed)
//  5. git credential fill for github.com
func (r *Resolver) Resolve(ctx context.Context, explicit string) (token, source string, err error) {
	if t := strings.TrimSpace(explicit); t != "" {
		return t, SourceFlag, nil
	}
	if t := strings.TrimSpace(r.getEnv("GH_TOKEN")); t != "" {
		return t, SourceGHToken, nil
	}
	if t := strings.TrimSpace(r.getEnv("GITHUB_TOKEN")); t != "" {
		return t, SourceGitHubToken, nil
	}
	if t := r.tryGHCLI(ctx); t != "" {
		return t, SourceGHCLI, nil
	}
	if t := r.tryGitCredential(ctx); t != "" {
		return t, SourceGitCredential, nil
	}
	return "", "", ErrNoToken
}

func (r *Resolver) tryGHCLI(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	output, err := r.runCommand(ctx, "", "gh", "auth", "token")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// tryGitCredential asks the git credential store for github.com.
func (r *Resolver) tryGitCredential(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	input := "protocol=https\nhost=github.com\n\n"
	output, err := r.runCommand(ctx, input, "git", "credential", "fill")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "password=") {
			return strings.TrimSpace(strings.TrimPrefix(line, "password="))
		}
	}
	return ""
}

// ResolveToken resolves a token with the real environment.
func ResolveToken(ctx context.Context, explicit string) (string, error) {
	token, _, err := NewResolver().Resolve(ctx, explicit)
	return token, err
}

var tokenPrefixes = []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"}

const minTokenLength = 20

// ValidateToken checks that token looks like a GitHub token. It makes no
// API calls. Prefixed tokens, 40-character hex classic tokens and any other
// string of at least 20 characters are accepted.
func ValidateToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	if len(token) < minTokenLength {
		return fmt.Errorf("token is too short (%d characters, need at least %d)", len(token), minTokenLength)
	}
	if strings.ContainsAny(token, " \t\n") {
		return errors.New("token contains whitespace")
	}
	return nil
}

// HasKnownPrefix reports whether token carries one of GitHub's token prefixes.
func HasKnownPrefix(token string) bool {
	for _, p := range tokenPrefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

// MaskToken hides all but the prefix and last four characters.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	prefix := ""
	for _, p := range tokenPrefixes {
		if strings.HasPrefix(token, p) {
			prefix = p
			break
		}
	}
	hidden := len(token) - len(prefix) - 4
	if hidden < 4 {
		prefix = ""
		hidden = len(token) - 4
	}
	return prefix + strings.Repeat("*", hidden) + token[len(token)-4:]
}
