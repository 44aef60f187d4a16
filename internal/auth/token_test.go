package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestResolve_PriorityOrder(t *testing.T) {
	tests := map[string]struct {
		explicit    string
		envVars     map[string]string
		ghCLIOutput string
		ghCLIError  error
		credOutput  string
		wantToken   string
		wantSource  string
	}{
		"explicit token wins": {
			explicit:    "  flag-token  ",
			envVars:     map[string]string{"GH_TOKEN": "gh-token", "GITHUB_TOKEN": "github-token"},
			ghCLIOutput: "cli-token",
			wantToken:   "flag-token",
			wantSource:  SourceFlag,
		},
		"GH_TOKEN before GITHUB_TOKEN": {
			envVars:    map[string]string{"GH_TOKEN": "gh-token", "GITHUB_TOKEN": "github-token"},
			wantToken:  "gh-token",
			wantSource: SourceGHToken,
		},
		"GITHUB_TOKEN when GH_TOKEN is blank": {
			envVars:    map[string]string{"GH_TOKEN": "   ", "GITHUB_TOKEN": "github-token\n"},
			wantToken:  "github-token",
			wantSource: SourceGitHubToken,
		},
		"gh CLI used when no env vars": {
			ghCLIOutput: "cli-token\n",
			wantToken:   "cli-token",
			wantSource:  SourceGHCLI,
		},
		"git credential when gh fails": {
			ghCLIError: errors.New("gh not installed"),
			credOutput: "protocol=https\nhost=github.com\nusername=octo\npassword=cred-token\n",
			wantToken:  "cred-token",
			wantSource: SourceGitCredential,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			mockEnv := func(key string) string {
				return tt.envVars[key]
			}
			mockCommand := func(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
				if _, ok := ctx.Deadline(); !ok {
					t.Errorf("%s ran without a deadline", name)
				}
				switch {
				case name == "gh" && strings.Join(args, " ") == "auth token":
					if tt.ghCLIError != nil {
						return nil, tt.ghCLIError
					}
					return []byte(tt.ghCLIOutput), nil
				case name == "git" && strings.Join(args, " ") == "credential fill":
					if !strings.Contains(stdin, "host=github.com") {
						t.Errorf("git credential stdin = %q", stdin)
					}
					return []byte(tt.credOutput), nil
				}
				return nil, errors.New("unexpected command")
			}

			r := NewResolverWithMocks(mockEnv, mockCommand)
			token, source, err := r.Resolve(context.Background(), tt.explicit)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if token != tt.wantToken {
				t.Errorf("Resolve() token = %q, want %q", token, tt.wantToken)
			}
			if source != tt.wantSource {
				t.Errorf("Resolve() source = %q, want %q", source, tt.wantSource)
			}
		})
	}
}

func TestResolve_NothingAvailable(t *testing.T) {
	r := NewResolverWithMocks(
		func(string) string { return "" },
		func(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
			return nil, errors.New("not found")
		},
	)
	token, source, err := r.Resolve(context.Background(), "")
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("Resolve() error = %v, want ErrNoToken", err)
	}
	if token != "" || source != "" {
		t.Errorf("Resolve() = (%q, %q), want empty", token, source)
	}
}

func TestResolve_CredentialWithoutPassword(t *testing.T) {
	r := NewResolverWithMocks(
		func(string) string { return "" },
		func(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
			if name == "git" {
				return []byte("protocol=https\nhost=github.com\n"), nil
			}
			return []byte("\n"), nil
		},
	)
	if _, _, err := r.Resolve(context.Background(), ""); !errors.Is(err, ErrNoToken) {
		t.Errorf("Resolve() error = %v, want ErrNoToken", err)
	}
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr string
	}{
		{"classic prefixed", "ghp_" + strings.Repeat("a", 36), ""},
		{"fine-grained", "github_pat_" + strings.Repeat("B", 40), ""},
		{"hex classic", strings.Repeat("0123456789", 4), ""},
		{"surrounding space trimmed", "  ghs_" + strings.Repeat("x", 20) + "\n", ""},
		{"empty", "", "empty"},
		{"blank", "   ", "empty"},
		{"short", "ghp_abc", "too short"},
		{"inner space", "ghp_aaaaaaaa bbbbbbbbbbbb", "whitespace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToken(tt.token)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateToken() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateToken() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHasKnownPrefix(t *testing.T) {
	for _, tok := range []string{"ghp_x", "gho_x", "ghu_x", "ghs_x", "ghr_x", "github_pat_x"} {
		if !HasKnownPrefix(tok) {
			t.Errorf("HasKnownPrefix(%q) = false", tok)
		}
	}
	if HasKnownPrefix("abcdef") {
		t.Error("HasKnownPrefix(abcdef) = true")
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", ""},
		{"short", "*****"},
		{"ghp_1234567890abcd", "ghp_**********abcd"},
		{"0123456789abcdef", "************cdef"},
		{"github_pat_abcdef", "*************cdef"},
	}
	for _, tt := range tests {
		if got := MaskToken(tt.token); got != tt.want {
			t.Errorf("MaskToken(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}
