package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// Version is the current version of specsync (overridden by ldflags at build time)
	Version = "0.3.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
	// Commit and branch the git revision the binary was built from (optional ldflag)
	Commit = ""
	Branch = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		commit := resolveCommitHash()
		out := cmd.OutOrStdout()

		if jsonOutput {
			result := map[string]string{
				"version": Version,
				"build":   Build,
			}
			if commit != "" {
				result["commit"] = commit
			}
			if Branch != "" {
				result["branch"] = Branch
			}
			return outputJSON(out, result)
		}

		switch {
		case commit != "" && Branch != "":
			_, _ = fmt.Fprintf(out, "specsync version %s (%s: %s@%s)\n", Version, Build, Branch, shortCommit(commit))
		case commit != "":
			_, _ = fmt.Fprintf(out, "specsync version %s (%s: %s)\n", Version, Build, shortCommit(commit))
		default:
			_, _ = fmt.Fprintf(out, "specsync version %s (%s)\n", Version, Build)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// resolveCommitHash prefers the ldflag, then the VCS stamp from the build.
func resolveCommitHash() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return ""
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
