package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/specsync/internal/config"
	"github.com/steveyegge/specsync/internal/debug"
	"github.com/steveyegge/specsync/internal/telemetry"
	"github.com/steveyegge/specsync/internal/ui"
)

var (
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool
)

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:   "specsync",
	Short: "specsync - mirror spec-kit tasks.md into GitHub Projects",
	Long: `Push a spec-kit tasks.md into a GitHub Project (v2).

Phases, task groups and tasks become a linked hierarchy of issues with
project fields, labels and blocked-by dependencies. Re-running a sync only
changes what differs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "specsync version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		applyVerbosityFlags(cmd)
		ui.ApplyColorPreference()
		if err := telemetry.Init(cmd.Context(), "specsync", Version); err != nil {
			debug.Warnf("Warning: telemetry disabled: %v\n", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownTelemetry()
	},
}

// applyVerbosityFlags lets config and env supply defaults for flags the
// user did not pass.
func applyVerbosityFlags(cmd *cobra.Command) {
	if !cmd.Flags().Changed("json") {
		jsonOutput = config.GetBool("json")
	}
	debug.SetVerbose(verboseFlag)
	debug.SetQuiet(quietFlag)
}

func shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetry.Shutdown(ctx); err != nil {
		debug.Logf("telemetry shutdown: %v\n", err)
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// reportError prints a command failure the way the user asked for output.
func reportError(w io.Writer, err error) {
	if jsonOutput {
		_ = outputJSON(w, map[string]string{"error": err.Error()})
		return
	}
	_, _ = fmt.Fprintf(w, "%s %v\n", ui.RenderFail("Error:"), err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// PersistentPostRun is skipped when RunE fails.
		shutdownTelemetry()
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}
