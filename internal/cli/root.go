// Package cli implements the cobra-based CLI commands for gitsite.
//
// Each subcommand (deploy, publish, classify, index) is defined in its own
// file within this package. This file defines the root command that serves as
// the parent for all subcommands and handles global flags.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/shinji-kodama/gitsite/internal/logging"
	"github.com/shinji-kodama/gitsite/internal/model"
	"github.com/shinji-kodama/gitsite/internal/params"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose enables DEBUG lines (command stdout) on the console and
	// [verbose] trace output from the CLI itself.
	verbose bool
)

// Version, Commit, and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action. It provides help
// text and global flags; functionality lives in the subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gitsite",
		Short: "Publish a generated static site into a git branch",
		Long: `gitsite publishes a fully generated static site into a dedicated branch
of a git repository, for hosting services that serve a branch as a website.

In a multi-module build, run "gitsite deploy" once per module: the
execution-root module saves the deployment parameters and the last module
publishes the site. Single-module builds can call "gitsite publish" directly.`,

		// SilenceUsage prevents cobra from printing usage on every error.
		SilenceUsage: true,

		// SilenceErrors lets Execute format errors as text or JSON.
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureKlog(verbose)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(NewDeployCommand())
	rootCmd.AddCommand(NewPublishCommand())
	rootCmd.AddCommand(NewClassifyCommand())
	rootCmd.AddCommand(NewIndexCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// Files scheduled for removal during the run are removed before the
// process exits. CLIError values carry their own exit codes; other errors
// exit with code 1.
func Execute(rootCmd *cobra.Command) {
	err := rootCmd.Execute()

	for _, path := range params.RunScheduledRemovals() {
		klog.Warningf("could not remove %s", path)
	}
	klog.Flush()

	if err != nil {
		printError(os.Stderr, err)
		os.Exit(int(model.ExitCodeOf(err)))
	}
}

// printError outputs an error in the appropriate format (JSON or text)
// based on the --json global flag. A bare CLIError is split into its
// message and the underlying detail.
func printError(w io.Writer, err error) {
	message, detail := err.Error(), ""
	if cliErr, ok := err.(*model.CLIError); ok && cliErr.Err != nil {
		message, detail = cliErr.Message, cliErr.Err.Error()
	}

	if jsonOutput {
		errObj := map[string]interface{}{
			"message": message,
		}
		if detail != "" {
			errObj["detail"] = detail
		}
		data, _ := json.MarshalIndent(map[string]interface{}{"error": errObj}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	if detail != "" {
		fmt.Fprintf(w, "Error: %s: %s\n", message, detail)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}
