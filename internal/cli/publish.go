package cli

import (
	"context"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/gitsite/internal/logging"
	"github.com/shinji-kodama/gitsite/internal/publish"
)

// NewPublishCommand creates the "publish" subcommand, the single-module
// shortcut that publishes without the parameter hand-off.
func NewPublishCommand() *cobra.Command {
	var options *optionFlags

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the generated site in one step",
		Long: `Publish the generated site into the target branch in one step.

This is the equivalent of a deploy in a single-module build: the options
are validated and the site is published immediately.

Examples:
  gitsite publish --scm-url scm:git:git@github.com:org/project.git
  gitsite publish --config gitsite.yaml --subdir VERSION/1.2 --keep-history=false`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := options.settings(cmd)
			if err != nil {
				return err
			}
			cfg := s.Config()
			if err := cfg.Validate(); err != nil {
				return err
			}

			transcript := logging.NewTranscript(cfg.LogFile)
			VerboseLog("Writing command transcript to %s", transcript.Path())
			p := publish.NewPublisher(logging.Multi(logging.Console{}, transcript))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out, err := p.Publish(ctx, cfg)
			if err != nil {
				return err
			}
			return printPublishResult(cmd.OutOrStdout(), out)
		},
	}

	options = addOptionFlags(cmd)
	return cmd
}

type publishResultJSON struct {
	Branch        string   `json:"branch"`
	Cloned        bool     `json:"cloned"`
	Forced        bool     `json:"forced"`
	Deleted       int      `json:"deleted"`
	FileCount     int      `json:"fileCount"`
	CommitMessage string   `json:"commitMessage"`
	Index         []string `json:"index"`
}

func printPublishResult(w io.Writer, out *publish.Outcome) error {
	if IsJSONOutput() {
		index := out.Index
		if index == nil {
			index = []string{}
		}
		return printJSON(w, publishResultJSON{
			Branch:        out.Branch,
			Cloned:        out.Cloned,
			Forced:        out.PushForced,
			Deleted:       out.Deleted,
			FileCount:     out.FileCount,
			CommitMessage: out.CommitMessage,
			Index:         index,
		})
	}
	renderOutcomeTable(w, out)
	return nil
}

// renderOutcomeTable prints a one-row summary of a publish.
func renderOutcomeTable(w io.Writer, out *publish.Outcome) {
	mode := "append"
	if out.PushForced {
		mode = "force"
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"BRANCH", "PUSH", "FILES", "DELETED", "COMMIT"})
	t.AppendRow(table.Row{out.Branch, mode, out.FileCount, out.Deleted, out.CommitMessage})
	t.Render()
}
