package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/gitsite/internal/deploy"
	"github.com/shinji-kodama/gitsite/internal/model"
	"github.com/shinji-kodama/gitsite/internal/params"
	"github.com/shinji-kodama/gitsite/internal/publish"
	"github.com/shinji-kodama/gitsite/internal/reactor"
)

// moduleFlags identifies the current module within the reactor.
type moduleFlags struct {
	module        string
	reactor       string
	executionRoot bool
}

func addModuleFlags(cmd *cobra.Command) *moduleFlags {
	m := &moduleFlags{}
	cmd.Flags().StringVar(&m.module, "module", "", "ID of the module being built (required)")
	cmd.Flags().StringVar(&m.reactor, "reactor", "", "Comma-separated module IDs in reactor order (default: descriptor 'reactor' list)")
	cmd.Flags().BoolVar(&m.executionRoot, "execution-root", false, "The build was invoked from this module")
	_ = cmd.MarkFlagRequired("module")
	return m
}

// resolve returns the current module and the ordered reactor. The flag
// list wins over the descriptor list.
func (m *moduleFlags) resolve(fallback []string) (reactor.Module, []reactor.Module, error) {
	var (
		ordered []reactor.Module
		err     error
	)
	if m.reactor != "" {
		ordered, err = reactor.ParseModules(m.reactor)
	} else {
		ordered, err = reactor.Modules(fallback)
	}
	if err != nil {
		return reactor.Module{}, nil, model.WrapCLIError(model.ExitConfigInvalid, "invalid reactor", err)
	}
	if len(ordered) == 0 {
		return reactor.Module{}, nil, model.NewCLIError(model.ExitConfigInvalid,
			"the reactor is empty: pass --reactor or list 'reactor' in the descriptor")
	}

	current := reactor.Module{ID: m.module, ExecutionRoot: m.executionRoot}
	for _, mod := range ordered {
		if mod.ID == current.ID {
			return current, ordered, nil
		}
	}
	return reactor.Module{}, nil, model.NewCLIError(model.ExitConfigInvalid,
		fmt.Sprintf("module %q is not part of the reactor", current.ID))
}

type deployFlags struct {
	modules *moduleFlags
	options *optionFlags
	rootDir string
}

// NewDeployCommand creates the "deploy" subcommand.
func NewDeployCommand() *cobra.Command {
	flags := &deployFlags{}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run the deploy hooks for one module of a multi-module build",
		Long: `Run the deploy hooks for one module of a multi-module build.

Invoke once per module, in reactor order. The execution-root module
validates and saves the deployment parameters into the root directory;
the last module loads them, publishes the site and removes the saved file.
Other modules do nothing.

Examples:
  gitsite deploy --module parent --reactor parent,core,docs --execution-root --scm-url scm:git:git@github.com:org/project.git
  gitsite deploy --module core --reactor parent,core,docs
  gitsite deploy --module docs --reactor parent,core,docs`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, flags)
		},
	}

	flags.modules = addModuleFlags(cmd)
	flags.options = addOptionFlags(cmd)
	cmd.Flags().StringVar(&flags.rootDir, "root-dir", "", "Execution root directory holding the saved parameters (default: working directory)")

	return cmd
}

// deployResult is the output of a deploy invocation.
type deployResult struct {
	Module        string   `json:"module"`
	Position      []string `json:"position"`
	Published     bool     `json:"published"`
	FileCount     int      `json:"fileCount,omitempty"`
	CommitMessage string   `json:"commitMessage,omitempty"`

	outcome *publish.Outcome
}

func runDeploy(cmd *cobra.Command, flags *deployFlags) error {
	s, err := flags.options.settings(cmd)
	if err != nil {
		return err
	}
	current, ordered, err := flags.modules.resolve(s.Reactor)
	if err != nil {
		return err
	}

	rootDir := flags.rootDir
	if rootDir == "" {
		if rootDir, err = os.Getwd(); err != nil {
			return err
		}
	}

	cfg := s.Config()
	d := deploy.New(cfg, params.NewStore(rootDir, params.DefaultConsumer))
	VerboseLog("Module %s in reactor of %d modules", current.ID, len(ordered))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pos, err := reactor.Dispatch(ctx, current, ordered, d)
	if err != nil {
		return err
	}
	VerboseLog("Position: %s", pos)

	result := deployResult{Module: current.ID, Position: pos.Names()}
	if d.Outcome != nil {
		result.Published = true
		result.outcome = d.Outcome
		result.FileCount = d.Outcome.FileCount
		result.CommitMessage = d.Outcome.CommitMessage
	}
	return printDeployResult(cmd.OutOrStdout(), result)
}

func printDeployResult(w io.Writer, r deployResult) error {
	if IsJSONOutput() {
		return printJSON(w, r)
	}
	fmt.Fprintf(w, "Module %s: %s\n", r.Module, reactorPositionText(r.Position))
	if r.outcome != nil {
		renderOutcomeTable(w, r.outcome)
	}
	return nil
}
