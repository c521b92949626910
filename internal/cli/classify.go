package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/gitsite/internal/config"
	"github.com/shinji-kodama/gitsite/internal/reactor"
)

// NewClassifyCommand creates the "classify" subcommand, which prints the
// reactor position of a module without running any hook.
func NewClassifyCommand() *cobra.Command {
	var (
		modules    *moduleFlags
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show which deploy hooks apply to a module",
		Long: `Show which deploy hooks apply to a module.

A module is "first" and "last" by its place in the reactor, "root" when
the build was invoked from it, and always "each".

Examples:
  gitsite classify --module docs --reactor parent,core,docs
  gitsite classify --module parent --reactor parent,core,docs --execution-root --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			var fallback []string
			if configPath != "" {
				f, err := config.LoadFile(configPath)
				if err != nil {
					return err
				}
				fallback = f.Reactor
			}
			current, ordered, err := modules.resolve(fallback)
			if err != nil {
				return err
			}
			return printClassifyResult(cmd.OutOrStdout(), current, reactor.Classify(current, ordered))
		},
	}

	modules = addModuleFlags(cmd)
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Descriptor file providing the reactor list")
	return cmd
}

func printClassifyResult(w io.Writer, m reactor.Module, pos reactor.Position) error {
	if IsJSONOutput() {
		return printJSON(w, struct {
			Module   string   `json:"module"`
			Position []string `json:"position"`
		}{m.ID, pos.Names()})
	}
	fmt.Fprintf(w, "Module %s: %s\n", m.ID, reactorPositionText(pos.Names()))
	return nil
}

// reactorPositionText renders position names for humans.
func reactorPositionText(names []string) string {
	return strings.Join(names, ", ")
}
