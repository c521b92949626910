package cli

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/shinji-kodama/gitsite/internal/model"
	"github.com/shinji-kodama/gitsite/internal/siteindex"
)

// NewIndexCommand creates the "index" command group for inspecting and
// repairing the subcontext index of a checked-out site branch.
func NewIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect or repair a subcontext index",
	}
	cmd.AddCommand(newIndexShowCommand())
	cmd.AddCommand(newIndexUpdateCommand())
	return cmd
}

func newIndexShowCommand() *cobra.Command {
	var tree bool

	cmd := &cobra.Command{
		Use:   "show <index-file>",
		Short: "List the entries of an index file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := siteindex.Read(args[0])
			if err != nil {
				return model.WrapCLIError(model.ExitFilesystem, "cannot read index", err)
			}
			if tree && !IsJSONOutput() {
				_, err := io.WriteString(cmd.OutOrStdout(), indexTree(args[0], entries))
				return err
			}
			return printIndex(cmd.OutOrStdout(), siteindex.Result{Entries: entries})
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "Render the entries as a tree of path segments")
	return cmd
}

// indexTree renders slash-separated entries as a tree rooted at the
// directory holding the index file.
func indexTree(indexPath string, entries []string) string {
	tree := treeprint.New()
	tree.SetValue(filepath.Dir(indexPath))
	branches := map[string]treeprint.Tree{"": tree}
	for _, entry := range entries {
		parent := ""
		for _, segment := range strings.Split(entry, "/") {
			key := path.Join(parent, segment)
			if _, ok := branches[key]; !ok {
				branches[key] = branches[parent].AddBranch(segment)
			}
			parent = key
		}
	}
	return tree.String()
}

func newIndexUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update <index-file> [subcontext]",
		Short: "Add a subcontext and drop entries whose directory is gone",
		Long: `Add a subcontext to an index file, sort and deduplicate it, and drop
entries whose directory no longer exists next to the index file.
Without a subcontext the index is only verified.

Examples:
  gitsite index update site/.gitsite.index.txt VERSION/1.2
  gitsite index update site/.gitsite.index.txt`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub := ""
			if len(args) == 2 {
				sub = args[1]
			}
			result, err := siteindex.Update(args[0], sub)
			if err != nil {
				return model.WrapCLIError(model.ExitFilesystem, "cannot update index", err)
			}
			for _, d := range result.Dropped {
				VerboseLog("Dropped %s: directory no longer exists", d)
			}
			return printIndex(cmd.OutOrStdout(), result)
		},
	}
}

func printIndex(w io.Writer, r siteindex.Result) error {
	if IsJSONOutput() {
		entries, dropped := r.Entries, r.Dropped
		if entries == nil {
			entries = []string{}
		}
		if dropped == nil {
			dropped = []string{}
		}
		return printJSON(w, struct {
			Entries []string `json:"entries"`
			Dropped []string `json:"dropped"`
		}{entries, dropped})
	}
	for _, e := range r.Entries {
		fmt.Fprintln(w, e)
	}
	for _, d := range r.Dropped {
		fmt.Fprintf(w, "dropped: %s\n", d)
	}
	return nil
}
