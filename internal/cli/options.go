package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/gitsite/internal/config"
	"github.com/shinji-kodama/gitsite/internal/params"
)

// optionFlags holds the deployment options shared by deploy and publish.
// Flag values only override the lower layers when they were set
// explicitly on the command line.
type optionFlags struct {
	configPath      string
	buildDir        string
	artifact        string
	inputDir        string
	scmURL          string
	branch          string
	keepHistory     bool
	commitMessage   string
	subdir          string
	index           string
	roots           string
	logFile         string
	notFoundMarkers []string
	gitCommand      string
}

// addOptionFlags registers the deployment options on cmd.
func addOptionFlags(cmd *cobra.Command) *optionFlags {
	o := &optionFlags{}
	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "Descriptor file (.yaml, .yml, .json or .jsonc)")
	f.StringVar(&o.buildDir, "build-dir", config.DefaultBuildDirectory, "Build output directory")
	f.StringVar(&o.artifact, "artifact", "", "Artifact name used in the default commit message (default: working directory name)")
	f.StringVar(&o.inputDir, "input-dir", "", "Generated site directory (default: <build-dir>/staging)")
	f.StringVar(&o.scmURL, "scm-url", "", "SCM URL of the receiving repository, e.g. scm:git:git@github.com:org/project.git")
	f.StringVar(&o.branch, "branch", config.DefaultBranch, "Target branch")
	f.BoolVar(&o.keepHistory, "keep-history", true, "Keep the branch history instead of replacing it with a single commit")
	f.StringVar(&o.commitMessage, "commit-message", "", "Commit message; %d is replaced by the number of files")
	f.StringVar(&o.subdir, "subdir", config.DefaultSubdir, "Subcontext path under the branch root")
	f.StringVar(&o.index, "index", config.DefaultIndex, "Name of the subcontext index file")
	f.StringVar(&o.roots, "roots", "VERSION,BRANCH", "Comma-separated top-level names that are never deleted")
	f.StringVar(&o.logFile, "logfile", "", "Command transcript file (default: <build-dir>/gitsite-deploy.log)")
	f.StringArrayVar(&o.notFoundMarkers, "not-found-marker", nil, "Clone stderr text meaning the branch does not exist yet (repeatable)")
	f.StringVar(&o.gitCommand, "git", config.DefaultGitCommand, "Git executable, optionally with global arguments")
	return o
}

// settings layers defaults, the descriptor, the environment and the
// explicitly set flags.
func (o *optionFlags) settings(cmd *cobra.Command) (config.Settings, error) {
	dir, err := os.Getwd()
	if err != nil {
		return config.Settings{}, err
	}
	s, err := config.Load(dir, o.configPath, os.Getenv)
	if err != nil {
		return config.Settings{}, err
	}
	o.apply(cmd, &s)
	return s, nil
}

func (o *optionFlags) apply(cmd *cobra.Command, s *config.Settings) {
	changed := cmd.Flags().Changed
	if changed("build-dir") {
		s.BuildDirectory = o.buildDir
	}
	if changed("artifact") {
		s.ArtifactID = o.artifact
	}
	if changed("input-dir") {
		s.InputDirectory = o.inputDir
	}
	if changed("scm-url") {
		s.ScmURL = o.scmURL
	}
	if changed("branch") {
		s.Branch = o.branch
	}
	if changed("keep-history") {
		s.KeepHistory = o.keepHistory
	}
	if changed("commit-message") {
		s.CommitMessage = o.commitMessage
	}
	if changed("subdir") {
		s.Subdir = o.subdir
	}
	if changed("index") {
		s.Index = o.index
	}
	if changed("roots") {
		s.Roots = params.SplitList(o.roots)
	}
	if changed("logfile") {
		s.LogFile = o.logFile
	}
	if changed("not-found-marker") {
		s.NotFoundMarkers = o.notFoundMarkers
	}
	if changed("git") {
		s.GitCommand = o.gitCommand
	}
}
