// Package publish pushes a staged static site into a git branch.
//
// Publish runs a small state machine:
//
//	DECIDE_CLONE → CLONE_ATTEMPT → CLONED ─┐
//	      │              │                 ├→ STAGE → COMMIT → PUSH
//	      └──────────────┴→ LOCAL_INIT ────┘
//
// Cloning is needed only when history must be kept or when the site lives
// in a subcontext (other subcontexts already in the branch must survive).
// A clone failing because the branch does not exist yet falls back to a
// fresh local repository; any other git failure aborts the publish.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shinji-kodama/gitsite/internal/logging"
	"github.com/shinji-kodama/gitsite/internal/model"
	"github.com/shinji-kodama/gitsite/internal/shell"
)

// InitBranch is the local branch name used when the site repository is
// created with `git init` instead of cloned.
const InitBranch = "master"

// WorkDirSuffix is appended to the input directory to name the working copy.
const WorkDirSuffix = ".work"

// DefaultBranchNotFoundMarkers are the lowercase stderr fragments git uses to
// report that the branch requested by `clone --branch` does not exist. The
// wording is not a stable contract of git, so the list is configurable.
var DefaultBranchNotFoundMarkers = []string{
	"could not find remote branch",
	"not found in upstream",
	"couldn't find remote ref",
}

// Runner executes git subcommands in the publisher's working directory.
// Run reports a nonzero exit in the result; Exec turns it into an error.
type Runner interface {
	Run(ctx context.Context, args ...string) (*shell.Result, error)
	Exec(ctx context.Context, args ...string) (*shell.Result, error)
}

// RunnerFactory creates the Runner for a working directory.
type RunnerFactory func(cfg model.DeploymentConfig, dir string) (Runner, error)

// Outcome summarizes a successful publish.
type Outcome struct {
	Branch        string
	WorkDir       string
	Cloned        bool
	LocalBranch   string
	PushForced    bool
	Deleted       int
	FileCount     int
	CommitMessage string
	Index         []string
}

// Publisher runs the clone-or-init / stage / commit / push sequence.
type Publisher struct {
	// NewRunner creates the git runner; see ShellRunnerFactory.
	NewRunner RunnerFactory

	// Log receives progress and git output lines.
	Log logging.Sink
}

// NewPublisher returns a Publisher that runs the real git binary and
// reports everything to log.
func NewPublisher(log logging.Sink) *Publisher {
	if log == nil {
		log = logging.Discard
	}
	return &Publisher{NewRunner: ShellRunnerFactory(log), Log: log}
}

// ShellRunnerFactory returns a RunnerFactory backed by shell.Executor whose
// command announcements, stdout and stderr all go to log.
func ShellRunnerFactory(log logging.Sink) RunnerFactory {
	return func(cfg model.DeploymentConfig, dir string) (Runner, error) {
		e, err := shell.NewExecutor(cfg.GitCommand, dir)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitConfigInvalid, "invalid git command", err)
		}
		e.Info = log
		e.Stdout = log
		e.Stderr = log
		return e, nil
	}
}

// checkoutState is the result of DECIDE_CLONE / CLONE_ATTEMPT / LOCAL_INIT.
type checkoutState struct {
	cloned      bool
	localBranch string
	pushForce   bool
}

// Publish publishes the site described by cfg.
func (p *Publisher) Publish(ctx context.Context, cfg model.DeploymentConfig) (*Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	remote, err := cfg.RemoteURL()
	if err != nil {
		return nil, err
	}

	inputDir, err := filepath.Abs(cfg.InputDirectory)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitFilesystem, "cannot resolve input directory", err)
	}
	if info, statErr := os.Stat(inputDir); statErr != nil || !info.IsDir() {
		return nil, model.NewCLIError(model.ExitFilesystem,
			fmt.Sprintf("input directory %s does not exist or is not a directory", inputDir))
	}

	workDir := inputDir + WorkDirSuffix
	if err := resetDir(workDir); err != nil {
		return nil, model.WrapCLIError(model.ExitFilesystem, "cannot prepare working directory", err)
	}

	git, err := p.NewRunner(cfg, workDir)
	if err != nil {
		return nil, err
	}

	state, err := p.checkout(ctx, git, cfg, remote)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Branch:      cfg.Branch,
		WorkDir:     workDir,
		Cloned:      state.cloned,
		LocalBranch: state.localBranch,
		PushForced:  state.pushForce,
	}
	if err := p.stage(cfg, inputDir, workDir, out); err != nil {
		return nil, err
	}
	if err := p.commit(ctx, git, cfg, inputDir, out); err != nil {
		return nil, err
	}
	if err := p.push(ctx, git, cfg, state); err != nil {
		return nil, err
	}
	logging.Printf(p.Log, logging.SeverityInfo, "Published %d files to branch '%s' of %s", out.FileCount, cfg.Branch, remote)
	return out, nil
}

// checkout clones the branch or initializes a fresh repository.
func (p *Publisher) checkout(ctx context.Context, git Runner, cfg model.DeploymentConfig, remote string) (checkoutState, error) {
	needClone := cfg.KeepHistory || !cfg.IsRootSubcontext()
	if needClone {
		result, err := git.Run(ctx, "clone", "--branch", cfg.Branch, "--single-branch", remote, ".")
		if err != nil {
			return checkoutState{}, model.WrapCLIError(model.ExitGitError, "git publishing error", err)
		}
		if result.ExitCode == 0 {
			return checkoutState{cloned: true, localBranch: cfg.Branch, pushForce: !cfg.KeepHistory}, nil
		}
		if !branchNotFound(result.Stderr, markers(cfg)) {
			return checkoutState{}, model.WrapCLIError(model.ExitGitError, "git publishing error", &shell.CommandError{
				Args:     []string{"git", "clone", "--branch", cfg.Branch, "--single-branch", remote, "."},
				ExitCode: result.ExitCode,
				Stderr:   result.Stderr,
			})
		}
		logging.Printf(p.Log, logging.SeverityInfo, "Branch '%s' does not exist in '%s' - will be created", cfg.Branch, remote)
	}

	if _, err := git.Exec(ctx, "init", "--initial-branch="+InitBranch); err != nil {
		return checkoutState{}, model.WrapCLIError(model.ExitGitError, "git publishing error", err)
	}
	if _, err := git.Exec(ctx, "remote", "add", "origin", remote); err != nil {
		return checkoutState{}, model.WrapCLIError(model.ExitGitError, "git publishing error", err)
	}
	return checkoutState{localBranch: InitBranch, pushForce: true}, nil
}

// stage replaces the content of the target area with the input directory,
// updates the subcontext index and writes .gitattributes.
func (p *Publisher) stage(cfg model.DeploymentConfig, inputDir, workDir string, out *Outcome) error {
	sub := cfg.NormalizedSubcontext()
	targetArea, err := canonicalTarget(workDir, sub)
	if err != nil {
		return model.WrapCLIError(model.ExitFilesystem, "cannot prepare target area", err)
	}
	logging.Printf(p.Log, logging.SeverityDebug, "Moving site into %s", targetArea)

	excludes := exclusions(cfg, sub == "")
	deleted, err := deleteUnexcluded(targetArea, excludes)
	if err != nil {
		return model.WrapCLIError(model.ExitFilesystem, "cannot clean target area", err)
	}
	out.Deleted = len(deleted)
	logging.Printf(p.Log, logging.SeverityInfo, "Deleting %d files - excluded '%s'", len(deleted), strings.Join(excludes, ","))
	for _, f := range deleted {
		logging.Printf(p.Log, logging.SeverityDebug, "Deleted file: %s", f)
	}

	if err := copyTree(inputDir, targetArea); err != nil {
		return model.WrapCLIError(model.ExitFilesystem, "cannot copy site into target area", err)
	}

	entries, err := updateIndex(p.Log, filepath.Join(workDir, cfg.IndexFileName), sub)
	if err != nil {
		return model.WrapCLIError(model.ExitFilesystem, "cannot update subcontext index", err)
	}
	out.Index = entries

	if err := os.WriteFile(filepath.Join(workDir, ".gitattributes"), []byte(gitAttributes), 0o644); err != nil {
		return model.WrapCLIError(model.ExitFilesystem, "cannot write .gitattributes", err)
	}
	return nil
}

// commit stages every change and records a single commit.
func (p *Publisher) commit(ctx context.Context, git Runner, cfg model.DeploymentConfig, inputDir string, out *Outcome) error {
	if _, err := git.Exec(ctx, "add", "-A", "."); err != nil {
		return model.WrapCLIError(model.ExitGitError, "git publishing error", err)
	}
	count, err := countFiles(inputDir)
	if err != nil {
		return model.WrapCLIError(model.ExitFilesystem, "cannot count published files", err)
	}
	out.FileCount = count
	out.CommitMessage = cfg.FormatCommitMessage(count)
	if _, err := git.Exec(ctx, "commit", "-am", out.CommitMessage); err != nil {
		return model.WrapCLIError(model.ExitGitError, "git publishing error", err)
	}
	return nil
}

// push sends the commit to the remote branch, forcing when the history is
// being replaced or the branch is new.
func (p *Publisher) push(ctx context.Context, git Runner, cfg model.DeploymentConfig, state checkoutState) error {
	args := []string{"push", "origin", state.localBranch + ":" + cfg.Branch}
	if state.pushForce {
		args = append(args, "--force", "--set-upstream")
	}
	if _, err := git.Exec(ctx, args...); err != nil {
		return model.WrapCLIError(model.ExitGitError, "git publishing error", err)
	}
	return nil
}

// markers returns the configured branch-not-found markers or the defaults.
func markers(cfg model.DeploymentConfig) []string {
	if len(cfg.BranchNotFoundMarkers) > 0 {
		return cfg.BranchNotFoundMarkers
	}
	return DefaultBranchNotFoundMarkers
}

// branchNotFound reports whether any stderr line contains one of the
// markers, ignoring case.
func branchNotFound(stderr []string, markers []string) bool {
	for _, line := range stderr {
		l := strings.ToLower(line)
		for _, m := range markers {
			m = strings.ToLower(strings.TrimSpace(m))
			if m != "" && strings.Contains(l, m) {
				return true
			}
		}
	}
	return false
}
