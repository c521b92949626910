package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/gitsite/internal/logging"
	"github.com/shinji-kodama/gitsite/internal/model"
	"github.com/shinji-kodama/gitsite/internal/shell"
)

// fakeGit records every git invocation and simulates the outcomes the
// publisher reacts to.
type fakeGit struct {
	dir   string
	calls [][]string

	// cloneResult is returned by a clone; nil means success.
	cloneResult *shell.Result

	// onClone populates the working directory after a successful clone.
	onClone func(dir string)

	// failOn makes Exec fail for the named subcommand.
	failOn string
}

func (f *fakeGit) Run(_ context.Context, args ...string) (*shell.Result, error) {
	f.calls = append(f.calls, args)
	if args[0] == "clone" {
		r := f.cloneResult
		if r == nil {
			r = &shell.Result{}
		}
		if r.ExitCode == 0 && f.onClone != nil {
			f.onClone(f.dir)
		}
		return r, nil
	}
	return &shell.Result{}, nil
}

func (f *fakeGit) Exec(ctx context.Context, args ...string) (*shell.Result, error) {
	if args[0] == f.failOn {
		f.calls = append(f.calls, args)
		return &shell.Result{ExitCode: 128}, &shell.CommandError{
			Args:     append([]string{"git"}, args...),
			ExitCode: 128,
			Stderr:   []string{"fatal: " + args[0] + " failed"},
		}
	}
	return f.Run(ctx, args...)
}

// subcommands returns the first argument of every recorded call.
func (f *fakeGit) subcommands() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c[0])
	}
	return out
}

// lastPush returns the arguments of the push call.
func (f *fakeGit) lastPush(t *testing.T) []string {
	t.Helper()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i][0] == "push" {
			return f.calls[i]
		}
	}
	t.Fatal("no push recorded")
	return nil
}

func newFakePublisher(f *fakeGit, log logging.Sink) *Publisher {
	if log == nil {
		log = logging.Discard
	}
	return &Publisher{
		NewRunner: func(_ model.DeploymentConfig, dir string) (Runner, error) {
			f.dir = dir
			return f, nil
		},
		Log: log,
	}
}

// writeTree creates files (slash-separated path → content) below dir.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func siteConfig(t *testing.T, files map[string]string) model.DeploymentConfig {
	t.Helper()
	input := filepath.Join(t.TempDir(), "staging")
	require.NoError(t, os.MkdirAll(input, 0o755))
	writeTree(t, input, files)
	return model.DeploymentConfig{
		InputDirectory: input,
		ScmURL:         "scm:git:https://example.com/org/project.git",
		Branch:         "gitsite",
		KeepHistory:    true,
		CommitMessage:  "Publishing project site with %d files",
		Subcontext:     ".",
		RootsToExclude: []string{"VERSION", "BRANCH"},
		IndexFileName:  ".gitsite.index.txt",
	}
}

var notFound = &shell.Result{
	ExitCode: 128,
	Stderr: []string{
		"Cloning into '.'...",
		"warning: Could not find remote branch gitsite to clone.",
		"fatal: Remote branch gitsite not found in upstream origin",
	},
}

// TestScenarioKeepHistoryRoot covers a single-module build that keeps
// history at the branch root: clone, stage, commit, plain push.
func TestScenarioKeepHistoryRoot(t *testing.T) {
	cfg := siteConfig(t, map[string]string{"index.html": "new", "css/site.css": "body{}"})
	f := &fakeGit{onClone: func(dir string) {
		writeTree(t, dir, map[string]string{
			".git/HEAD":          "ref: refs/heads/gitsite\n",
			"old.html":           "old",
			"css/old.css":        "old",
			"VERSION/1.0/a.html": "keep",
			"BRANCH/dev/b.html":  "keep",
			".gitsite.index.txt": "VERSION/1.0\n",
		})
	}}

	out, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"clone", "add", "commit", "push"}, f.subcommands())
	assert.Equal(t, []string{"clone", "--branch", "gitsite", "--single-branch", "https://example.com/org/project.git", "."}, f.calls[0])
	assert.Equal(t, []string{"push", "origin", "gitsite:gitsite"}, f.lastPush(t))

	assert.True(t, out.Cloned)
	assert.False(t, out.PushForced)
	assert.Equal(t, "gitsite", out.LocalBranch)
	assert.Equal(t, 2, out.Deleted)
	assert.Equal(t, 2, out.FileCount)
	assert.Equal(t, "Publishing project site with 2 files", out.CommitMessage)
	assert.Equal(t, cfg.InputDirectory+WorkDirSuffix, out.WorkDir)

	work := out.WorkDir
	assert.True(t, exists(filepath.Join(work, ".git", "HEAD")))
	assert.True(t, exists(filepath.Join(work, "VERSION", "1.0", "a.html")))
	assert.True(t, exists(filepath.Join(work, "BRANCH", "dev", "b.html")))
	assert.True(t, exists(filepath.Join(work, "index.html")))
	assert.True(t, exists(filepath.Join(work, "css", "site.css")))
	assert.False(t, exists(filepath.Join(work, "old.html")))
	assert.False(t, exists(filepath.Join(work, "css", "old.css")))

	attrs, err := os.ReadFile(filepath.Join(work, ".gitattributes"))
	require.NoError(t, err)
	assert.Equal(t, "* text=auto\n", string(attrs))
	assert.Equal(t, []string{"VERSION/1.0"}, out.Index)
}

// TestReservedRootsWithSlashes checks that roots written as directories
// still protect everything below them.
func TestReservedRootsWithSlashes(t *testing.T) {
	cfg := siteConfig(t, map[string]string{"index.html": "new"})
	cfg.RootsToExclude = []string{"VERSION/", " ./BRANCH// ", "/", ""}
	f := &fakeGit{onClone: func(dir string) {
		writeTree(t, dir, map[string]string{
			"old.html":           "old",
			"VERSION/1.0/a.html": "keep",
			"VERSION/2.0/b.html": "keep",
			"BRANCH/dev/c.html":  "keep",
		})
	}}

	out, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Deleted)
	assert.True(t, exists(filepath.Join(out.WorkDir, "VERSION", "1.0", "a.html")))
	assert.True(t, exists(filepath.Join(out.WorkDir, "VERSION", "2.0", "b.html")))
	assert.True(t, exists(filepath.Join(out.WorkDir, "BRANCH", "dev", "c.html")))
	assert.False(t, exists(filepath.Join(out.WorkDir, "old.html")))
	assert.Equal(t, []string{".git/**", "VERSION/**", "BRANCH/**"}, exclusions(cfg, false))
}

// TestSubcontextSymlinkOutsideWorkDir rejects a subcontext that the cloned
// branch turned into a symlink pointing elsewhere.
func TestSubcontextSymlinkOutsideWorkDir(t *testing.T) {
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{"precious.txt": "keep"})

	cfg := siteConfig(t, map[string]string{"index.html": "new"})
	cfg.Subcontext = "v2"
	f := &fakeGit{onClone: func(dir string) {
		require.NoError(t, os.Symlink(outside, filepath.Join(dir, "v2")))
	}}

	_, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, model.ExitFilesystem, model.ExitCodeOf(err))
	assert.True(t, exists(filepath.Join(outside, "precious.txt")))
	assert.Equal(t, []string{"clone"}, f.subcommands())
}

// TestScenarioNewBranch covers the first publish to a branch that does not
// exist yet.
func TestScenarioNewBranch(t *testing.T) {
	cfg := siteConfig(t, map[string]string{"index.html": "x"})
	f := &fakeGit{cloneResult: notFound}
	var lines []string
	log := logging.SinkFunc(func(_ logging.Severity, l string) { lines = append(lines, l) })

	out, err := newFakePublisher(f, log).Publish(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"clone", "init", "remote", "add", "commit", "push"}, f.subcommands())
	assert.Equal(t, []string{"init", "--initial-branch=master"}, f.calls[1])
	assert.Equal(t, []string{"remote", "add", "origin", "https://example.com/org/project.git"}, f.calls[2])
	assert.Equal(t, []string{"push", "origin", "master:gitsite", "--force", "--set-upstream"}, f.lastPush(t))
	assert.False(t, out.Cloned)
	assert.True(t, out.PushForced)
	assert.Equal(t, InitBranch, out.LocalBranch)
	assert.Contains(t, lines, "Branch 'gitsite' does not exist in 'https://example.com/org/project.git' - will be created")
}

// TestScenarioSubcontext covers multi-subcontext hosting: only the
// subcontext area is replaced and the index gains the new entry.
func TestScenarioSubcontext(t *testing.T) {
	cfg := siteConfig(t, map[string]string{"index.html": "v2", "api/ref.html": "ref"})
	cfg.Subcontext = "v2"
	cfg.KeepHistory = false
	f := &fakeGit{onClone: func(dir string) {
		writeTree(t, dir, map[string]string{
			".git/HEAD":          "ref: refs/heads/gitsite\n",
			"index.html":         "root",
			"v1/index.html":      "v1",
			"v2/stale.html":      "stale",
			"v2/old/deep.html":   "stale",
			"VERSION/1.0/a.html": "keep",
			"BRANCH/dev/b.html":  "keep",
			".gitsite.index.txt": "v1\ngone\n",
		})
	}}

	out, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
	require.NoError(t, err)

	work := out.WorkDir
	assert.True(t, exists(filepath.Join(work, "index.html")), "root content outside the subcontext survives")
	assert.True(t, exists(filepath.Join(work, "v1", "index.html")))
	assert.True(t, exists(filepath.Join(work, "VERSION", "1.0", "a.html")))
	assert.True(t, exists(filepath.Join(work, "BRANCH", "dev", "b.html")))
	assert.True(t, exists(filepath.Join(work, "v2", "index.html")))
	assert.True(t, exists(filepath.Join(work, "v2", "api", "ref.html")))
	assert.False(t, exists(filepath.Join(work, "v2", "stale.html")))
	assert.False(t, exists(filepath.Join(work, "v2", "old")), "emptied directories are pruned")
	assert.Equal(t, 2, out.Deleted)

	index, err := os.ReadFile(filepath.Join(work, ".gitsite.index.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1\nv2\n", string(index))
	assert.Equal(t, []string{"v1", "v2"}, out.Index)

	// A subcontext always needs a clone; without history the push forces.
	assert.Equal(t, "clone", f.calls[0][0])
	assert.Equal(t, []string{"push", "origin", "gitsite:gitsite", "--force", "--set-upstream"}, f.lastPush(t))
}

// TestScenarioEmptySite formats the commit message with a zero file count.
func TestScenarioEmptySite(t *testing.T) {
	cfg := siteConfig(t, nil)
	cfg.CommitMessage = "Publishing %d files"
	f := &fakeGit{}

	out, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, out.FileCount)
	assert.Equal(t, "Publishing 0 files", out.CommitMessage)

	var commit []string
	for _, c := range f.calls {
		if c[0] == "commit" {
			commit = c
		}
	}
	assert.Equal(t, []string{"commit", "-am", "Publishing 0 files"}, commit)
}

// TestNoHistoryRootSkipsClone verifies that a root publish without history
// never clones.
func TestNoHistoryRootSkipsClone(t *testing.T) {
	for _, sub := range []string{"", ".", "./"} {
		t.Run("subcontext="+sub, func(t *testing.T) {
			cfg := siteConfig(t, map[string]string{"index.html": "x"})
			cfg.KeepHistory = false
			cfg.Subcontext = sub
			f := &fakeGit{}

			out, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
			require.NoError(t, err)
			assert.Equal(t, []string{"init", "remote", "add", "commit", "push"}, f.subcommands())
			assert.True(t, out.PushForced)
		})
	}
}

// TestPushForceFollowsHistory checks the push mode for every combination of
// history and clone outcome.
func TestPushForceFollowsHistory(t *testing.T) {
	tests := []struct {
		name        string
		keepHistory bool
		subcontext  string
		clone       *shell.Result
		wantForce   bool
	}{
		{"history, clone ok", true, "", nil, false},
		{"history, new branch", true, "", notFound, true},
		{"no history, subcontext clone ok", false, "docs", nil, true},
		{"no history, subcontext new branch", false, "docs", notFound, true},
		{"no history, root", false, "", nil, true},
		{"history, subcontext clone ok", true, "docs", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := siteConfig(t, map[string]string{"a.html": "a"})
			cfg.KeepHistory = tt.keepHistory
			cfg.Subcontext = tt.subcontext
			f := &fakeGit{cloneResult: tt.clone}

			_, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
			require.NoError(t, err)
			push := strings.Join(f.lastPush(t), " ")
			if tt.wantForce {
				assert.Contains(t, push, "--force --set-upstream")
			} else {
				assert.NotContains(t, push, "--force")
			}
		})
	}
}

// TestCloneFailureIsFatal verifies that a clone failure without a
// branch-not-found marker aborts with git's exit code.
func TestCloneFailureIsFatal(t *testing.T) {
	cfg := siteConfig(t, map[string]string{"a.html": "a"})
	f := &fakeGit{cloneResult: &shell.Result{
		ExitCode: 128,
		Stderr:   []string{"fatal: Authentication failed for 'https://example.com/org/project.git/'"},
	}}

	_, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, model.ExitGitError, model.ExitCodeOf(err))

	var cmdErr *shell.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 128, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Error(), "Authentication failed")
	assert.Equal(t, []string{"clone"}, f.subcommands(), "nothing runs after a fatal clone")
}

func TestCustomBranchNotFoundMarkers(t *testing.T) {
	cfg := siteConfig(t, map[string]string{"a.html": "a"})
	cfg.BranchNotFoundMarkers = []string{"Zweig Nicht Gefunden"}
	f := &fakeGit{cloneResult: &shell.Result{
		ExitCode: 128,
		Stderr:   []string{"fatal: zweig nicht gefunden: gitsite"},
	}}

	out, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, out.Cloned)

	// The configured markers replace the defaults.
	f = &fakeGit{cloneResult: notFound}
	_, err = newFakePublisher(f, nil).Publish(context.Background(), cfg)
	assert.Error(t, err)
}

func TestGitCommandFailuresAreFatal(t *testing.T) {
	for _, sub := range []string{"init", "remote", "add", "commit", "push"} {
		t.Run(sub, func(t *testing.T) {
			cfg := siteConfig(t, map[string]string{"a.html": "a"})
			cfg.KeepHistory = false
			f := &fakeGit{failOn: sub}

			_, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
			require.Error(t, err)
			assert.Equal(t, model.ExitGitError, model.ExitCodeOf(err))
			assert.Equal(t, sub, f.calls[len(f.calls)-1][0], "publish stops at the failing command")
		})
	}
}

func TestPublishRejectsInvalidConfig(t *testing.T) {
	cfg := siteConfig(t, nil)
	cfg.ScmURL = "https://example.com/no-prefix.git"
	f := &fakeGit{}

	_, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, model.ExitConfigInvalid, model.ExitCodeOf(err))
	assert.Empty(t, f.calls, "no process activity before validation")
	assert.False(t, exists(cfg.InputDirectory+WorkDirSuffix))
}

func TestPublishMissingInputDirectory(t *testing.T) {
	cfg := siteConfig(t, nil)
	cfg.InputDirectory = filepath.Join(t.TempDir(), "missing")
	f := &fakeGit{}

	_, err := newFakePublisher(f, nil).Publish(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, model.ExitFilesystem, model.ExitCodeOf(err))
	assert.Empty(t, f.calls)
}

// TestWorkDirIsRecreated verifies that leftovers of an earlier publish never
// leak into the next one.
func TestWorkDirIsRecreated(t *testing.T) {
	cfg := siteConfig(t, map[string]string{"a.html": "a"})
	cfg.KeepHistory = false
	writeTree(t, cfg.InputDirectory+WorkDirSuffix, map[string]string{"leftover.html": "x"})

	out, err := newFakePublisher(&fakeGit{}, nil).Publish(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, exists(filepath.Join(out.WorkDir, "leftover.html")))
	assert.True(t, exists(filepath.Join(out.WorkDir, "a.html")))
}

func TestBranchNotFound(t *testing.T) {
	assert.True(t, branchNotFound(notFound.Stderr, DefaultBranchNotFoundMarkers))
	assert.True(t, branchNotFound([]string{"fatal: Couldn't find remote ref gitsite"}, DefaultBranchNotFoundMarkers))
	assert.False(t, branchNotFound([]string{"fatal: repository not reachable"}, DefaultBranchNotFoundMarkers))
	assert.False(t, branchNotFound(nil, DefaultBranchNotFoundMarkers))
	assert.False(t, branchNotFound([]string{"anything"}, []string{"  "}), "blank markers never match")
}
