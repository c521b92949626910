// Package model defines the domain types for the gitsite CLI.
//
// DeploymentConfig is the single value that flows from the configuration
// layer, through the persisted parameter hand-off, into the git publisher.
// It is created once in the execution-root module and consumed once in the
// last module of the reactor.
package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ScmPrefix is the mandatory prefix of an SCM URL. Only git SCM URLs are
// supported; the prefix is stripped to obtain the git remote URL.
const ScmPrefix = "scm:git:"

// DeploymentConfig holds everything the publisher needs to push a staged
// site into a branch.
//
// All fields are plain values so the struct can be serialized field by field
// into the persisted parameter file (see package params).
type DeploymentConfig struct {
	// InputDirectory is the root of the fully generated site.
	InputDirectory string

	// ScmURL is the SCM URL of the repository receiving the site,
	// e.g. "scm:git:git@github.com:org/project.git".
	ScmURL string

	// Branch is the target branch name.
	Branch string

	// KeepHistory appends the publish as a new commit on top of the existing
	// branch tip. When false the branch is replaced by a single commit.
	KeepHistory bool

	// CommitMessage is formatted with the number of published files; it may
	// contain one %d placeholder.
	CommitMessage string

	// Subcontext is the path under the branch root where this site lives.
	// Both "" and "." mean the branch root.
	Subcontext string

	// RootsToExclude lists top-level names that are never deleted or
	// overwritten because they are reserved for other subcontexts.
	RootsToExclude []string

	// IndexFileName is the name of the subcontext listing file written at
	// the branch root.
	IndexFileName string

	// LogFile receives the transcript of every executed command.
	LogFile string

	// BranchNotFoundMarkers are lowercase stderr substrings that identify a
	// failed clone as "remote branch does not exist yet".
	BranchNotFoundMarkers []string

	// GitCommand is the git executable, optionally followed by global
	// arguments (e.g. "git -c core.autocrlf=false").
	GitCommand string
}

// RemoteURL strips ScmPrefix from ScmURL. A URL without the prefix is a
// configuration error.
func (c *DeploymentConfig) RemoteURL() (string, error) {
	if !strings.HasPrefix(c.ScmURL, ScmPrefix) {
		return "", NewCLIError(ExitConfigInvalid,
			fmt.Sprintf("scm url %q must start with prefix '%s'", c.ScmURL, ScmPrefix))
	}
	remote := strings.TrimPrefix(c.ScmURL, ScmPrefix)
	if remote == "" {
		return "", NewCLIError(ExitConfigInvalid, "scm url has an empty remote after prefix")
	}
	return remote, nil
}

// NormalizedSubcontext returns the cleaned, slash-separated subcontext.
// The branch root is always returned as "".
func (c *DeploymentConfig) NormalizedSubcontext() string {
	s := strings.TrimSpace(c.Subcontext)
	if s == "" {
		return ""
	}
	s = filepath.ToSlash(filepath.Clean(filepath.FromSlash(s)))
	s = strings.TrimPrefix(s, "/")
	if s == "." {
		return ""
	}
	return s
}

// IsRootSubcontext reports whether the site is published at the branch root.
func (c *DeploymentConfig) IsRootSubcontext() bool {
	return c.NormalizedSubcontext() == ""
}

// Validate checks the fields that must be sane before any filesystem or
// process activity happens.
func (c *DeploymentConfig) Validate() error {
	if _, err := c.RemoteURL(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Branch) == "" {
		return NewCLIError(ExitConfigInvalid, "branch must not be empty")
	}
	if c.InputDirectory == "" {
		return NewCLIError(ExitConfigInvalid, "input directory must not be empty")
	}
	if c.IndexFileName == "" || strings.ContainsAny(c.IndexFileName, `/\`) {
		return NewCLIError(ExitConfigInvalid,
			fmt.Sprintf("index file name %q must be a plain file name", c.IndexFileName))
	}
	sub := c.NormalizedSubcontext()
	if sub == ".." || strings.HasPrefix(sub, "../") {
		return NewCLIError(ExitConfigInvalid,
			fmt.Sprintf("subcontext %q escapes the branch root", c.Subcontext))
	}
	if first, _, _ := strings.Cut(sub, "/"); first == ".git" {
		return NewCLIError(ExitConfigInvalid,
			fmt.Sprintf("subcontext %q points into the git metadata directory", c.Subcontext))
	}
	return nil
}

// FormatCommitMessage renders CommitMessage for the given number of files.
// Templates without a %d placeholder are used verbatim.
func (c *DeploymentConfig) FormatCommitMessage(fileCount int) string {
	if !strings.Contains(c.CommitMessage, "%d") {
		return c.CommitMessage
	}
	return fmt.Sprintf(c.CommitMessage, fileCount)
}

// ExitCode defines the process exit codes of the CLI. Each fatal error class
// of a deployment maps onto one code.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigInvalid indicates malformed configuration, e.g. an SCM URL
	// without the scm:git: prefix. Raised before any side effect.
	ExitConfigInvalid ExitCode = 2

	// ExitParameterPersistence indicates the persisted parameter file could
	// not be written, or was missing or unreadable at load time.
	ExitParameterPersistence ExitCode = 3

	// ExitGitError indicates a git command exited with a nonzero status.
	ExitGitError ExitCode = 4

	// ExitFilesystem indicates a failure to delete, copy or write files
	// while staging the site.
	ExitFilesystem ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// ExitCodeOf returns the exit code carried by the outermost CLIError in the
// chain of err, ExitSuccess for nil, and ExitGeneralError otherwise.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitGeneralError
}
