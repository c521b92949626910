package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/google/shlex"

	"github.com/shinji-kodama/gitsite/internal/logging"
)

// DefaultGitCommand is used when no git command is configured.
const DefaultGitCommand = "git"

// maxLineSize bounds a single line of command output.
const maxLineSize = 1024 * 1024

// Result is the outcome of a finished command.
type Result struct {
	// ExitCode is the process exit status. -1 means the process was
	// terminated by a signal.
	ExitCode int

	// Stdout holds the stdout lines in the order they were produced.
	Stdout []string

	// Stderr holds the stderr lines in the order they were produced.
	Stderr []string
}

// CommandError reports a command that exited with a nonzero status.
// It carries everything needed to diagnose the failure: the full command
// line, the exit code and the captured stderr.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   []string
}

// Error satisfies the error interface.
func (e *CommandError) Error() string {
	b := new(strings.Builder)
	fmt.Fprintf(b, "%s returned with exit code '%d'", displayCommand(e.Args), e.ExitCode)
	if len(e.Stderr) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Stderr, "\n"))
	}
	return b.String()
}

// Executor runs git commands in a fixed working directory.
//
// Every invocation is announced on the Info sink as "Executing: ...";
// stdout lines go to the Stdout sink and stderr lines to the Stderr sink
// while the process is still running. Sink calls are serialized, so sinks
// need not be safe for concurrent use.
type Executor struct {
	// Dir is the working directory of every command.
	Dir string

	// Env is appended to the current process environment.
	Env []string

	// Info receives the announcement of each executed command.
	Info logging.Sink

	// Stdout receives command stdout lines.
	Stdout logging.Sink

	// Stderr receives command stderr lines.
	Stderr logging.Sink

	command []string
	mu      sync.Mutex
}

// NewExecutor creates an Executor for the given git command, which may carry
// global arguments (e.g. `git -c core.autocrlf=false`). It is split with
// shell quoting rules. An empty command means DefaultGitCommand.
func NewExecutor(gitCommand, dir string) (*Executor, error) {
	if strings.TrimSpace(gitCommand) == "" {
		gitCommand = DefaultGitCommand
	}
	command, err := shlex.Split(gitCommand)
	if err != nil {
		return nil, fmt.Errorf("invalid git command %q: %w", gitCommand, err)
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("invalid git command %q: no executable", gitCommand)
	}
	return &Executor{
		Dir:     dir,
		Info:    logging.Discard,
		Stdout:  logging.Discard,
		Stderr:  logging.Discard,
		command: command,
	}, nil
}

// Command returns the git executable followed by its global arguments.
func (e *Executor) Command() []string {
	return append([]string(nil), e.command...)
}

// Run executes the git subcommand described by args and waits for it.
//
// A nonzero exit status is not an error: it is reported in Result.ExitCode
// so the caller can classify the failure. The error is non-nil only when the
// process could not be started or its output could not be read.
func (e *Executor) Run(ctx context.Context, args ...string) (*Result, error) {
	full := append(e.Command(), args...)
	e.emit(e.Info, logging.SeverityInfo, "Executing: "+displayCommand(full))

	// #nosec G204 -- the executable comes from trusted configuration
	cmd := exec.CommandContext(ctx, full[0], full[1:]...)
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(), e.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("cannot attach stdout of %s: %w", displayCommand(full), err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("cannot attach stderr of %s: %w", displayCommand(full), err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("cannot start %s: %w", displayCommand(full), err)
	}

	result := &Result{}
	var wg sync.WaitGroup
	var readErrs [2]error
	wg.Add(2)
	go func() {
		defer wg.Done()
		readErrs[0] = e.consume(stdout, e.Stdout, logging.SeverityDebug, &result.Stdout)
	}()
	go func() {
		defer wg.Done()
		readErrs[1] = e.consume(stderr, e.Stderr, logging.SeverityWarn, &result.Stderr)
	}()
	// Both pipes must be drained before Wait closes them.
	wg.Wait()

	waitErr := cmd.Wait()
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("%s failed: %w", displayCommand(full), waitErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	for _, readErr := range readErrs {
		if readErr != nil {
			return nil, fmt.Errorf("cannot read output of %s: %w", displayCommand(full), readErr)
		}
	}
	return result, nil
}

// Exec is like Run but turns a nonzero exit status into a *CommandError.
func (e *Executor) Exec(ctx context.Context, args ...string) (*Result, error) {
	result, err := e.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return result, &CommandError{
			Args:     append(e.Command(), args...),
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}
	return result, nil
}

// consume reads r line by line, forwarding each line to sink and recording
// it in lines. After a read error the rest of r is discarded so the command
// never blocks on a full pipe.
func (e *Executor) consume(r io.Reader, sink logging.Sink, sev logging.Severity, lines *[]string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		e.mu.Lock()
		*lines = append(*lines, line)
		if sink != nil {
			sink.Line(sev, line)
		}
		e.mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

func (e *Executor) emit(sink logging.Sink, sev logging.Severity, line string) {
	if sink == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	sink.Line(sev, line)
}

// displayCommand renders a command line, quoting arguments that contain
// whitespace or are empty.
func displayCommand(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'") {
			parts[i] = strconv.Quote(a)
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}
