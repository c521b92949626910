// Package shell runs external git commands for the gitsite CLI.
//
// All git operations are performed via os/exec calls to the git binary
// rather than through a Go git library. The publish algorithm relies on the
// exact behavior of `git clone --single-branch`, on git's stderr wording to
// detect a missing remote branch, and on the user's configured credentials
// and transports, all of which only the real CLI provides.
//
// The Executor streams stdout and stderr line by line to injectable
// logging.Sink values while also collecting them into a Result.
package shell
