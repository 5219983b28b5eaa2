// SPDX-License-Identifier: MPL-2.0

package env

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sleapenv/sleapenv/pkg/types"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/syntax"
)

// stderrTail bounds how much command stderr a CommandError keeps.
const stderrTail = 4096

// ErrNotFound is returned by LookPath when a command does not resolve.
var ErrNotFound = errors.New("command not found on PATH")

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// Option configures an Environment.
	Option func(*Environment)

	// Environment is the explicit handle a provisioning step acts on.
	// It is not safe for concurrent use; steps run one at a time.
	Environment struct {
		root        string
		execCommand ExecCommandFunc
		stdout      io.Writer
		stderr      io.Writer
		overrides   map[string]string
		logger      *log.Logger
		workDir     string
		facts       map[string]string
	}

	// CommandError describes a command that could not start or exited non-zero.
	CommandError struct {
		Name     string
		Args     []string
		ExitCode types.ExitCode
		// Stderr holds the tail of the command's standard error.
		Stderr string
		Err    error
	}
)

// Error implements the error interface.
func (e *CommandError) Error() string {
	line := strings.Join(append([]string{e.Name}, e.Args...), " ")
	msg := fmt.Sprintf("command %q failed (exit %s)", line, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	return msg
}

// Unwrap returns the underlying exec error.
func (e *CommandError) Unwrap() error { return e.Err }

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(e *Environment) { e.execCommand = fn }
}

// WithOutput sets where command output is streamed. Nil writers discard.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Environment) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithLogger sets the logger steps report progress to.
func WithLogger(logger *log.Logger) Option {
	return func(e *Environment) { e.logger = logger }
}

// WithEnv adds an environment variable to every command.
func WithEnv(key, value string) Option {
	return func(e *Environment) { e.overrides[key] = value }
}

// New returns an Environment rooted at root. An empty root means "/".
func New(root string, opts ...Option) *Environment {
	if root == "" {
		root = string(filepath.Separator)
	}
	e := &Environment{
		root:        filepath.Clean(root),
		execCommand: exec.CommandContext,
		stdout:      io.Discard,
		stderr:      io.Discard,
		overrides:   make(map[string]string),
		logger:      log.NewWithOptions(io.Discard, log.Options{}),
		facts:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.stdout == nil {
		e.stdout = io.Discard
	}
	if e.stderr == nil {
		e.stderr = io.Discard
	}
	return e
}

// Root returns the filesystem root of the environment.
func (e *Environment) Root() string { return e.root }

// Path maps an absolute path inside the environment to the host path that backs
// it. Relative paths are taken relative to the root.
func (e *Environment) Path(p string) string {
	if e.root == string(filepath.Separator) {
		return filepath.Clean(filepath.Join(e.root, p))
	}
	return filepath.Join(e.root, filepath.Clean(string(filepath.Separator)+p))
}

// Logger returns the environment's logger.
func (e *Environment) Logger() *log.Logger { return e.logger }

// Stdout returns the writer command output streams to.
func (e *Environment) Stdout() io.Writer { return e.stdout }

// Command creates a command with the environment's overrides applied. Callers
// own stdin and output wiring.
func (e *Environment) Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	return e.command(ctx, nil, name, args...)
}

func (e *Environment) command(ctx context.Context, extra map[string]string, name string, args ...string) *exec.Cmd {
	cmd := e.execCommand(ctx, name, args...)
	vars := make(map[string]string, len(e.overrides)+len(extra))
	maps.Copy(vars, e.overrides)
	maps.Copy(vars, extra)
	if len(vars) > 0 {
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		for _, k := range slices.Sorted(maps.Keys(vars)) {
			cmd.Env = append(cmd.Env, k+"="+vars[k])
		}
	}
	return cmd
}

// Run runs a command, streaming its output. A failure is a *CommandError.
func (e *Environment) Run(ctx context.Context, name string, args ...string) error {
	_, err := e.run(ctx, e.stdout, nil, name, args...)
	return err
}

// RunEnv is Run with extra environment variables set for this command only.
func (e *Environment) RunEnv(ctx context.Context, vars map[string]string, name string, args ...string) error {
	_, err := e.run(ctx, e.stdout, vars, name, args...)
	return err
}

// Output runs a command and returns its trimmed standard output.
func (e *Environment) Output(ctx context.Context, name string, args ...string) (string, error) {
	var out bytes.Buffer
	_, err := e.run(ctx, &out, nil, name, args...)
	return strings.TrimSpace(out.String()), err
}

func (e *Environment) run(ctx context.Context, stdout io.Writer, extra map[string]string, name string, args ...string) (*exec.Cmd, error) {
	cmd := e.command(ctx, extra, name, args...)
	tail := &tailBuffer{max: stderrTail}
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(e.stderr, tail)

	e.logger.Debug("exec", "cmd", name, "args", args)
	if err := cmd.Run(); err != nil {
		return cmd, &CommandError{
			Name:     name,
			Args:     slices.Clone(args),
			ExitCode: types.ExitCodeOf(err),
			Stderr:   tail.String(),
			Err:      err,
		}
	}
	return cmd, nil
}

// LookPath resolves name through the environment's shell, so the result matches
// what an interactive user of the image would run.
func (e *Environment) LookPath(ctx context.Context, name string) (string, error) {
	quoted, err := syntax.Quote(name, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("quote %q: %w", name, err)
	}
	out, err := e.Output(ctx, "sh", "-c", "command -v "+quoted)
	if err != nil || out == "" {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return out, nil
}

// Record stores a fact discovered while provisioning, such as a resolved version.
func (e *Environment) Record(key, value string) { e.facts[key] = value }

// Fact returns a recorded fact.
func (e *Environment) Fact(key string) (string, bool) {
	v, ok := e.facts[key]
	return v, ok
}

// Facts returns a copy of every recorded fact.
func (e *Environment) Facts() map[string]string { return maps.Clone(e.facts) }

// SetWorkDir records the default working directory of the environment.
func (e *Environment) SetWorkDir(dir string) { e.workDir = dir }

// WorkDir returns the recorded working directory, or "" when unset.
func (e *Environment) WorkDir() string { return e.workDir }

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string { return string(b.buf) }

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
