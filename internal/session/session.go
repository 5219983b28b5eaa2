// SPDX-License-Identifier: MPL-2.0

// Package session runs commands in a built environment image: interactive
// shells and the toolkit smoke test. Every session gets all host GPUs and its
// container is removed on exit.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sleapenv/sleapenv/internal/container"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/pkg/types"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/syntax"
)

var (
	// ErrImageMissing is returned when the session image has not been built.
	ErrImageMissing = errors.New("image not found")

	// ErrSmokeFailed is the sentinel error wrapped by SmokeFailedError.
	ErrSmokeFailed = errors.New("smoke test failed")

	// ErrInvalidSmoke is returned for an incomplete smoke configuration.
	ErrInvalidSmoke = errors.New("invalid smoke configuration")
)

type (
	// Session runs containers from one image.
	Session struct {
		engine container.Engine
		image  string
		stdin  io.Reader
		stdout io.Writer
		stderr io.Writer
		logger *log.Logger
	}

	// Option configures a Session.
	Option func(*Session)

	// Smoke describes the toolkit smoke command. Relative paths resolve
	// against WorkDir inside the container.
	Smoke struct {
		Command string
		Config  string
		Labels  string
		RunName string
		Video   string
		WorkDir string
	}

	// SmokeFailedError reports the exit code of a failed smoke command.
	SmokeFailedError struct {
		Image    string
		ExitCode types.ExitCode
	}
)

// Error implements the error interface.
func (e *SmokeFailedError) Error() string {
	return fmt.Sprintf("smoke test in %s exited with code %d", e.Image, e.ExitCode)
}

// Unwrap returns ErrSmokeFailed for errors.Is() compatibility.
func (e *SmokeFailedError) Unwrap() error { return ErrSmokeFailed }

// WithIO sets the session's standard streams.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(s *Session) {
		s.stdin, s.stdout, s.stderr = stdin, stdout, stderr
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New returns a session for image.
func New(engine container.Engine, image string, opts ...Option) *Session {
	s := &Session{
		engine: engine,
		image:  image,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: log.NewWithOptions(io.Discard, log.Options{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shell starts an interactive container running command, or the image's
// default command when command is empty. The exit code of the command is
// returned; err is set only when the container could not run.
func (s *Session) Shell(ctx context.Context, command []string) (types.ExitCode, error) {
	if err := s.ensureImage(ctx); err != nil {
		return 1, err
	}
	s.logger.Info("starting session", "image", s.image, "engine", s.engine.Name())
	res, err := s.engine.Run(ctx, container.RunOptions{
		Image:       s.image,
		Command:     command,
		GPU:         true,
		Remove:      true,
		Interactive: true,
		TTY:         true,
		Stdin:       s.stdin,
		Stdout:      s.stdout,
		Stderr:      s.stderr,
	})
	if err != nil {
		return 1, err
	}
	if res.Error != nil {
		return res.ExitCode, res.Error
	}
	return res.ExitCode, nil
}

// Validate checks that every smoke input is set.
func (m Smoke) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"command", m.Command},
		{"config", m.Config},
		{"labels", m.Labels},
		{"run_name", m.RunName},
		{"video", m.Video},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidSmoke, strings.Join(missing, ", "))
	}
	return nil
}

// Args returns the smoke command line.
func (m Smoke) Args() []string {
	return []string{m.Command, m.Config, m.Labels, "--run_name", m.RunName, "--video-paths", m.Video}
}

// Smoke runs the smoke command. A non-zero exit is a *SmokeFailedError.
func (s *Session) Smoke(ctx context.Context, m Smoke) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.ensureImage(ctx); err != nil {
		return err
	}

	args := m.Args()
	s.logger.Info("running smoke test", "image", s.image, "command", shellJoin(args))
	res, err := s.engine.Run(ctx, container.RunOptions{
		Image:   s.image,
		Command: args,
		WorkDir: m.WorkDir,
		GPU:     true,
		Remove:  true,
		Stdout:  s.stdout,
		Stderr:  s.stderr,
	})
	if err != nil {
		return err
	}
	if res.Error != nil {
		return res.Error
	}
	if res.ExitCode != 0 {
		fail := &SmokeFailedError{Image: s.image, ExitCode: res.ExitCode}
		ec := issue.NewErrorContext().
			WithOperation("run smoke test").
			WithResource(s.image).
			WithSuggestion("Check the toolkit output above for the failing stage")
		if res.ExitCode.IsEngineFailure() {
			ec.WithSuggestion("Make sure " + m.Command + " is installed in the image (try: sleapenv build --force-rebuild)")
		}
		return ec.Wrap(fail).BuildError()
	}
	s.logger.Info("smoke test passed", "image", s.image)
	return nil
}

func (s *Session) ensureImage(ctx context.Context) error {
	ok, err := s.engine.ImageExists(ctx, s.image)
	if err == nil && ok {
		return nil
	}
	if err == nil {
		err = ErrImageMissing
	}
	return issue.NewErrorContext().
		WithOperation("start session").
		WithResource(s.image).
		WithSuggestion("Build the image first (try: sleapenv build -t " + s.image + ")").
		Wrap(err).
		BuildError()
}

// shellJoin renders args as a shell command line for display.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			q = fmt.Sprintf("%q", a)
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " ")
}
