// SPDX-License-Identifier: MPL-2.0

// Package execmock replaces exec.CommandContext in tests with a re-invocation of
// the test binary that prints scripted output and exits with a scripted code.
//
// Each test package using it declares the helper entry point once:
//
//	func TestHelperProcess(t *testing.T) { execmock.HelperProcess() }
//
// and injects Recorder.CommandFunc wherever production code accepts an
// exec function.
package execmock

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"testing"
)

const (
	envWantHelper = "GO_WANT_HELPER_PROCESS"
	envStdout     = "GO_HELPER_STDOUT"
	envStderr     = "GO_HELPER_STDERR"
	envExitCode   = "GO_HELPER_EXIT_CODE"
)

type (
	// Response is the scripted result of a command.
	Response struct {
		Stdout   string
		Stderr   string
		ExitCode int
	}

	// Invocation records one command created through the recorder. Cmd is the
	// created command, so tests can inspect environment or working directory
	// changes applied after creation.
	Invocation struct {
		Name string
		Args []string
		Cmd  *exec.Cmd
	}

	rule struct {
		name   string
		prefix []string
		resp   Response
	}

	// Recorder scripts command responses and records invocations.
	// Commands without a matching rule succeed silently.
	Recorder struct {
		mu          sync.Mutex
		rules       []rule
		invocations []Invocation
	}
)

// New returns an empty recorder.
func New() *Recorder {
	return &Recorder{}
}

// On scripts the response for commands named name whose arguments start with
// prefix. When several rules match, the one with the longest prefix wins, and
// among equal prefixes the most recently added.
func (r *Recorder) On(resp Response, name string, prefix ...string) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{name: name, prefix: prefix, resp: resp})
	return r
}

// Fail scripts a failing exit code with the given stderr.
func (r *Recorder) Fail(exitCode int, stderr, name string, prefix ...string) *Recorder {
	return r.On(Response{ExitCode: exitCode, Stderr: stderr}, name, prefix...)
}

// Stdout scripts a successful command printing out.
func (r *Recorder) Stdout(out, name string, prefix ...string) *Recorder {
	return r.On(Response{Stdout: out}, name, prefix...)
}

// CommandFunc returns an exec.CommandContext replacement.
func (r *Recorder) CommandFunc(t testing.TB) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	t.Helper()
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		resp := r.match(name, args)

		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		//nolint:gosec // re-invokes the test binary
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = []string{
			envWantHelper + "=1",
			envStdout + "=" + resp.Stdout,
			envStderr + "=" + resp.Stderr,
			fmt.Sprintf("%s=%d", envExitCode, resp.ExitCode),
		}

		r.mu.Lock()
		r.invocations = append(r.invocations, Invocation{Name: name, Args: slices.Clone(args), Cmd: cmd})
		r.mu.Unlock()
		return cmd
	}
}

func (r *Recorder) match(name string, args []string) Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	best, bestLen := Response{}, -1
	for _, rl := range r.rules {
		if rl.name != name || len(rl.prefix) > len(args) || !slices.Equal(rl.prefix, args[:len(rl.prefix)]) {
			continue
		}
		if len(rl.prefix) >= bestLen {
			best, bestLen = rl.resp, len(rl.prefix)
		}
	}
	return best
}

// Invocations returns a copy of the recorded invocations.
func (r *Recorder) Invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.invocations)
}

// Commands returns each invocation as "name arg1 arg2 ...".
func (r *Recorder) Commands() []string {
	invs := r.Invocations()
	out := make([]string, len(invs))
	for i, inv := range invs {
		out[i] = strings.Join(append([]string{inv.Name}, inv.Args...), " ")
	}
	return out
}

// Last returns the most recent invocation, or nil if none.
func (r *Recorder) Last() *Invocation {
	invs := r.Invocations()
	if len(invs) == 0 {
		return nil
	}
	return &invs[len(invs)-1]
}

// Count returns how many invocations matched name and the argument prefix.
func (r *Recorder) Count(name string, prefix ...string) int {
	n := 0
	for _, inv := range r.Invocations() {
		if inv.Name == name && len(prefix) <= len(inv.Args) && slices.Equal(prefix, inv.Args[:len(prefix)]) {
			n++
		}
	}
	return n
}

// AssertCommands fails the test unless the recorded commands equal want.
func (r *Recorder) AssertCommands(t testing.TB, want ...string) {
	t.Helper()
	got := r.Commands()
	if !slices.Equal(got, want) {
		t.Errorf("commands mismatch\ngot:\n  %s\nwant:\n  %s", strings.Join(got, "\n  "), strings.Join(want, "\n  "))
	}
}

// HasEnv reports whether inv's command environment contains key=value.
func (inv Invocation) HasEnv(key, value string) bool {
	return slices.Contains(inv.Cmd.Env, key+"="+value)
}

// HelperProcess is the body of each package's TestHelperProcess. It returns
// immediately unless invoked by a Recorder command.
func HelperProcess() {
	if os.Getenv(envWantHelper) != "1" {
		return
	}
	if out := os.Getenv(envStdout); out != "" {
		fmt.Fprint(os.Stdout, out)
	}
	if out := os.Getenv(envStderr); out != "" {
		fmt.Fprint(os.Stderr, out)
	}
	code := 0
	_, _ = fmt.Sscanf(os.Getenv(envExitCode), "%d", &code)
	os.Exit(code)
}
