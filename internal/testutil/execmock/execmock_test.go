// SPDX-License-Identifier: MPL-2.0

package execmock

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestHelperProcess(t *testing.T) { HelperProcess() }

func TestRecorder_LongestPrefixWins(t *testing.T) {
	r := New().
		Stdout("generic", "apt-get").
		Fail(100, "E: Unable to locate package", "apt-get", "install")

	run := r.CommandFunc(t)

	out, err := run(context.Background(), "apt-get", "update").Output()
	if err != nil {
		t.Fatalf("apt-get update error = %v", err)
	}
	if string(out) != "generic" {
		t.Errorf("stdout = %q, want %q", out, "generic")
	}

	var stderr strings.Builder
	cmd := run(context.Background(), "apt-get", "install", "-y", "libgl1-mesa-glx")
	cmd.Stderr = &stderr
	err = cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 100 {
		t.Fatalf("expected exit 100, got %v", err)
	}
	if !strings.Contains(stderr.String(), "Unable to locate") {
		t.Errorf("stderr = %q", stderr.String())
	}

	r.AssertCommands(t, "apt-get update", "apt-get install -y libgl1-mesa-glx")
	if n := r.Count("apt-get", "install"); n != 1 {
		t.Errorf("Count(install) = %d, want 1", n)
	}
}

func TestRecorder_UnmatchedSucceeds(t *testing.T) {
	r := New()
	if err := r.CommandFunc(t)(context.Background(), "true").Run(); err != nil {
		t.Fatalf("unmatched command should succeed, got %v", err)
	}
	if r.Last() == nil || r.Last().Name != "true" {
		t.Errorf("Last() = %+v", r.Last())
	}
}
