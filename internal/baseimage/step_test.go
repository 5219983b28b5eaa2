// SPDX-License-Identifier: MPL-2.0

package baseimage

import (
	"context"
	"errors"
	"testing"

	"github.com/sleapenv/sleapenv/internal/env"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/pipeline"
	"github.com/sleapenv/sleapenv/internal/testutil/execmock"
)

var testProbe = []string{"python3", "-c", "import tensorflow; print(tensorflow.__version__)"}

func TestHelperProcess(t *testing.T) { execmock.HelperProcess() }

func newStep(t *testing.T, constraint string) *Step {
	t.Helper()

	spec := Spec{
		Registry:  "tensorflow/tensorflow",
		Tag:       "2.6.3-gpu",
		Framework: Framework{Name: "tensorflow", Version: "2.6.3"},
	}
	s, err := NewStep(spec, constraint, testProbe)
	if err != nil {
		t.Fatalf("NewStep() error = %v", err)
	}
	return s
}

func TestStep_Identity(t *testing.T) {
	t.Parallel()

	s := newStep(t, "")
	if s.Name() != pipeline.StepBase {
		t.Errorf("Name() = %q", s.Name())
	}
	if s.Kind() != issue.KindResolution {
		t.Errorf("Kind() = %q", s.Kind())
	}
}

func TestStep_Apply(t *testing.T) {
	t.Parallel()

	rec := execmock.New().Stdout("2021-11-02 warning: cuda\n2.6.3\n", "python3", "-c")
	e := env.New(t.TempDir(), env.WithExecCommand(rec.CommandFunc(t)))

	if err := newStep(t, ">=2.6.0, <2.7.0").Apply(context.Background(), e); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if v, ok := e.Fact(FactFrameworkVersion); !ok || v != "2.6.3" {
		t.Errorf("Fact(%s) = %q, %v", FactFrameworkVersion, v, ok)
	}
	rec.AssertCommands(t, "python3 -c import tensorflow; print(tensorflow.__version__)")
}

func TestStep_ApplyConstraintViolation(t *testing.T) {
	t.Parallel()

	rec := execmock.New().Stdout("2.11.0\n", "python3")
	e := env.New(t.TempDir(), env.WithExecCommand(rec.CommandFunc(t)))

	err := newStep(t, ">=2.6.0, <2.7.0").Apply(context.Background(), e)
	if !errors.Is(err, ErrFrameworkMismatch) {
		t.Fatalf("Apply() error = %v, want ErrFrameworkMismatch", err)
	}
	if issue.KindOf(err) != issue.KindResolution {
		t.Errorf("KindOf() = %q, want resolution", issue.KindOf(err))
	}
	if _, ok := e.Fact(FactFrameworkVersion); ok {
		t.Error("version should not be recorded on failure")
	}
}

func TestStep_ApplyProbeFails(t *testing.T) {
	t.Parallel()

	rec := execmock.New().Fail(1, "ModuleNotFoundError: No module named 'tensorflow'", "python3")
	e := env.New(t.TempDir(), env.WithExecCommand(rec.CommandFunc(t)))

	err := newStep(t, "").Apply(context.Background(), e)
	var cmdErr *env.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Apply() error = %v, want CommandError", err)
	}
	if cmdErr.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", cmdErr.ExitCode)
	}
}

func TestNewStep_Rejects(t *testing.T) {
	t.Parallel()

	if _, err := NewStep(Spec{}, "", nil); !errors.Is(err, ErrEmptyProbe) {
		t.Errorf("NewStep(nil probe) error = %v, want ErrEmptyProbe", err)
	}
	if _, err := NewStep(Spec{}, "bogus", testProbe); err == nil {
		t.Error("NewStep(bad constraint) should fail")
	}
}
