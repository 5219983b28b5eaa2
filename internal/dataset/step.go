// SPDX-License-Identifier: MPL-2.0

package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/sleapenv/sleapenv/internal/env"
	"github.com/sleapenv/sleapenv/internal/issue"
	"github.com/sleapenv/sleapenv/internal/pipeline"
)

// FactPath records the provisioned dataset directory.
const FactPath = "dataset.path"

// ErrNotDirectory is returned when the destination or one of its parents is
// an existing non-directory.
var ErrNotDirectory = errors.New("dataset destination is not a directory")

// Step provisions the dataset into an environment.
type Step struct {
	spec     Spec
	fetchers Fetchers
}

// NewStep returns the dataset step. A nil fetchers map uses DefaultFetchers
// with default S3 options.
func NewStep(spec Spec, fetchers Fetchers) (*Step, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if fetchers == nil {
		fetchers = DefaultFetchers(S3Options{Secure: true})
	}
	return &Step{spec: spec, fetchers: fetchers}, nil
}

// Name implements pipeline.Step.
func (s *Step) Name() pipeline.StepName { return pipeline.StepDataset }

// Kind implements pipeline.Step.
func (s *Step) Kind() issue.Kind { return issue.KindProvisioning }

// Apply downloads, unpacks and cleans up the dataset archive.
func (s *Step) Apply(ctx context.Context, e *env.Environment) (err error) {
	archive := e.Path(s.spec.ArchivePath())
	dest := e.Path(s.spec.Dest)
	log := e.Logger()

	defer func() {
		if rmErr := os.Remove(archive); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			log.Warn("could not remove dataset archive", "path", s.spec.ArchivePath(), "err", rmErr)
			if err == nil {
				err = s.fail("remove dataset archive", s.spec.ArchivePath(), rmErr)
			}
		}
	}()

	log.Info("downloading dataset", "url", s.spec.URL, "to", s.spec.ArchivePath())
	if err := s.download(ctx, archive); err != nil {
		return s.fail("download dataset", s.spec.URL, err,
			"Check that the dataset URL is reachable from the build environment")
	}

	if err := ensureDir(dest); err != nil {
		return s.fail("create dataset directory", s.spec.Dest, err,
			"Remove the file occupying "+s.spec.Dest+" or choose another dataset.dest")
	}

	format, err := s.spec.Format()
	if err != nil {
		return s.fail("extract dataset", s.spec.ArchivePath(), err)
	}
	log.Info("extracting dataset", "archive", s.spec.ArchivePath(), "dest", s.spec.Dest)
	if err := Extract(archive, dest, format); err != nil {
		return s.fail("extract dataset", s.spec.ArchivePath(), err,
			"Check that the archive at "+s.spec.URL+" is complete and not corrupted")
	}

	e.Record(FactPath, s.spec.Dest)
	return nil
}

// Verify checks the extracted dataset against the expectations.
func (s *Step) Verify(_ context.Context, e *env.Environment) error {
	if err := Verify(e.Path(s.spec.Dest), s.spec.Expect); err != nil {
		return s.fail("verify dataset", s.spec.Dest, err,
			"Check that the archive contains the labeled data and videos")
	}
	return nil
}

func (s *Step) download(ctx context.Context, archive string) (err error) {
	fetcher, u, err := s.fetchers.For(s.spec.URL)
	if err != nil {
		return err
	}
	if err := ensureDir(filepath.Dir(archive)); err != nil {
		return err
	}
	f, err := os.Create(archive)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fetcher.Fetch(ctx, u, f)
}

// ensureDir creates dir and its parents. An existing non-directory anywhere on
// the path is an error.
func ensureDir(dir string) error {
	err := os.MkdirAll(dir, 0o755)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOTDIR) || errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}
	return err
}

func (s *Step) fail(op, resource string, err error, suggestions ...string) error {
	return issue.NewErrorContext().
		WithOperation(op).
		WithResource(resource).
		WithKind(issue.KindProvisioning).
		WithSuggestions(suggestions...).
		Wrap(err).
		BuildError()
}
