// SPDX-License-Identifier: MPL-2.0

package toolkit

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// KindLocal installs from a source tree copied into the environment.
	KindLocal Kind = "local"
	// KindRemote installs straight from a git repository.
	KindRemote Kind = "remote"

	// DefaultInstallPath is the fixed path a local tree is placed at.
	DefaultInstallPath = "/sleap"
	// DefaultRef is used for remote sources that do not name a ref.
	DefaultRef = "main"
)

var (
	// ErrInvalidKind is the sentinel error wrapped by InvalidKindError.
	ErrInvalidKind = errors.New("invalid toolkit source kind")
	// ErrInvalidSource is the sentinel error wrapped by InvalidSourceError.
	ErrInvalidSource = errors.New("invalid toolkit source")
)

type (
	// Kind discriminates the toolkit source variants.
	Kind string

	// Source is where the toolkit comes from. Kind selects which fields apply:
	// Path for local sources, URL and Ref for remote ones. Commit is filled in
	// by resolution.
	Source struct {
		Kind   Kind   `yaml:"kind"`
		Path   string `yaml:"path,omitempty"`
		URL    string `yaml:"url,omitempty"`
		Ref    string `yaml:"ref,omitempty"`
		Commit string `yaml:"commit,omitempty"`
	}

	// Settings control how the toolkit is installed and checked.
	Settings struct {
		Python      string   `yaml:"python"`
		InstallPath string   `yaml:"install_path"`
		EntryPoints []string `yaml:"entry_points,omitempty"`
		Ignore      []string `yaml:"ignore,omitempty"`
	}

	// InvalidKindError is returned when a Kind is not local or remote.
	InvalidKindError struct {
		Value Kind
	}

	// InvalidSourceError is returned when a Source mixes or lacks variant fields.
	InvalidSourceError struct {
		Source Source
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid toolkit source kind %q (valid: local, remote)", e.Value)
}

// Unwrap returns ErrInvalidKind for errors.Is() compatibility.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

// Error implements the error interface.
func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("invalid %s toolkit source: %s", e.Source.Kind, e.Reason)
}

// Unwrap returns ErrInvalidSource for errors.Is() compatibility.
func (e *InvalidSourceError) Unwrap() error { return ErrInvalidSource }

// Validate returns an error if the Kind is not one of the defined kinds.
func (k Kind) Validate() error {
	switch k {
	case KindLocal, KindRemote:
		return nil
	default:
		return &InvalidKindError{Value: k}
	}
}

// String returns the string representation of the Kind.
func (k Kind) String() string { return string(k) }

// Local returns a local source for path.
func Local(path string) Source { return Source{Kind: KindLocal, Path: path} }

// Remote returns a remote source for url at ref. An empty ref means DefaultRef.
func Remote(url, ref string) Source {
	if ref == "" {
		ref = DefaultRef
	}
	return Source{Kind: KindRemote, URL: url, Ref: ref}
}

// Validate checks that exactly one source variant is populated.
func (s Source) Validate() error {
	if err := s.Kind.Validate(); err != nil {
		return err
	}

	switch s.Kind {
	case KindLocal:
		if strings.TrimSpace(s.Path) == "" {
			return &InvalidSourceError{Source: s, Reason: "path is required"}
		}
		if s.URL != "" || s.Ref != "" || s.Commit != "" {
			return &InvalidSourceError{Source: s, Reason: "url, ref and commit apply to remote sources only"}
		}
	case KindRemote:
		if s.Path != "" {
			return &InvalidSourceError{Source: s, Reason: "path applies to local sources only"}
		}
		if err := validateRepoURL(s.URL); err != nil {
			return &InvalidSourceError{Source: s, Reason: err.Error()}
		}
		if strings.TrimSpace(s.Ref) == "" {
			return &InvalidSourceError{Source: s, Reason: "ref is required"}
		}
		if strings.ContainsAny(s.Ref, " @#") {
			return &InvalidSourceError{Source: s, Reason: fmt.Sprintf("ref %q contains ' ', '@' or '#'", s.Ref)}
		}
	}
	return nil
}

// PipSpec returns the requirement pip installs for a remote source, pinned to
// the resolved commit when known.
func (s Source) PipSpec() string {
	ref := s.Ref
	if s.Commit != "" {
		ref = s.Commit
	}
	return "git+" + s.URL + "@" + ref
}

// String describes the source for logs and errors.
func (s Source) String() string {
	if s.Kind == KindRemote {
		if s.Commit != "" {
			return s.URL + "@" + s.Ref + " (" + shortHash(s.Commit) + ")"
		}
		return s.URL + "@" + s.Ref
	}
	return s.Path
}

func validateRepoURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("url is required")
	}
	if strings.HasPrefix(raw, "git@") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "https", "http", "ssh", "git", "file":
	default:
		return fmt.Errorf("url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" && u.Scheme != "file" {
		return fmt.Errorf("url %q: missing host", raw)
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// WithDefaults fills unset settings.
func (s Settings) WithDefaults() Settings {
	if s.Python == "" {
		s.Python = "python3"
	}
	if s.InstallPath == "" {
		s.InstallPath = DefaultInstallPath
	}
	return s
}
