// SPDX-License-Identifier: MPL-2.0

package dataset

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	// FormatZip is a zip archive.
	FormatZip Format = "zip"
	// FormatTarGz is a gzip-compressed tar archive.
	FormatTarGz Format = "tar.gz"
)

var (
	// ErrUnsupportedFormat is returned for URLs without a known archive extension.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrInvalidSpec is the sentinel error wrapped by InvalidSpecError.
	ErrInvalidSpec = errors.New("invalid dataset spec")
)

// archiveExts maps URL suffixes to formats, longest first.
var archiveExts = []struct {
	ext    string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTarGz},
	{".zip", FormatZip},
}

type (
	// Format identifies an archive encoding.
	Format string

	// Spec describes where the dataset comes from and where it is unpacked.
	Spec struct {
		URL  string `yaml:"url"`
		Dest string `yaml:"dest"`
		// Expect lists doublestar patterns, relative to Dest, that must each
		// match at least one extracted file.
		Expect []string `yaml:"expect,omitempty"`
	}

	// InvalidSpecError is returned when a Spec cannot be provisioned.
	InvalidSpecError struct {
		Spec   Spec
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid dataset %s -> %s: %s", e.Spec.URL, e.Spec.Dest, e.Reason)
}

// Unwrap returns ErrInvalidSpec for errors.Is() compatibility.
func (e *InvalidSpecError) Unwrap() error { return ErrInvalidSpec }

// Validate checks the URL scheme, archive extension and destination.
func (s Spec) Validate() error {
	u, err := url.Parse(s.URL)
	if err != nil || s.URL == "" {
		return &InvalidSpecError{Spec: s, Reason: "url must be an absolute URL"}
	}
	switch u.Scheme {
	case "http", "https", "s3", "file":
	default:
		return &InvalidSpecError{Spec: s, Reason: fmt.Sprintf("unsupported url scheme %q (valid: http, https, s3, file)", u.Scheme)}
	}
	if _, err := s.Format(); err != nil {
		return &InvalidSpecError{Spec: s, Reason: err.Error()}
	}
	if !path.IsAbs(s.Dest) || path.Clean(s.Dest) == "/" {
		return &InvalidSpecError{Spec: s, Reason: "dest must be an absolute path below /"}
	}
	return nil
}

// Format returns the archive format from the URL path's extension.
func (s Spec) Format() (Format, error) {
	_, format, err := s.ext()
	return format, err
}

// ArchivePath is where the archive is downloaded: the destination path plus
// the archive extension, e.g. /root/dataset.zip for /root/dataset.
func (s Spec) ArchivePath() string {
	ext, _, err := s.ext()
	if err != nil {
		ext = ".archive"
	}
	return path.Clean(s.Dest) + ext
}

func (s Spec) ext() (string, Format, error) {
	p := s.URL
	if u, err := url.Parse(s.URL); err == nil {
		p = u.Path
	}
	lower := strings.ToLower(p)
	for _, a := range archiveExts {
		if strings.HasSuffix(lower, a.ext) {
			return a.ext, a.format, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path.Base(p))
}
