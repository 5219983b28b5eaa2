// SPDX-License-Identifier: MPL-2.0

package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultS3Endpoint is used for s3:// URLs when no endpoint is configured.
const DefaultS3Endpoint = "s3.amazonaws.com"

var (
	// ErrUnsupportedScheme is returned when no fetcher handles a URL scheme.
	ErrUnsupportedScheme = errors.New("unsupported dataset url scheme")
	// ErrDownload is the sentinel error wrapped by DownloadError.
	ErrDownload = errors.New("dataset download failed")
)

type (
	// Fetcher streams the object at u into w.
	Fetcher interface {
		Fetch(ctx context.Context, u *url.URL, w io.Writer) error
	}

	// Fetchers maps URL schemes to fetchers.
	Fetchers map[string]Fetcher

	// HTTPFetcher downloads over HTTP(S).
	HTTPFetcher struct {
		Client    *http.Client
		UserAgent string
	}

	// FileFetcher copies from the local filesystem, for mirrored datasets.
	FileFetcher struct{}

	// S3Options configure the s3:// fetcher.
	S3Options struct {
		Endpoint string
		Region   string
		Secure   bool
		// Creds overrides the default chain of AWS and MinIO environment
		// variables and the shared credentials file.
		Creds *credentials.Credentials
	}

	// S3Fetcher downloads s3://bucket/key objects with the MinIO client.
	S3Fetcher struct {
		opts S3Options
	}

	// DownloadError reports a failed download with the remote status when known.
	DownloadError struct {
		URL        string
		StatusCode int
		Err        error
	}
)

// Error implements the error interface.
func (e *DownloadError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("download %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("download %s: status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("download %s: %v", e.URL, e.Err)
	}
}

// Unwrap returns the cause and ErrDownload.
func (e *DownloadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDownload}
	}
	return []error{ErrDownload, e.Err}
}

// responseHeaderTimeout bounds the wait for a server to start answering. The
// body transfer is bounded only by the caller's context.
const responseHeaderTimeout = 2 * time.Minute

// newHTTPClient returns a client without an overall deadline, so a slow but
// healthy download of a large archive runs to completion.
func newHTTPClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = responseHeaderTimeout
	return &http.Client{Transport: tr}
}

// DefaultFetchers returns fetchers for http, https, s3 and file URLs.
func DefaultFetchers(s3 S3Options) Fetchers {
	httpFetcher := &HTTPFetcher{Client: newHTTPClient()}
	return Fetchers{
		"http":  httpFetcher,
		"https": httpFetcher,
		"s3":    NewS3Fetcher(s3),
		"file":  FileFetcher{},
	}
}

// For returns the fetcher for rawURL's scheme.
func (f Fetchers) For(rawURL string) (Fetcher, *url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	fetcher, ok := f[u.Scheme]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return fetcher, u, nil
}

// Fetch implements Fetcher.
func (h *HTTPFetcher) Fetch(ctx context.Context, u *url.URL, w io.Writer) error {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &DownloadError{URL: u.Redacted(), Err: err}
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &DownloadError{URL: u.Redacted(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DownloadError{URL: u.Redacted(), StatusCode: resp.StatusCode}
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return &DownloadError{URL: u.Redacted(), StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(ctx context.Context, u *url.URL, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(u.Path)
	if err != nil {
		return &DownloadError{URL: u.String(), Err: err}
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(w, f); err != nil {
		return &DownloadError{URL: u.String(), Err: err}
	}
	return nil
}

// NewS3Fetcher returns an S3Fetcher.
func NewS3Fetcher(opts S3Options) *S3Fetcher {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultS3Endpoint
	}
	if opts.Creds == nil {
		opts.Creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
		})
	}
	return &S3Fetcher{opts: opts}
}

// Fetch implements Fetcher for s3://bucket/key.
func (s *S3Fetcher) Fetch(ctx context.Context, u *url.URL, w io.Writer) error {
	bucket, key, err := parseS3URL(u)
	if err != nil {
		return &DownloadError{URL: u.String(), Err: err}
	}

	client, err := minio.New(s.opts.Endpoint, &minio.Options{
		Creds:  s.opts.Creds,
		Secure: s.opts.Secure,
		Region: s.opts.Region,
	})
	if err != nil {
		return &DownloadError{URL: u.String(), Err: err}
	}

	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return s3Error(u, err)
	}
	defer func() { _ = obj.Close() }()

	if _, err := io.Copy(w, obj); err != nil {
		return s3Error(u, err)
	}
	return nil
}

func s3Error(u *url.URL, err error) error {
	resp := minio.ToErrorResponse(err)
	return &DownloadError{URL: u.String(), StatusCode: resp.StatusCode, Err: err}
}

func parseS3URL(u *url.URL) (bucket, key string, err error) {
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url %q must be s3://bucket/key", u.String())
	}
	return bucket, key, nil
}
