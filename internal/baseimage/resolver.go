// SPDX-License-Identifier: MPL-2.0

package baseimage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sleapenv/sleapenv/internal/issue"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

var (
	// ErrImageNotFound is returned when the registry has no manifest for the reference.
	ErrImageNotFound = errors.New("base image not found")
	// ErrRegistryAuth is returned when the registry rejects the credentials.
	ErrRegistryAuth = errors.New("registry authentication failed")
	// ErrInvalidReference is returned for references the registry client cannot parse.
	ErrInvalidReference = errors.New("invalid image reference")
	// ErrRegistryUnreachable is returned for network failures talking to the registry.
	ErrRegistryUnreachable = errors.New("registry unreachable")
)

type (
	// Resolver pins base image tags to manifest digests.
	Resolver struct {
		insecure bool
		offline  bool
		remote   []remote.Option
	}

	// ResolverOption configures a Resolver.
	ResolverOption func(*Resolver)
)

// WithInsecure allows plain-HTTP registries.
func WithInsecure(insecure bool) ResolverOption {
	return func(r *Resolver) { r.insecure = insecure }
}

// WithOffline skips the registry and returns specs unpinned.
func WithOffline(offline bool) ResolverOption {
	return func(r *Resolver) { r.offline = offline }
}

// WithRemoteOptions appends options passed to every registry request.
func WithRemoteOptions(opts ...remote.Option) ResolverOption {
	return func(r *Resolver) { r.remote = append(r.remote, opts...) }
}

// NewResolver returns a Resolver that authenticates with the default keychain.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns spec with Digest set to the registry's manifest digest.
// A spec that already carries a digest is verified against the registry and
// kept as is.
func (r *Resolver) Resolve(ctx context.Context, spec Spec) (Spec, error) {
	if err := spec.Validate(); err != nil {
		return Spec{}, resolutionError(spec, err)
	}
	if r.offline {
		return spec, nil
	}

	var nameOpts []name.Option
	if r.insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}
	refStr := spec.Reference()
	if spec.Digest != "" {
		refStr = spec.Registry + "@" + spec.Digest
	}
	ref, err := name.ParseReference(refStr, nameOpts...)
	if err != nil {
		return Spec{}, resolutionError(spec, classify(err))
	}

	opts := append([]remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	}, r.remote...)

	desc, err := remote.Head(ref, opts...)
	if err != nil {
		return Spec{}, resolutionError(spec, classify(err))
	}

	resolved := spec
	resolved.Digest = desc.Digest.String()
	return resolved, nil
}

// classify wraps a registry client error with the sentinel describing its cause.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var badName *name.ErrBadName
	if errors.As(err, &badName) {
		return fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}

	var transportErr *transport.Error
	if errors.As(err, &transportErr) {
		switch transportErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrImageNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrRegistryAuth, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrRegistryUnreachable, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "manifest unknown"), strings.Contains(msg, "not found"):
		return fmt.Errorf("%w: %w", ErrImageNotFound, err)
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "denied"):
		return fmt.Errorf("%w: %w", ErrRegistryAuth, err)
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return fmt.Errorf("%w: %w", ErrRegistryUnreachable, err)
	}
	return err
}

func resolutionError(spec Spec, err error) error {
	ec := issue.NewErrorContext().
		WithOperation("resolve base image").
		WithResource(spec.Reference()).
		WithKind(issue.KindResolution)

	switch {
	case errors.Is(err, ErrImageNotFound):
		ec.WithSuggestions(
			"Check that the tag exists in "+spec.Registry,
			"Set variants.<name>.base.tag to a published tag",
		)
	case errors.Is(err, ErrRegistryAuth):
		ec.WithSuggestion("Log in to the registry (docker login " + registryHost(spec.Registry) + ")")
	case errors.Is(err, ErrRegistryUnreachable):
		ec.WithSuggestions(
			"Check network connectivity to "+registryHost(spec.Registry),
			"Use --offline to build from the unpinned tag",
		)
	case errors.Is(err, ErrInvalidReference), errors.Is(err, ErrInvalidSpec):
		ec.WithSuggestion("Use a reference of the form registry/repository and a plain tag")
	}
	return ec.Wrap(err).BuildError()
}

func registryHost(repo string) string {
	host, _, found := strings.Cut(repo, "/")
	if !found || (!strings.ContainsAny(host, ".:") && host != "localhost") {
		return name.DefaultRegistry
	}
	return host
}
