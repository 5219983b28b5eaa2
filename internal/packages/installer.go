// SPDX-License-Identifier: MPL-2.0

package packages

import (
	"context"
	"errors"
	"strings"

	"github.com/sleapenv/sleapenv/internal/env"
)

type (
	// Manager is a native package manager driven inside an environment.
	Manager interface {
		Name() string
		// Installed reports whether pkg is already installed.
		Installed(ctx context.Context, e *env.Environment, pkg string) (bool, error)
		// Refresh updates the package index.
		Refresh(ctx context.Context, e *env.Environment) error
		// Install installs all of pkgs in one transaction.
		Install(ctx context.Context, e *env.Environment, pkgs []string) error
	}

	// Apt drives dpkg and apt-get.
	Apt struct{}

	// Installer installs a Set through a Manager.
	Installer struct {
		manager Manager
	}
)

// aptEnv keeps apt-get from prompting during unattended builds.
var aptEnv = map[string]string{"DEBIAN_FRONTEND": "noninteractive"}

// Name implements Manager.
func (Apt) Name() string { return "apt" }

// Installed implements Manager using dpkg-query. A package unknown to dpkg is
// reported as not installed.
func (Apt) Installed(ctx context.Context, e *env.Environment, pkg string) (bool, error) {
	out, err := e.Output(ctx, "dpkg-query", "-W", "-f=${Status}", pkg)
	if err != nil {
		var cmdErr *env.CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 {
			return false, nil
		}
		return false, err
	}
	return strings.HasSuffix(strings.TrimSpace(out), " installed"), nil
}

// Refresh implements Manager.
func (Apt) Refresh(ctx context.Context, e *env.Environment) error {
	return e.RunEnv(ctx, aptEnv, "apt-get", "update")
}

// Install implements Manager.
func (Apt) Install(ctx context.Context, e *env.Environment, pkgs []string) error {
	args := append([]string{"install", "-y", "--no-install-recommends"}, pkgs...)
	return e.RunEnv(ctx, aptEnv, "apt-get", args...)
}

// NewInstaller returns an Installer. A nil manager means Apt.
func NewInstaller(m Manager) *Installer {
	if m == nil {
		m = Apt{}
	}
	return &Installer{manager: m}
}

// Missing returns the packages of set that are not installed, in set order.
func (i *Installer) Missing(ctx context.Context, e *env.Environment, set Set) ([]string, error) {
	var missing []string
	for _, pkg := range set.Names() {
		ok, err := i.manager.Installed(ctx, e, pkg)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, pkg)
		}
	}
	return missing, nil
}

// Install makes every package of set present. It reports whether anything was
// installed; an environment that already has them all is not modified.
// A failed install is not rolled back.
func (i *Installer) Install(ctx context.Context, e *env.Environment, set Set) (bool, error) {
	missing, err := i.Missing(ctx, e, set)
	if err != nil {
		return false, err
	}
	if len(missing) == 0 {
		return false, nil
	}

	e.Logger().Info("installing native packages", "manager", i.manager.Name(), "packages", strings.Join(missing, " "))
	if err := i.manager.Refresh(ctx, e); err != nil {
		return false, err
	}
	// The full set, required first.
	if err := i.manager.Install(ctx, e, set.Names()); err != nil {
		return false, err
	}
	return true, nil
}
