// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// SkipWithoutContainers skips t in short mode or when testcontainers cannot
// reach a container engine.
func SkipWithoutContainers(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !containersAvailable() {
		t.Skip("skipping integration test: testcontainers provider not available")
	}
}

// containersAvailable recovers from provider panics on hosts without a
// reachable engine socket.
func containersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer func() { _ = provider.Close() }()
	return provider.Health(context.Background()) == nil
}
