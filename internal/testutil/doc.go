// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include environment variable management (MustSetenv, MustUnsetenv),
// filesystem fixtures (MustMkdirAll, MustWriteFile, WriteZip, WriteTarGz), and
// container integration gating (SkipWithoutContainers, ContainerSemaphore).
package testutil
