// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracing wraps OpenTelemetry so the scheduler can trace each
// cycle without importing the SDK directly.
//
// Until [Install] (or [InstallStdout]) registers a provider, the global
// OpenTelemetry tracer is a no-op and [StartSpan] costs almost nothing.
// The daemon installs the stdout exporter when tracing.stdout is set.
package tracing
