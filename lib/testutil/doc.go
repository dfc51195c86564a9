// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the
// select-with-timeout pattern so tests of the scheduler loop and the
// control socket never block forever on a broken goroutine. They are the
// only place in the test suite that uses a real wall-clock timeout;
// everything else runs on clock.Fake.
//
// [SocketDir] returns a short directory under /tmp for unix sockets,
// since sun_path is limited to 108 bytes and t.TempDir() paths can
// exceed it.
//
// [Logger] returns a logger that only surfaces errors, so passing tests
// stay quiet.
//
// All helpers fail the test with t.Fatalf instead of returning errors.
package testutil
