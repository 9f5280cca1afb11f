// Copyright (c) AgentGov Authors.
// Licensed under the MIT License.

/*
Package testutil provides shared helpers for AgentGov tests.

The helpers cover context construction with automatic cleanup, polling
assertions for asynchronous conditions, and JSON round-trip conveniences.

Subpackages:

  - testutil/mocks: scripted collaborator doubles — Monitor (a
    penalty.MonitorSource serving per-agent readings) and Executor (a
    retraining.TaskExecutor with scripted outcomes), both with error
    injection.
  - testutil/fixtures: prebuilt metric readings — healthy, degraded, and
    failing agents, plus calm and degraded system status snapshots.

Usage:

	ctx := testutil.TestContext(t)
	monitor := mocks.NewMonitor()
	monitor.SetMetrics("agent-a", fixtures.FailingMetrics())
*/
package testutil
