// Copyright (c) AgentGov Authors.
// Licensed under the MIT License.

/*
Package main is the AgentGov service entry point.

cmd/agentgov is the executable shell around the governance core. It loads
YAML configuration with environment overrides, sets up structured logging
(zap), OpenTelemetry export, and Prometheus scraping, then assembles the
penalty system with its collaborators and serves the governance API.

Subcommands:

  - serve    — start the governance service (HTTP API + metrics port)
  - migrate  — manage the archive database schema (up, down, status, ...)
  - version  — print build metadata
  - health   — probe a running instance's /health endpoint

The HTTP middleware chain is Recovery, RequestID, SecurityHeaders,
RequestLogger, Metrics, optional OTel tracing, per-IP rate limiting
(golang.org/x/time/rate), and optional JWT bearer authentication
(HS256/RS256). Version, BuildTime, and GitCommit are injected via ldflags.

Shutdown is graceful: on SIGINT/SIGTERM the HTTP servers drain, the
evaluation scheduler and expiry sweep stop, the event dispatcher flushes
its queue, and the archive connection closes.
*/
package main
