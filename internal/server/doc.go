// Copyright (c) AgentGov Authors.
// Licensed under the MIT License.

// Package server manages the HTTP/HTTPS server lifecycle: non-blocking
// start, graceful shutdown within a timeout, and SIGINT/SIGTERM handling
// via WaitForShutdown. Serve errors surface on an asynchronous channel so a
// crashed listener is observed rather than lost.
package server
