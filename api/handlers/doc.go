// Copyright (c) AgentGov Authors.
// Licensed under the MIT License.

/*
Package handlers implements the request handlers of the AgentGov HTTP API.

# Overview

All handlers follow the standard net/http interface and share one response
envelope: success + data + error + timestamp. Governance operations are
served by GovernanceHandler over narrow interfaces, so the handlers test
against fakes rather than a fully wired manager.

# Types

  - GovernanceHandler — dashboard, penalty status, appeal filing and review,
    archived history
  - HealthHandler     — /health, /healthz, /ready, /version with pluggable
    checks (database, Redis)
  - Response          — the shared JSON envelope
  - ErrorInfo         — structured error info with code and retryable flag
  - ResponseWriter    — wraps http.ResponseWriter to capture the status code

WriteSuccess, WriteError, and WriteJSON produce the envelope; error codes
map to HTTP status automatically. DecodeJSONBody enforces strict JSON with
unknown fields rejected.
*/
package handlers
