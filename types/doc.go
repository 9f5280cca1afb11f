// Copyright (c) AgentGov Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type definitions for the agent governance
core.

# Overview

types is the lowest-level package with no internal dependencies. It carries
the vocabulary every other package speaks: the agent taxonomy of the fleet
platform, the inbound monitoring contract, and the structured error system
used by the governance loop and its API surface.

# Core types

  - AgentType / AgentStatus / TaskPriority — fleet taxonomy; AgentType is the
    grouping key for bias detection
  - AgentMetrics / ResourceUsage — per-agent performance snapshot delivered by
    the monitoring collaborator each evaluation cycle
  - SystemStatus / AgentState — system-wide and per-agent circumstance
    readings used for context analysis and fairness offsets
  - Error / ErrorCode — structured errors with HTTP status and retryable
    markers, mapped by the API layer

# Capabilities

  - Context propagation: WithTraceID / WithRequestID / WithAgentID
  - Error helpers: IsRetryable / GetErrorCode
*/
package types
