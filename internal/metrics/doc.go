// Copyright (c) AgentGov Authors.
// Licensed under the MIT License.

/*
Package metrics provides Prometheus metrics for the governance loop,
covering evaluation, penalty, appeal, retraining, throttle, eventing, and
HTTP dimensions.

# Overview

The package registers all metrics through a single Collector using promauto,
so no manual Registry management is needed. Metrics are isolated per
namespace and grouped with multi-dimensional labels for dashboarding and
alerting.

# Core types

  - Collector: holds the Counter, Histogram, and Gauge vectors, grouped by
    governance domain, with one Record* method per occurrence kind.

# Capabilities

  - Evaluation metrics: evaluation count and duration by resulting action,
    trigger counts by kind.
  - Penalty metrics: applied/lifted counters, an active-penalty gauge by
    level, escalation counts by policy mode.
  - Appeal metrics: filed counts by source (manual/anomaly), review counts
    by decision.
  - Retraining metrics: session transitions by status.
  - Transport metrics: throttle denials by agent, event publish failures,
    archive operations by entity and status.
  - HTTP metrics: request totals and latency by method/path, status codes
    bucketed as 2xx/3xx/4xx/5xx.
*/
package metrics
