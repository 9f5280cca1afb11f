// Copyright (c) AgentGov Authors.
// Licensed under the MIT License.

/*
Package store persists the governance audit trail: lifted penalties, filed
and reviewed appeals, and finished retraining sessions.

# Overview

The penalty manager keeps only a bounded in-memory history per agent; the
archive is the durable, unbounded record. Archiving is fire-and-forget from
the manager's point of view: the Archive implements penalty.Archiver, and a
write failure is reported as an error for the caller to log, never to block
the governance loop on.

Each archived object is stored twice in one row: a handful of indexed
columns for querying (agent, level, outcome, timestamps) and the full JSON
snapshot in a payload column. Queries filter on the columns and decode the
payload, so the row schema never has to chase the domain structs
field-for-field.

# Drivers

Open selects the GORM dialector from the configured driver: postgres, mysql,
or sqlite. New accepts an already-open *gorm.DB for callers that manage the
connection themselves, which is also how the tests run against an in-memory
database.
*/
package store
