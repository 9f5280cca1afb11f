// Copyright (c) AgentGov Authors.
// Licensed under the MIT License.

/*
Package migration manages the governance archive schema across PostgreSQL,
MySQL, and SQLite, built on golang-migrate.

# Overview

The archive keeps the durable governance trail: lifted penalties, their
appeals, and finished retraining sessions (see ArchiveTables). One SQL
migration set per dialect is embedded via embed.FS and applied through the
golang-migrate engine: forward migration, rollback, jumping to a version,
and forcing a version number after a dirty run. SQLite uses the same
pure-Go driver as the GORM archive, so no CGO is involved.

# Types

  - Migrator: applies the embedded schema (Up/Down/DownAll/Goto/Force/
    Version/Status/Close).
  - Dialect: postgres, mysql, or sqlite; parsed from the config driver
    string by ParseDialect.
  - Config: dialect, connection URL, bookkeeping table name.
  - CLI: a thin terminal layer over Migrator for the agentgov migrate
    subcommands.

Factory functions NewMigratorFromConfig, NewMigratorFromDatabaseConfig, and
NewMigratorFromURL build a migrator from the application configuration or a
raw URL.
*/
package migration
