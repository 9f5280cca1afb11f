// Copyright (c) AgentGov Authors.
// Licensed under the MIT License.

/*
Package config loads the AgentGov configuration from defaults, a YAML file,
and environment variables, in that order of precedence.

# Usage

	cfg, err := config.NewLoader().
	    WithConfigPath("config.yaml").
	    Load()

Environment variables use the AGENTGOV prefix and follow the struct layout:
AGENTGOV_SERVER_HTTP_PORT, AGENTGOV_DATABASE_DRIVER, AGENTGOV_JWT_SECRET.
Environment overrides cover the infrastructure sections (server, log,
database, redis, telemetry, jwt); the governance policy sections are
YAML-only and default to the owning packages' DefaultConfig values.
*/
package config
