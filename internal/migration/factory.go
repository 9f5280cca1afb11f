package migration

import (
	"fmt"

	appconfig "github.com/BaSui01/agentgov/config"
)

// NewMigratorFromConfig builds an archive migrator from the loaded
// application configuration.
func NewMigratorFromConfig(cfg *appconfig.Config) (*Migrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig builds an archive migrator from the
// database section of the configuration. For SQLite the Name field is the
// database file path.
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig) (*Migrator, error) {
	dialect, err := ParseDialect(dbCfg.Driver)
	if err != nil {
		return nil, err
	}

	var url string
	switch dialect {
	case DialectSQLite:
		url = BuildURL(dialect, "", 0, dbCfg.Name, "", "", "")
	default:
		url = BuildURL(dialect, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode)
	}

	return NewMigrator(Config{Dialect: dialect, URL: url})
}

// NewMigratorFromURL builds an archive migrator from a driver name and a
// raw connection URL, bypassing the config file.
func NewMigratorFromURL(driver, url string) (*Migrator, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	return NewMigrator(Config{Dialect: dialect, URL: url})
}
