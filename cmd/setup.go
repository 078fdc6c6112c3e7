package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/plexsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes config.toml from the embedded template.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err == nil {
		r.logger.Info("config file already exists", "path", r.configPath)
		return r.writePlain("Config already exists at %s\n", r.configPath)
	}

	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)

	r.writePlain("✓ Config written to %s\n", r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set plex.base_url and plex.token\n")
	r.writePlain("2. Set trakt.client_id and trakt.client_secret\n")
	r.writePlain("3. Run 'plexsync auth login' to authorize Trakt\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	path := r.config.ResolvePath(r.config.Database.Path)
	r.logger.Info("initializing database", "path", path)

	db, _, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	if cmd.Bool("reset") {
		if err := shared.RollbackMigration(db); err != nil {
			return err
		}
		if err := shared.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		r.logger.Warn("sync history cleared", "path", path)
	}

	r.logger.Infof("setup complete for database: %v", path)
	return r.writePlain("✓ Database ready at %s\n", path)
}
