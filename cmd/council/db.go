package main

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/council/internal/config"
	"github.com/zulandar/council/internal/db"
)

func newDBCmd(opts *rootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Archive database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd(opts))
	cmd.AddCommand(newDBResetCmd(opts))
	return cmd
}

func newDBMigrateCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the archive schema",
		Long:  "Creates the archive database if needed and migrates all tables. Works whether or not archive.enabled is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, opts)
		},
	}
}

func runDBMigrate(cmd *cobra.Command, opts *rootOpts) error {
	out := cmd.OutOrStdout()
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	gormDB, err := db.Open(cfg.Archive)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	fmt.Fprintf(out, "Migrated %d tables in %s\n", len(db.AllModels()), archiveTarget(cfg.Archive))
	return nil
}

func newDBResetCmd(opts *rootOpts) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-create the archive database",
		Long: `Deletes every archived session. For sqlite the database file is removed;
for mysql the database is dropped. The schema is then migrated again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, opts, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, opts *rootOpts, skipConfirm bool) error {
	out := cmd.OutOrStdout()
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	target := archiveTarget(cfg.Archive)

	if !skipConfirm && !confirmReset(cmd, target) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	if err := dropArchive(cfg.Archive); err != nil {
		return err
	}
	fmt.Fprintf(out, "Dropped %s\n", target)

	gormDB, err := db.Open(cfg.Archive)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	fmt.Fprintln(out, "\nArchive reset successfully.")
	return nil
}

// dropArchive removes the archive database.
func dropArchive(cfg config.ArchiveConfig) error {
	if cfg.Driver != "mysql" {
		if err := os.Remove(cfg.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("db: remove %s: %w", cfg.Path, err)
		}
		return nil
	}
	adminDB, err := db.ConnectAdmin(cfg.MySQL)
	if err != nil {
		return err
	}
	if sqlDB, err := adminDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	return db.DropDatabase(adminDB, cfg.MySQL.Database)
}

// confirmReset prompts the user and returns true if they answer "y".
func confirmReset(cmd *cobra.Command, target string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "This will delete every archived session in %s. Continue? [y/N] ", target)
	reader := bufio.NewReader(cmd.InOrStdin())
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}
