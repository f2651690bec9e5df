package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-registry/internal/logging"
	"github.com/tendant/simple-registry/pkg/registry"
	"github.com/tendant/simple-registry/pkg/registry/auth"
	"github.com/tendant/simple-registry/pkg/registry/config"
	repopg "github.com/tendant/simple-registry/pkg/registry/repo/postgres"
	reposqlite "github.com/tendant/simple-registry/pkg/registry/repo/sqlite"
)

// adminIdentity is the actor recorded for CLI operations.
var adminIdentity = &registry.Identity{Name: "registry-admin", IsAdmin: true}

// NewUnpublishCommand creates the unpublish command
func NewUnpublishCommand() *cobra.Command {
	var keepTarballs bool

	cmd := &cobra.Command{
		Use:   "unpublish <package>",
		Short: "Remove every version of a package",
		Long: `Remove every version record of a package and, unless --keep-tarballs is
given or UNPUBLISH_REMOVE_TARBALL is false, delete its tarballs. Tarballs that
cannot be deleted are reported but do not fail the command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if keepTarballs {
				cfg.SetRemoveTarballOnUnpublish(false)
			}

			level, _ := cmd.Flags().GetString("log-level")
			rt, err := cfg.BuildService(cmd.Context(), logging.New(cmd.ErrOrStderr(), level))
			if err != nil {
				return err
			}
			defer rt.Close()

			outcome, err := rt.Service.Unpublish(cmd.Context(), adminIdentity, args[0])
			if err != nil {
				return fmt.Errorf("unpublish failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Unpublished %s (%d versions)\n", outcome.Name, outcome.VersionsRemoved)
			if !outcome.BlobCleanupAttempted {
				fmt.Fprintln(out, "Tarballs kept")
				return nil
			}
			fmt.Fprintf(out, "Tarballs removed: %d, skipped: %d\n", outcome.BlobsRemoved, outcome.BlobsSkipped)
			for _, failure := range outcome.BlobCleanupErrors {
				fmt.Fprintf(out, "  not removed: %s (%v)\n", failure.Key, failure.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepTarballs, "keep-tarballs", false, "leave tarballs in the blob store")

	return cmd
}

// NewTokenCommand creates the token command
func NewTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user>",
		Short: "Mint a Bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			token, err := cfg.BuildResolver().IssueToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

// NewHashPasswordCommand creates the hash-password command
func NewHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash of a password for the USERS setting",
		Long:  `Print the bcrypt hash of a password. The password is read from stdin when not given as an argument.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the metadata repository migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := migrate(cmd, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", cfg.DatabaseType)
			return nil
		},
	}
}

func migrate(cmd *cobra.Command, cfg *config.ServerConfig) error {
	ctx := cmd.Context()
	switch cfg.DatabaseType {
	case "postgres":
		pool, err := config.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBSchema)
		if err != nil {
			return err
		}
		defer pool.Close()
		return repopg.Migrate(ctx, pool, cfg.DBSchema)
	case "sqlite":
		repo, err := reposqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		return repo.Close()
	default:
		return fmt.Errorf("database type %s has no migrations", cfg.DatabaseType)
	}
}
