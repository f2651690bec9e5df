package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-registry/pkg/registry/config"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "registry-admin",
		Short: "Administration tool for the package registry",
		Long: `Registry admin CLI

Works directly against the configured metadata repository and blob store,
using the same environment variables (and optional TOML file) as the server.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", os.Getenv("REGISTRY_CONFIG"), "TOML config file (optional)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level")

	rootCmd.AddCommand(NewUnpublishCommand())
	rootCmd.AddCommand(NewTokenCommand())
	rootCmd.AddCommand(NewHashPasswordCommand())
	rootCmd.AddCommand(NewMigrateCommand())

	return rootCmd
}

// loadConfig reads the file named by --config, then the environment.
func loadConfig(cmd *cobra.Command) (*config.ServerConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.WithConfigFile(path), config.WithEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
