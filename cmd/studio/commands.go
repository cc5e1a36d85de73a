package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framecraft/studio/internal/config"
	"github.com/framecraft/studio/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent (the default command)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(envFile)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the API token, creating it if needed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := logging.Discard()
		st, err := openStorage(context.Background(), cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		token, err := st.projects.EnsureAuthToken(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "studio %s\n", Version)
	},
}
