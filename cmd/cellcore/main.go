package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/orris-inc/cellcore/internal/interfaces/cli/migrate"
	"github.com/orris-inc/cellcore/internal/interfaces/cli/server"
	"github.com/orris-inc/cellcore/internal/interfaces/cli/subscribers"
	"github.com/orris-inc/cellcore/internal/interfaces/cli/token"
	"github.com/orris-inc/cellcore/internal/interfaces/cli/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cellcore",
		Short: "Cellcore - subscriber registry and local SMS center",
		Long:  `Cellcore registers handsets, authenticates them, routes calls and text messages between them, and stores messages for subscribers that are not reachable.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		subscribers.NewCommand(),
		token.NewCommand(),
		version.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
