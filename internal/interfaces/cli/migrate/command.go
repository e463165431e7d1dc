package migrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/orris-inc/cellcore/internal/infrastructure/config"
	"github.com/orris-inc/cellcore/internal/infrastructure/database"
	"github.com/orris-inc/cellcore/internal/infrastructure/repository"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

var (
	env        string
	configPath string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema tools",
		Long:  `Create the section store schema and inspect what it holds. Only applies to the sqlite and mysql persistence drivers.`,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	cmd.AddCommand(
		newUpCommand(),
		newStatusCommand(),
	)

	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create or update the section store table",
		RunE:  runUp,
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show entry counts per section",
		RunE:  runStatus,
	}
}

func initEnv() (*repository.SectionStoreRepository, error) {
	cfg, err := config.Load(env, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	switch cfg.Persistence.Driver {
	case "sqlite", "mysql":
	default:
		return nil, fmt.Errorf("persistence driver %q has no schema", cfg.Persistence.Driver)
	}

	dbCfg := cfg.Database
	dbCfg.Driver = cfg.Persistence.Driver
	if err := database.Init(&dbCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return repository.NewSectionStoreRepository(database.Get(), logger.NewLogger()), nil
}

func runUp(cmd *cobra.Command, args []string) error {
	repo, err := initEnv()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := repo.Migrate(); err != nil {
		return err
	}

	logger.Info("section store migrated", "environment", env)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	repo, err := initEnv()
	if err != nil {
		return err
	}
	defer database.Close()

	counts, err := repo.Counts(context.Background())
	if err != nil {
		return err
	}

	sections := make([]string, 0, len(counts))
	for section := range counts {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nSection Store Status:\n")
	fmt.Fprintf(out, "  Environment: %s\n", env)
	for _, section := range sections {
		fmt.Fprintf(out, "  %-12s %d\n", section+":", counts[section])
	}
	if len(sections) == 0 {
		fmt.Fprintf(out, "  (empty)\n")
	}
	return nil
}
