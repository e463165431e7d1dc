package token

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/orris-inc/cellcore/internal/infrastructure/auth"
	"github.com/orris-inc/cellcore/internal/infrastructure/config"
)

var (
	env        string
	configPath string
	operator   string
	ttl        time.Duration
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token",
		Long:  `Sign a bearer token for the admin HTTP surface with admin.jwt_secret.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	cmd.Flags().StringVar(&operator, "operator", "admin", "Operator name recorded in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(env, configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret is not set, the admin surface is open")
	}

	token, err := auth.NewJWTService(cfg.Admin.JWTSecret).Generate(operator, ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
