package subscribers

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/orris-inc/cellcore/internal/application/registry"
	"github.com/orris-inc/cellcore/internal/infrastructure/config"
)

var (
	env        string
	configPath string
	file       string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribers",
		Short: "Subscriber table tools",
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the subscriber table and the registration policy",
		Long:  `Parse the subscriber table the way the server would on reload and report the policy it resolves to.`,
		RunE:  runCheck,
	}
	check.Flags().StringVarP(&file, "file", "f", "", "Subscriber table to check (default: registry.subscribers_file)")
	cmd.AddCommand(check)

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(env, configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	path := file
	if path == "" {
		path = cfg.Registry.SubscribersFile
	}
	return Check(cmd.OutOrStdout(), path, cfg.Registry.Policy, cfg.Registry.AcceptPatterns)
}

// Check reports what a reload with this table and policy would produce.
func Check(out io.Writer, path, policyMode string, patterns []string) error {
	profiles, err := config.LoadSubscribers(path)
	if err != nil {
		return err
	}

	policy, err := registry.NewPolicy(policyMode, patterns, len(profiles) > 0)
	if err != nil {
		return err
	}

	byAlgorithm := make(map[string]int)
	inactive := 0
	for _, p := range profiles {
		byAlgorithm[string(p.Algorithm)]++
		if !p.Active {
			inactive++
		}
	}
	algorithms := make([]string, 0, len(byAlgorithm))
	for a := range byAlgorithm {
		algorithms = append(algorithms, a)
	}
	sort.Strings(algorithms)

	fmt.Fprintf(out, "file:        %s\n", path)
	fmt.Fprintf(out, "policy:      %s\n", policy.Mode)
	fmt.Fprintf(out, "subscribers: %d (%d inactive)\n", len(profiles), inactive)
	for _, a := range algorithms {
		fmt.Fprintf(out, "  %-10s %d\n", a+":", byAlgorithm[a])
	}
	return nil
}
