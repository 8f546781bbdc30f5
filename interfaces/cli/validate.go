package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lode/infrastructure/config"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	configPath string
	strict     bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a lode configuration file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Field types and constraints
  - Persistence backend requirements
  - Environment variable references (in strict mode)

Examples:
  # Validate a configuration file
  lode validate -c lode.yaml

  # Strict validation (fail on missing env vars)
  lode validate -c lode.yaml --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail on missing environment variables")
	cmd.MarkFlagRequired("config")

	return cmd
}

// validateConfig loads and validates the configuration file.
func (a *App) validateConfig(opts *validateOptions) error {
	loader := config.NewLoaderWithOptions(config.WithStrictEnv(opts.strict))

	settings, err := loader.LoadFile(opts.configPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "✓ %s is valid\n", opts.configPath)
	fmt.Fprintf(a.stdout, "  Name: %s\n", settings.Name)
	fmt.Fprintf(a.stdout, "  Caches: %d\n", len(settings.Caches))
	if settings.Persistence.Backend != "" {
		fmt.Fprintf(a.stdout, "  Persistence: %s\n", settings.Persistence.Backend)
	}
	return nil
}
