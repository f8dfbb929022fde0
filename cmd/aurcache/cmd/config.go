package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aurcache/aurcache/internal/config"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file without starting the server",
		RunE:  runConfigValidate,
	}

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Printf("configuration OK: port=%d cache_dir=%s upstream_index=%s upstream_mirror=%s\n",
		cfg.Port, cfg.CacheDir, cfg.UpstreamIndex, cfg.UpstreamMirror)
	return nil
}
