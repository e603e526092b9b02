package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/shadowsync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(cc.Cfg)
	}

	return config.RenderEffective(cc.Cfg, os.Stdout)
}

func newConfigValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a config file without applying it",
		Long: `Validate loads and validates the config file at path (or the default
resolution path if omitted) without starting anything. It does not use
the config already resolved for this CLI invocation — it's meant to
check a candidate file, e.g. before deploying it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runConfigValidate,
	}

	// config validate reads its own path argument rather than the
	// CLI-resolved one, and must work even when that resolution fails.
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}

	cmd.Annotations[skipConfigAnnotation] = "true"

	return cmd
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	logger := buildLogger(nil)

	path := config.DefaultConfigPath()
	if len(args) > 0 {
		path = args[0]
	}

	if _, err := config.Load(path, logger); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("%s: valid\n", path)

	return nil
}

func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path this invocation resolved",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			fmt.Println(cc.Path)

			return nil
		},
	}

	return cmd
}
