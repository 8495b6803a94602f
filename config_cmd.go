package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fruitstock/sav-uploader/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Long: `Display the configuration after defaults, the config file, environment
variables and flags are applied. Secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		return printJSON(os.Stdout, config.Redacted(cc.Cfg))
	}

	return config.RenderEffective(cc.Cfg, os.Stdout)
}
