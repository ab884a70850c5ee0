package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/fitupload/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Args:  noPositionalArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonMode bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  noPositionalArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if jsonMode {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")

				if err := enc.Encode(cc.Cfg); err != nil {
					return fmt.Errorf("encoding config: %w", err)
				}

				return nil
			}

			return config.RenderEffective(cc.Cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&jsonMode, "json", false, "output in JSON format")

	return cmd
}
