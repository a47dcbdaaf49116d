package main

import (
	"fmt"

	"github.com/perbu/promptforge/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var writeConfig string

func init() {
	configCmd.Flags().StringVar(&writeConfig, "write", "", "also write the effective configuration to this file")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "# loaded from %s (defaults if missing)\n", configPath)
		fmt.Fprint(w, string(data))
		fmt.Fprintln(w)
		fmt.Fprintf(w, "# llm api key:       %s\n", config.MaskSecret(cfg.LLM.APIKey))
		fmt.Fprintf(w, "# embedding api key: %s\n", config.MaskSecret(cfg.Embedding.APIKey))
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(w, "# invalid: %v\n", err)
		}
		if writeConfig != "" {
			if err := cfg.Save(writeConfig); err != nil {
				return err
			}
			fmt.Fprintf(w, "# written to %s\n", writeConfig)
		}
		return nil
	},
}
