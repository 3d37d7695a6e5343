package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marcward/keel/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage project configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .keel.yaml to the project root",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path, err := config.WriteDefault(rootFlag)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Wrote %s\n", path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(rootFlag)
		if err != nil {
			fatal(err)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fatal(err)
		}
		fmt.Print(string(out))
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
