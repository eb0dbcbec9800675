package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaydesk/relaydesk/internal/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "relaydesk",
		Short: "Relaydesk bridges a chat messenger and a helpdesk's email intake",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default: CONFIG_PATH env)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetInfo())
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("CONFIG_PATH")
}
