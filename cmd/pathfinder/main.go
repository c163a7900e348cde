package main

import (
	"fmt"
	"os"

	"github.com/HorseArcher567/pathfinder/pkg/app"
	"github.com/HorseArcher567/pathfinder/pkg/config"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "pathfinder",
	Short: "Service registration and discovery over etcd",
	Long: `pathfinder registers gRPC service instances in etcd and keeps
a round-robin channel pool per followed service on the caller side.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pathfinder version %s\n", version)
	},
}

// loadFramework reads the configuration file named by -c.
func loadFramework() (*app.Framework, error) {
	var fw app.Framework
	if err := config.Load(configFile, &fw); err != nil {
		return nil, err
	}
	return &fw, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/config.yaml", "Configuration file (yaml, json or toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
