package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "rkllmctl",
	Short: "Operator CLI for the rkllmd daemon",
	Long:  "rkllmctl talks to a running rkllmd daemon: list models, inspect status, preload or unload instances, and run streaming generation.",
}

func main() {
	defaultServer := "http://127.0.0.1:8080"
	if v := os.Getenv("RKLLMD_SERVER"); v != "" {
		defaultServer = v
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "Base URL of the rkllmd daemon")
	rootCmd.AddCommand(modelsCmd, statusCmd, capabilityCmd, switchCmd, unloadCmd, generateCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
