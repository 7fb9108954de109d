package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "AI-assisted issue triage",
	Long: `Triage runs issue analysis conversations against an inference provider,
gathers evidence from capability services, and streams progress to observers.

Run 'triage serve' to start the service, or use the client commands
against a running instance.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
}

func main() {
	// A local .env keeps development setups to one file. Missing files
	// are fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
