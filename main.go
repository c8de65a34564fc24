package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/access-assistant/backend/cmd"
)

var (
	version = "v0.1.0" // Overwritten at build time
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "access-assistant",
		Short: "AI-assisted accessibility checks for HTML content",
		Long: `access-assistant analyzes HTML content for accessibility issues with a
generative model, suggests alt text for images and patches it into the content.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Disable automatic 'completion' command added by cobra
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		cmd.NewServeCmd(),
		cmd.NewAnalyzeCmd(),
		cmd.NewFixCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "access-assistant version %s\n", version)
		},
	}
}
