package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	output   string
	provider string
}

// NewAnalyzeCmd analyzes an HTML file and prints the report
func NewAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Analyze HTML content for accessibility issues",
		Long: `Analyze HTML content with the configured model and print the accessibility
report. Use - to read the content from stdin.

Examples:
  # Analyze a blog post
  access-assistant analyze post.html

  # Machine-readable output
  cat post.html | access-assistant analyze - -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "human", "Output format (human, json, yaml)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Model provider: gemini, openai, claude or stub (overrides LLM_PROVIDER)")

	return cmd
}

func runAnalyze(cmd *cobra.Command, path string, opts *analyzeOptions) error {
	content, err := readContent(path, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.provider, "cli")
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg, false)
	if err != nil {
		return err
	}
	defer p.Close()

	s := newSpinner(cmd, " Analyzing accessibility...")
	s.Start()
	report, err := p.analyzer.Analyze(cmd.Context(), content)
	s.Stop()
	if err != nil {
		return err
	}

	return displayReport(cmd.OutOrStdout(), report, opts.output)
}

// readContent reads path, or stdin when path is -. Blank content is an error.
func readContent(path string, stdin io.Reader) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("content is empty")
	}
	return string(data), nil
}

func newSpinner(cmd *cobra.Command, suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = suffix
	return s
}
