package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/access-assistant/backend/analyzer"
	"github.com/access-assistant/backend/apperr"
	"github.com/access-assistant/backend/coordinator"
)

type fixOptions struct {
	issue    string
	baseURL  string
	apply    bool
	provider string
}

// NewFixCmd suggests alt text for one image issue and optionally applies it
func NewFixCmd() *cobra.Command {
	opts := &fixOptions{}

	cmd := &cobra.Command{
		Use:   "fix FILE",
		Short: "Suggest and apply alt text for an image issue",
		Long: `Analyze FILE, generate alt text for the selected missing-alt-text issue and
show the change as a unified diff. The file is only written with --apply.

Examples:
  # Preview the fix for the first issue
  access-assistant fix post.html --issue 1 --base-url https://blog.example.com/posts/

  # Apply it
  access-assistant fix post.html --issue 1 --base-url https://blog.example.com/posts/ --apply`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.issue, "issue", "i", "1", "Issue to fix: 1-based number from the report, or issue ID")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "URL relative image sources are resolved against")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write the fixed content back to FILE (stdout when FILE is -)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Model provider: gemini, openai, claude or stub (overrides LLM_PROVIDER)")

	return cmd
}

// fileContent receives the applied content
type fileContent struct {
	content string
	written bool
}

func (f *fileContent) SetContent(content string) {
	f.content = content
	f.written = true
}

func runFix(cmd *cobra.Command, path string, opts *fixOptions) error {
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

	issue, err := selectIssue(report, opts.issue)
	if err != nil {
		return err
	}

	s = newSpinner(cmd, " Generating alt text...")
	s.Start()
	w := p.coordinator.SuggestFix(cmd.Context(), content, issue, coordinator.WithBaseURL(opts.baseURL))
	s.Stop()

	if err := w.Err(); err != nil {
		return describeFailure(err)
	}
	preview := w.Preview()

	out := cmd.OutOrStdout()
	if !(opts.apply && path == "-") {
		fmt.Fprintf(out, "%s %s\n\n", color.New(color.FgCyan, color.Bold).Sprint("Suggested alt text:"), preview.SuggestedAltText)

		diff, err := unifiedDiff(path, preview.Before, preview.After)
		if err != nil {
			return err
		}
		fmt.Fprint(out, colorizeDiff(diff))
	}

	if !opts.apply {
		if err := w.Dismiss(); err != nil {
			return err
		}
		fmt.Fprintln(out, color.HiBlackString("\nRun again with --apply to write the change"))
		return nil
	}

	target := &fileContent{}
	if err := w.Apply(target); err != nil {
		return err
	}
	if path == "-" {
		fmt.Fprint(out, target.content)
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(target.content), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(out, "\n%s %s\n", color.GreenString("Applied fix to"), path)
	return nil
}

// selectIssue finds an issue by 1-based number or by ID
func selectIssue(report *analyzer.Report, ref string) (analyzer.Issue, error) {
	if len(report.Issues) == 0 {
		return analyzer.Issue{}, fmt.Errorf("no accessibility issues found")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(report.Issues) {
			return analyzer.Issue{}, fmt.Errorf("issue %d out of range (report has %d issues)", n, len(report.Issues))
		}
		return report.Issues[n-1], nil
	}
	if issue, ok := report.Issue(ref); ok {
		return issue, nil
	}
	return analyzer.Issue{}, fmt.Errorf("issue %q not found", ref)
}

func describeFailure(err error) error {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return err
	}
	msg := apperr.UserMessage(e.Kind)
	if e.Detail != "" {
		return fmt.Errorf("%s (%s)", msg, e.Detail)
	}
	if e.Err != nil {
		return fmt.Errorf("%s: %w", msg, e.Err)
	}
	return errors.New(msg)
}
