package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/access-assistant/backend/analyzer"
)

// displayReport writes report in the given format: human, json or yaml
func displayReport(w io.Writer, report *analyzer.Report, format string) error {
	switch format {
	case "json":
		output, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(output))
	case "yaml":
		output, err := yaml.Marshal(report)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(output))
	case "human", "":
		displayHuman(w, report)
	default:
		return fmt.Errorf("unknown output format %q (supported: human, json, yaml)", format)
	}
	return nil
}

func displayHuman(w io.Writer, report *analyzer.Report) {
	cyan := color.New(color.FgCyan, color.Bold)
	white := color.New(color.FgWhite, color.Bold)

	fmt.Fprintln(w)
	cyan.Fprintln(w, "Accessibility Report")

	band := report.Band()
	bandColor(band).Fprintf(w, "Score: %.0f/100", report.Score)
	fmt.Fprintf(w, "  %s\n\n", band.Summary())

	if len(report.Issues) == 0 {
		color.New(color.FgGreen).Fprintln(w, "No accessibility issues found.")
	} else {
		white.Fprintf(w, "Issues (%d):\n", len(report.Issues))
		for _, issue := range report.Issues {
			fmt.Fprintf(w, "  %d. [%s] %s\n", issue.Ordinal+1, issue.Category(), color.YellowString(issue.Type))
			fmt.Fprintf(w, "     %s\n", issue.Message)
			if issue.Location != "" {
				fmt.Fprintf(w, "     Location: %s\n", issue.Location)
			}
			if issue.ElementContext != "" {
				fmt.Fprintf(w, "     Element: %s\n", color.CyanString(issue.ElementContext))
			}
			if issue.Fixable() {
				fmt.Fprintf(w, "     %s\n", color.GreenString("Fix available: fix --issue %d", issue.Ordinal+1))
			}
		}
	}

	if len(report.Suggestions) > 0 {
		fmt.Fprintln(w)
		white.Fprintln(w, "Suggestions:")
		for _, s := range report.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, color.HiBlackString("Run with -o json or -o yaml for machine-readable output"))
}

func bandColor(band analyzer.ScoreBand) *color.Color {
	switch band {
	case analyzer.BandGood:
		return color.New(color.FgGreen, color.Bold)
	case analyzer.BandFair:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

// unifiedDiff renders before and after as a unified diff of name
func unifiedDiff(name, before, after string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(ensureNewline(before)),
		B:        difflib.SplitLines(ensureNewline(after)),
		FromFile: name,
		ToFile:   name + " (fixed)",
		Context:  3,
	})
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// colorizeDiff highlights added and removed lines
func colorizeDiff(diff string) string {
	lines := strings.SplitAfter(diff, "\n")
	var sb strings.Builder
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			sb.WriteString(color.New(color.Bold).Sprint(line))
		case strings.HasPrefix(line, "+"):
			sb.WriteString(color.GreenString("%s", line))
		case strings.HasPrefix(line, "-"):
			sb.WriteString(color.RedString("%s", line))
		case strings.HasPrefix(line, "@@"):
			sb.WriteString(color.CyanString("%s", line))
		default:
			sb.WriteString(line)
		}
	}
	return sb.String()
}
