package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/access-assistant/backend/analyzer"
)

const gifURI = "data:image/gif;base64,R0lGODlhAQABAAAAACw="

func useStub(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("LLM_PROVIDER", "stub")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	return dir
}

func execute(t *testing.T, c *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	c.SetOut(out)
	c.SetErr(io.Discard)
	c.SetIn(strings.NewReader(stdin))
	c.SetArgs(args)
	err := c.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestAnalyzeJSON(t *testing.T) {
	dir := useStub(t)
	path := writeFile(t, dir, "post.html", `<h1>Post</h1><img src="a.png"><h3>Deep</h3>`)

	out, err := execute(t, NewAnalyzeCmd(), "", path, "-o", "json")
	require.NoError(t, err)

	var report analyzer.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Issues, 2)
	assert.Equal(t, "Missing Alt Text", report.Issues[0].Type)
	assert.Equal(t, "a.png", report.Issues[0].ElementContext)
	assert.Equal(t, "Heading Structure", report.Issues[1].Type)
	assert.Equal(t, float64(70), report.Score)
	assert.Equal(t, "stub", report.Provider)
}

func TestAnalyzeFromStdinHuman(t *testing.T) {
	useStub(t)

	out, err := execute(t, NewAnalyzeCmd(), `<img src="a.png">`, "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Score: 85/100")
	assert.Contains(t, out, "Excellent! Your content is highly accessible.")
	assert.Contains(t, out, "1. [image] Missing Alt Text")
	assert.Contains(t, out, "Fix available: fix --issue 1")
}

func TestAnalyzeRejectsEmptyContent(t *testing.T) {
	useStub(t)

	_, err := execute(t, NewAnalyzeCmd(), "  \n", "-")
	assert.EqualError(t, err, "content is empty")
}

func TestFixPreviewDoesNotWrite(t *testing.T) {
	dir := useStub(t)
	content := "<p>Hi</p>\n<img src=\"" + gifURI + "\">\n"
	path := writeFile(t, dir, "post.html", content)

	out, err := execute(t, NewFixCmd(), "", path, "--issue", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Suggested alt text:")
	assert.Contains(t, out, "+<img src=\""+gifURI+"\" alt=\"")
	assert.Contains(t, out, "--apply")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestFixApplyWritesFile(t *testing.T) {
	dir := useStub(t)
	path := writeFile(t, dir, "post.html", "<p>Hi</p>\n<img src=\""+gifURI+"\">\n")

	out, err := execute(t, NewFixCmd(), "", path, "--apply")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied fix to")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<p>Hi</p>\n<img src=\""+gifURI+"\" alt=\""), string(data))
	assert.True(t, strings.HasSuffix(string(data), "\">\n"))
}

func TestFixApplyFromStdinPrintsContent(t *testing.T) {
	useStub(t)

	out, err := execute(t, NewFixCmd(), `<img src="`+gifURI+`">`, "-", "--apply")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `<img src="`+gifURI+`" alt="`), out)
}

func TestFixFailures(t *testing.T) {
	dir := useStub(t)

	path := writeFile(t, dir, "heading.html", "<h1>a</h1><h3>b</h3>")
	_, err := execute(t, NewFixCmd(), "", path, "--issue", "1")
	assert.EqualError(t, err, "Fix not available for this issue.")

	_, err = execute(t, NewFixCmd(), "", path, "--issue", "3")
	assert.EqualError(t, err, "issue 3 out of range (report has 1 issues)")

	relative := writeFile(t, dir, "relative.html", `<img src="a.png">`)
	_, err = execute(t, NewFixCmd(), "", relative)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "The image could not be fetched."), err.Error())
}

func TestSelectIssue(t *testing.T) {
	report := &analyzer.Report{Issues: []analyzer.Issue{{ID: "a"}, {ID: "b"}}}

	issue, err := selectIssue(report, "2")
	require.NoError(t, err)
	assert.Equal(t, "b", issue.ID)

	issue, err = selectIssue(report, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", issue.ID)

	_, err = selectIssue(report, "0")
	assert.Error(t, err)
	_, err = selectIssue(report, "zzz")
	assert.Error(t, err)
	_, err = selectIssue(&analyzer.Report{}, "1")
	assert.EqualError(t, err, "no accessibility issues found")
}

func TestDisplayReportYAML(t *testing.T) {
	report := &analyzer.Report{
		Issues:      []analyzer.Issue{{ID: "x", Type: "Missing Alt Text", Message: "m", ElementContext: "a.png"}},
		Score:       40,
		Suggestions: []string{"Add alt text"},
		AnalyzedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Provider:    "stub",
	}

	buf := new(bytes.Buffer)
	require.NoError(t, displayReport(buf, report, "yaml"))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 40, decoded["score"])
	issues := decoded["issues"].([]any)
	assert.Equal(t, "a.png", issues[0].(map[string]any)["elementContext"])

	buf.Reset()
	require.NoError(t, displayReport(buf, report, "human"))
	assert.Contains(t, buf.String(), "Needs significant improvement for better accessibility.")

	assert.Error(t, displayReport(buf, report, "xml"))
}

func TestUnifiedDiff(t *testing.T) {
	diff, err := unifiedDiff("post.html", "<p>a</p>\n<img src=\"a.png\">", "<p>a</p>\n<img src=\"a.png\" alt=\"x\">")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- post.html")
	assert.Contains(t, diff, "+++ post.html (fixed)")
	assert.Contains(t, diff, "-<img src=\"a.png\">\n")
	assert.Contains(t, diff, "+<img src=\"a.png\" alt=\"x\">\n")
	assert.NotContains(t, diff, "-<p>a</p>")
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
