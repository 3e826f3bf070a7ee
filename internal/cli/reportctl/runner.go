package reportctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

const (
	envBaseURL = "REPORTDESK_API_URL"
	envTimeout = "REPORTDESK_CLI_TIMEOUT"
)

// OptionsFromEnv reads the API URL and request timeout. An unparsable
// timeout is reported on warn and the default is kept.
func OptionsFromEnv(lookup func(string) (string, bool), warn io.Writer) Options {
	options := Options{BaseURL: "http://localhost:8080", Timeout: 30 * time.Second}
	if value, ok := lookup(envBaseURL); ok && strings.TrimSpace(value) != "" {
		options.BaseURL = strings.TrimSpace(value)
	}
	if value, ok := lookup(envTimeout); ok && strings.TrimSpace(value) != "" {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil || parsed <= 0 {
			if warn != nil {
				_, _ = fmt.Fprintf(warn, "invalid %s %q; using %s\n", envTimeout, value, options.Timeout)
			}
		} else {
			options.Timeout = parsed
		}
	}
	return options
}

// requestError marks failures that happened after the command line was
// accepted; they exit with 1 instead of the usage code 2.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	if args == nil {
		args = []string{}
	}
	root := newRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			_, _ = fmt.Fprintln(stderr, err.Error())
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		_, _ = fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	return 0
}

type client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func newRootCommand(defaults Options) *cobra.Command {
	c := &client{}
	root := &cobra.Command{
		Use:           "reportctl",
		Short:         "Ask questions, manage reports and render dashboards",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return errors.New("a command is required")
		},
		PersistentPreRun: func(*cobra.Command, []string) {
			c.http = defaults.HTTPClient
			if c.http == nil {
				c.http = &http.Client{Timeout: c.timeout}
			}
		},
	}
	root.PersistentFlags().StringVar(&c.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "reportdesk API base URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		c.simple("health", "GET /v1/health", http.MethodGet, "/v1/health"),
		c.simple("ready", "GET /v1/ready", http.MethodGet, "/v1/ready"),
		c.askCommand(),
		c.sqlCommand(),
		c.reportsCommand(),
		c.dashboardsCommand(),
	)
	return root
}

func (c *client) simple(use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.call(cmd, method, path, nil)
		},
	}
}

func (c *client) askCommand() *cobra.Command {
	var noExecute bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Translate a question to SQL, run it and pick a chart",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, http.MethodPost, "/v1/ask", map[string]any{
				"question": strings.Join(args, " "),
				"execute":  !noExecute,
			})
		},
	}
	cmd.Flags().BoolVar(&noExecute, "no-execute", false, "only translate, do not run the SQL")
	return cmd
}

func (c *client) sqlCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sql <statement>",
		Short: "Run a read-only SQL statement and pick a chart",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, http.MethodPost, "/v1/sql", map[string]any{"sql": strings.Join(args, " ")})
		},
	}
}

func (c *client) reportsCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "reports", Short: "Manage saved reports"}

	var (
		name, sqlText, interpretation, specFile string
		format, output                          string
	)
	save := &cobra.Command{
		Use:   "save [id]",
		Short: "Create a report, or overwrite the report with the given id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"name": name, "sql": sqlText, "interpretation": interpretation}
			if specFile != "" {
				raw, err := os.ReadFile(specFile)
				if err != nil {
					return fmt.Errorf("read chart spec: %w", err)
				}
				body["chart_spec"] = json.RawMessage(raw)
			}
			if len(args) == 1 {
				return c.call(cmd, http.MethodPut, "/v1/reports/"+url.PathEscape(args[0]), body)
			}
			return c.call(cmd, http.MethodPost, "/v1/reports", body)
		},
	}
	save.Flags().StringVar(&name, "name", "", "report name")
	save.Flags().StringVar(&sqlText, "sql", "", "report SQL")
	save.Flags().StringVar(&interpretation, "interpretation", "", "free-text description")
	save.Flags().StringVar(&specFile, "spec", "", "path to a chart spec JSON file")
	_ = save.MarkFlagRequired("name")
	_ = save.MarkFlagRequired("sql")

	export := &cobra.Command{
		Use:   "export <id>",
		Short: "Download a report's current data as xlsx or parquet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.download(cmd, "/v1/reports/"+url.PathEscape(args[0])+"/export?format="+url.QueryEscape(format), output)
		},
	}
	export.Flags().StringVar(&format, "format", "xlsx", "export format: xlsx|parquet")
	export.Flags().StringVarP(&output, "output", "o", "", "output file (default: name from the server)")

	var archiveFormat string
	archive := &cobra.Command{
		Use:   "archive <id>",
		Short: "Write a report export to object storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, http.MethodPost, "/v1/reports/"+url.PathEscape(args[0])+"/archive?format="+url.QueryEscape(archiveFormat), nil)
		},
	}
	archive.Flags().StringVar(&archiveFormat, "format", "xlsx", "export format: xlsx|parquet")

	var (
		chartOutput   string
		width, height int
	)
	chartImage := &cobra.Command{
		Use:   "chart <id>",
		Short: "Download a report's chart as a PNG image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if width > 0 {
				query.Set("width", strconv.Itoa(width))
			}
			if height > 0 {
				query.Set("height", strconv.Itoa(height))
			}
			path := "/v1/reports/" + url.PathEscape(args[0]) + "/chart.png"
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}
			return c.download(cmd, path, chartOutput)
		},
	}
	chartImage.Flags().StringVarP(&chartOutput, "output", "o", "", "output file (default: name from the server)")
	chartImage.Flags().IntVar(&width, "width", 0, "image width in pixels")
	chartImage.Flags().IntVar(&height, "height", 0, "image height in pixels")

	cmd.AddCommand(
		c.simple("list", "List saved reports", http.MethodGet, "/v1/reports"),
		c.byID("get", "Show one report", http.MethodGet, "/v1/reports/%s"),
		c.byID("delete", "Delete a report", http.MethodDelete, "/v1/reports/%s"),
		c.byID("archives", "List archived exports of a report", http.MethodGet, "/v1/reports/%s/archive"),
		save,
		export,
		chartImage,
		archive,
	)
	return cmd
}

func (c *client) dashboardsCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "dashboards", Short: "Manage and render dashboards"}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty dashboard",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, http.MethodPost, "/v1/dashboards", map[string]any{"name": strings.Join(args, " ")})
		},
	}
	setReports := &cobra.Command{
		Use:   "set-reports <id> [report-id...]",
		Short: "Replace the ordered report list of a dashboard",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, http.MethodPut, "/v1/dashboards/"+url.PathEscape(args[0])+"/reports", map[string]any{
				"report_ids": append([]string{}, args[1:]...),
			})
		},
	}

	cmd.AddCommand(
		c.simple("list", "List dashboards", http.MethodGet, "/v1/dashboards"),
		c.byID("get", "Show one dashboard", http.MethodGet, "/v1/dashboards/%s"),
		c.byID("delete", "Delete a dashboard", http.MethodDelete, "/v1/dashboards/%s"),
		c.byID("render", "Render every tile of a dashboard", http.MethodGet, "/v1/dashboards/%s/render"),
		create,
		setReports,
	)
	return cmd
}

func (c *client) byID(use, short, method, pathFormat string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, method, fmt.Sprintf(pathFormat, url.PathEscape(args[0])), nil)
		},
	}
}

// call sends a JSON request and pretty-prints the JSON reply.
func (c *client) call(cmd *cobra.Command, method, path string, payload any) error {
	code, _, body, err := c.do(cmd.Context(), method, path, payload)
	if err != nil {
		return &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	if code >= 400 {
		return &requestError{err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))}
	}
	out := cmd.OutOrStdout()
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(out, pretty)
		return nil
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(out, string(body))
	}
	return nil
}

// download writes a binary reply to output, or to the file name the server
// suggested when output is empty.
func (c *client) download(cmd *cobra.Command, path, output string) error {
	code, header, body, err := c.do(cmd.Context(), http.MethodGet, path, nil)
	if err != nil {
		return &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	if code >= 400 {
		return &requestError{err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))}
	}
	if output == "" {
		output = attachmentName(header.Get("Content-Disposition"))
	}
	if output == "" {
		return &requestError{err: errors.New("server did not name the export; pass --output")}
	}
	if err := os.WriteFile(output, body, 0o644); err != nil {
		return &requestError{err: fmt.Errorf("write %s: %w", output, err)}
	}
	if rows := header.Get("X-Row-Count"); rows != "" {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, %s rows)\n", output, len(body), rows)
		return nil
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(body))
	return nil
}

func (c *client) do(ctx context.Context, method, path string, payload any) (int, http.Header, []byte, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, body, nil
}

func attachmentName(disposition string) string {
	_, after, ok := strings.Cut(disposition, "filename=")
	if !ok {
		return ""
	}
	return strings.Trim(strings.TrimSpace(after), `"`)
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
