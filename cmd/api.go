package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"famsched/internal/api"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	apiData        string
	apiQuery       []string
	apiShowMetrics bool
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api <METHOD> <path> [path...]",
	Short: "Call the API with the stored session",
	Long: `Send an authenticated request to the family scheduler API and print
the JSON response.

Several paths are requested concurrently. If the access token has expired
it is refreshed once for all of them.

Examples:
  famsched api GET /events/
  famsched api GET /events/ /children/ /users/me/ --metrics
  famsched api GET /events/ --query start=2026-10-01 --query end=2026-10-31
  famsched api POST /events/ --data '{"title":"Swim practice"}'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVarP(&apiData, "data", "d", "", "JSON request body")
	apiCmd.Flags().StringArrayVar(&apiQuery, "query", nil, "Query parameter as key=value (repeatable)")
	apiCmd.Flags().BoolVar(&apiShowMetrics, "metrics", false, "Print request and refresh counters after the calls")
}

func runAPI(cmd *cobra.Command, args []string) error {
	method := strings.ToUpper(args[0])
	paths := args[1:]

	query, err := parseQuery(apiQuery)
	if err != nil {
		return err
	}
	var body any
	if apiData != "" {
		if !json.Valid([]byte(apiData)) {
			return fmt.Errorf("--data is not valid JSON")
		}
		body = json.RawMessage(apiData)
	}

	env, err := newEnvironment()
	if err != nil {
		return err
	}
	if err := env.requireSession(cmd.Context()); err != nil {
		return err
	}

	responses := make([]*api.Response, len(paths))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, path := range paths {
		g.Go(func() error {
			resp, err := env.client.Send(ctx, &api.Request{
				Method: method,
				Path:   path,
				Query:  query,
				Body:   body,
			})
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, resp := range responses {
		if len(paths) > 1 {
			fmt.Fprintf(out, "==> %s %s (%d)\n", method, paths[i], resp.StatusCode)
		}
		fmt.Fprintln(out, prettyJSON(resp.Body))
	}

	if apiShowMetrics {
		fmt.Fprintln(out)
		return renderMetrics(out, env.registry)
	}
	return nil
}

func parseQuery(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query parameter %q, expected key=value", pair)
		}
		values.Add(key, value)
	}
	return values, nil
}

func prettyJSON(body []byte) string {
	if len(body) == 0 {
		return http.StatusText(http.StatusNoContent)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return string(body)
	}
	return buf.String()
}
