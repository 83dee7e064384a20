package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/weapp/foxytools"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [path]",
	Short: "Request a path through the client and print the body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		opts, err := fetchOptions(cmd, args[0])
		if err != nil {
			return err
		}

		resp, err := client.Request(cmd.Context(), opts)
		if err != nil {
			return err
		}

		if showStatus, _ := cmd.Flags().GetBool("status"); showStatus {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d %s\n", resp.StatusCode, resp.RequestID)
		}
		fmt.Fprint(cmd.OutOrStdout(), resp.Text())
		return nil
	},
}

func init() {
	flags := fetchCmd.Flags()
	flags.StringP("method", "X", "get", "HTTP method")
	flags.StringArrayP("param", "p", nil, "Query parameter as key=value (repeatable)")
	flags.StringArrayP("header", "H", nil, "Header as key=value (repeatable)")
	flags.String("json", "", "JSON document sent as the request body")
	flags.Bool("skip-cache", false, "Bypass the response cache for this call")
	flags.Bool("monad", false, "Fail on error statuses")
	flags.Bool("status", false, "Print the status code and request id to stderr")
}

func fetchOptions(cmd *cobra.Command, path string) (foxytools.Options, error) {
	flags := cmd.Flags()
	method, _ := flags.GetString("method")
	opts := foxytools.Options{
		foxytools.OptMethod: method,
		foxytools.OptPath:   path,
	}

	params, _ := flags.GetStringArray("param")
	if len(params) > 0 {
		m, err := parsePairs(params)
		if err != nil {
			return nil, err
		}
		opts[foxytools.OptParams] = m
	}

	headers, _ := flags.GetStringArray("header")
	if len(headers) > 0 {
		m, err := parsePairs(headers)
		if err != nil {
			return nil, err
		}
		opts[foxytools.OptHeaders] = m
	}

	if raw, _ := flags.GetString("json"); raw != "" {
		var body any
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return nil, fmt.Errorf("--json: %w", err)
		}
		opts[foxytools.OptJSON] = body
	}

	if flags.Changed("skip-cache") {
		skip, _ := flags.GetBool("skip-cache")
		opts[foxytools.OptSkipCache] = skip
	}
	if monad, _ := flags.GetBool("monad"); monad {
		opts[foxytools.OptMonadResult] = true
	}

	return opts, nil
}

// parsePairs turns key=value arguments into a map. Values are read as
// YAML scalars so numbers and booleans keep their type.
func parsePairs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		out[key] = value
	}
	return out, nil
}
