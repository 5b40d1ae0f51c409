package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"domainreader/internal/platform/config"
	"domainreader/internal/platform/logger"
	"domainreader/internal/reader"
)

type resolveOptions struct {
	Map     string
	Version string
	Type    string
	Filter  string
	Branch  string
	History bool
	Count   bool
	Params  []string
}

func newResolveCommand(root *rootOptions) *cobra.Command {
	opts := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a named filter once and print the records as JSON",
		Example: `  domain-reader resolve --map sales --version v1 --type orders --filter byCustomer --param customer=ACME
  domain-reader resolve --map sales --version v1 --type orders --history --param id=42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			cfg, err := config.Load(root.ConfigFile)
			if err != nil {
				return err
			}

			app, err := buildReader(cmd.Context(), cfg, nil, logger.New(cfg.Log))
			if err != nil {
				return err
			}
			defer app.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if opts.Count {
				n, err := app.service.Count(cmd.Context(), req)
				if err != nil {
					return err
				}
				return enc.Encode(map[string]int64{"count": n})
			}
			records, err := app.service.Resolve(cmd.Context(), req)
			if err != nil {
				return err
			}
			return enc.Encode(records)
		},
	}

	cmd.Flags().StringVar(&opts.Map, "map", "", "schema map (required)")
	cmd.Flags().StringVar(&opts.Version, "version", "", "schema version (required)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "entity type (required)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "named filter; empty applies branch visibility only")
	cmd.Flags().StringVar(&opts.Branch, "branch", "", "branch to read (default master)")
	cmd.Flags().BoolVar(&opts.History, "history", false, "read the historical variant; requires --param id=<id>")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the match count instead of records")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "filter parameter as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("map")
	_ = cmd.MarkFlagRequired("version")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func (o *resolveOptions) request() (reader.Request, error) {
	params, err := parseParams(o.Params)
	if err != nil {
		return reader.Request{}, err
	}
	if o.Branch != "" {
		params[reader.ParamBranch] = o.Branch
	}
	if o.History {
		if _, ok := params[reader.ParamID]; !ok {
			return reader.Request{}, fmt.Errorf("--history requires --param id=<id>")
		}
		if o.Count {
			return reader.Request{}, fmt.Errorf("--count cannot be combined with --history")
		}
	}
	return reader.Request{
		Map:     o.Map,
		Version: o.Version,
		Type:    o.Type,
		Filter:  o.Filter,
		Params:  params,
		History: o.History,
	}, nil
}

// parseParams turns key=value pairs into request parameters. Values stay
// strings, the same as query-string parameters.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}
