package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/viant/scgraph/service"
)

type options struct {
	configPath string
	dumpURL    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "scgraph",
		Short:         "Inspect and maintain a semantic graph store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config yaml (optional)")
	flags.StringVar(&opts.dumpURL, "dump", "", "segment dump URL, overrides storage.dumpURL")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level, overrides log.level")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Print segment, element and content statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.Context(), opts, cmd.OutOrStdout())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify the dump checksum and incidence list consistency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, cmd.OutOrStdout())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "gc",
		Short: "Load the dump, reclaim erased elements and save it back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGC(cmd.Context(), opts, cmd.OutOrStdout())
		},
	})
	return rootCmd
}

func (o *options) config() (*service.Config, error) {
	cfg := service.DefaultConfig()
	if o.configPath != "" {
		loaded, err := service.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.dumpURL != "" {
		cfg.Storage.DumpURL = o.dumpURL
	}
	if cfg.Storage.DumpURL == "" {
		return nil, errors.New("dump URL is required: use --dump or storage.dumpURL")
	}
	// commands are one-shot; no background sweeps
	cfg.Storage.GCInterval = 0
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func (o *options) open(ctx context.Context, readOnly bool) (*service.Service, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	var opts []service.Option
	if readOnly {
		opts = append(opts, service.WithReadOnly())
	}
	return service.New(ctx, cfg, opts...)
}

func runInfo(ctx context.Context, opts *options, out io.Writer) error {
	srv, err := opts.open(ctx, true)
	if err != nil {
		return err
	}
	defer srv.Close(ctx)
	data, err := json.MarshalIndent(srv.Info(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func runCheck(ctx context.Context, opts *options, out io.Writer) error {
	srv, err := opts.open(ctx, true)
	if err != nil {
		return err
	}
	defer srv.Close(ctx)
	if err := srv.Storage().Check(); err != nil {
		return err
	}
	stats := srv.Storage().Stats()
	_, err = fmt.Fprintf(out, "ok: %d segments, %d nodes, %d links, %d connectors\n",
		stats.Segments, stats.Nodes, stats.Links, stats.Connectors)
	return err
}

func runGC(ctx context.Context, opts *options, out io.Writer) error {
	srv, err := opts.open(ctx, false)
	if err != nil {
		return err
	}
	reclaimed := srv.Storage().CollectGarbage()
	if err := srv.Close(ctx); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "reclaimed %d elements\n", reclaimed)
	return err
}
