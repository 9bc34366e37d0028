// Package main is the entry point for the healthmon daemon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/jamesprial/healthmon/internal/config"
	"github.com/jamesprial/healthmon/internal/health"
	"github.com/jamesprial/healthmon/internal/logsink"
	"github.com/jamesprial/healthmon/internal/metrics"
	"github.com/jamesprial/healthmon/internal/tools"
)

const (
	defaultConfigPath = "/etc/healthmon/config.yaml"
	defaultEnvFile    = "/etc/healthmon/healthmon.env"

	serverName    = "healthmon"
	serverVersion = "1.0.0"
)

type options struct {
	configPath string
	envFile    string
}

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	// Unambiguous prefixes select a subcommand, so "chec" runs check.
	cobra.EnablePrefixMatching = true
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "healthmon",
		Short:         "Monitor switch fans, power supplies and temperatures",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "optional dotenv file with HEALTHMON_* overrides")

	cmd.AddCommand(
		newStartCommand(opts),
		newCheckCommand(opts),
		newStopCommand(opts),
		newServeCommand(opts),
	)
	return cmd
}

func newStartCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run health checks until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return runStart(ctx, cfg)
		},
	}
}

func newCheckCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one tick and print the snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			snap := a.monitor.Tick(cmd.Context())
			out, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newStopCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal a running healthmon to stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			pid, err := stopPid(cfg.Paths.PidFile)
			if err != nil {
				return err
			}
			klog.Infof("sent SIGTERM to healthmon (pid %d)", pid)
			return nil
		},
	}
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve read-only health tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			calls, err := a.openCallLog(cfg)
			if err != nil {
				return err
			}

			klog.Infof("%s serving MCP on stdio, schema %s", cfg.Log.Tag, cfg.Paths.Schema)
			return server.ServeStdio(newMCPServer(a, calls))
		},
	}
}

// newMCPServer registers the health tools on a fresh MCP server.
func newMCPServer(a *app, calls *logsink.JSON) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)
	tools.RegisterAll(s, health.Tools(a.monitor, calls))
	return s
}

func runStart(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Paths.PidFile != "" {
		if err := writePidFile(cfg.Paths.PidFile, os.Getpid()); err != nil {
			return err
		}
		defer removePidFile(cfg.Paths.PidFile)
	}

	var exporter *metrics.Exporter
	if cfg.Metrics.Textfile != "" {
		exporter = metrics.NewExporter(cfg.Metrics.Textfile)
	}

	a.sink.Warningf("%s start", cfg.Log.Tag)
	klog.V(1).Infof("schema %s, interval %s", cfg.Paths.Schema, cfg.Interval())
	err = a.monitor.Run(ctx, cfg.Interval(), func(snap health.Snapshot) {
		if exporter == nil {
			return
		}
		exporter.Observe(snap)
		if err := exporter.Flush(); err != nil {
			klog.Warningf("metrics export: %v", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		a.sink.Warningf("stop")
		return nil
	}
	return err
}

// loadConfig reads the env file and the config file, applies environment
// overrides and validates the result. A missing config or env file falls
// back to defaults.
func loadConfig(opts *options) (*config.Config, error) {
	if opts.envFile != "" {
		if err := config.LoadEnvFile(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg, err := config.LoadConfig(opts.configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		klog.V(1).Infof("no config at %q, using defaults", opts.configPath)
		cfg = config.DefaultConfig()
	case err != nil:
		return nil, err
	default:
		klog.V(1).Infof("loaded config from %q", opts.configPath)
	}

	if err := config.ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
