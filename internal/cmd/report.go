package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coreos-platform/seccore"
)

func parseSeverity(s string) (seccore.LintSeverity, error) {
	switch strings.ToLower(s) {
	case "info":
		return seccore.LintInfo, nil
	case "warn":
		return seccore.LintWarn, nil
	case "high":
		return seccore.LintHigh, nil
	default:
		return 0, fmt.Errorf("unknown severity %q (info, warn, high)", s)
	}
}

func newLintCmd(cli *CLI, root *rootOptions) *cobra.Command {
	var failOn string

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Check a configuration for risky settings",
		Long: `Load and validate a configuration, then list lint findings.
The command fails when a finding reaches the --fail-on severity.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			threshold, err := parseSeverity(failOn)
			if err != nil {
				return err
			}
			cfg, err := seccore.LoadConfig(root.ConfigFile)
			if err != nil {
				return err
			}

			result := cfg.Lint()
			for _, w := range result {
				cli.Output("[%s] %s: %s", w.Severity, w.Code, w.Message)
			}
			if len(result) == 0 {
				cli.Output("no findings")
			}
			return result.AsError(threshold)
		},
	}

	cmd.Flags().StringVar(&failOn, "fail-on", "high", "Lowest severity that fails the command (info, warn, high)")
	return cmd
}

type reportOptions struct {
	Format    string
	RedisAddr string
}

func newReportCmd(cli *CLI, root *rootOptions) *cobra.Command {
	var options reportOptions

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the security posture of a configuration",
		Long: `Build an engine from the configuration and print its security report.
Secrets and key material are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := seccore.LoadConfig(root.ConfigFile)
			if err != nil {
				return err
			}
			logger, err := newLogger(cli, root.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			addr := options.RedisAddr
			if addr == "" {
				addr = cfg.Redis.Addr
			}
			client, _, release, err := redisClient(addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer release()

			engine, err := seccore.New().
				WithConfig(cfg).
				WithRedis(client).
				WithCredentialStore(noUsers).
				WithLogger(logger).
				Build()
			if err != nil {
				return err
			}
			defer engine.Close()

			return writeReport(cli, options.Format, engine.SecurityReport())
		},
	}

	cmd.Flags().StringVarP(&options.Format, "format", "f", "yaml", "Output format (yaml, json)")
	cmd.Flags().StringVar(&options.RedisAddr, "redis-addr", "", "Redis address; defaults to redis.addr from the config")
	return cmd
}

func writeReport(cli *CLI, format string, report seccore.SecurityReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(cli.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(cli.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (yaml, json)", format)
	}
}
