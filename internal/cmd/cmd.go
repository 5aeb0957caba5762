// Package cmd implements the seccore command line: key generation, password
// hashing, configuration checks and a load generator for a running engine.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coreos-platform/seccore"
)

// CLI carries the output streams shared by every command.
type CLI struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func newCLI() *CLI {
	return &CLI{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (c *CLI) Output(format string, args ...any) {
	fmt.Fprintf(c.Stdout, format+"\n", args...)
}

type rootOptions struct {
	ConfigFile string
	LogLevel   string
}

// Run executes the command line with args.
func Run(ctx context.Context, args ...string) error {
	return run(ctx, newCLI(), args...)
}

func run(ctx context.Context, cli *CLI, args ...string) error {
	cmd := NewRootCmd(cli)
	cmd.SetArgs(args)
	cmd.SetOut(cli.Stdout)
	cmd.SetErr(cli.Stderr)
	return cmd.ExecuteContext(ctx)
}

func NewRootCmd(cli *CLI) *cobra.Command {
	var opts rootOptions

	rootCmd := &cobra.Command{
		Use:               "seccore",
		Short:             "Security core administration",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newKeygenCmd(cli))
	rootCmd.AddCommand(newHashCmd(cli, &opts))
	rootCmd.AddCommand(newLintCmd(cli, &opts))
	rootCmd.AddCommand(newReportCmd(cli, &opts))
	rootCmd.AddCommand(newLoadtestCmd(cli, &opts))

	return rootCmd
}

func newLogger(cli *CLI, level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(cli.Stderr), lvl)
	return zap.New(core), nil
}

// redisClient dials addr, or starts an in-process miniredis when addr is
// empty. The returned func releases both.
func redisClient(addr, password string, db int) (redis.UniversalClient, string, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, "", nil, fmt.Errorf("starting miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		return client, "miniredis " + mr.Addr(), func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: password,
		DB:       db,
	})
	return client, "redis " + addr, func() { _ = client.Close() }, nil
}

// noUsers is the credential store for commands that never authenticate.
var noUsers = seccore.CredentialStoreFunc(func(context.Context, string) (*seccore.UserRecord, error) {
	return nil, seccore.ErrUserNotFound
})
