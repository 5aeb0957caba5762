package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/coreos-platform/seccore"
	"github.com/coreos-platform/seccore/password"
)

type hashOptions struct {
	Algorithm  string
	BcryptCost int
}

func newHashCmd(cli *CLI, root *rootOptions) *cobra.Command {
	var options hashOptions

	cmd := &cobra.Command{
		Use:   "hash [PASSWORD]",
		Short: "Hash a password for a credential store",
		Long: `Hash a password with the configured argon2id parameters, or with bcrypt.
When PASSWORD is omitted it is read from the first line of standard input.`,
		Example: `
# Hash with argon2id using parameters from a config file
$ seccore hash --config seccore.yaml 'correct horse battery staple'

# Hash a password read from stdin with bcrypt
$ echo -n 's3cret' | seccore hash --algorithm bcrypt
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			plain, err := readPassword(cli, args)
			if err != nil {
				return err
			}

			switch options.Algorithm {
			case "argon2id":
				cfg, err := seccore.LoadConfig(root.ConfigFile)
				if err != nil {
					return err
				}
				a, err := password.NewArgon2(password.Config{
					Memory:           cfg.Password.Memory,
					Time:             cfg.Password.Time,
					Parallelism:      cfg.Password.Parallelism,
					SaltLength:       cfg.Password.SaltLength,
					KeyLength:        cfg.Password.KeyLength,
					MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
				})
				if err != nil {
					return err
				}
				h, err := a.Hash(plain)
				if err != nil {
					return err
				}
				cli.Output("%s", h)
			case "bcrypt":
				h, err := password.HashBcrypt(plain, options.BcryptCost)
				if err != nil {
					return err
				}
				cli.Output("%s", h)
			default:
				return fmt.Errorf("unknown algorithm %q (argon2id, bcrypt)", options.Algorithm)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&options.Algorithm, "algorithm", "a", "argon2id", "Hash algorithm (argon2id, bcrypt)")
	cmd.Flags().IntVar(&options.BcryptCost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost factor")
	return cmd
}

func readPassword(cli *CLI, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(cli.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password given")
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given")
	}
	return line, nil
}
