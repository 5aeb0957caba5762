package cmd

import (
	"encoding/base64"

	"github.com/spf13/cobra"

	"github.com/coreos-platform/seccore/encryption"
)

func newKeygenCmd(cli *CLI) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an encryption key",
		Long:  `Generate a random 256-bit key suitable for encryption.key or SECCORE_ENCRYPTION_KEY.`,
		Example: `
# Print a key id and a base64 key
$ seccore keygen

# Print only the key, for use in scripts
$ seccore keygen --quiet
`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, err := encryption.New(encryption.Config{})
			if err != nil {
				return err
			}
			key, err := svc.GenerateKey()
			if err != nil {
				return err
			}

			encoded := base64.StdEncoding.EncodeToString(key.Bytes())
			if quiet {
				cli.Output("%s", encoded)
				return nil
			}
			cli.Output("key_id: %s", key.ID)
			cli.Output("key:    %s", encoded)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the encoded key")
	return cmd
}
