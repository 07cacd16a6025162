package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thunderhead-labs/poktinfo/pkg/keys"
	"github.com/thunderhead-labs/poktinfo/pkg/utils"
)

type KeyCmd struct{}

func NewKeyCmd() *KeyCmd {
	return &KeyCmd{}
}

func (c *KeyCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Address and key helpers",
	}

	address := &cobra.Command{
		Use:   "address PUBLIC_KEY",
		Short: "Print the address of a hex public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := keys.AddressFromPublicKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}

	check := &cobra.Command{
		Use:   "check ADDRESS",
		Short: "Check that the private key in POKT_PRIVATE_KEY controls ADDRESS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := cmd.Flags().GetString("private-key")
			if err != nil {
				return fmt.Errorf("failed to get private-key flag: %w", err)
			}
			if priv == "" {
				priv = utils.Env("POKT_PRIVATE_KEY", "")
			}
			if priv == "" {
				return fmt.Errorf("no private key given")
			}
			ok, err := keys.ValidatePrivateKey(priv, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("key does not control %s", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	check.Flags().String("private-key", "", "hex private key (default POKT_PRIVATE_KEY)")

	cmd.AddCommand(address, check)
	return cmd
}
