package main

import (
	"fmt"
	"monallopay/internal/addrcodec"

	"github.com/spf13/cobra"
)

func newAddressCmd(a *app) *cobra.Command {
	var hrp string
	prefix := func() string {
		if hrp != "" {
			return hrp
		}
		return a.cfg.Chain.AddressPrefix
	}

	cmd := &cobra.Command{
		Use:   "address",
		Short: "Convert and check addresses",
	}
	cmd.PersistentFlags().StringVar(&hrp, "hrp", "", "bech32 prefix; defaults to CHAIN_ADDRESS_PREFIX")

	cmd.AddCommand(&cobra.Command{
		Use:   "encode HEX",
		Short: "Render a 0x address in bech32 form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := addrcodec.ToChainAddress(prefix(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "decode BECH32",
		Short: "Render a bech32 address as 0x hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := addrcodec.Decode(prefix(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate ADDRESS",
		Short: "Check an address as a transfer recipient and as a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			hex, err := addrcodec.Normalize(prefix(), args[0])
			if err != nil {
				_, _ = fmt.Fprintf(out, "recipient: %s (%v)\n", a.t("InvalidAddressFormat", nil), err)
			} else {
				_, _ = fmt.Fprintf(out, "recipient: ok %s\n", hex)
			}
			_, _ = fmt.Fprintf(out, "contact: %t\n", addrcodec.ValidateContactAddress(args[0]))
			return nil
		},
	})
	return cmd
}
