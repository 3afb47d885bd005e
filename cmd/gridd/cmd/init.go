package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"obscuraplay/internal/config"
	"obscuraplay/internal/coprocessor"
	"obscuraplay/internal/gcrypto"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config and generate the network key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := homeDir(cmd)
			if err != nil {
				return err
			}
			path, err := config.WriteDefault(home)
			if err != nil {
				return err
			}
			kp, err := coprocessor.LoadOrGenerateNetworkKey(filepath.Join(home, "config"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config:      %s\nnetwork key: %s\n", path, gcrypto.BytesToHex(kp.Public.Bytes()))
			return nil
		},
	}
}

func networkKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "network-key",
		Short: "Print the public key clients encrypt inputs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := homeDir(cmd)
			if err != nil {
				return err
			}
			kp, err := coprocessor.LoadOrGenerateNetworkKey(filepath.Join(home, "config"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), gcrypto.BytesToHex(kp.Public.Bytes()))
			return nil
		},
	}
}
