package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"obscuraplay/internal/config"
)

const flagHome = "home"

func defaultHome() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, config.DefaultDir)
	}
	return config.DefaultDir
}

// NewRootCmd creates the gridd root command. It is called once in main.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gridd",
		Short:         "Confidential grid ledger with a decryption relay",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().String(flagHome, defaultHome(), "node home directory")

	rootCmd.AddCommand(
		initCmd(),
		startCmd(),
		networkKeyCmd(),
	)
	return rootCmd
}

func homeDir(cmd *cobra.Command) (string, error) {
	return cmd.Flags().GetString(flagHome)
}
