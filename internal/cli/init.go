package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kwscan/config"
)

var (
	initKeywords []string
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a kwscan.yaml with the default settings",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringSliceVarP(&initKeywords, "keywords", "k", nil, "candidate keywords to store")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing kwscan.yaml")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(GetRootDir(), "kwscan.yaml")
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	cfg := config.DefaultConfig()
	cfg.Scan.Keywords = initKeywords
	if len(cfg.Scan.Keywords) > 0 {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
