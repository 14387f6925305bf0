package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kwscan/config"
	"kwscan/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	verbose bool
	logger  *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kwscan",
	Short: "Estimate the breakage risk of reserving new PHP keywords",
	Long: `kwscan scans a corpus of PHP packages for identifiers that would collide
with a proposed reserved keyword, classifies every hit by syntactic role and
reports how many packages would break.

Example usage:
  kwscan init -k with,await          # Write kwscan.yaml
  kwscan analyze vendor/ -k with     # Analyze a Composer vendor tree
  kwscan analyze zips/ --zipballs    # Analyze downloaded package zipballs
  kwscan classify src/A.php -k with  # Show the hits in one file`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.ApplyEnv(rootDir); err != nil {
			return fmt.Errorf("failed to apply environment: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		logger, err = logging.New(cfg.Logging, os.Stderr)
		if err != nil {
			return err
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./kwscan.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "project directory holding kwscan.yaml and .kwscan/ (default is current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

func GetLogger() *logrus.Logger {
	if logger == nil {
		return logging.Discard()
	}
	return logger
}
