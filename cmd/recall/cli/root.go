package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	homeDir    string
	verbose    bool
	ciMode     bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Screen-session capture, summarization and retrieval QA",
	Long: `Recall captures the foreground window at a fixed interval, has a vision model
summarize every new screen, and answers questions about the session from
those summaries.`,
	SilenceUsage: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.recall/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "State directory for the database and stored config (default ~/.recall, or $RECALL_HOME)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&ciMode, "ci", false, "CI mode: JSON logs, non-interactive")
}
