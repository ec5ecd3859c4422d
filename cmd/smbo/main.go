package main

import (
	"os"

	"github.com/spf13/cobra"
)

// newRootCommand creates the top-level smbo command
func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "smbo",
		Short:         "Surrogate-model based optimization of external programs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newRunCommand(&runOptions{}))
	rootCmd.AddCommand(newValidateCommand(&validateOptions{}))
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Stderr.WriteString("error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
