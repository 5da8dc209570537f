// Command aethercore runs the cross-ledger bridge node and offers key and
// chain safety tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "aethercore",
		Short:         "Quantum-resistant bridge node and chain safety tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.AddCommand(
		newServeCommand(opts),
		newKeygenCommand(),
		newSignCommand(),
		newVerifyCommand(),
		newEvaluateCommand(opts),
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
