package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/zkbench/internal/output"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "zkbench",
	Short:   "Measure node-creation throughput of a coordination service",
	Version: version,
	Long: `zkbench drives many concurrent workers that create nodes under a single
root in a ZooKeeper-style coordination service for a fixed window, then
counts the children and reports operations per second.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print help
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it.
// The returned error has always been reported to the user.
func Execute() error {
	err := RootCmd.Execute()
	if err != nil {
		var r *reportedError
		if !errors.As(err, &r) {
			output.NewConsole(output.ConsoleConfig{Writer: RootCmd.OutOrStdout()}).PrintError(err)
		}
	}
	return err
}

// reportedError marks an error that has already been printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

func reported(console *output.Console, err error) error {
	console.PrintError(err)
	return &reportedError{err: err}
}

// flagError reports flag parsing failures, which cobra returns before RunE.
func flagError(cmd *cobra.Command, err error) error {
	noColor, _ := cmd.Flags().GetBool("no-color")
	console := output.NewConsole(output.ConsoleConfig{Writer: cmd.OutOrStdout(), NoColor: noColor})
	return reported(console, err)
}

func init() {
	RootCmd.SetFlagErrorFunc(flagError)
	RootCmd.AddCommand(newRunCmd())
}
