// Command gantry compiles functions written in the ir text format and prints
// the resulting machine code.
package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gantry-go/gantry"
)

func main() {
	os.Exit(run(os.Stdout, os.Stderr, os.Args[1:]))
}

// run executes the CLI against the given streams and returns the process exit
// code. Tests call it directly with buffers.
func run(stdout, stderr io.Writer, args []string) int {
	c := newRootCommand(stdout, stderr)
	c.cmd.SetArgs(args)
	if err := c.cmd.Execute(); err != nil {
		c.logger.Error(err.Error())
		return 1
	}
	return 0
}

// rootCommand holds what every subcommand needs: the output streams and the
// shared logger.
type rootCommand struct {
	cmd     *cobra.Command
	logger  *logrus.Logger
	stdout  io.Writer
	verbose bool
}

func newRootCommand(stdout, stderr io.Writer) *rootCommand {
	logger := logrus.New()
	logger.SetOutput(stderr)

	c := &rootCommand{logger: logger, stdout: stdout}
	c.cmd = &cobra.Command{
		Use:           "gantry",
		Short:         "a standalone compiler backend for the ir text format",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if c.verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
		},
	}
	c.cmd.SetOut(stdout)
	c.cmd.SetErr(stderr)
	c.cmd.PersistentFlags().AddFlagSet(c.persistentFlagSet())

	c.cmd.AddCommand(newCompileCommand(c))
	c.cmd.AddCommand(newVersionCommand(c))
	return c
}

func (c *rootCommand) persistentFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	return flags
}

func newVersionCommand(root *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the gantry version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("gantry %s\n", gantry.Version())
		},
	}
}
