package cmd

import (
	"errors"
	"fmt"
	"os"

	logger "github.com/asterixix/tecza/internal/logging"
	"github.com/asterixix/tecza/internal/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	verbose         bool
	debug           bool
	home            string
	passphraseStdin bool
	Logger          logger.Logger

	// RootCmd is the top-level tecza command.
	RootCmd = &cobra.Command{
		Use:   "tecza",
		Short: "End-to-end encrypted conversations from the command line",
		Long: `tecza keeps conversations encrypted end to end. Messages and media are
encrypted on your machine with a per-conversation key; the store only ever
sees ciphertext and key copies wrapped for each participant's public key.

Getting started:
  tecza config init --identity alice@example.com
  tecza keys generate
  tecza conversation create bob@example.com
  tecza conversation send <id> "hello"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			Logger = logger.Logger{
				Verbose: verbose,
				Debug:   debug,
			}
			Logger.Debugf("Running %s with verbose=%t, debug=%t", cmd.CommandPath(), verbose, debug)
		},
	}
)

func init() {
	flags := RootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVarP(&debug, "debug", "d", false, "enable debug output")
	flags.StringVar(&home, "home", "", "keep config, data and session files under this directory")
	flags.BoolVar(&passphraseStdin, "passphrase-stdin", false, "read passphrases from stdin, one per line")

	RootCmd.AddCommand(configCmd)
	RootCmd.AddCommand(keysCmd)
	RootCmd.AddCommand(vaultCmd)
	RootCmd.AddCommand(conversationCmd)
	RootCmd.AddCommand(logCmd)
}

// reportedError marks an error whose message was already shown.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err: err}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		var r reportedError
		if !errors.As(err, &r) {
			fmt.Fprintln(os.Stderr, ui.Error.Sprint("✗")+" "+err.Error())
		}
		return 1
	}
	return 0
}

// ResetGlobalState restores every flag of every command to its default.
// Used by tests that execute several commands in one process.
func ResetGlobalState() {
	verbose = false
	debug = false
	home = ""
	passphraseStdin = false
	stdinReader = nil
	Logger = logger.Logger{}
	resetFlags(RootCmd)
}

func resetFlags(cmd *cobra.Command) {
	reset := func(flag *pflag.Flag) {
		if sv, ok := flag.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = flag.Value.Set(flag.DefValue)
		}
		flag.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}
