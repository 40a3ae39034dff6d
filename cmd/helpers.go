package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/ui"
	"github.com/asterixix/tecza/internal/utils"
	"github.com/asterixix/tecza/internal/workflows"
	"github.com/briandowns/spinner"
)

var stdinReader *bufio.Reader

func stdin() *bufio.Reader {
	if stdinReader == nil {
		stdinReader = bufio.NewReader(os.Stdin)
	}
	return stdinReader
}

// startSpinner starts a spinner with message unless verbose or debug
// output is enabled. The returned cleanup stops it and prints FinalMSG,
// which does not need a trailing newline.
func startSpinner(message string) (*spinner.Spinner, func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr

	if err := s.Color("cyan"); err != nil {
		Logger.Warnf("Failed to set spinner color: %v", err)
	}

	quiet := !verbose && !debug
	if quiet {
		s.Start()
		log.SetOutput(io.Discard)
	} else {
		Logger.Infof("%s", message)
	}

	cleanup := func() {
		if quiet {
			log.SetOutput(os.Stderr)
		}

		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			s.FinalMSG = ""
		}

		if quiet {
			s.Stop()
		}
		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}

	return s, cleanup
}

// readPassphrase reads one passphrase from stdin when --passphrase-stdin
// is set, and from the terminal otherwise.
func readPassphrase(prompt string) (string, error) {
	if passphraseStdin {
		line, err := stdin().ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return "", fmt.Errorf("reading passphrase from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	var raw []byte
	var err error
	if utils.IsTerminal() {
		raw, err = utils.ReadPassphrase(prompt)
	} else {
		raw, err = utils.ReadPassphraseFromTTY(prompt)
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// readNewPassphrase reads a passphrase for a new vault, asking twice when
// prompting interactively.
func readNewPassphrase(prompt string) (string, error) {
	passphrase, err := readPassphrase(prompt)
	if err != nil {
		return "", err
	}
	if passphrase == "" {
		return "", kerrors.ErrEmptyPassphrase
	}
	if passphraseStdin {
		return passphrase, nil
	}

	confirm, err := readPassphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if confirm != passphrase {
		return "", fmt.Errorf("passphrases do not match")
	}
	return passphrase, nil
}

// pausingPassphrase returns a PassphraseFunc that hides the spinner while
// the user types.
func pausingPassphrase(s *spinner.Spinner) workflows.PassphraseFunc {
	return func(prompt string) (string, error) {
		if s != nil && s.Active() {
			s.Stop()
			defer s.Start()
		}
		return readPassphrase(prompt)
	}
}

// openEnv opens the session environment for a command.
func openEnv(ctx context.Context, s *spinner.Spinner) (*workflows.Env, error) {
	return workflows.OpenEnv(ctx, workflows.EnvOptions{
		Home:       home,
		Logger:     Logger,
		Passphrase: pausingPassphrase(s),
	})
}

func fail(text string) string {
	return ui.Error.Sprint("✗") + " " + text
}

func hint(text string) string {
	return "\n" + ui.Info.Sprint("→") + " " + text
}

// formatError turns a workflow error into a message for the user.
func formatError(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrConfigExists):
		return fail("A config file already exists") +
			hint("Run "+ui.Code.Sprint("tecza config init --force")+" to overwrite it")

	case errors.Is(err, kerrors.ErrInvalidConfig), errors.Is(err, kerrors.ErrUnknownStoreDriver):
		return fail(err.Error()) +
			hint("Check "+ui.Code.Sprint("tecza config show")+" or run "+ui.Code.Sprint("tecza config init"))

	case errors.Is(err, kerrors.ErrVaultNotFound):
		return fail("No key vault found: "+err.Error()) +
			hint("Run "+ui.Code.Sprint("tecza keys generate")+" or "+ui.Code.Sprint("tecza vault import FILE"))

	case errors.Is(err, kerrors.ErrVaultExists):
		return fail(err.Error()) +
			hint("Pass "+ui.Flag.Sprint("--force")+" to overwrite it")

	case errors.Is(err, kerrors.ErrWrongPassphraseOrCorruptVault):
		return fail("Wrong passphrase or corrupt vault")

	case errors.Is(err, kerrors.ErrUnsupportedVaultVersion), errors.Is(err, kerrors.ErrInvalidVault):
		return fail("The vault file cannot be read: " + err.Error())

	case errors.Is(err, kerrors.ErrEmptyPassphrase):
		return fail("A passphrase is required")

	case errors.Is(err, kerrors.ErrAlreadyInitialized):
		return fail("A private key is already loaded in this session")

	case errors.Is(err, kerrors.ErrParticipantKeyMissing):
		return fail("You hold no key for this conversation") +
			hint("Ask a participant to run "+ui.Code.Sprint("tecza conversation grant ID <you>"))

	case errors.Is(err, kerrors.ErrUnwrapFailed):
		return fail("Your private key cannot unwrap this conversation's key") +
			hint("Import the vault holding the key it was wrapped for, or ask for a new grant")

	case errors.Is(err, kerrors.ErrKeyUnavailable), errors.Is(err, kerrors.ErrNoKeyLoaded):
		return fail(err.Error())

	case errors.Is(err, kerrors.ErrNoParticipants):
		return fail("Name at least one participant other than yourself")

	case errors.Is(err, kerrors.ErrConversationNotFound),
		errors.Is(err, kerrors.ErrMessageNotFound),
		errors.Is(err, kerrors.ErrBlobNotFound),
		errors.Is(err, kerrors.ErrInvalidID),
		errors.Is(err, kerrors.ErrInvalidDateFormat):
		return fail(err.Error())

	default:
		return fail("Unexpected error: " + err.Error())
	}
}
