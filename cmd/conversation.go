package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/asterixix/tecza/internal/conversation"
	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/secrets"
	"github.com/asterixix/tecza/internal/store"
	"github.com/asterixix/tecza/internal/ui"
	"github.com/asterixix/tecza/internal/utils"
	"github.com/asterixix/tecza/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	readLimit      int
	readJSON       bool
	downloadOutput string
)

func init() {
	conversationReadCmd.Flags().IntVarP(&readLimit, "number", "n", 0, "show only the last N messages")
	conversationReadCmd.Flags().BoolVar(&readJSON, "json", false, "output as JSON array")
	conversationDownloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "file to write (defaults to the original name)")

	conversationCmd.AddCommand(conversationCreateCmd)
	conversationCmd.AddCommand(conversationSendCmd)
	conversationCmd.AddCommand(conversationSendFileCmd)
	conversationCmd.AddCommand(conversationReadCmd)
	conversationCmd.AddCommand(conversationWatchCmd)
	conversationCmd.AddCommand(conversationDownloadCmd)
	conversationCmd.AddCommand(conversationGrantCmd)
	conversationCmd.AddCommand(conversationMigrateCmd)
}

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv", "c"},
	Short:   "Create conversations and exchange encrypted messages",
}

var conversationCreateCmd = &cobra.Command{
	Use:   "create PARTICIPANT...",
	Short: "Start a conversation with one or more participants",
	Long: `Starts a conversation under a fresh key and gives every participant a
copy of it.

Copies are wrapped for each participant's published public key. If any
participant has not published one, every copy is stored raw instead; run
"tecza conversation migrate" once they have.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spinner, cleanup := startSpinner("Creating conversation...")
		defer cleanup()

		ctx := context.Background()
		env, err := openEnv(ctx, spinner)
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}
		defer env.Close()

		info, err := workflows.ConversationCreate(ctx, env, args)
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}

		msg := ui.Success.Sprint("✓") + " Created conversation " + ui.Highlight.Sprint(info.ID) + "\n" +
			ui.Field("Participants", strings.Join(info.Participants, ", ")) +
			ui.Field("Keys", formatCounts(info.Counts))
		if info.Counts[secrets.DistributionRawExported] > 0 {
			msg += ui.Warning.Sprint("⚠") + " Keys are stored unwrapped because not every participant has a public key" +
				hint("Run "+ui.Code.Sprint("tecza conversation migrate "+info.ID.String())+" once they publish one")
		}
		spinner.FinalMSG = msg
		return nil
	},
}

var conversationSendCmd = &cobra.Command{
	Use:   "send ID [TEXT]",
	Short: "Send a text message",
	Long: `Encrypts and sends a text message. Without TEXT the message is read
from stdin.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		env, err := openEnv(ctx, nil)
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}
		defer env.Close()

		// Unlock before reading the message so a passphrase on stdin comes
		// first.
		if err := env.Unlock(); err != nil && !errors.Is(err, kerrors.ErrVaultNotFound) {
			fmt.Println(formatError(err))
			return reported(err)
		}

		text, err := messageText(args[1:])
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}

		spinner, cleanup := startSpinner("Sending...")
		defer cleanup()

		msg, err := workflows.ConversationSend(ctx, env, args[0], text)
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}

		spinner.FinalMSG = ui.Success.Sprint("✓") + " Sent " + ui.Muted.Sprint(msg.ID)
		return nil
	},
}

var conversationSendFileCmd = &cobra.Command{
	Use:   "send-file ID PATH",
	Short: "Send a file",
	Long: `Encrypts and uploads a file. Its name and MIME type are stored in the
clear next to the encrypted content.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spinner, cleanup := startSpinner("Uploading...")
		defer cleanup()

		ctx := context.Background()
		env, err := openEnv(ctx, spinner)
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}
		defer env.Close()

		msg, err := workflows.ConversationSendFile(ctx, env, args[0], args[1])
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}

		spinner.FinalMSG = ui.Success.Sprint("✓") + " Sent " + ui.Highlight.Sprint(msg.MediaName) + " " + ui.Muted.Sprint(msg.ID)
		return nil
	},
}

var conversationReadCmd = &cobra.Command{
	Use:   "read ID",
	Short: "Show the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		env, err := openEnv(ctx, nil)
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}
		defer env.Close()

		result, err := workflows.ConversationRead(ctx, env, args[0], readLimit)
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}

		if readJSON {
			return outputMessagesJSON(result.Messages)
		}

		printHeader(result.Info)
		if len(result.Messages) == 0 {
			fmt.Println(ui.Muted.Sprint("no messages yet"))
		}
		for _, m := range result.Messages {
			printMessage(m)
		}
		return nil
	},
}

var conversationWatchCmd = &cobra.Command{
	Use:   "watch ID",
	Short: "Print new messages as they arrive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env, err := openEnv(ctx, nil)
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}
		defer env.Close()

		fmt.Println(ui.Info.Sprint("→") + " Watching " + ui.Highlight.Sprint(args[0]) + " " + ui.Muted.Sprint("Ctrl-C to stop"))
		_, err = workflows.ConversationWatch(ctx, env, args[0], printMessage)
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}
		return nil
	},
}

var conversationDownloadCmd = &cobra.Command{
	Use:   "download ID MESSAGE_ID",
	Short: "Decrypt and save the file of a media message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spinner, cleanup := startSpinner("Downloading...")
		defer cleanup()

		ctx := context.Background()
		env, err := openEnv(ctx, spinner)
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}
		defer env.Close()

		result, err := workflows.ConversationDownload(ctx, env, args[0], args[1], downloadOutput)
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}

		spinner.FinalMSG = ui.Success.Sprint("✓") + fmt.Sprintf(" Saved %s (%s, %d bytes) to ", result.Name, result.MediaType, result.Size) + ui.Path.Sprint(result.Path)
		return nil
	},
}

var conversationGrantCmd = &cobra.Command{
	Use:   "grant ID IDENTITY",
	Short: "Give a participant a copy of the conversation key",
	Long: `Gives IDENTITY a copy of the existing conversation key, wrapped for their
published public key or stored raw if they have none. The key is not
rotated, so the new participant can read the whole history.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spinner, cleanup := startSpinner("Granting access...")
		defer cleanup()

		ctx := context.Background()
		env, err := openEnv(ctx, spinner)
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}
		defer env.Close()

		method, err := workflows.ConversationGrant(ctx, env, args[0], args[1])
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}

		msg := ui.Success.Sprint("✓") + " Granted " + ui.Highlight.Sprint(args[1]) + " access " + ui.Muted.Sprint(method)
		if method == secrets.DistributionRawExported {
			msg += "\n" + ui.Warning.Sprint("⚠") + " " + args[1] + " has no public key, so their copy is stored raw"
		}
		spinner.FinalMSG = msg
		return nil
	},
}

var conversationMigrateCmd = &cobra.Command{
	Use:   "migrate ID",
	Short: "Wrap raw key copies for participants who now have public keys",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spinner, cleanup := startSpinner("Migrating keys...")
		defer cleanup()

		ctx := context.Background()
		env, err := openEnv(ctx, spinner)
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}
		defer env.Close()

		result, err := workflows.ConversationMigrate(ctx, env, args[0])
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}

		if result.Migrated == 0 {
			spinner.FinalMSG = ui.Info.Sprint("ℹ") + " Nothing to migrate " + ui.Muted.Sprint(formatCounts(result.Info.Counts))
			return nil
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + fmt.Sprintf(" Wrapped %d key copies ", result.Migrated) + ui.Muted.Sprint(formatCounts(result.Info.Counts))
		return nil
	},
}

// messageText returns the text argument, or reads it from stdin.
func messageText(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	var data []byte
	var err error
	if passphraseStdin {
		data, err = utils.ReadAllNonEmpty(stdin())
	} else {
		data, err = utils.ReadStdin("pipe the message text or pass it as an argument")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func formatCounts(counts map[secrets.Distribution]int) string {
	return fmt.Sprintf("%d wrapped, %d raw", counts[secrets.DistributionWrappedByRSA], counts[secrets.DistributionRawExported])
}

func printHeader(info *workflows.ConversationInfo) {
	fmt.Println(ui.Highlight.Sprint(info.ID) + " " + ui.Muted.Sprint(strings.Join(info.Participants, ", ")))
	if info.State != conversation.StateKeyReady {
		reason := ""
		if info.Err != nil {
			reason = ": " + info.Err.Error()
		}
		fmt.Println(ui.Warning.Sprint("⚠") + " Key " + info.State.String() + reason)
	}
}

func printMessage(m conversation.DecryptedMessage) {
	when := m.CreatedAt.Local().Format("2006-01-02 15:04")
	var body string
	switch {
	case !m.Readable:
		body = ui.Unreadable.Sprint(m.Text)
	case m.Kind == store.KindMedia:
		body = fmt.Sprintf("[file %s, %s] ", m.MediaName, m.MediaType) + ui.Muted.Sprint(m.ID)
	default:
		body = m.Text
	}
	fmt.Printf("%s  %s  %s\n", ui.Muted.Sprint(when), ui.Sender.Sprint(utils.Truncate(m.Sender, 24)), body)
}

type messageJSON struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	MediaName string    `json:"media_name,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	Readable  bool      `json:"readable"`
	Pending   bool      `json:"pending,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func outputMessagesJSON(messages []conversation.DecryptedMessage) error {
	out := make([]messageJSON, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageJSON{
			ID:        m.ID.String(),
			Sender:    m.Sender,
			Kind:      string(m.Kind),
			Text:      m.Text,
			MediaName: m.MediaName,
			MediaType: m.MediaType,
			Readable:  m.Readable,
			Pending:   m.Pending,
			CreatedAt: m.CreatedAt,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal messages to JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
