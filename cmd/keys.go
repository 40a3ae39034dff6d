package cmd

import (
	"context"
	"fmt"

	"github.com/asterixix/tecza/internal/ui"
	"github.com/asterixix/tecza/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	keysGenerateOutput string
	keysGenerateForce  bool
)

func init() {
	keysGenerateCmd.Flags().StringVarP(&keysGenerateOutput, "output", "o", "", "write the vault here instead of the configured vault path")
	keysGenerateCmd.Flags().BoolVarP(&keysGenerateForce, "force", "f", false, "overwrite an existing vault")

	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysShowCmd)
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage your keypair",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate and publish a new keypair",
	Long: `Generates an RSA keypair, publishes its public key on your profile and
seals the private key into a passphrase-protected vault.

Conversations created for your previous key stay readable only with that
key. Keep the vault: it is the only copy of your private key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readNewPassphrase("New vault passphrase: ")
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}

		spinner, cleanup := startSpinner("Generating keypair...")
		defer cleanup()

		ctx := context.Background()
		env, err := openEnv(ctx, spinner)
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}
		defer env.Close()

		result, err := workflows.KeysGenerate(ctx, env, workflows.KeysGenerateOptions{
			Output:     keysGenerateOutput,
			Passphrase: passphrase,
			Force:      keysGenerateForce,
		})
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}

		msg := ui.Success.Sprint("✓") + " Generated keypair for " + ui.Highlight.Sprint(env.Identity) + "\n" +
			ui.Field("Fingerprint", result.Fingerprint) +
			ui.Field("Vault", ui.Path.Sprint(result.VaultPath))
		if result.ReplacedFingerprint != "" {
			msg += ui.Warning.Sprint("⚠") + " Replaced published key " + result.ReplacedFingerprint +
				hint("Conversations wrapped for it need "+ui.Code.Sprint("tecza conversation grant"))
		}
		spinner.FinalMSG = msg
		return nil
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show [IDENTITY]",
	Short: "Show a published public key fingerprint",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		env, err := openEnv(ctx, nil)
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}
		defer env.Close()

		identity := ""
		if len(args) == 1 {
			identity = args[0]
		}

		result, err := workflows.KeysShow(ctx, env, identity)
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}

		published := ui.Warning.Sprint("none")
		if result.Published {
			published = result.PublishedFingerprint
		}
		fmt.Println("Keys for " + ui.Highlight.Sprint(result.Identity))
		fmt.Print(ui.Field("Published", published))

		if result.Identity == env.Identity {
			vaultState := ui.Path.Sprint(result.VaultPath)
			if !result.VaultExists {
				vaultState += " " + ui.Muted.Sprint("missing")
			}
			fmt.Print(ui.Field("Vault", vaultState))
			if result.SessionFingerprint != "" && result.SessionFingerprint != result.PublishedFingerprint {
				fmt.Print(ui.Field("Session key", result.SessionFingerprint+" "+ui.Muted.Sprint("not the published key")))
			}
		}
		return nil
	},
}
