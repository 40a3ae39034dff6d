package cmd

import (
	"context"
	"fmt"

	"github.com/asterixix/tecza/internal/ui"
	"github.com/asterixix/tecza/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	vaultExportOutput string
	vaultExportForce  bool
	vaultImportNoPub  bool
	vaultImportForce  bool
)

func init() {
	vaultExportCmd.Flags().StringVarP(&vaultExportOutput, "output", "o", "", "file to write the vault to")
	vaultExportCmd.Flags().BoolVarP(&vaultExportForce, "force", "f", false, "overwrite an existing file")
	_ = vaultExportCmd.MarkFlagRequired("output")

	vaultImportCmd.Flags().BoolVar(&vaultImportNoPub, "no-publish", false, "do not publish the imported public key")
	vaultImportCmd.Flags().BoolVarP(&vaultImportForce, "force", "f", false, "replace a different vault at the configured path")

	vaultCmd.AddCommand(vaultExportCmd)
	vaultCmd.AddCommand(vaultImportCmd)
}

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Move your private key between devices",
	Long: `A vault is your private key encrypted under a passphrase. Export one on a
device that holds your key and import it on another.

With --passphrase-stdin, export reads the current passphrase and then the
new one, one per line.`,
}

var vaultExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export your private key to a new vault file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		env, err := openEnv(ctx, nil)
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}
		defer env.Close()

		if err := env.Unlock(); err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}

		passphrase, err := readNewPassphrase("Passphrase for the exported vault: ")
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}

		spinner, cleanup := startSpinner("Sealing vault...")
		defer cleanup()

		result, err := workflows.VaultExport(ctx, env, workflows.VaultExportOptions{
			Output:     vaultExportOutput,
			Passphrase: passphrase,
			Force:      vaultExportForce,
		})
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}

		spinner.FinalMSG = ui.Success.Sprint("✓") + " Exported key " + result.Fingerprint + " to " + ui.Path.Sprint(result.Path)
		return nil
	},
}

var vaultImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a private key from a vault file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readPassphrase("Vault passphrase: ")
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}

		spinner, cleanup := startSpinner("Unlocking vault...")
		defer cleanup()

		ctx := context.Background()
		env, err := openEnv(ctx, spinner)
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}
		defer env.Close()

		result, err := workflows.VaultImport(ctx, env, workflows.VaultImportOptions{
			Path:       args[0],
			Passphrase: passphrase,
			Publish:    !vaultImportNoPub,
			Force:      vaultImportForce,
		})
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}

		msg := ui.Success.Sprint("✓") + " Imported key " + result.Fingerprint + "\n" +
			ui.Field("Vault", ui.Path.Sprint(result.VaultPath))
		if result.ReplacedFingerprint != "" {
			msg += ui.Warning.Sprint("⚠") + " Replaced published key " + result.ReplacedFingerprint
		}
		spinner.FinalMSG = msg
		return nil
	},
}
