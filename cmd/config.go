package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/asterixix/tecza/internal/configs"
	"github.com/asterixix/tecza/internal/ui"
	"github.com/asterixix/tecza/internal/utils"
	"github.com/asterixix/tecza/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	configInitIdentity    string
	configInitStoreDriver string
	configInitMediaDriver string
	configInitForce       bool
)

func init() {
	configInitCmd.Flags().StringVarP(&configInitIdentity, "identity", "i", "", "your identity (defaults to user@host)")
	configInitCmd.Flags().StringVar(&configInitStoreDriver, "store", "", "store driver: "+configs.StoreDriverSQLite+" or "+configs.StoreDriverMemory)
	configInitCmd.Flags().StringVar(&configInitMediaDriver, "media", "", "media driver: "+configs.MediaDriverStore+" or "+configs.MediaDriverMinIO)
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tecza configuration",
	Long: `Creates and shows the user configuration.

The config file lives in $XDG_CONFIG_HOME/tecza/config.toml. The
TECZA_IDENTITY, TECZA_STORE_PATH and TECZA_MINIO_ENDPOINT environment
variables override it.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a new config file",
	Long: `Writes a config file with your identity and the default drivers.

Examples:
  tecza config init --identity alice@example.com
  tecza config init --identity alice --media minio`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spinner, cleanup := startSpinner("Writing config...")
		defer cleanup()

		result, err := workflows.ConfigInit(context.Background(), workflows.ConfigInitOptions{
			Home:        home,
			Identity:    configInitIdentity,
			StoreDriver: configInitStoreDriver,
			MediaDriver: configInitMediaDriver,
			Force:       configInitForce,
			Logger:      Logger,
		})
		if err != nil {
			spinner.FinalMSG = formatError(err)
			return reported(err)
		}

		spinner.FinalMSG = ui.Success.Sprint("✓") + " Config written to " + ui.Path.Sprint(result.Path) + "\n" +
			ui.Field("Identity", ui.Highlight.Sprint(result.Config.User.Identity)) +
			ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("tecza keys generate") + " to create your keypair"
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := workflows.ConfigShow(context.Background(), home)
		if err != nil {
			fmt.Println(formatError(err))
			return reported(err)
		}

		cfg := result.Config
		source := ui.Path.Sprint(result.Path)
		if !result.Exists {
			source += " " + ui.Muted.Sprint("not created yet, showing defaults")
		}

		identity := cfg.User.Identity
		if identity == "" {
			identity = ui.Warning.Sprint("not set")
		} else {
			identity = ui.Highlight.Sprint(identity)
		}

		var b strings.Builder
		b.WriteString("Config " + source + "\n")
		b.WriteString(ui.Field("Identity", identity))
		b.WriteString(ui.Field("Vault", ui.Path.Sprint(cfg.User.VaultPath)))
		b.WriteString(ui.Field("Store", cfg.Store.Driver))
		if cfg.Store.Driver == configs.StoreDriverSQLite {
			b.WriteString(ui.Field("Database", ui.Path.Sprint(cfg.Store.SQLitePath)))
		}
		b.WriteString(ui.Field("Media", cfg.Media.Driver))
		if cfg.Media.Driver == configs.MediaDriverMinIO {
			b.WriteString(ui.Field("MinIO", fmt.Sprintf("%s/%s (ssl %t)", cfg.Media.MinIO.Endpoint, cfg.Media.MinIO.Bucket, cfg.Media.MinIO.UseSSL)))
		}
		b.WriteString(ui.Field("Polling", fmt.Sprintf("%s up to %s", cfg.Realtime.PollInterval, cfg.Realtime.MaxBackoff)))
		b.WriteString(ui.Field("Audit log", ui.Path.Sprint(result.Settings.AuditPath())))
		b.WriteString("Directories:" + utils.FormatPaths([]string{
			result.Settings.ConfigDir,
			result.Settings.DataDir,
			result.Settings.RuntimeDir,
		}))
		fmt.Print(b.String())
		return nil
	},
}
