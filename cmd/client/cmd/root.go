package cmd

import (
	"context"
	"fmt"
	"os"

	"bodytweaker/cmd/client/cmd/backup"
	"bodytweaker/cmd/client/cmd/history"
	"bodytweaker/cmd/client/cmd/kv"
	"bodytweaker/cmd/client/cmd/sync"
	"bodytweaker/internal/app/client"
	"bodytweaker/internal/app/client/config"
	"bodytweaker/internal/utils/logger"
	"bodytweaker/internal/utils/output"

	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	jsonOutput bool
	app        *client.App
)

var rootCmd = &cobra.Command{
	Use:   "bodytweaker",
	Short: "Body Tweaker - хранилище данных Mini App",
	Long: `Клиент хранилища Body Tweaker.

Данные пишутся в локальное хранилище устройства (SQLite) и, если облако
включено, в облачное хранилище пользователя. Значения шифруются AES-GCM.
Облачные записи, которые не удалось отправить, ждут в очереди.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: closeApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		if app != nil {
			_ = app.Close()
		}
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	log := logger.NewWriter(cfg.Env, os.Stderr)

	app, err = client.New(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}
	app.Start(cmd.Context())

	ctx := client.WithApp(cmd.Context(), app)
	ctx = output.WithJSON(ctx, jsonOutput)
	cmd.SetContext(ctx)
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	return app.Close()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML-файл конфигурации")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "вывод в формате JSON")

	rootCmd.AddCommand(migrateCmd)

	rootCmd.AddCommand(kv.KVCmd)
	kv.KVCmd.AddCommand(kv.GetCmd, kv.SetCmd, kv.RemoveCmd, kv.KeysCmd, kv.ClearCmd)

	rootCmd.AddCommand(history.HistoryCmd)
	history.HistoryCmd.AddCommand(history.ListCmd, history.AddCmd, history.ClearCmd)

	rootCmd.AddCommand(backup.BackupCmd)
	backup.BackupCmd.AddCommand(backup.ExportCmd, backup.ImportCmd, backup.ResetCmd)

	rootCmd.AddCommand(sync.SyncCmd)
	sync.SyncCmd.AddCommand(sync.FlushCmd, sync.StatusCmd, sync.WatchCmd)
}
