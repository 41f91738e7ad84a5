package cmd

import (
	"bodytweaker/internal/app/client"
	"bodytweaker/internal/domain/schema"
	"bodytweaker/internal/utils/output"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Поднять версию схемы данных",
	Long: `Прогоняет миграции схемы хранимых данных. Миграции выполняются и при
любом запуске клиента, команда нужна, чтобы увидеть итоговую версию.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		version := app.Schema.Run(cmd.Context())
		out := output.FromContext(cmd.Context(), cmd.OutOrStdout())
		return out.Print(map[string]int{"schema_version": version, "current": schema.CurrentVersion}, nil)
	},
}
