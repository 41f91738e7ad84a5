package backup

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"bodytweaker/internal/app/client"
	domain "bodytweaker/internal/domain/backup"
	"bodytweaker/internal/utils/output"

	"github.com/spf13/cobra"
)

var (
	outFile string
	confirm bool
)

var BackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Резервная копия данных",
	Long: `Экспорт и импорт данных в JSON-файл версии 1.
В файл попадают история голодания, текущая сессия, имя, тема,
согласия и версия схемы.`,
}

var ExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Выгрузить данные в файл",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		doc, err := app.Backup.Export(cmd.Context())
		if err != nil {
			return err
		}

		if outFile == "" || outFile == "-" {
			return domain.Encode(cmd.OutOrStdout(), doc)
		}

		f, err := os.OpenFile(outFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("не удалось создать файл: %w", err)
		}
		if err := domain.Encode(f, doc); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}

		return output.FromContext(cmd.Context(), cmd.ErrOrStderr()).
			Message("бэкап сохранен в %s (записей истории: %d)", outFile, len(doc.Data.HistoryFasting))
	},
}

var ImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Восстановить данные из файла",
	Long: `Восстанавливает данные из файла бэкапа. "-" читает stdin.
Ключи, которых нет в файле, не трогаются.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("не удалось открыть файл: %w", err)
			}
			defer f.Close()
			r = f
		}

		res, err := app.Backup.Import(cmd.Context(), r)
		if err != nil {
			return err
		}

		out := output.FromContext(cmd.Context(), cmd.OutOrStdout())
		return out.Print(res, func(tw *tabwriter.Writer) {
			fmt.Fprintf(tw, "Записей истории:\t%d\n", res.HistoryRecords)
			if res.HistoryDropped > 0 {
				fmt.Fprintf(tw, "Отброшено записей:\t%d\n", res.HistoryDropped)
			}
			fmt.Fprintf(tw, "Ключи:\t%s\n", strings.Join(res.Keys, ", "))
		})
	},
}

var ResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Удалить все данные приложения",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !confirm {
			return fmt.Errorf("сброс удаляет все данные, повторите с --yes")
		}

		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		if err := app.Backup.Reset(cmd.Context()); err != nil {
			return err
		}
		return output.FromContext(cmd.Context(), cmd.OutOrStdout()).Message("данные удалены")
	},
}

func init() {
	ExportCmd.Flags().StringVarP(&outFile, "out", "o", "", "файл для записи, по умолчанию stdout")
	ResetCmd.Flags().BoolVar(&confirm, "yes", false, "подтвердить сброс")
}
