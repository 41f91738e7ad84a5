package sync

import (
	"fmt"
	"text/tabwriter"
	"time"

	"bodytweaker/internal/app/client"
	"bodytweaker/internal/utils/output"

	"github.com/spf13/cobra"
)

var interval time.Duration

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Очередь облачной синхронизации",
	Long: `Облачные записи, которые не удалось отправить, ждут в очереди
процесса и повторяются в порядке постановки.`,
}

var FlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Повторить отложенные записи",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		out := output.FromContext(cmd.Context(), cmd.OutOrStdout())
		if !app.Status().CloudEnabled {
			return out.Message("облако отключено, очереди нет")
		}

		flushed := app.Storage.FlushCloudQueue(cmd.Context())
		res := struct {
			Flushed bool `json:"flushed"`
			Pending int  `json:"pending"`
		}{flushed, app.Storage.Pending()}

		return out.Print(res, func(tw *tabwriter.Writer) {
			if res.Flushed {
				fmt.Fprintln(tw, "Очередь пуста")
				return
			}
			fmt.Fprintf(tw, "Осталось в очереди:\t%d\n", res.Pending)
		})
	},
}

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Состояние хранилищ и очереди",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		st := app.Status()
		out := output.FromContext(cmd.Context(), cmd.OutOrStdout())
		return out.Print(st, func(tw *tabwriter.Writer) {
			fmt.Fprintf(tw, "Локальное хранилище:\t%s\n", yesNo(st.LocalAvailable))
			fmt.Fprintf(tw, "Облако включено:\t%s\n", yesNo(st.CloudEnabled))
			fmt.Fprintf(tw, "Облако доступно:\t%s\n", yesNo(st.CloudAvailable))
			fmt.Fprintf(tw, "Версия схемы:\t%s\n", st.SchemaVersion)
			fmt.Fprintf(tw, "В очереди:\t%d\n", st.Pending)
			for _, e := range st.Queue {
				op := "set"
				if e.Deleted {
					op = "remove"
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\n", op, e.Key, e.Timestamp.Local().Format(time.TimeOnly))
			}
		})
	},
}

var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Сбрасывать очередь до прерывания",
	Long:  `Держит процесс открытым и повторяет отложенные записи с заданным интервалом.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		out := output.FromContext(cmd.Context(), cmd.ErrOrStderr())
		if !app.Status().CloudEnabled {
			return out.Message("облако отключено, нечего синхронизировать")
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := -1
		for {
			select {
			case <-cmd.Context().Done():
				return out.Message("остановлено, в очереди: %d", app.Storage.Pending())
			case <-ticker.C:
				if app.Storage.Pending() > 0 {
					app.Storage.FlushCloudQueue(cmd.Context())
				}
				if n := app.Storage.Pending(); n != last {
					last = n
					if err := out.Message("в очереди: %d", n); err != nil {
						return err
					}
				}
			}
		}
	},
}

func yesNo(v bool) string {
	if v {
		return "да"
	}
	return "нет"
}

func init() {
	WatchCmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "интервал повтора")
}
