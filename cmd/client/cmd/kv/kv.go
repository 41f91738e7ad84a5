package kv

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"bodytweaker/internal/app/client"
	"bodytweaker/internal/domain/storage"
	"bodytweaker/internal/utils/output"

	"github.com/spf13/cobra"
)

var localOnly bool

// KVCmd - родительская команда для строковых ключей
var KVCmd = &cobra.Command{
	Use:   "kv",
	Short: "Строковые ключи хранилища",
	Long:  `Чтение и запись отдельных ключей через фасад хранилища: локально всегда, в облако по возможности.`,
}

type entry struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Found  bool   `json:"found"`
	Source string `json:"source"`
}

var GetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Прочитать значение",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		key := args[0]
		if err := storage.ValidateKey(key); err != nil {
			return err
		}

		e := entry{Key: key, Source: "storage"}
		if localOnly {
			e.Source = "local"
			e.Value, e.Found = app.Storage.GetLocal(key)
		} else {
			e.Value, e.Found, err = app.Storage.Get(cmd.Context(), key)
			if err != nil {
				return err
			}
		}

		out := output.FromContext(cmd.Context(), cmd.OutOrStdout())
		if !out.JSON() && !e.Found {
			return fmt.Errorf("ключ %q не найден", key)
		}
		return out.Print(e, func(tw *tabwriter.Writer) {
			fmt.Fprintln(tw, e.Value)
		})
	},
}

var SetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Записать значение",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		res, err := app.Storage.Write(cmd.Context(), args[0], args[1])
		if err != nil {
			if errors.Is(err, storage.ErrQuotaExceeded) {
				return fmt.Errorf("локальное хранилище переполнено: %w", err)
			}
			return err
		}

		out := output.FromContext(cmd.Context(), cmd.OutOrStdout())
		switch {
		case res.Queued:
			return out.Message("сохранено локально, облако в очереди")
		case res.Remote != nil:
			return out.Message("сохранено локально, облако отклонило запись: %v", res.Remote)
		default:
			return out.Message("сохранено")
		}
	},
}

var RemoveCmd = &cobra.Command{
	Use:     "rm KEY",
	Aliases: []string{"remove"},
	Short:   "Удалить ключ",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		if err := app.Storage.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		return output.FromContext(cmd.Context(), cmd.OutOrStdout()).Message("удалено")
	},
}

var KeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Список локальных ключей приложения",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		keys, err := app.Local.Keys()
		if err != nil {
			return err
		}

		out := output.FromContext(cmd.Context(), cmd.OutOrStdout())
		return out.Print(keys, func(tw *tabwriter.Writer) {
			for _, k := range keys {
				fmt.Fprintln(tw, k)
			}
		})
	},
}

var ClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Удалить все локальные ключи приложения",
	Long:  `Удаляет локальные ключи с префиксом приложения. Облако не трогается.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		n, err := app.Local.Clear()
		if err != nil {
			return err
		}
		return output.FromContext(cmd.Context(), cmd.OutOrStdout()).Message("удалено ключей: %d", n)
	},
}

func init() {
	GetCmd.Flags().BoolVar(&localOnly, "local", false, "читать только локальную копию")
}
