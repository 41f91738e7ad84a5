package history

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"bodytweaker/internal/app/client"
	domain "bodytweaker/internal/domain/history"
	"bodytweaker/internal/domain/storage"
	"bodytweaker/internal/utils/output"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	historyKey string
	limit      int
	recType    string
	scheme     string
	startAt    string
	endAt      string
	duration   time.Duration
)

// HistoryCmd - родительская команда для истории сессий
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "История сессий голодания и дыхания",
	Long: `Журнал завершенных сессий. Список хранится частями (шардами),
каждая из которых помещается в лимит значения облака.`,
}

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "Показать историю",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		records, err := app.History.Get(cmd.Context(), historyKey)
		if err != nil {
			return err
		}
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}

		out := output.FromContext(cmd.Context(), cmd.OutOrStdout())
		return out.Print(records, func(tw *tabwriter.Writer) {
			if len(records) == 0 {
				fmt.Fprintln(tw, "История пуста")
				return
			}
			fmt.Fprintln(tw, "ID\tТИП\tСХЕМА\tНАЧАЛО\tКОНЕЦ\tДЛИТЕЛЬНОСТЬ")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					shortID(r.ID), r.Type, r.Scheme,
					r.StartTime.Local().Format("2006-01-02 15:04"),
					r.EndTime.Local().Format("2006-01-02 15:04"),
					(time.Duration(r.DurationSeconds) * time.Second).String(),
				)
			}
		})
	},
}

var AddCmd = &cobra.Command{
	Use:   "add",
	Short: "Добавить завершенную сессию",
	Long: `Добавляет запись в начало истории. Время в формате RFC3339.
Если --end не задан, концом считается текущий момент; если не задан --start,
началом считается --end минус --duration.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		rec, err := buildRecord(time.Now())
		if err != nil {
			return err
		}

		list, err := app.History.Update(cmd.Context(), historyKey, rec, 0)
		if err != nil {
			return err
		}
		return output.FromContext(cmd.Context(), cmd.OutOrStdout()).
			Message("запись %s добавлена, всего записей: %d", rec.ID, len(list))
	},
}

var ClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Удалить историю",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}
		if err := app.History.Remove(cmd.Context(), historyKey); err != nil {
			return err
		}
		return output.FromContext(cmd.Context(), cmd.OutOrStdout()).Message("история удалена")
	},
}

func buildRecord(now time.Time) (domain.Record, error) {
	end := now
	if endAt != "" {
		t, err := time.Parse(time.RFC3339, endAt)
		if err != nil {
			return domain.Record{}, fmt.Errorf("--end: %w", err)
		}
		end = t
	}

	var start time.Time
	switch {
	case startAt != "":
		t, err := time.Parse(time.RFC3339, startAt)
		if err != nil {
			return domain.Record{}, fmt.Errorf("--start: %w", err)
		}
		start = t
	case duration > 0:
		start = end.Add(-duration)
	default:
		return domain.Record{}, fmt.Errorf("нужен --start или --duration")
	}

	typ := domain.RecordType(strings.ToLower(recType))
	if typ != domain.TypeFasting && typ != domain.TypeBreathing {
		return domain.Record{}, fmt.Errorf("неизвестный тип сессии %q", recType)
	}

	if end.Before(start) {
		return domain.Record{}, fmt.Errorf("конец сессии раньше начала")
	}

	return domain.Record{
		ID:              uuid.NewString(),
		Type:            typ,
		Scheme:          scheme,
		StartTime:       start.UTC(),
		EndTime:         end.UTC(),
		DurationSeconds: int64(end.Sub(start) / time.Second),
	}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	HistoryCmd.PersistentFlags().StringVar(&historyKey, "key", storage.KeyHistoryFasting, "логический ключ истории")

	ListCmd.Flags().IntVar(&limit, "limit", 0, "показать не больше N записей")

	AddCmd.Flags().StringVar(&recType, "type", string(domain.TypeFasting), "тип сессии: fasting или breathing")
	AddCmd.Flags().StringVar(&scheme, "scheme", "", "схема, например 16:8")
	AddCmd.Flags().StringVar(&startAt, "start", "", "начало сессии (RFC3339)")
	AddCmd.Flags().StringVar(&endAt, "end", "", "конец сессии (RFC3339)")
	AddCmd.Flags().DurationVar(&duration, "duration", 0, "длительность, если --start не задан")
}
