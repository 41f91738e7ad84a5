package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/term"
)

// Printer печатает результат команды таблицей для терминала
// или JSON, когда вывод перенаправлен или запрошен явно.
type Printer struct {
	w    io.Writer
	json bool
}

func New(w io.Writer, forceJSON bool) *Printer {
	return &Printer{w: w, json: forceJSON || !isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *Printer) JSON() bool {
	return p.json
}

// Print выводит v как JSON либо вызывает table для табличного вида.
func (p *Printer) Print(v any, table func(tw *tabwriter.Writer)) error {
	if p.json || table == nil {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

// Message печатает строку состояния. В JSON-режиме - объект {"message": ...}.
func (p *Printer) Message(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if p.json {
		return p.Print(map[string]string{"message": msg}, nil)
	}
	_, err := fmt.Fprintln(p.w, msg)
	return err
}

type ctxKey struct{}

// WithJSON запоминает в контексте флаг --json.
func WithJSON(ctx context.Context, force bool) context.Context {
	return context.WithValue(ctx, ctxKey{}, force)
}

// FromContext создает Printer с учетом флага --json из контекста.
func FromContext(ctx context.Context, w io.Writer) *Printer {
	force, _ := ctx.Value(ctxKey{}).(bool)
	return New(w, force)
}
