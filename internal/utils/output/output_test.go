package output

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"text/tabwriter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func TestPrinter_NonTerminalIsJSON(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, false)
	require.True(t, p.JSON())

	require.NoError(t, p.Print([]row{{"theme_mode", "dark"}}, func(tw *tabwriter.Writer) {
		t.Fatal("table must not be used")
	}))
	assert.JSONEq(t, `[{"key":"theme_mode","value":"dark"}]`, buf.String())
}

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{w: &buf}

	rows := []row{{"theme_mode", "dark"}, {"user_name", "Аня"}}
	require.NoError(t, p.Print(rows, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "KEY\tVALUE")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\n", r.Key, r.Value)
		}
	}))

	out := buf.String()
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "theme_mode  dark")
}

func TestPrinter_Message(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, true).Message("удалено ключей: %d", 3))
	assert.JSONEq(t, `{"message":"удалено ключей: 3"}`, buf.String())

	buf.Reset()
	p := &Printer{w: &buf}
	require.NoError(t, p.Message("ok"))
	assert.Equal(t, "ok\n", buf.String())
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	p := FromContext(WithJSON(context.Background(), true), &buf)
	assert.True(t, p.JSON())
}
