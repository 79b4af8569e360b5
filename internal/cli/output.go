package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aussiebroadwan/todo/pkg/todoapi"
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	boxChecked   = "☑"
	boxUnchecked = "☐"
)

func ok(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render("✔ "+msg))
}

func fail(w io.Writer, msg string) {
	fmt.Fprintln(w, errorStyle.Render("✖ "+msg))
}

func printFieldErrors(w io.Writer, fields map[string][]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", titleStyle.Render(k), strings.Join(fields[k], " "))
	}
}

func todoTable(w io.Writer, title string, items []todoapi.Todo) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(table.Row{"ID", "", "Title", "Description", "Updated"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, WidthMax: 40},
	})

	for _, it := range items {
		box := boxUnchecked
		if it.Completed {
			box = boxChecked
		}
		t.AppendRow(table.Row{it.ID, box, it.Title, it.Description, it.UpdatedAt.Local().Format("2006-01-02 15:04")})
	}
	if len(items) == 0 {
		t.AppendRow(table.Row{"", "", mutedStyle.Render("nothing here"), "", ""})
	}
	t.Render()
}

func keyValueTable(w io.Writer, rows [][2]string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Options.SeparateRows = false
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		t.AppendRow(table.Row{r[0], r[1]})
	}
	t.Render()
}

func stats(items []todoapi.Todo) (done, pending int) {
	for _, it := range items {
		if it.Completed {
			done++
		} else {
			pending++
		}
	}
	return
}
