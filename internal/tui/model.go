// Package tui is the interactive list. Every change goes through the todo
// store, off the UI goroutine, and the list is redrawn from the store's
// mirror when the call returns.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aussiebroadwan/todo/internal/todos"
	"github.com/aussiebroadwan/todo/pkg/todoapi"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Store is the part of todos.Store the list drives.
type Store interface {
	Refresh(ctx context.Context) error
	Create(ctx context.Context, req todoapi.CreateTodoRequest) (*todoapi.Todo, error)
	Update(ctx context.Context, id int64, req todoapi.UpdateTodoRequest) (*todoapi.Todo, error)
	Delete(ctx context.Context, id int64) error
	Toggle(ctx context.Context, id int64) (*todoapi.Todo, error)
	Items() []todoapi.Todo
}

type mode int

const (
	modeBrowse mode = iota
	modeAdd
	modeEdit
)

// opMsg reports a finished store call.
type opMsg struct {
	op  string
	err error
}

type item struct{ todo todoapi.Todo }

func (i item) Title() string       { return i.todo.Title }
func (i item) Description() string { return i.todo.Description }
func (i item) FilterValue() string { return i.todo.Title }

type itemDelegate struct{}

func (itemDelegate) Height() int                         { return 1 }
func (itemDelegate) Spacing() int                        { return 0 }
func (itemDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }
func (itemDelegate) Render(w io.Writer, m list.Model, index int, li list.Item) {
	it, _ := li.(item)

	box := mutedStyle.Render(boxUnchecked)
	text := it.todo.Title
	if it.todo.Completed {
		box = successStyle.Render(boxChecked)
		text = doneStyle.Render(text)
	}
	if it.todo.Description != "" {
		text += " " + mutedStyle.Render("- "+it.todo.Description)
	}

	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}
	fmt.Fprintf(w, "%s%s %s", prefix, box, text)
}

type keyMap struct {
	add, edit, toggle, remove, refresh key.Binding
}

var keys = keyMap{
	add:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
	edit:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
	toggle:  key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "toggle")),
	remove:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
}

func (k keyMap) bindings() []key.Binding {
	return []key.Binding{k.add, k.edit, k.toggle, k.remove, k.refresh}
}

type Model struct {
	ctx   context.Context
	store Store

	list    list.Model
	input   textinput.Model
	spinner spinner.Model

	mode     mode
	editID   int64
	busy     bool
	err      error
	formErrs map[string][]string
}

func New(ctx context.Context, store Store) Model {
	l := list.New(nil, itemDelegate{}, 80, 20)
	l.SetShowHelp(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetStatusBarItemName("todo", "todos")
	l.Styles.Title = titleStyle
	l.Styles.HelpStyle = helpStyle
	l.FilterInput.Prompt = "/ "
	l.AdditionalShortHelpKeys = keys.bindings
	l.AdditionalFullHelpKeys = keys.bindings
	// d and u page by default; here d deletes.
	l.KeyMap.NextPage.SetKeys("right", "l", "pgdown", "f")
	l.KeyMap.PrevPage.SetKeys("left", "h", "pgup", "b")

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 200

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:     ctx,
		store:   store,
		list:    l,
		input:   ti,
		spinner: sp,
		busy:    true,
	}
	m.list.Title = m.header()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run("refresh", m.store.Refresh))
}

// run calls fn on a command goroutine and reports back with an opMsg.
func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h := msg.Height - 4
		if m.mode != modeBrowse {
			h -= 3
		}
		m.list.SetSize(msg.Width-4, max(h, 3))
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case opMsg:
		return m.finish(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.mode != modeBrowse {
			return m.updateForm(msg)
		}
		if m.list.FilterState() != list.Filtering {
			if model, cmd, handled := m.updateBrowse(msg); handled {
				return model, cmd
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) finish(msg opMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	m.err = msg.err

	if msg.err == nil {
		m.sync()
		if msg.op == "create" || msg.op == "edit" {
			m.closeForm()
		}
		return m, nil
	}

	if fields := todoapi.FieldErrors(msg.err); fields != nil && m.mode != modeBrowse {
		m.formErrs = fields
		m.err = nil
	}
	if errors.Is(msg.err, todos.ErrEmptyTitle) && m.mode != modeBrowse {
		m.formErrs = map[string][]string{"title": {"Title cannot be empty"}}
		m.err = nil
	}
	// The mirror is still right after a failure, so redraw from it.
	m.sync()
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if m.busy {
		if msg.String() == "q" {
			return m, tea.Quit, true
		}
		return m, nil, true
	}

	switch {
	case msg.String() == "q":
		return m, tea.Quit, true

	case key.Matches(msg, keys.refresh):
		m.busy = true
		m.err = nil
		return m, tea.Batch(m.spinner.Tick, m.run("refresh", m.store.Refresh)), true

	case key.Matches(msg, keys.add):
		m.openForm(modeAdd, "", 0)
		return m, textinput.Blink, true

	case key.Matches(msg, keys.edit):
		it, ok := m.list.SelectedItem().(item)
		if !ok {
			return m, nil, true
		}
		m.openForm(modeEdit, it.todo.Title, it.todo.ID)
		return m, textinput.Blink, true

	case key.Matches(msg, keys.toggle):
		it, ok := m.list.SelectedItem().(item)
		if !ok {
			return m, nil, true
		}
		id := it.todo.ID
		m.busy = true
		return m, tea.Batch(m.spinner.Tick, m.run("toggle", func(ctx context.Context) error {
			_, err := m.store.Toggle(ctx, id)
			return err
		})), true

	case key.Matches(msg, keys.remove):
		it, ok := m.list.SelectedItem().(item)
		if !ok {
			return m, nil, true
		}
		id := it.todo.ID
		m.busy = true
		return m, tea.Batch(m.spinner.Tick, m.run("delete", func(ctx context.Context) error {
			return m.store.Delete(ctx, id)
		})), true
	}

	return m, nil, false
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeForm()
		return m, nil

	case "enter":
		if m.busy {
			return m, nil
		}
		title := strings.TrimSpace(m.input.Value())
		if title == "" {
			m.formErrs = map[string][]string{"title": {"Title cannot be empty"}}
			return m, nil
		}

		m.busy = true
		m.formErrs = nil
		if m.mode == modeAdd {
			return m, tea.Batch(m.spinner.Tick, m.run("create", func(ctx context.Context) error {
				_, err := m.store.Create(ctx, todoapi.CreateTodoRequest{Title: title})
				return err
			}))
		}

		id := m.editID
		return m, tea.Batch(m.spinner.Tick, m.run("edit", func(ctx context.Context) error {
			_, err := m.store.Update(ctx, id, todoapi.UpdateTodoRequest{Title: &title})
			return err
		}))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) openForm(md mode, value string, id int64) {
	m.mode = md
	m.editID = id
	m.formErrs = nil
	m.input.SetValue(value)
	m.input.CursorEnd()
	if md == modeAdd {
		m.input.Placeholder = "New todo title..."
	} else {
		m.input.Placeholder = "Edit title..."
	}
	m.input.Focus()
}

func (m *Model) closeForm() {
	m.mode = modeBrowse
	m.editID = 0
	m.formErrs = nil
	m.input.SetValue("")
	m.input.Blur()
}

// sync redraws the list from the store, keeping the cursor on the same todo
// when it still exists.
func (m *Model) sync() {
	var selected int64
	if it, ok := m.list.SelectedItem().(item); ok {
		selected = it.todo.ID
	}

	all := m.store.Items()
	items := make([]list.Item, 0, len(all))
	cursor := 0
	for i, t := range all {
		items = append(items, item{todo: t})
		if t.ID == selected {
			cursor = i
		}
	}
	m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(min(cursor, len(items)-1))
	}
	m.list.Title = m.header()
}

func (m Model) header() string {
	var done, pending int
	for _, t := range m.store.Items() {
		if t.Completed {
			done++
		} else {
			pending++
		}
	}
	return fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		titleStyle.Render("Todos"),
		successStyle.Render("✔"), done,
		pendingStyle.Render("•"), pending,
		accentStyle.Render("Total"), done+pending,
	)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.list.View())

	if m.busy {
		b.WriteString("\n" + m.spinner.View() + mutedStyle.Render(" working..."))
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(errorText(m.err)))
	}

	if m.mode != modeBrowse {
		title := "Add todo"
		if m.mode == modeEdit {
			title = "Edit todo"
		}
		if len(m.formErrs) > 0 {
			title += "  " + errorStyle.Render(formErrorText(m.formErrs))
		}
		b.WriteString("\n" + panelStyle.Render(title+"\n"+m.input.View()))
	}

	return panelStyle.Render(b.String())
}

// errorText is what the list shows for a failed call.
func errorText(err error) string {
	switch {
	case errors.Is(err, todoapi.ErrAuthRequired):
		return "Your session has expired. Quit and run `todo auth login`."
	case errors.Is(err, todos.ErrNotFound), todoapi.IsNotFound(err):
		return "That todo no longer exists. Press r to refresh."
	default:
		return "Something went wrong. Press r to retry."
	}
}

func formErrorText(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		msg := strings.Join(fields[k], " ")
		if k != "title" {
			msg = k + ": " + msg
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}

// Run shows the list until the user quits.
func Run(ctx context.Context, store Store, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	_, err := tea.NewProgram(New(ctx, store), opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
