package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/todo/internal/app"
	"github.com/aussiebroadwan/todo/pkg/todoapi"
	"github.com/spf13/cobra"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, usageError{fmt.Errorf("not a todo id: %s", s)}
	}
	return id, nil
}

// loggedIn returns the app with a session, or errNotLoggedIn before any call
// is made. With auto login on, a missing session starts the browser login
// first.
func (rt *runtime) loggedIn(cmd *cobra.Command) (*app.Application, error) {
	a, err := rt.application(cmd.Context())
	if err != nil {
		return nil, err
	}
	if a.Session().Authenticated() {
		return a, nil
	}
	if !a.Config().AutoLogin {
		return nil, errNotLoggedIn
	}

	fmt.Fprintln(rt.errOut, mutedStyle.Render("not logged in, starting login"))
	if err := rt.browserLogin(cmd.Context(), a); err != nil {
		return nil, fmt.Errorf("automatic login failed: %w", err)
	}
	if !a.Session().Authenticated() {
		return nil, errNotLoggedIn
	}
	return a, nil
}

func (rt *runtime) lsCmd() *cobra.Command {
	var group bool

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List your todos",
		Args:    args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.loggedIn(cmd)
			if err != nil {
				return err
			}

			store := a.Todos()
			if err := rt.withAuthRetry(a, func() error { return store.Refresh(cmd.Context()) }); err != nil {
				return err
			}

			items := store.Items()
			if !group {
				todoTable(rt.out, "", items)
			} else {
				var pending, done []todoapi.Todo
				for _, it := range items {
					if it.Completed {
						done = append(done, it)
					} else {
						pending = append(pending, it)
					}
				}
				todoTable(rt.out, pendingStyle.Render("Pending"), pending)
				todoTable(rt.out, successStyle.Render("Done"), done)
			}

			d, p := stats(items)
			fmt.Fprintln(rt.out, mutedStyle.Render(fmt.Sprintf("%d done, %d pending, %d total", d, p, len(items))))
			return nil
		},
	}

	cmd.Flags().BoolVar(&group, "group", false, "Show pending and done items separately")
	return cmd
}

func (rt *runtime) addCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <title...>",
		Short: "Add a todo; the title can be several words",
		Args:  args(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			req := todoapi.CreateTodoRequest{
				Title:       strings.Join(argv, " "),
				Description: description,
			}
			if errs := req.Validate(); errs != nil {
				printFieldErrors(rt.errOut, toStringFields(errs))
				return usageError{fieldError{toStringFields(errs)}}
			}

			a, err := rt.loggedIn(cmd)
			if err != nil {
				return err
			}

			var todo *todoapi.Todo
			err = rt.withAuthRetry(a, func() error {
				var err error
				todo, err = a.Todos().Create(cmd.Context(), req)
				return err
			})
			if err != nil {
				if fields := todoapi.FieldErrors(err); fields != nil {
					printFieldErrors(rt.errOut, fields)
				}
				return err
			}

			ok(rt.out, fmt.Sprintf("added #%d %s", todo.ID, todo.Title))
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Optional description")
	return cmd
}

func (rt *runtime) editCmd() *cobra.Command {
	var title, description string
	var completed bool

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a todo's title, description or completed flag",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}

			var req todoapi.UpdateTodoRequest
			if cmd.Flags().Changed("title") {
				req.Title = &title
			}
			if cmd.Flags().Changed("description") {
				req.Description = &description
			}
			if cmd.Flags().Changed("completed") {
				req.Completed = &completed
			}
			if req.Empty() {
				return usageError{fmt.Errorf("nothing to change: pass --title, --description or --completed")}
			}
			if errs := req.Validate(); errs != nil {
				printFieldErrors(rt.errOut, toStringFields(errs))
				return usageError{fieldError{toStringFields(errs)}}
			}

			a, err := rt.loggedIn(cmd)
			if err != nil {
				return err
			}

			var todo *todoapi.Todo
			err = rt.withAuthRetry(a, func() error {
				var err error
				todo, err = a.Todos().Update(cmd.Context(), id, req)
				return err
			})
			if err != nil {
				return err
			}

			ok(rt.out, fmt.Sprintf("updated #%d %s", todo.ID, todo.Title))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	cmd.Flags().BoolVar(&completed, "completed", false, "Mark completed (--completed=false to reopen)")
	return cmd
}

func (rt *runtime) doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a todo between done and pending",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}

			a, err := rt.loggedIn(cmd)
			if err != nil {
				return err
			}

			// Toggle needs the current state, so load the list first.
			var todo *todoapi.Todo
			err = rt.withAuthRetry(a, func() error {
				if err := a.Todos().Refresh(cmd.Context()); err != nil {
					return err
				}
				var err error
				todo, err = a.Todos().Toggle(cmd.Context(), id)
				return err
			})
			if err != nil {
				return err
			}

			state := "pending"
			if todo.Completed {
				state = "done"
			}
			ok(rt.out, fmt.Sprintf("#%d %s is %s", todo.ID, todo.Title, state))
			return nil
		},
	}
}

func (rt *runtime) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one todo as the server has it",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}

			a, err := rt.loggedIn(cmd)
			if err != nil {
				return err
			}

			var todo *todoapi.Todo
			err = rt.withAuthRetry(a, func() error {
				var err error
				todo, err = a.API().GetTodo(cmd.Context(), id)
				return err
			})
			if err != nil {
				return err
			}

			state := pendingStyle.Render(boxUnchecked + " pending")
			if todo.Completed {
				state = successStyle.Render(boxChecked + " done")
			}
			keyValueTable(rt.out, [][2]string{
				{"id", strconv.FormatInt(todo.ID, 10)},
				{"title", todo.Title},
				{"description", todo.Description},
				{"status", state},
				{"created", todo.CreatedAt.Local().Format("2006-01-02 15:04")},
				{"updated", todo.UpdatedAt.Local().Format("2006-01-02 15:04")},
			})
			return nil
		},
	}
}

func (rt *runtime) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a todo",
		Args:    args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}

			a, err := rt.loggedIn(cmd)
			if err != nil {
				return err
			}

			if err := rt.withAuthRetry(a, func() error { return a.Todos().Delete(cmd.Context(), id) }); err != nil {
				return err
			}
			ok(rt.out, fmt.Sprintf("removed #%d", id))
			return nil
		},
	}
}
