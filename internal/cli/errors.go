package cli

import (
	"errors"
	"sort"
	"strings"

	"github.com/aussiebroadwan/todo/internal/todos"
	"github.com/aussiebroadwan/todo/pkg/todoapi"
)

var errAuthRequired = todoapi.ErrAuthRequired

var errNotLoggedIn = errors.New("not logged in")

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// fieldError carries per-field messages that were already printed.
type fieldError struct{ fields map[string][]string }

func (e fieldError) Error() string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid " + strings.Join(keys, ", ")
}

func exitCode(err error) int {
	var ue usageError
	switch {
	case errors.As(err, &ue):
		return ExitUsage
	case errors.Is(err, errAuthRequired), errors.Is(err, errNotLoggedIn):
		return ExitUsage
	case errors.Is(err, todos.ErrEmptyTitle):
		return ExitUsage
	default:
		return ExitError
	}
}

// describe turns err into the one line shown to the user.
func describe(err error) string {
	var he *todoapi.HTTPError
	switch {
	case errors.Is(err, errAuthRequired), errors.Is(err, errNotLoggedIn):
		return "authentication required. Run `todo auth login`"
	case errors.Is(err, todos.ErrNotFound), todoapi.IsNotFound(err):
		return "no such todo. Run `todo ls` to see ids"
	case errors.As(err, &he):
		if he.Detail != "" {
			return "request failed: " + he.Detail
		}
		return "something went wrong talking to the server. Please try again"
	default:
		return err.Error()
	}
}

func toStringFields(errs map[string]string) map[string][]string {
	out := make(map[string][]string, len(errs))
	for k, v := range errs {
		out[k] = []string{v}
	}
	return out
}
