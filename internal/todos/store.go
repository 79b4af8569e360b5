// Package todos mirrors the user's todo list in memory. Every mutation goes
// to the API first and the list only ever reflects what the server answered.
package todos

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/aussiebroadwan/todo/pkg/todoapi"
)

var (
	ErrEmptyTitle = errors.New("title cannot be empty")
	ErrNotFound   = errors.New("todo not found")
)

// API is the slice of todoapi.Client the store drives.
type API interface {
	ListTodos(ctx context.Context) (*todoapi.TodoList, error)
	CreateTodo(ctx context.Context, req todoapi.CreateTodoRequest) (*todoapi.Todo, error)
	UpdateTodo(ctx context.Context, id int64, req todoapi.UpdateTodoRequest) (*todoapi.Todo, error)
	DeleteTodo(ctx context.Context, id int64) error
}

// Session tells the store whether there is anyone to fetch for.
type Session interface {
	Authenticated() bool
}

type Store struct {
	api     API
	session Session
	logger  *slog.Logger

	mu    sync.RWMutex
	items []todoapi.Todo
	err   error
}

func NewStore(api API, session Session, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		api:     api,
		session: session,
		logger:  logger.With("component", "todos"),
	}
}

// Refresh replaces the list with the server's. Without a session the list is
// emptied and nothing is fetched.
func (s *Store) Refresh(ctx context.Context) error {
	if s.session != nil && !s.session.Authenticated() {
		s.mu.Lock()
		s.items = nil
		s.err = nil
		s.mu.Unlock()
		return nil
	}

	list, err := s.api.ListTodos(ctx)
	if err != nil {
		s.fail("refresh", err)
		return err
	}

	s.mu.Lock()
	s.items = append([]todoapi.Todo(nil), list.Results...)
	s.err = nil
	s.mu.Unlock()
	return nil
}

// Create adds the server's copy of the new todo at the top of the list.
func (s *Store) Create(ctx context.Context, req todoapi.CreateTodoRequest) (*todoapi.Todo, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, ErrEmptyTitle
	}

	todo, err := s.api.CreateTodo(ctx, req)
	if err != nil {
		s.fail("create", err)
		return nil, err
	}

	s.mu.Lock()
	s.items = append([]todoapi.Todo{*todo}, s.items...)
	s.err = nil
	s.mu.Unlock()
	return todo, nil
}

// Update swaps the item for the server's answer. An update naming a title must
// name a non-empty one.
func (s *Store) Update(ctx context.Context, id int64, req todoapi.UpdateTodoRequest) (*todoapi.Todo, error) {
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, ErrEmptyTitle
		}
		req.Title = &title
	}

	todo, err := s.api.UpdateTodo(ctx, id, req)
	if err != nil {
		s.fail("update", err)
		return nil, err
	}

	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i] = *todo
			break
		}
	}
	s.err = nil
	s.mu.Unlock()
	return todo, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.api.DeleteTodo(ctx, id); err != nil {
		s.fail("delete", err)
		return err
	}

	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	s.err = nil
	s.mu.Unlock()
	return nil
}

// Toggle flips completed and sends nothing else.
func (s *Store) Toggle(ctx context.Context, id int64) (*todoapi.Todo, error) {
	current, ok := s.Get(id)
	if !ok {
		return nil, ErrNotFound
	}

	completed := !current.Completed
	return s.Update(ctx, id, todoapi.UpdateTodoRequest{Completed: &completed})
}

func (s *Store) Get(id int64) (todoapi.Todo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.items {
		if t.ID == id {
			return t, true
		}
	}
	return todoapi.Todo{}, false
}

// Items returns a copy of the list in display order.
func (s *Store) Items() []todoapi.Todo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]todoapi.Todo(nil), s.items...)
}

// Err is the error from the last operation, nil after a success.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store) fail(op string, err error) {
	s.logger.Debug("todo operation failed", "op", op, "err", err)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
