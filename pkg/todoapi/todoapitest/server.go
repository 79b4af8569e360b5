// Package todoapitest serves a fake to-do API over httptest for tests that
// drive todoapi.Client end to end.
package todoapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/todo/pkg/httpx"
	"github.com/aussiebroadwan/todo/pkg/todoapi"
)

// Server keeps one user's todos in memory. Requests whose bearer token is
// rejected by Authorize get a 401.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	authorize func(token string) bool
	nextID    int64
	todos     []todoapi.Todo
	users     map[string]bool
	requests  []Request
	fail      map[string]int
	now       func() time.Time
}

// Request is what the server saw, for assertions.
type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          map[string]any
}

func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		authorize: func(string) bool { return true },
		users:     make(map[string]bool),
		fail:      make(map[string]int),
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/todos/{$}", s.handleList)
	mux.HandleFunc("POST /api/todos/{$}", s.handleCreate)
	mux.HandleFunc("GET /api/todos/{id}/{$}", s.handleGet)
	mux.HandleFunc("PUT /api/todos/{id}/{$}", s.handleUpdate)
	mux.HandleFunc("DELETE /api/todos/{id}/{$}", s.handleDelete)
	mux.HandleFunc("GET /api/users/me/", s.handleMe)
	mux.HandleFunc("POST /api/users/register/", s.handleRegister)

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the value for todoapi.Client.BaseURL.
func (s *Server) BaseURL() string { return s.URL + "/api" }

// Authorize replaces the bearer token check.
func (s *Server) Authorize(fn func(token string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorize = fn
}

// AcceptToken is Authorize for a single valid token.
func (s *Server) AcceptToken(token string) {
	s.Authorize(func(got string) bool { return got == token })
}

// FailNext makes the next n requests to "METHOD /path" answer 500.
func (s *Server) FailNext(route string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[route] = n
}

// Seed adds todos directly, bypassing the API.
func (s *Server) Seed(titles ...string) []todoapi.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]todoapi.Todo, 0, len(titles))
	for _, title := range titles {
		out = append(out, s.insert(title, ""))
	}
	return out
}

func (s *Server) Todos() []todoapi.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]todoapi.Todo(nil), s.todos...)
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := Request{
			Method:        r.Method,
			Path:          strings.TrimPrefix(r.URL.Path, "/api"),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		}
		if r.Body != nil && r.ContentLength != 0 {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
				return
			}
			rec.Body = body
		}

		s.mu.Lock()
		s.requests = append(s.requests, rec)
		allowed := s.authorize(strings.TrimPrefix(rec.Authorization, "Bearer "))
		route := r.Method + " " + rec.Path
		failing := s.fail[route] > 0
		if failing {
			s.fail[route]--
		}
		s.mu.Unlock()

		if !allowed {
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}
		if failing {
			httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
			return
		}

		r = r.WithContext(withBody(r.Context(), rec.Body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) insert(title, description string) todoapi.Todo {
	s.nextID++
	now := s.now()
	todo := todoapi.Todo{
		ID:          s.nextID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.todos = append(s.todos, todo)
	return todo
}

func (s *Server) indexOf(r *http.Request) (int, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return -1, false
	}
	for i, t := range s.todos {
		if t.ID == id {
			return i, true
		}
	}
	return -1, false
}

func notFound(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"detail": "No Todo matches the given query."})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	todos := append([]todoapi.Todo{}, s.todos...)
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, todoapi.TodoList{Count: len(todos), Results: todos})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.indexOf(r)
	if !ok {
		notFound(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.todos[i])
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r.Context())
	title, _ := body["title"].(string)
	description, _ := body["description"].(string)

	title = strings.TrimSpace(title)
	if title == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string][]string{"title": {"Title cannot be empty"}})
		return
	}

	s.mu.Lock()
	todo := s.insert(title, description)
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusCreated, todo)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.indexOf(r)
	if !ok {
		notFound(w)
		return
	}

	todo := s.todos[i]
	if v, ok := body["title"].(string); ok {
		if strings.TrimSpace(v) == "" {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string][]string{"title": {"Title cannot be empty"}})
			return
		}
		todo.Title = strings.TrimSpace(v)
	}
	if v, ok := body["description"].(string); ok {
		todo.Description = v
	}
	if v, ok := body["completed"].(bool); ok {
		todo.Completed = v
	}
	todo.UpdatedAt = s.now()
	s.todos[i] = todo

	httpx.WriteJSON(w, http.StatusOK, todo)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.indexOf(r)
	if !ok {
		notFound(w)
		return
	}
	s.todos = append(s.todos[:i], s.todos[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"id":       "4f1c2b9e-0000-4000-8000-000000000001",
		"sub":      "4f1c2b9e-0000-4000-8000-000000000001",
		"username": "alice",
		"email":    "alice@example.com",
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r.Context())
	username, _ := body["username"].(string)
	name, _ := body["name"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.users[username] {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string][]string{
			"username": {"A user with this username already exists"},
		})
		return
	}
	s.users[username] = true

	httpx.WriteJSON(w, http.StatusCreated, todoapi.RegisterUserResponse{
		Username: username,
		Name:     name,
		URL:      s.URL + "/api/users/" + username + "/",
	})
}
