package todoapi

import (
	"context"
	"net/http"
	"strconv"
)

func todoPath(id int64) string {
	return "/todos/" + strconv.FormatInt(id, 10) + "/"
}

func (c *Client) ListTodos(ctx context.Context) (*TodoList, error) {
	var out TodoList
	if err := c.call(ctx, http.MethodGet, "/todos/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTodo(ctx context.Context, id int64) (*Todo, error) {
	var out Todo
	if err := c.call(ctx, http.MethodGet, todoPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTodo(ctx context.Context, req CreateTodoRequest) (*Todo, error) {
	var out Todo
	if err := c.call(ctx, http.MethodPost, "/todos/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTodo sends only the fields set in req; the server treats PUT as a
// partial update.
func (c *Client) UpdateTodo(ctx context.Context, id int64, req UpdateTodoRequest) (*Todo, error) {
	var out Todo
	if err := c.call(ctx, http.MethodPut, todoPath(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTodo(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, todoPath(id), nil, nil)
}
