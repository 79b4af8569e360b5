package todoapi

import (
	"context"
	"net/http"
)

// GetMe returns the profile the API derives from the bearer token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out User
	if err := c.call(ctx, http.MethodGet, "/users/me/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account. Rejected fields come back in the HTTPError.
func (c *Client) Register(ctx context.Context, req RegisterUserRequest) (*RegisterUserResponse, error) {
	var out RegisterUserResponse
	if err := c.call(ctx, http.MethodPost, "/users/register/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
