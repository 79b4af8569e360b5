package todoapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const requiredReason = "This field is required."

type Todo struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TodoList struct {
	Count   int    `json:"count"`
	Results []Todo `json:"results"`
}

type CreateTodoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Validate mirrors the server's title check. It returns field messages, or
// nil when the request is fine.
func (r CreateTodoRequest) Validate() map[string]string {
	if strings.TrimSpace(r.Title) == "" {
		return map[string]string{"title": "Title cannot be empty"}
	}
	return nil
}

// UpdateTodoRequest is a partial update: nil fields are not sent.
type UpdateTodoRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

func (r UpdateTodoRequest) Validate() map[string]string {
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		return map[string]string{"title": "Title cannot be empty"}
	}
	return nil
}

// Empty reports whether the update would change nothing.
func (r UpdateTodoRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.Completed == nil
}

// UserID is the user's identifier. The API has served both numeric ids and
// the token subject, so either form decodes.
type UserID string

func (id *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = UserID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("todoapi: invalid user id %s", b)
	}
	*id = UserID(n.String())
	return nil
}

type User struct {
	ID       UserID `json:"id"`
	Sub      string `json:"sub,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
}

type RegisterUserRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Name            string `json:"name,omitempty"`
}

// Validate applies the server's registration rules that need no database.
func (r RegisterUserRequest) Validate() map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(r.Username) == "" {
		errs["username"] = requiredReason
	}

	switch email := strings.TrimSpace(r.Email); {
	case email == "":
		errs["email"] = requiredReason
	case !validEmail(email):
		errs["email"] = "Enter a valid email address."
	}

	switch {
	case r.Password == "":
		errs["password"] = requiredReason
	case r.PasswordConfirm == "":
		errs["password_confirm"] = requiredReason
	case r.Password != r.PasswordConfirm:
		errs["password"] = "Password fields didn't match"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@")+1:], ".")
}

type RegisterUserResponse struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}
