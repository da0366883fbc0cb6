package auth

import (
	"fmt"
	"net/http"
)

// MockClient trusts the x-user cookie. Development only.
type MockClient struct {
	Client
}

func (c *MockClient) Auth(r *http.Request) (string, error) {
	var user string

	if c, err := r.Cookie("x-user"); err == nil {
		user = c.Value
	}

	if user == "" {
		return "", fmt.Errorf("empty x-user from cookie")
	}
	return user, nil
}
