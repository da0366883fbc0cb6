package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// StaticTokenClient authenticates requests against a fixed token table
// loaded from configuration. Tokens are passed either as
// `Authorization: Token <value>` or in the X-Auth-Token header.
type StaticTokenClient struct {
	// Tokens maps token value to username.
	Tokens map[string]string
}

func (c *StaticTokenClient) Auth(r *http.Request) (string, error) {
	token := r.Header.Get("X-Auth-Token")
	if token == "" {
		if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Token ") {
			token = strings.TrimPrefix(v, "Token ")
		}
	}
	if token == "" {
		return "", fmt.Errorf("missing auth token")
	}
	user, ok := c.Tokens[token]
	if !ok {
		return "", fmt.Errorf("unknown auth token")
	}
	return user, nil
}
