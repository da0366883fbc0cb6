package auth

import "net/http"

type Client interface {
	// Auth authenticates current user, return username.
	Auth(r *http.Request) (string, error)
}
