package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTokenClient(t *testing.T) {
	c := &StaticTokenClient{Tokens: map[string]string{"good": "alice"}}

	r := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	_, err := c.Auth(r)
	assert.Error(t, err)

	r.Header.Set("X-Auth-Token", "bad")
	_, err = c.Auth(r)
	assert.Error(t, err)

	r.Header.Set("X-Auth-Token", "good")
	user, err := c.Auth(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
}

func TestStaticTokenClientAuthorizationHeader(t *testing.T) {
	c := &StaticTokenClient{Tokens: map[string]string{"good": "alice"}}

	r := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	r.Header.Set("Authorization", "Token good")
	user, err := c.Auth(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	r.Header.Set("Authorization", "Bearer good")
	_, err = c.Auth(r)
	assert.Error(t, err)
}

func TestMockClient(t *testing.T) {
	c := &MockClient{}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := c.Auth(r)
	assert.Error(t, err)

	r.AddCookie(&http.Cookie{Name: "x-user", Value: "bob"})
	user, err := c.Auth(r)
	require.NoError(t, err)
	assert.Equal(t, "bob", user)
}
