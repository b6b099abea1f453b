package apiclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/mycloud-app/mycloud/internal/credstore"
)

const (
	csrfPath   = "csrf/"
	CSRFHeader = "X-CSRFToken"
)

// Authenticator attaches credentials to an outgoing request.
type Authenticator interface {
	Authenticate(ctx context.Context, c *Client, req *http.Request) error
}

// TokenSource yields the current access token, or "" when logged out.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StoredToken reads the access token from the credential store on every call.
type StoredToken struct {
	Store credstore.Store
}

func (s StoredToken) AccessToken(ctx context.Context) (string, error) {
	return credstore.Lookup(ctx, s.Store, credstore.KeyAccessToken)
}

// BearerAuth sends "Authorization: Bearer <token>" when a token is available.
type BearerAuth struct {
	Tokens TokenSource
}

func (a BearerAuth) Authenticate(ctx context.Context, _ *Client, req *http.Request) error {
	token, err := a.Tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// CSRFAuth relies on the client's cookie jar for the session cookie and
// fetches a fresh CSRF token before every state-changing request.
type CSRFAuth struct{}

func (CSRFAuth) Authenticate(ctx context.Context, c *Client, req *http.Request) error {
	if !mutating(req.Method) {
		return nil
	}
	token, err := c.FetchCSRFToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set(CSRFHeader, token)
	return nil
}

type csrfResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// FetchCSRFToken asks the server for a CSRF token bound to the current
// session cookie.
func (c *Client) FetchCSRFToken(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, csrfPath, nil, "")
	if err != nil {
		return "", err
	}
	resp, err := c.send(req, csrfPath)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body csrfResponse
	if err := decodeBody(resp, &body); err != nil {
		return "", err
	}
	if body.CSRFToken == "" {
		return "", errors.New("server returned an empty csrf token")
	}
	return body.CSRFToken, nil
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
