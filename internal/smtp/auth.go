// Package smtp implements the SMTP protocol side of the capture server:
// sessions, STARTTLS, AUTH and per-recipient delivery to a sink.
package smtp

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	// ErrAuthFailed is returned when credentials do not match.
	ErrAuthFailed = errors.New("authentication failed")

	errInvalidEncoding = errors.New("invalid base64 encoding")
	errInvalidPlain    = errors.New("invalid AUTH PLAIN format")
)

// Authenticator checks SMTP AUTH credentials against a single configured
// username and password.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator with the given credentials.
// If both username and password are empty, authentication is disabled.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled returns true if authentication credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// VerifyPlain decodes and verifies an AUTH PLAIN response of the form
// base64(authzid \0 authcid \0 password). The authorization identity is
// ignored.
func (a *Authenticator) VerifyPlain(encoded string) error {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errInvalidEncoding
	}

	parts := strings.SplitN(string(decoded), "\x00", 3)
	if len(parts) != 3 {
		return errInvalidPlain
	}

	return a.check(parts[1], parts[2])
}

// VerifyLogin verifies base64-encoded AUTH LOGIN credentials.
func (a *Authenticator) VerifyLogin(encodedUser, encodedPass string) error {
	user, err := base64.StdEncoding.DecodeString(encodedUser)
	if err != nil {
		return errInvalidEncoding
	}

	pass, err := base64.StdEncoding.DecodeString(encodedPass)
	if err != nil {
		return errInvalidEncoding
	}

	return a.check(string(user), string(pass))
}

func (a *Authenticator) check(user, pass string) error {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(a.password)) == 1
	if !userOK || !passOK {
		return ErrAuthFailed
	}
	return nil
}
