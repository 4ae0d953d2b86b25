package crm

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors surfaced by the connector.
var (
	// ErrMissingCredentials is returned when login is attempted without
	// a configured username or credential.
	ErrMissingCredentials = errors.New("crm: missing username or credential")

	// ErrAuthFailed is returned when the remote rejects the credential,
	// or when a refreshed token is rejected again. The session is
	// cleared and a fresh login is required.
	ErrAuthFailed = errors.New("crm: authentication failed")
)

// ErrorKind classifies a remote failure for retry handling.
type ErrorKind int

const (
	// KindTransient covers timeouts and connection resets. Retried with
	// exponential backoff up to the attempt cap.
	KindTransient ErrorKind = iota
	// KindAuthExpired covers expired or invalid access tokens. Resolved
	// by one refresh-and-retry cycle.
	KindAuthExpired
	// KindRemote covers every other remote-reported failure. Propagated
	// immediately.
	KindRemote
)

// RemoteError is a failure reported by the remote CRM.
type RemoteError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("crm: remote error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("crm: remote error: %s", e.Message)
}

// remote error codes that indicate an expired or invalid token
var authErrorCodes = map[string]bool{
	"AUTH_EXPIRED":         true,
	"INVALID_AUTH_TOKEN":   true,
	"INVALID_SESSIONID":    true,
	"AUTHENTICATION":       true,
	"AUTH_REQUIRED":        true,
	"ACCESS_TOKEN_EXPIRED": true,
}

// classifyRemote maps a remote error payload onto the retry taxonomy.
func classifyRemote(code, message string) *RemoteError {
	kind := KindRemote
	upper := strings.ToUpper(code)
	if authErrorCodes[upper] || strings.Contains(strings.ToUpper(message), "TOKEN EXPIRED") {
		kind = KindAuthExpired
	}
	return &RemoteError{Kind: kind, Code: code, Message: message}
}

// isTransient reports whether a transport-level error is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"unexpected EOF",
		"EOF",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsAuthExpired reports whether err is an expired-token remote error.
func IsAuthExpired(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Kind == KindAuthExpired
}

// IsTransient reports whether err is a transient remote or transport error.
func IsTransient(err error) bool {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Kind == KindTransient
	}
	return isTransient(err)
}
