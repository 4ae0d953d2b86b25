package crm

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/oauth2"
)

// Session is the live credential state obtained from a successful login.
// It is owned by exactly one Client and mutated in place on refresh.
type Session struct {
	ServerURL string
	Username  string
	Token     *oauth2.Token

	// ID is the derived session identifier reported by status endpoints.
	ID string
}

// newSession derives a session from a freshly issued token pair.
func newSession(serverURL, username string, token *oauth2.Token) *Session {
	return &Session{
		ServerURL: serverURL,
		Username:  username,
		Token:     token,
		ID:        deriveSessionID(username, token.AccessToken),
	}
}

// rotate replaces the token pair after a refresh, keeping the refresh
// token when the remote omits it from the refresh response.
func (s *Session) rotate(token *oauth2.Token) {
	if token.RefreshToken == "" {
		token.RefreshToken = s.Token.RefreshToken
	}
	s.Token = token
	s.ID = deriveSessionID(s.Username, token.AccessToken)
}

// Valid reports whether the session holds a usable access token.
func (s *Session) Valid() bool {
	return s != nil && s.Token != nil && s.Token.AccessToken != "" &&
		(s.Token.Expiry.IsZero() || time.Now().Before(s.Token.Expiry))
}

func deriveSessionID(username, accessToken string) string {
	sum := sha256.Sum256([]byte(username + ":" + accessToken))
	return hex.EncodeToString(sum[:8])
}
