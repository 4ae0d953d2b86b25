package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/devitechsolutions/vextr-sub000/pkg/logger"
)

// Remote API operation names.
const (
	opLogin                 = "login"
	opRefresh               = "refresh"
	opLogout                = "logout"
	opQuery                 = "query"
	opCreate                = "create"
	opUpdate                = "update"
	opRetrieveContacts      = "retrieve_contacts"
	opRetrieveOrganizations = "retrieve_organizations"
)

// Row is a single record returned by the remote CRM. Keys are a mix of
// normalized names and raw vendor field codes.
type Row map[string]interface{}

// ProgressFunc observes bulk retrieval progress. total is an estimate and
// may be revised; fetched never exceeds the real record count.
type ProgressFunc func(fetched, total int)

// Config holds connector settings.
type Config struct {
	ServerURL  string
	Username   string
	Credential string

	RequestTimeout   time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	ProgressInterval time.Duration

	// CountFloor is the assumed total when the remote COUNT query
	// returns nothing usable.
	CountFloor int

	// HTTPClient overrides the default client, used by tests.
	HTTPClient *http.Client
}

// Client issues operations against the remote CRM endpoint. It owns the
// session exclusively and refreshes the token transparently.
type Client struct {
	config Config
	http   *http.Client
	log    *logger.Logger

	mu      sync.Mutex
	session *Session
}

// NewClient creates a connector for the configured deployment.
func NewClient(config Config, log *logger.Logger) *Client {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 500 * time.Millisecond
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = 500 * time.Millisecond
	}
	if config.CountFloor <= 0 {
		config.CountFloor = 1000
	}
	if log == nil {
		log = logger.GetDefault()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.RequestTimeout}
	}

	return &Client{
		config: config,
		http:   httpClient,
		log:    log.WithField("component", "crm"),
	}
}

// Session returns a copy of the current session, or nil when logged out.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	copied := *c.session
	return &copied
}

// Login exchanges the configured credentials for a token-pair session.
func (c *Client) Login(ctx context.Context) error {
	if c.config.Username == "" || c.config.Credential == "" {
		return ErrMissingCredentials
	}

	params := url.Values{}
	params.Set("username", c.config.Username)
	params.Set("credential", c.config.Credential)

	result, err := c.sendWithRetry(ctx, opLogin, params, "")
	if err != nil {
		if remote, ok := err.(*RemoteError); ok && remote.Kind != KindTransient {
			return fmt.Errorf("login rejected: %s: %w", remote.Message, ErrAuthFailed)
		}
		return fmt.Errorf("login request failed: %w", err)
	}

	token, err := parseTokenResult(result)
	if err != nil {
		return fmt.Errorf("login response malformed: %w", err)
	}

	c.mu.Lock()
	c.session = newSession(c.config.ServerURL, c.config.Username, token)
	sessionID := c.session.ID
	c.mu.Unlock()

	c.log.WithField("session_id", sessionID).Info("crm login succeeded")
	return nil
}

// Logout ends the remote session best-effort and clears local session
// state regardless of the remote outcome. It never returns an error.
func (c *Client) Logout(ctx context.Context) {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session == nil {
		return
	}

	if _, err := c.send(ctx, opLogout, url.Values{}, session.Token.AccessToken); err != nil {
		c.log.WithError(err).Warn("crm logout failed remotely, session cleared locally")
	}
}

// Query executes a single bounded query and returns its rows. Logs in
// implicitly when no session exists.
func (c *Client) Query(ctx context.Context, statement string) ([]Row, error) {
	params := url.Values{}
	params.Set("query", statement)

	result, err := c.do(ctx, opQuery, params)
	if err != nil {
		return nil, err
	}

	var rows []Row
	if err := json.Unmarshal(result, &rows); err != nil {
		return nil, fmt.Errorf("query result malformed: %w", err)
	}
	return rows, nil
}

// Create creates a record in the given remote module.
func (c *Client) Create(ctx context.Context, module string, fields map[string]string) (Row, error) {
	return c.writeOperation(ctx, opCreate, module, "", fields)
}

// Update updates a record in the given remote module by external id.
func (c *Client) Update(ctx context.Context, module, id string, fields map[string]string) (Row, error) {
	return c.writeOperation(ctx, opUpdate, module, id, fields)
}

// PushCandidateStatus pushes a local candidate status change back to the
// remote contact record. This is the only write the sync engine performs.
func (c *Client) PushCandidateStatus(ctx context.Context, externalID, status string) error {
	_, err := c.Update(ctx, "Contacts", externalID, map[string]string{"contact_status": status})
	if err != nil {
		return fmt.Errorf("failed to push candidate status: %w", err)
	}
	return nil
}

// FetchByID retrieves a single record from a remote module.
func (c *Client) FetchByID(ctx context.Context, module, id string) (Row, error) {
	statement := fmt.Sprintf("SELECT * FROM %s WHERE id = '%s'", module, escapeLiteral(id))
	rows, err := c.Query(ctx, statement)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// FetchIDs lists record ids modified since the given time.
func (c *Client) FetchIDs(ctx context.Context, module string, since time.Time, onProgress ProgressFunc) ([]string, error) {
	base := fmt.Sprintf("SELECT id FROM %s", module)
	if !since.IsZero() {
		base = fmt.Sprintf("%s WHERE modifiedtime > '%s'", base, since.UTC().Format("2006-01-02 15:04:05"))
	}

	rows, err := c.QueryAllOptimized(ctx, base, onProgress)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) writeOperation(ctx context.Context, op, module, id string, fields map[string]string) (Row, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s fields: %w", op, err)
	}

	params := url.Values{}
	params.Set("module", module)
	if id != "" {
		params.Set("id", id)
	}
	params.Set("element", string(payload))

	result, err := c.do(ctx, op, params)
	if err != nil {
		return nil, err
	}

	var row Row
	if err := json.Unmarshal(result, &row); err != nil {
		return nil, fmt.Errorf("%s result malformed: %w", op, err)
	}
	return row, nil
}

// do executes an authenticated operation with transient retry and one
// transparent refresh-and-retry cycle on token expiry.
func (c *Client) do(ctx context.Context, op string, params url.Values) (json.RawMessage, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	refreshed := false
	attempt := 0

	for {
		access := c.accessToken()

		result, err := c.send(ctx, op, params, access)
		if err == nil {
			return result, nil
		}

		switch {
		case IsAuthExpired(err):
			if refreshed {
				// The refreshed token was rejected too. Never recurse
				// further; clear the session and surface a fatal auth
				// error that requires a fresh login.
				c.clearSession()
				return nil, fmt.Errorf("token rejected after refresh: %w", ErrAuthFailed)
			}
			if err := c.refreshSession(ctx, access); err != nil {
				return nil, err
			}
			refreshed = true

		case IsTransient(err):
			if attempt >= c.config.MaxRetries {
				return nil, fmt.Errorf("operation %s failed after %d retries: %w", op, attempt, err)
			}
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			attempt++

		default:
			return nil, err
		}
	}
}

// ensureSession performs an implicit login when no session exists.
func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	ok := c.session != nil
	c.mu.Unlock()
	if ok {
		return nil
	}
	return c.Login(ctx)
}

// refreshSession exchanges the refresh token for a new token pair.
// Refreshes are serialized: a caller holding a stale access token that
// arrives after another caller already refreshed reuses that result
// instead of issuing a redundant refresh.
func (c *Client) refreshSession(ctx context.Context, staleAccess string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return fmt.Errorf("no session to refresh: %w", ErrAuthFailed)
	}
	if c.session.Token.AccessToken != staleAccess {
		// Another caller refreshed while we were waiting.
		return nil
	}
	if c.session.Token.RefreshToken == "" {
		c.session = nil
		return fmt.Errorf("no refresh token available: %w", ErrAuthFailed)
	}

	params := url.Values{}
	params.Set("refreshToken", c.session.Token.RefreshToken)

	result, err := c.sendWithRetry(ctx, opRefresh, params, "")
	if err != nil {
		// A network blip is not an authentication failure. The session
		// and its refresh token survive so the next attempt can retry
		// the same refresh; only a remote rejection ends the session.
		if IsTransient(err) {
			return fmt.Errorf("token refresh failed: %w", err)
		}
		c.session = nil
		return fmt.Errorf("token refresh rejected: %w", ErrAuthFailed)
	}

	token, err := parseTokenResult(result)
	if err != nil {
		c.session = nil
		return fmt.Errorf("refresh response malformed: %w", ErrAuthFailed)
	}

	c.session.rotate(token)
	c.log.WithField("session_id", c.session.ID).Debug("crm token refreshed")
	return nil
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.Token == nil {
		return ""
	}
	return c.session.Token.AccessToken
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// backoff sleeps for an exponentially growing delay, honoring ctx.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.config.RetryBaseDelay * (1 << uint(attempt))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// apiResponse is the remote envelope. Failures carry success=false and an
// error object with a code and message.
type apiResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *apiErrorBody   `json:"error"`
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendWithRetry is send with the standard transient backoff policy, for
// the login and refresh requests that run outside the do loop. Remote
// rejections come back unretried for the caller to classify.
func (c *Client) sendWithRetry(ctx context.Context, op string, params url.Values, accessToken string) (json.RawMessage, error) {
	attempt := 0
	for {
		result, err := c.send(ctx, op, params, accessToken)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) || attempt >= c.config.MaxRetries {
			return nil, err
		}
		if berr := c.backoff(ctx, attempt); berr != nil {
			return nil, berr
		}
		attempt++
	}
}

// send performs one POST of the operation envelope. It maps transport and
// HTTP-level failures onto the error taxonomy but performs no retries.
func (c *Client) send(ctx context.Context, op string, params url.Values, accessToken string) (json.RawMessage, error) {
	form := url.Values{}
	form.Set("operation", op)
	for key, values := range params {
		for _, value := range values {
			form.Add(key, value)
		}
	}

	endpoint := strings.TrimRight(c.config.ServerURL, "/") + "/webservice"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &RemoteError{Kind: KindAuthExpired, Code: "HTTP_401", Message: "unauthorized"}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &RemoteError{Kind: KindTransient, Code: fmt.Sprintf("HTTP_%d", resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("operation %s returned malformed response: %w", op, err)
	}

	if !envelope.Success {
		code, message := "", "unknown remote failure"
		if envelope.Error != nil {
			code, message = envelope.Error.Code, envelope.Error.Message
		}
		return nil, classifyRemote(code, message)
	}

	return envelope.Result, nil
}

// parseTokenResult decodes a login or refresh result payload.
func parseTokenResult(result json.RawMessage) (*oauth2.Token, error) {
	var payload struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int    `json:"expiresIn"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, err
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("result carries no access token")
	}

	token := &oauth2.Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}
	if payload.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return token, nil
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
