package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var limitPattern = regexp.MustCompile(`LIMIT (\d+), (\d+)`)

// stubCRM emulates the remote operation endpoint for connector tests.
type stubCRM struct {
	mu sync.Mutex

	records       []Row
	validToken    string
	countResult   []Row
	failQueries   int // remaining queries to fail with HTTP 500
	failLogins    int // remaining logins to fail with HTTP 500
	failRefreshes int // remaining refreshes to fail with HTTP 500
	rejectQueries bool
	tokenCounter  int
	refreshOK     bool

	loginCount   int
	refreshCount int
	queryCount   int
	logoutCount  int

	onPageServed func(page int)
}

func newStubCRM(recordCount int) *stubCRM {
	records := make([]Row, 0, recordCount)
	for i := 0; i < recordCount; i++ {
		records = append(records, Row{
			"id":        fmt.Sprintf("12x%d", i+1),
			"firstname": fmt.Sprintf("Candidate%d", i+1),
		})
	}
	return &stubCRM{records: records, refreshOK: true}
}

func (s *stubCRM) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()

		s.mu.Lock()
		defer s.mu.Unlock()

		switch r.PostFormValue("operation") {
		case "login":
			s.loginCount++
			if s.failLogins > 0 {
				s.failLogins--
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			s.tokenCounter++
			s.validToken = fmt.Sprintf("tok-%d", s.tokenCounter)
			writeResult(w, map[string]interface{}{
				"accessToken":  s.validToken,
				"refreshToken": "refresh-1",
				"expiresIn":    3600,
			})

		case "refresh":
			s.refreshCount++
			if s.failRefreshes > 0 {
				s.failRefreshes--
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if !s.refreshOK {
				writeFailure(w, "AUTH_EXPIRED", "refresh token expired")
				return
			}
			s.tokenCounter++
			s.validToken = fmt.Sprintf("tok-%d", s.tokenCounter)
			writeResult(w, map[string]interface{}{
				"accessToken": s.validToken,
				"expiresIn":   3600,
			})

		case "logout":
			s.logoutCount++
			writeResult(w, map[string]interface{}{})

		case "query":
			s.queryCount++
			if s.failQueries > 0 {
				s.failQueries--
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if s.rejectQueries || r.Header.Get("Authorization") != "Bearer "+s.validToken {
				writeFailure(w, "AUTH_EXPIRED", "access token expired")
				return
			}
			s.serveQuery(w, r.PostFormValue("query"))

		default:
			writeFailure(w, "UNKNOWN_OPERATION", "unknown operation")
		}
	}
}

func (s *stubCRM) serveQuery(w http.ResponseWriter, statement string) {
	if regexp.MustCompile(`(?i)COUNT\(\*\)`).MatchString(statement) {
		rows := s.countResult
		if rows == nil {
			rows = []Row{}
		}
		writeRows(w, rows)
		return
	}

	match := limitPattern.FindStringSubmatch(statement)
	if match == nil {
		writeRows(w, s.records)
		return
	}

	offset, _ := strconv.Atoi(match[1])
	limit, _ := strconv.Atoi(match[2])

	if s.onPageServed != nil {
		s.onPageServed(offset / limit)
	}

	end := offset + limit
	if offset >= len(s.records) {
		writeRows(w, []Row{})
		return
	}
	if end > len(s.records) {
		end = len(s.records)
	}
	writeRows(w, s.records[offset:end])
}

func writeResult(w http.ResponseWriter, result interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "result": result})
}

func writeRows(w http.ResponseWriter, rows []Row) {
	writeResult(w, rows)
}

func writeFailure(w http.ResponseWriter, code, message string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func newTestClient(t *testing.T, stub *stubCRM) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	client := NewClient(Config{
		ServerURL:        server.URL,
		Username:         "sync",
		Credential:       "secret",
		MaxRetries:       3,
		RetryBaseDelay:   time.Millisecond,
		ProgressInterval: time.Nanosecond,
		CountFloor:       500,
	}, nil)
	return client, server
}

func TestLoginMissingCredentials(t *testing.T) {
	client := NewClient(Config{ServerURL: "http://localhost"}, nil)
	err := client.Login(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestImplicitLogin(t *testing.T) {
	stub := newStubCRM(3)
	client, _ := newTestClient(t, stub)

	rows, err := client.Query(context.Background(), "SELECT * FROM Contacts")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, 1, stub.loginCount)
	assert.NotNil(t, client.Session())
}

func TestPaginationCompleteness(t *testing.T) {
	for _, total := range []int{0, 1, 99, 100, 101, 250} {
		t.Run(fmt.Sprintf("%d_records", total), func(t *testing.T) {
			stub := newStubCRM(total)
			client, _ := newTestClient(t, stub)

			rows, err := client.QueryAllOptimized(context.Background(), "SELECT * FROM Contacts", nil)
			require.NoError(t, err)
			require.Len(t, rows, total)

			seen := make(map[string]bool, total)
			for _, row := range rows {
				id := row["id"].(string)
				assert.False(t, seen[id], "record %s returned twice", id)
				seen[id] = true
			}
		})
	}
}

func TestQueryAllProgressAndCountFloor(t *testing.T) {
	stub := newStubCRM(150)
	// COUNT comes back empty, which the remote is known to do. It must
	// not be read as zero records.
	stub.countResult = []Row{}
	client, _ := newTestClient(t, stub)

	var totals []int
	var finals []int
	rows, err := client.QueryAllOptimized(context.Background(), "SELECT * FROM Contacts", func(fetched, total int) {
		totals = append(totals, total)
		finals = append(finals, fetched)
	})
	require.NoError(t, err)
	assert.Len(t, rows, 150)

	require.NotEmpty(t, totals)
	// First estimate is the configured floor, not zero.
	assert.Equal(t, 500, totals[0])
	// Final call reports the exact count.
	assert.Equal(t, 150, totals[len(totals)-1])
	assert.Equal(t, 150, finals[len(finals)-1])
}

func TestCountEstimateUsed(t *testing.T) {
	stub := newStubCRM(120)
	stub.countResult = []Row{{"count": "120"}}
	client, _ := newTestClient(t, stub)

	var firstTotal int
	_, err := client.QueryAllOptimized(context.Background(), "SELECT * FROM Contacts", func(fetched, total int) {
		if firstTotal == 0 {
			firstTotal = total
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 120, firstTotal)
}

func TestSingleRefreshRetry(t *testing.T) {
	stub := newStubCRM(5)
	client, _ := newTestClient(t, stub)

	require.NoError(t, client.Login(context.Background()))

	// Invalidate the token server-side: the next query fails with an
	// expired-token error, the client refreshes once and retries.
	stub.mu.Lock()
	stub.validToken = "rotated-away"
	stub.mu.Unlock()

	rows, err := client.Query(context.Background(), "SELECT * FROM Contacts")
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Equal(t, 1, stub.refreshCount)
}

func TestRefreshFailureDoesNotLoop(t *testing.T) {
	stub := newStubCRM(5)
	client, _ := newTestClient(t, stub)

	require.NoError(t, client.Login(context.Background()))

	// Every query is rejected with an expired-token error even after the
	// refresh succeeds: exactly one refresh happens, the retried request
	// fails again, and the client gives up instead of looping.
	stub.mu.Lock()
	stub.rejectQueries = true
	stub.mu.Unlock()

	_, err := client.Query(context.Background(), "SELECT * FROM Contacts")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, 1, stub.refreshCount)
	assert.Nil(t, client.Session())
}

func TestTransientRetryWithBackoff(t *testing.T) {
	stub := newStubCRM(2)
	stub.failQueries = 2
	client, _ := newTestClient(t, stub)

	rows, err := client.Query(context.Background(), "SELECT * FROM Contacts")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	// Two failures plus the success.
	assert.Equal(t, 3, stub.queryCount)
}

func TestTransientRetryExhausted(t *testing.T) {
	stub := newStubCRM(2)
	stub.failQueries = 10
	client, _ := newTestClient(t, stub)

	_, err := client.Query(context.Background(), "SELECT * FROM Contacts")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	// Initial attempt plus the configured retry cap, then surface.
	assert.Equal(t, 4, stub.queryCount)
}

func TestCooperativeCancellation(t *testing.T) {
	stub := newStubCRM(500) // five full pages
	stub.countResult = []Row{{"count": "500"}}
	client, _ := newTestClient(t, stub)

	ctx, cancel := context.WithCancel(context.Background())

	// Cancel after the first page has been fetched. The signal is
	// checked before each page request, so the one fetched page comes
	// back without an error.
	rows, err := client.QueryAllOptimized(ctx, "SELECT * FROM Contacts", func(fetched, total int) {
		if fetched == PageSize {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.Len(t, rows, PageSize)
}

func TestLoginRetriesTransientFailures(t *testing.T) {
	stub := newStubCRM(1)
	stub.failLogins = 2
	client, _ := newTestClient(t, stub)

	require.NoError(t, client.Login(context.Background()))
	// Two failures plus the success.
	assert.Equal(t, 3, stub.loginCount)
	assert.NotNil(t, client.Session())
}

func TestRefreshTransientFailureIsNotAuthFailure(t *testing.T) {
	stub := newStubCRM(5)
	client, _ := newTestClient(t, stub)

	require.NoError(t, client.Login(context.Background()))

	// The token is stale and every refresh attempt dies on the network.
	// That is a transient condition, not a rejected credential: the
	// session survives for a later retry of the same refresh token.
	stub.mu.Lock()
	stub.validToken = "rotated-away"
	stub.failRefreshes = 10
	stub.mu.Unlock()

	_, err := client.Query(context.Background(), "SELECT * FROM Contacts")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.NotErrorIs(t, err, ErrAuthFailed)
	assert.NotNil(t, client.Session())
	// Initial refresh attempt plus the configured retry cap.
	assert.Equal(t, 4, stub.refreshCount)
}

func TestCancellationMidPageReturnsPartial(t *testing.T) {
	stub := newStubCRM(500)
	client, _ := newTestClient(t, stub)

	ctx, cancel := context.WithCancel(context.Background())

	// Cancel while the second page request is being served, before its
	// response is written. The rows from the first page still come back
	// without an error.
	stub.onPageServed = func(page int) {
		if page == 1 {
			cancel()
			time.Sleep(20 * time.Millisecond)
		}
	}

	rows, err := client.QueryAll(ctx, "SELECT * FROM Contacts")
	require.NoError(t, err)
	assert.Len(t, rows, PageSize)
}

func TestLogoutClearsSessionAndNeverFails(t *testing.T) {
	stub := newStubCRM(1)
	client, server := newTestClient(t, stub)

	require.NoError(t, client.Login(context.Background()))
	require.NotNil(t, client.Session())

	// Remote going away must not surface from logout.
	server.Close()
	client.Logout(context.Background())
	assert.Nil(t, client.Session())
}

func TestFetchByID(t *testing.T) {
	stub := newStubCRM(3)
	client, _ := newTestClient(t, stub)

	// The stub returns the full set for non-LIMIT queries; FetchByID
	// takes the first row.
	row, err := client.FetchByID(context.Background(), "Contacts", "12x1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "12x1", row["id"])
}
