package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// PageSize is the remote API's maximum page size. Every bulk retrieval
// pages sequentially in chunks of this size.
const PageSize = 100

var fromTablePattern = regexp.MustCompile(`(?i)\bFROM\s+(\w+)`)

// pageFetch retrieves one page of rows at the given offset.
type pageFetch func(ctx context.Context, offset, limit int) ([]Row, error)

// QueryAll executes baseStatement page by page until a short or empty
// page, and returns the concatenated rows.
func (c *Client) QueryAll(ctx context.Context, baseStatement string) ([]Row, error) {
	return c.collectPages(ctx, c.queryPageFetch(baseStatement), 0, nil)
}

// QueryAllOptimized is QueryAll with a best-effort total estimate and
// time-throttled progress reporting. The estimate is known to be
// unreliable on this remote system; estimation failures are swallowed
// and replaced by the configured floor.
func (c *Client) QueryAllOptimized(ctx context.Context, baseStatement string, onProgress ProgressFunc) ([]Row, error) {
	total := 0
	if onProgress != nil {
		total = c.estimateTotal(ctx, baseStatement)
	}
	return c.collectPages(ctx, c.queryPageFetch(baseStatement), total, onProgress)
}

// RetrieveContacts pages through the remote bulk contact retrieval
// operation.
func (c *Client) RetrieveContacts(ctx context.Context, onProgress ProgressFunc) ([]Row, error) {
	total := 0
	if onProgress != nil {
		total = c.estimateTotal(ctx, "SELECT * FROM Contacts")
	}
	return c.collectPages(ctx, c.bulkPageFetch(opRetrieveContacts), total, onProgress)
}

// RetrieveOrganizations pages through the remote bulk organization
// retrieval operation.
func (c *Client) RetrieveOrganizations(ctx context.Context, onProgress ProgressFunc) ([]Row, error) {
	total := 0
	if onProgress != nil {
		total = c.estimateTotal(ctx, "SELECT * FROM Accounts")
	}
	return c.collectPages(ctx, c.bulkPageFetch(opRetrieveOrganizations), total, onProgress)
}

// collectPages drives the sequential pagination loop. Pages are fetched
// one at a time: page N+1 is only issued after page N completed, trading
// throughput for remote rate-limit safety. Cancellation is cooperative:
// it is checked before each page request, and a cancellation interrupting
// an in-flight request is treated the same way; either path returns the
// rows fetched so far without an error.
func (c *Client) collectPages(ctx context.Context, fetch pageFetch, total int, onProgress ProgressFunc) ([]Row, error) {
	var all []Row
	offset := 0
	var lastEmit time.Time

	for {
		select {
		case <-ctx.Done():
			return all, nil
		default:
		}

		page, err := fetch(ctx, offset, PageSize)
		if err != nil {
			// Cancellation can also land while a page request is in
			// flight; the rows already fetched still come back.
			if ctx.Err() != nil {
				return all, nil
			}
			return nil, fmt.Errorf("page at offset %d failed: %w", offset, err)
		}

		all = append(all, page...)

		if len(all) > total {
			total = len(all)
		}
		if onProgress != nil && time.Since(lastEmit) >= c.config.ProgressInterval {
			onProgress(len(all), total)
			lastEmit = time.Now()
		}

		if len(page) < PageSize {
			break
		}
		offset += PageSize
	}

	if onProgress != nil {
		onProgress(len(all), len(all))
	}
	return all, nil
}

func (c *Client) queryPageFetch(baseStatement string) pageFetch {
	return func(ctx context.Context, offset, limit int) ([]Row, error) {
		statement := fmt.Sprintf("%s LIMIT %d, %d", baseStatement, offset, limit)
		return c.Query(ctx, statement)
	}
}

func (c *Client) bulkPageFetch(op string) pageFetch {
	return func(ctx context.Context, offset, limit int) ([]Row, error) {
		params := url.Values{}
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(limit))

		result, err := c.do(ctx, op, params)
		if err != nil {
			return nil, err
		}

		var rows []Row
		if err := json.Unmarshal(result, &rows); err != nil {
			return nil, fmt.Errorf("%s result malformed: %w", op, err)
		}
		return rows, nil
	}
}

// estimateTotal issues an aggregate COUNT for the base statement's table.
// The remote system frequently returns empty or garbage aggregates, so
// any failure or non-positive result falls back to the configured floor
// rather than being treated as zero records.
func (c *Client) estimateTotal(ctx context.Context, baseStatement string) int {
	match := fromTablePattern.FindStringSubmatch(baseStatement)
	if match == nil {
		return c.config.CountFloor
	}

	rows, err := c.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", match[1]))
	if err != nil {
		c.log.WithError(err).Debug("count estimate failed, using floor")
		return c.config.CountFloor
	}
	if len(rows) == 0 {
		return c.config.CountFloor
	}

	for _, key := range []string{"count", "COUNT(*)", "cnt"} {
		if raw, ok := rows[0][key]; ok {
			if n := parseCount(raw); n > 0 {
				return n
			}
		}
	}
	return c.config.CountFloor
}

func parseCount(raw interface{}) int {
	switch v := raw.(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
