package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fifire/topframe/internal/infra"
)

// User is one leaderboard row. Balance is ready for display: numeric values
// are normalised, anything else is kept as the API sent it.
type User struct {
	Username string
	Balance  string
}

type page struct {
	Users []json.RawMessage `json:"users"`
}

type row struct {
	Username string          `json:"username"`
	Balance  json.RawMessage `json:"balance"`
}

func formatBalance(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err == nil {
		return d.String()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Client reads the paginated leaderboard API.
type Client struct {
	endpoint string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewClient builds a leaderboard client for endpoint.
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{endpoint: endpoint, timeout: timeout, logger: logger}
}

// Page returns count users starting at offset. Any failure yields an empty
// list; the leaderboard is not worth an error screen.
func (c *Client) Page(ctx context.Context, offset, count int) []User {
	body, err := c.fetch(ctx, offset, count)
	if err != nil {
		c.logger.Debug("leaderboard fetch failed", "offset", offset, "count", count, "error", err)
		return nil
	}
	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		c.logger.Debug("leaderboard decode failed", "offset", offset, "error", err)
		return nil
	}
	users := make([]User, 0, len(p.Users))
	for i, raw := range p.Users {
		var r row
		if err := json.Unmarshal(raw, &r); err != nil {
			c.logger.Debug("leaderboard row skipped", "offset", offset+i, "error", err)
			continue
		}
		users = append(users, User{Username: r.Username, Balance: formatBalance(r.Balance)})
	}
	return users
}

// Snapshot returns the raw body of the first count users.
func (c *Client) Snapshot(ctx context.Context, count int) ([]byte, error) {
	return c.fetch(ctx, 0, count)
}

func (c *Client) fetch(ctx context.Context, offset, count int) ([]byte, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse leaderboard url: %w", err)
	}
	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("count", strconv.Itoa(count))
	u.RawQuery = q.Encode()

	code, body, err := infra.Get(ctx, u.String(), c.timeout)
	if err != nil {
		return nil, err
	}
	if code != 200 {
		return nil, fmt.Errorf("leaderboard returned HTTP %d", code)
	}
	return body, nil
}
