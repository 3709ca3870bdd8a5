package channel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// defaultPollInterval paces the blocking Receive loop. SQLite has no
// cross-process wakeup, so blocked receivers poll.
const defaultPollInterval = 25 * time.Millisecond

// SQLite is a Channel backed by a shared SQLite database, safe across OS
// process boundaries. Every process attaches to the same database file and
// channel name; the single DELETE ... RETURNING claim statement is the only
// cross-process coordination.
type SQLite struct {
	db           *sql.DB
	name         string
	pollInterval time.Duration
}

// SQLiteOption configures an attached SQLite channel.
type SQLiteOption func(*SQLite)

// WithPollInterval overrides the blocking-receive poll pace.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(c *SQLite) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// AttachSQLite attaches to the named channel in db, creating its metadata
// row if this is the first attach.
func AttachSQLite(ctx context.Context, db *sql.DB, name string, opts ...SQLiteOption) (*SQLite, error) {
	if name == "" {
		return nil, fmt.Errorf("channel name is empty")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := db.ExecContext(ctx, `
INSERT INTO channel_meta(channel, closed, created_at)
VALUES(?, 0, ?)
ON CONFLICT(channel) DO NOTHING;
`, name, now); err != nil {
		return nil, fmt.Errorf("attach channel %q: %w", name, err)
	}

	c := &SQLite{db: db, name: name, pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the channel name within the shared database.
func (c *SQLite) Name() string { return c.name }

func (c *SQLite) Send(ctx context.Context, frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("frame is empty")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := c.db.ExecContext(ctx, `
INSERT INTO channel_messages(channel, frame, enqueued_at)
SELECT ?, ?, ?
WHERE (SELECT closed FROM channel_meta WHERE channel = ?) = 0;
`, c.name, frame, now, c.name)
	if err != nil {
		return fmt.Errorf("send on channel %q: %w", c.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("send on channel %q: %w", c.name, err)
	}
	if n == 0 {
		return ErrClosed
	}
	return nil
}

func (c *SQLite) TryReceive(ctx context.Context) ([]byte, error) {
	row := c.db.QueryRowContext(ctx, `
DELETE FROM channel_messages
WHERE seq = (
  SELECT seq FROM channel_messages
  WHERE channel = ?
  ORDER BY seq ASC
  LIMIT 1
)
RETURNING frame;
`, c.name)

	var frame []byte
	err := row.Scan(&frame)
	if errors.Is(err, sql.ErrNoRows) {
		closed, cerr := c.isClosed(ctx)
		if cerr != nil {
			return nil, cerr
		}
		if closed {
			return nil, ErrClosed
		}
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("receive on channel %q: %w", c.name, err)
	}
	return frame, nil
}

func (c *SQLite) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		frame, err := c.TryReceive(ctx)
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, ErrEmpty) {
			return nil, err
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *SQLite) Depth(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM channel_messages WHERE channel = ?;
`, c.name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("depth of channel %q: %w", c.name, err)
	}
	return n, nil
}

// Close marks the channel closed for every attached process. Frames already
// buffered remain receivable until drained.
func (c *SQLite) Close() error {
	_, err := c.db.Exec(`UPDATE channel_meta SET closed = 1 WHERE channel = ?;`, c.name)
	if err != nil {
		return fmt.Errorf("close channel %q: %w", c.name, err)
	}
	return nil
}

func (c *SQLite) isClosed(ctx context.Context) (bool, error) {
	var closed int
	err := c.db.QueryRowContext(ctx, `
SELECT closed FROM channel_meta WHERE channel = ?;
`, c.name).Scan(&closed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("channel %q is not attached", c.name)
	}
	if err != nil {
		return false, fmt.Errorf("query channel %q state: %w", c.name, err)
	}
	return closed != 0, nil
}
