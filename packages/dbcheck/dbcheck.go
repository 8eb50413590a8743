// Package dbcheck runs SQL checks against the storefront database and
// surfaces every operation as a DatabaseOperation trace on the session it
// observes. Results are never persisted back to the database; the stats
// report stays flat files only.
package dbcheck

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/storefront-qa/testpulse/packages/telemetry"
)

// QueryResult holds the rows returned by one query.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// Client wraps one database connection. All operations are traced to the
// session's detail channel.
type Client struct {
	db           *sql.DB
	session      *telemetry.Session
	queryTimeout time.Duration
}

// Open connects to the database named by connectionString and verifies the
// connection. Supported forms: "sqlite://path/to.db", "sqlite3://path" or a
// bare file path.
func Open(connectionString string, session *telemetry.Session) (*Client, error) {
	dsn := parseConnectionString(connectionString)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Client{
		db:           db,
		session:      session,
		queryTimeout: 30 * time.Second,
	}, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Query executes a SQL query, traces it, and returns the result.
func (c *Client) Query(ctx context.Context, query string) (*QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		c.trace("query", query, 0, time.Since(start), err)
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := &QueryResult{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}

	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}

	c.trace("query", query, len(result.Rows), time.Since(start), nil)
	return result, nil
}

// Exec executes a SQL statement, traces it, and returns the affected row
// count.
func (c *Client) Exec(ctx context.Context, statement string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	start := time.Now()
	res, err := c.db.ExecContext(ctx, statement)
	if err != nil {
		c.trace("exec", statement, 0, time.Since(start), err)
		return 0, fmt.Errorf("exec failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	c.trace("exec", statement, int(affected), time.Since(start), nil)
	return affected, nil
}

func (c *Client) trace(op, statement string, rows int, took time.Duration, err error) {
	if c.session == nil {
		return
	}
	details := map[string]any{
		"statement":   compact(statement),
		"rows":        rows,
		"duration_ms": float64(took.Microseconds()) / 1000,
	}
	if err != nil {
		details["error"] = err.Error()
	}
	_ = c.session.Emit(telemetry.DatabaseOperation(op, details))
}

func compact(statement string) string {
	return strings.Join(strings.Fields(statement), " ")
}

func parseConnectionString(s string) string {
	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimPrefix(s, prefix)
		}
	}
	return s
}
