package dbcheck

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-qa/testpulse/packages/telemetry"
)

func newTestClient(t *testing.T) (*Client, *telemetry.Manager, *telemetry.Session) {
	t.Helper()

	m := telemetry.NewManager(telemetry.WithLogDir(t.TempDir()))
	s, err := m.Open("integration", nil)
	require.NoError(t, err)

	dsn := "sqlite://" + filepath.Join(t.TempDir(), "shop.db")
	c, err := Open(dsn, s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, m, s
}

func TestClient_QueryAndExec(t *testing.T) {
	c, m, s := newTestClient(t)
	ctx := context.Background()

	_, err := c.Exec(ctx, "CREATE TABLE shop_product (id INTEGER PRIMARY KEY, name TEXT, price REAL)")
	require.NoError(t, err)

	affected, err := c.Exec(ctx, `INSERT INTO shop_product (name, price) VALUES ('mug', 9.99), ('shirt', 24.50)`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	result, err := c.Query(ctx, "SELECT name, price FROM shop_product ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "price"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "mug", result.Rows[0]["name"])
	assert.Equal(t, 24.50, result.Rows[1]["price"])

	// Every operation must leave a trace in the detail log.
	_, err = m.Close(s)
	require.NoError(t, err)

	data, err := os.ReadFile(s.LogFiles()[telemetry.ChannelDetail])
	require.NoError(t, err)
	detail := string(data)
	assert.Contains(t, detail, "DB: exec")
	assert.Contains(t, detail, "DB: query")
	assert.Contains(t, detail, `"statement":"SELECT name, price FROM shop_product ORDER BY id"`)
	assert.Contains(t, detail, `"rows":2`)
}

func TestClient_QueryError(t *testing.T) {
	c, m, s := newTestClient(t)

	_, err := c.Query(context.Background(), "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query failed")

	// The failed statement is still traced, with the error attached.
	_, closeErr := m.Close(s)
	require.NoError(t, closeErr)

	data, readErr := os.ReadFile(s.LogFiles()[telemetry.ChannelDetail])
	require.NoError(t, readErr)
	assert.Contains(t, string(data), `"error":`)
}

func TestClient_NilSessionIsQuiet(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "shop.db")
	c, err := Open(dsn, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Exec(context.Background(), "CREATE TABLE t (id INTEGER)")
	assert.NoError(t, err)
}

func TestParseConnectionString(t *testing.T) {
	assert.Equal(t, "shop.db", parseConnectionString("sqlite://shop.db"))
	assert.Equal(t, "shop.db", parseConnectionString("sqlite3://shop.db"))
	assert.Equal(t, "/var/data/shop.db", parseConnectionString("/var/data/shop.db"))
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "SELECT id FROM t", compact("SELECT  id\n  FROM\tt"))
}
