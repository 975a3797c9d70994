package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Client manages ClickHouse connection pool.
type Client struct {
	db *sql.DB
}

// NewClient creates a ClickHouse client with connection pool.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		Port:            9000,
		Database:        "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     30 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}

	db, err := sql.Open("clickhouse", buildDSN(*cfg))
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	return &Client{db: db}, nil
}

// DB returns *sql.DB for direct use.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Health performs health check.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// TableExists reports whether table (optionally db-qualified) exists.
func (c *Client) TableExists(ctx context.Context, table string) (bool, error) {
	if !ValidIdentifier(table) {
		return false, fmt.Errorf("invalid table name %q", table)
	}
	var exists uint8
	if err := c.db.QueryRowContext(ctx, "EXISTS TABLE "+table).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists table %s: %w", table, err)
	}
	return exists == 1, nil
}

// Close closes connection pool.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// ValidIdentifier accepts plain or db-qualified identifiers that are safe to
// splice into a query.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

func buildDSN(cfg ClientConfig) string {
	scheme := "clickhouse://"
	if cfg.UseHTTP {
		scheme = "http://"
	}
	dsn := fmt.Sprintf("%s%s:%s@%s:%d/%s",
		scheme, cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	sep := "?"
	add := func(key string, val any) {
		dsn += fmt.Sprintf("%s%s=%v", sep, key, val)
		sep = "&"
	}
	if cfg.DialTimeout > 0 {
		add("dial_timeout", cfg.DialTimeout)
	}
	if cfg.ReadTimeout > 0 {
		add("read_timeout", cfg.ReadTimeout)
	}
	if cfg.MaxExecTime > 0 {
		add("max_execution_time", int(cfg.MaxExecTime.Seconds()))
	}
	return dsn
}
