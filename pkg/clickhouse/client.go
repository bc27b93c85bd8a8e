// Package clickhouse opens the pooled ClickHouse connection used by the price
// store. Connections go through clickhouse-go's database/sql adapter.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClientOption configures Client.
type ClientOption func(*settings)

type settings struct {
	host, database, user, password string
	port                           int
	http                           bool
	compression                    string
	maxOpen, maxIdle               int
	connLifetime                   time.Duration
	dialTimeout, readTimeout       time.Duration
	maxExec                        time.Duration
	asyncInsert, waitAsync         bool
}

// WithHost sets the server host. Required.
func WithHost(host string) ClientOption {
	return func(s *settings) { s.host = host }
}

// WithPort overrides the port (9000 native, 8123 usually for HTTP).
func WithPort(port int) ClientOption {
	return func(s *settings) {
		if port > 0 {
			s.port = port
		}
	}
}

// WithDatabase selects the database.
func WithDatabase(db string) ClientOption {
	return func(s *settings) {
		if db != "" {
			s.database = db
		}
	}
}

// WithCredentials sets user and password. An empty user keeps "default".
func WithCredentials(user, password string) ClientOption {
	return func(s *settings) {
		if user != "" {
			s.user = user
		}
		s.password = password
	}
}

// WithMaxConnections sizes the pool.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(s *settings) {
		if maxOpen > 0 {
			s.maxOpen = maxOpen
		}
		if maxIdle > 0 {
			s.maxIdle = maxIdle
		}
	}
}

// WithTimeouts sets dial and read timeouts. Zero keeps the default.
func WithTimeouts(dial, read time.Duration) ClientOption {
	return func(s *settings) {
		if dial > 0 {
			s.dialTimeout = dial
		}
		if read > 0 {
			s.readTimeout = read
		}
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(on bool) ClientOption {
	return func(s *settings) { s.http = on }
}

// WithCompression picks lz4, zstd or none.
func WithCompression(method string) ClientOption {
	return func(s *settings) {
		if method != "" {
			s.compression = strings.ToLower(method)
		}
	}
}

// WithAsyncInsert turns on server-side insert buffering.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(s *settings) {
		s.asyncInsert = enabled
		s.waitAsync = wait
	}
}

// WithMaxExecutionTime bounds every query server-side.
func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(s *settings) { s.maxExec = d }
}

// Client wraps the ClickHouse connection pool.
type Client struct {
	db *sql.DB
}

// NewClient connects and pings ClickHouse.
func NewClient(opts ...ClientOption) (*Client, error) {
	s := &settings{
		port:         9000,
		database:     "pricepull",
		user:         "default",
		compression:  "lz4",
		maxOpen:      10,
		maxIdle:      5,
		connLifetime: 5 * time.Minute,
		dialTimeout:  5 * time.Second,
		readTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.host == "" {
		return nil, errors.New("clickhouse host is required")
	}

	db := clickhouse.OpenDB(s.options())
	db.SetMaxOpenConns(s.maxOpen)
	db.SetMaxIdleConns(s.maxIdle)
	db.SetConnMaxLifetime(s.connLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), s.dialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", s.host, err)
	}
	return &Client{db: db}, nil
}

func (s *settings) options() *clickhouse.Options {
	o := &clickhouse.Options{
		Addr: []string{net.JoinHostPort(s.host, strconv.Itoa(s.port))},
		Auth: clickhouse.Auth{
			Database: s.database,
			Username: s.user,
			Password: s.password,
		},
		Protocol:    clickhouse.Native,
		DialTimeout: s.dialTimeout,
		ReadTimeout: s.readTimeout,
		Settings:    clickhouse.Settings{},
	}
	if s.http {
		o.Protocol = clickhouse.HTTP
	}
	switch s.compression {
	case "lz4":
		o.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	case "zstd":
		o.Compression = &clickhouse.Compression{Method: clickhouse.CompressionZSTD}
	}
	if s.maxExec > 0 {
		o.Settings["max_execution_time"] = int(s.maxExec.Seconds())
	}
	if s.asyncInsert {
		o.Settings["async_insert"] = 1
		if s.waitAsync {
			o.Settings["wait_for_async_insert"] = 1
		}
	}
	return o
}

// DB returns the pool for queries.
func (c *Client) DB() *sql.DB { return c.db }

// Health pings the server.
func (c *Client) Health(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// InitSchema runs idempotent DDL in order and stops at the first failure.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
