package repo

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"finlern/internal/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config locates the Postgres database.
type Config struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
	MaxConns int32
}

// ConnString renders cfg as a postgres URL.
func (c Config) ConnString() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {sslmode}, "search_path": {"public"}}.Encode(),
	}
	return u.String()
}

// DBTX is the subset of pgxpool.Pool and pgx.Conn the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open creates a connection pool and verifies it with a ping.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnIdleTime = time.Minute * 5
	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolCfg.ConnConfig.RuntimeParams["search_path"] = "public"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if logger != nil {
		var currentDB, currentUser string
		err = pool.QueryRow(ctx, "SELECT current_database(), current_user").Scan(&currentDB, &currentUser)
		if err != nil {
			logger.Warn(ctx, err, "database connection established, context query failed")
		} else {
			logger.Info(ctx, "database connection established", "db", currentDB, "user", currentUser, "host", cfg.Host)
		}
	}
	return pool, nil
}
