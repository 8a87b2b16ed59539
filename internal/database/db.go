package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PoolConfig は接続プールの上限。ゼロ値の項目はdatabase/sqlの既定に任せる。
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPool はサーバー1台あたりの既定値。セッション参照がリクエストごとに走るため控えめに開けておく。
var DefaultPool = PoolConfig{
	MaxOpenConns:    20,
	MaxIdleConns:    5,
	ConnMaxLifetime: 30 * time.Minute,
}

// Option はOpenのオプション。
type Option func(*PoolConfig)

// WithPool はプール設定を差し替える。
func WithPool(p PoolConfig) Option {
	return func(c *PoolConfig) { *c = p }
}

// Open はpostgres://形式のURLでプールを作る。接続は張らないので疎通確認はPingContextで行う。
func Open(databaseURL string, opts ...Option) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is empty")
	}

	pool := DefaultPool
	for _, opt := range opts {
		opt(&pool)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return db, nil
}
