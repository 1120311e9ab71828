package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// connPool 是处理函数看到的连接池, 每个请求最多持有一个连接
type connPool interface {
	Acquire(ctx context.Context) (pooledConn, error)
}

// pooledConn 是从连接池借出的单个会话, 必须在请求结束前 Release
type pooledConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	// Release 归还连接; err 表示连接已损坏时连接被丢弃, 连接池在下次获取时重新建立
	Release(err error)
}

// DB 基于 pgxpool 的连接池
type DB struct {
	pool *pgxpool.Pool
}

// setupConnectionPool 建立连接池并确认数据库可达
// healthCheckPeriod 非正数时使用 pgxpool 默认值
func setupConnectionPool(ctx context.Context, connString string, maxSize int, healthCheckPeriod time.Duration) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	cfg.MinConns = 0
	cfg.MaxConns = int32(maxSize)
	if healthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = healthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Acquire 阻塞直到有空闲连接或可以新建连接, 等待时间由 ctx 限定
func (db *DB) Acquire(ctx context.Context) (pooledConn, error) {
	c, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgConn{c}, nil
}

// Query 仅用于启动时加载瓦片集
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

func (db *DB) Close() {
	db.pool.Close()
	log.Infof("connection pool closed")
}

type pgConn struct {
	*pgxpool.Conn
}

func (c *pgConn) Release(err error) {
	if !isConnBroken(err) || connUsable(c.Conn.Conn().PgConn()) {
		c.Conn.Release()
		return
	}
	// 从连接池中摘除并关闭, 连接池会按需新建连接补位
	conn := c.Conn.Hijack()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn.Close(ctx)
	log.Warnf("discarded broken connection, details: %s", err)
}

// isConnBroken 判断查询错误之后连接是否还能复用.
// 服务端返回的 SQL 错误和客户端的扫描/解码错误不影响会话,
// 其余错误(网络中断, 超时, 协议错误)都视为连接损坏.
func isConnBroken(err error) bool {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return false
	}
	var scanErr pgx.ScanArgError
	return !errors.As(err, &scanErr)
}

// connUsable 会话仍打开且没有未读完的结果, 例如列数与扫描目标不一致时
func connUsable(pc *pgconn.PgConn) bool {
	return pc != nil && !pc.IsClosed() && !pc.IsBusy()
}
