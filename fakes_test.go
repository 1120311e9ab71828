package main

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakePool 容量固定的连接池, Acquire 在无空闲连接时阻塞到 ctx 结束
type fakePool struct {
	slots chan struct{}
	query func(ctx context.Context, sql string, args []any) ([]byte, error)

	mu        sync.Mutex
	acquired  int
	released  int
	discarded int
	lastSQL   string
	lastArgs  []any
}

func newFakePool(size int, query func(ctx context.Context, sql string, args []any) ([]byte, error)) *fakePool {
	return &fakePool{slots: make(chan struct{}, size), query: query}
}

func (p *fakePool) Acquire(ctx context.Context) (pooledConn, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.mu.Lock()
	p.acquired++
	p.mu.Unlock()
	return &fakeConn{pool: p}, nil
}

func (p *fakePool) counts() (acquired, released, discarded int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released, p.discarded
}

type fakeConn struct {
	pool     *fakePool
	released bool
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	c.pool.mu.Lock()
	c.pool.lastSQL = sql
	c.pool.lastArgs = args
	c.pool.mu.Unlock()
	data, err := c.pool.query(ctx, sql, args)
	return fakeRow{data: data, err: err}
}

func (c *fakeConn) Release(err error) {
	if c.released {
		panic("connection released twice")
	}
	c.released = true
	c.pool.mu.Lock()
	c.pool.released++
	if isConnBroken(err) {
		c.pool.discarded++
	}
	c.pool.mu.Unlock()
	<-c.pool.slots
}

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return errors.New("expected one destination")
	}
	*dest[0].(*[]byte) = r.data
	return nil
}

func staticTile(data []byte) func(context.Context, string, []any) ([]byte, error) {
	return func(context.Context, string, []any) ([]byte, error) {
		return data, nil
	}
}

func testTilesets(t *testing.T) *Tilesets {
	t.Helper()
	attribution := "© OpenStreetMap contributors"
	tilesets, err := buildTilesets([]tilesetRow{
		{
			Name:        "roads",
			MinZoom:     0,
			MaxZoom:     14,
			West:        -180,
			South:       -85.0511,
			East:        180,
			North:       85.0511,
			Attribution: &attribution,
			Query:       "SELECT ST_AsMVT(t, 'roads') FROM (SELECT ST_AsMVTGeom(geom, {bbox}) FROM roads WHERE geom && {bbox}) t",
		},
		{
			Name:    "public.buildings",
			MinZoom: 12,
			MaxZoom: 16,
			West:    116.2,
			South:   39.8,
			East:    116.6,
			North:   40.1,
			Query:   "SELECT mvt FROM buildings_tile({z}, {x}, {y})",
		},
	})
	require.NoError(t, err)
	return tilesets
}

// fakeRows 以内存中的行实现 pgx.Rows
type fakeRows struct {
	fields []pgconn.FieldDescription
	rows   [][]any
	pos    int
	err    error
	closed bool
}

func newFakeRows(columns []string, rows ...[]any) *fakeRows {
	fields := make([]pgconn.FieldDescription, len(columns))
	for i, name := range columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return &fakeRows{fields: fields, rows: rows}
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.closed || r.pos >= len(r.rows) {
		r.closed = true
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.pos-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("got %d destinations for %d columns", len(dest), len(row))
	}
	for i, v := range row {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}

// fakeQuerier 记录启动加载时执行的 SQL
type fakeQuerier struct {
	rows *fakeRows
	err  error
	sql  string
}

func (q *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.sql = sql
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}
