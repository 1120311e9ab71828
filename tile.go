package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

// ZoomMax 瓦片集允许的最大级别
const ZoomMax = 30

// Constants representing response content types
const (
	PBF      = "pbf"
	MimePBF  = "application/x-protobuf"
	MimeJSON = "application/json"
)

var (
	errMalformedCoordinate = errors.New("malformed tile coordinate")
	errZoomOutOfRange      = errors.New("tile outside tileset zoom range")
	errTileOutOfRange      = errors.New("tile outside tile pyramid")
)

// parseTile 将路径中的 z/x/y 转为瓦片, 空值不会被当作 0
func parseTile(z, x, y string) (maptile.Tile, error) {
	var v [3]uint32
	for i, s := range [3]string{z, x, y} {
		if s == "" {
			return maptile.Tile{}, fmt.Errorf("%w: empty %s", errMalformedCoordinate, "zxy"[i:i+1])
		}
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return maptile.Tile{}, fmt.Errorf("%w: %s", errMalformedCoordinate, s)
		}
		v[i] = uint32(n)
	}
	return maptile.Tile{X: v[1], Y: v[2], Z: maptile.Zoom(v[0])}, nil
}

// validTile 检查瓦片在瓦片集级别范围内并且位于瓦片金字塔中
func validTile(ts Tileset, t maptile.Tile) error {
	z := int(t.Z)
	if z < ts.MinZoom || z > ts.MaxZoom {
		return fmt.Errorf("%w: %d not in [%d, %d]", errZoomOutOfRange, z, ts.MinZoom, ts.MaxZoom)
	}
	n := uint64(1) << uint(z)
	if uint64(t.X) >= n || uint64(t.Y) >= n {
		return fmt.Errorf("%w: %d/%d/%d", errTileOutOfRange, t.Z, t.X, t.Y)
	}
	return nil
}

// mercatorBound 瓦片在 EPSG:3857 下的范围 (米)
func mercatorBound(t maptile.Tile) orb.Bound {
	b := t.Bound()
	return orb.Bound{
		Min: project.WGS84.ToMercator(b.Min),
		Max: project.WGS84.ToMercator(b.Max),
	}
}

var errPoolUnavailable = errors.New("no database connection available")

// tileExecutor 执行瓦片集查询, 每次查询从连接池借出一个连接
type tileExecutor struct {
	pool           connPool
	acquireTimeout time.Duration
	queryTimeout   time.Duration
}

// fetch 返回原始 MVT 字节, 没有要素时返回空切片.
// 连接在所有返回路径上都会归还或丢弃.
func (e *tileExecutor) fetch(ctx context.Context, ts Tileset, t maptile.Tile) (data []byte, err error) {
	conn, err := e.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errPoolUnavailable, err)
	}
	defer func() { conn.Release(err) }()

	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}
	err = conn.QueryRow(ctx, ts.query.sql, ts.query.args(t)...).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query tile %s/%d/%d/%d: %w", ts.Name, t.Z, t.X, t.Y, err)
	}
	return data, nil
}

// acquire 等待空闲连接, 最长 acquireTimeout
func (e *tileExecutor) acquire(ctx context.Context) (pooledConn, error) {
	if e.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.acquireTimeout)
		defer cancel()
	}
	return e.pool.Acquire(ctx)
}
