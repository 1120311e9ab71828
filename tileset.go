package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

var (
	errTilesetNotFound = errors.New("tileset not found")

	tilesetNameRe = regexp.MustCompile(`^[\w.]*$`)
	placeholderRe = regexp.MustCompile(`\{(\w+)\}`)
)

// Tileset 一个可服务的矢量瓦片集, 加载后只读
type Tileset struct {
	Name        string
	MinZoom     int
	MaxZoom     int
	Bounds      orb.Bound
	Attribution string
	Description string

	query tileQuery
}

// Center 范围中心点, 级别取 minzoom
func (ts Tileset) Center() [3]float64 {
	c := ts.Bounds.Center()
	return [3]float64{c.X(), c.Y(), float64(ts.MinZoom)}
}

// Tilesets 瓦片集注册表, 启动时构建一次, 之后并发只读
type Tilesets struct {
	m map[string]Tileset
}

func newTilesets(list []Tileset) (*Tilesets, error) {
	m := make(map[string]Tileset, len(list))
	for _, ts := range list {
		if _, ok := m[ts.Name]; ok {
			return nil, fmt.Errorf("duplicate tileset %q", ts.Name)
		}
		m[ts.Name] = ts
	}
	return &Tilesets{m: m}, nil
}

// Get 查找瓦片集, 不存在时 ok 为 false
func (t *Tilesets) Get(name string) (Tileset, bool) {
	ts, ok := t.m[name]
	return ts, ok
}

func (t *Tilesets) Len() int {
	return len(t.m)
}

// Names 按字母序返回所有瓦片集名称
func (t *Tilesets) Names() []string {
	names := make([]string, 0, len(t.m))
	for name := range t.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// tilesetRow 瓦片集定义表中的一行
type tilesetRow struct {
	Name        string  `db:"name"`
	MinZoom     int32   `db:"minzoom"`
	MaxZoom     int32   `db:"maxzoom"`
	West        float64 `db:"west"`
	South       float64 `db:"south"`
	East        float64 `db:"east"`
	North       float64 `db:"north"`
	Attribution *string `db:"attribution"`
	Description *string `db:"description"`
	Query       string  `db:"query"`
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// loadTilesets 从数据库读取所有瓦片集定义
func loadTilesets(ctx context.Context, q rowQuerier, table string) (*Tilesets, error) {
	sql := fmt.Sprintf(
		`SELECT name, minzoom, maxzoom, west, south, east, north, attribution, description, query FROM %s ORDER BY name`,
		pgx.Identifier(strings.Split(table, ".")).Sanitize(),
	)
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query tilesets: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[tilesetRow])
	if err != nil {
		return nil, fmt.Errorf("read tilesets: %w", err)
	}
	return buildTilesets(records)
}

func buildTilesets(records []tilesetRow) (*Tilesets, error) {
	list := make([]Tileset, 0, len(records))
	for _, r := range records {
		ts, err := r.tileset()
		if err != nil {
			return nil, err
		}
		list = append(list, ts)
	}
	return newTilesets(list)
}

func (r tilesetRow) tileset() (Tileset, error) {
	if !tilesetNameRe.MatchString(r.Name) {
		return Tileset{}, fmt.Errorf("tileset %q: invalid name", r.Name)
	}
	if r.MinZoom < 0 || r.MinZoom > r.MaxZoom || r.MaxZoom > ZoomMax {
		return Tileset{}, fmt.Errorf("tileset %q: invalid zoom range [%d, %d]", r.Name, r.MinZoom, r.MaxZoom)
	}
	q, err := compileTileQuery(r.Query)
	if err != nil {
		return Tileset{}, fmt.Errorf("tileset %q: %w", r.Name, err)
	}
	ts := Tileset{
		Name:    r.Name,
		MinZoom: int(r.MinZoom),
		MaxZoom: int(r.MaxZoom),
		Bounds: orb.Bound{
			Min: orb.Point{r.West, r.South},
			Max: orb.Point{r.East, r.North},
		},
		query: q,
	}
	if r.Attribution != nil {
		ts.Attribution = *r.Attribution
	}
	if r.Description != nil {
		ts.Description = *r.Description
	}
	return ts, nil
}

type tileParam int

const (
	paramZ tileParam = iota
	paramX
	paramY
	paramXMin
	paramYMin
	paramXMax
	paramYMax
)

var tileParams = map[string]tileParam{
	"z":    paramZ,
	"x":    paramX,
	"y":    paramY,
	"xmin": paramXMin,
	"ymin": paramYMin,
	"xmax": paramXMax,
	"ymax": paramYMax,
}

// tileQuery 编译后的瓦片查询, 占位符已替换为位置参数
type tileQuery struct {
	sql    string
	params []tileParam
}

// compileTileQuery 将 {z} {x} {y} {xmin} {ymin} {xmax} {ymax} {bbox} 替换为 $n.
// 不认识的花括号内容保持原样.
func compileTileQuery(tmpl string) (tileQuery, error) {
	if strings.TrimSpace(tmpl) == "" {
		return tileQuery{}, errors.New("empty tile query")
	}
	tmpl = strings.ReplaceAll(tmpl, "{bbox}", "ST_MakeEnvelope({xmin}, {ymin}, {xmax}, {ymax}, 3857)")

	var q tileQuery
	index := make(map[tileParam]int)
	q.sql = placeholderRe.ReplaceAllStringFunc(tmpl, func(token string) string {
		p, ok := tileParams[token[1:len(token)-1]]
		if !ok {
			return token
		}
		n, ok := index[p]
		if !ok {
			q.params = append(q.params, p)
			n = len(q.params)
			index[p] = n
		}
		return fmt.Sprintf("$%d", n)
	})
	if len(q.params) == 0 {
		return tileQuery{}, errors.New("tile query has no tile placeholders")
	}
	return q, nil
}

// args 按编译顺序生成查询参数
func (q tileQuery) args(t maptile.Tile) []any {
	var env orb.Bound
	for _, p := range q.params {
		if p >= paramXMin {
			env = mercatorBound(t)
			break
		}
	}
	args := make([]any, len(q.params))
	for i, p := range q.params {
		switch p {
		case paramZ:
			args[i] = int(t.Z)
		case paramX:
			args[i] = int(t.X)
		case paramY:
			args[i] = int(t.Y)
		case paramXMin:
			args[i] = env.Min.X()
		case paramYMin:
			args[i] = env.Min.Y()
		case paramXMax:
			args[i] = env.Max.X()
		case paramYMax:
			args[i] = env.Max.Y()
		}
	}
	return args
}
