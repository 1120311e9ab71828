package main

import (
	"regexp"

	"github.com/paulmach/orb/maptile"
)

// route 三种路由形态之一: indexRoute, tileJSONRoute, tileRoute
type route interface {
	route()
}

type indexRoute struct{}

type tileJSONRoute struct {
	tileset string
}

// tileRoute 的 err 非空时表示路径匹配但坐标不合法
type tileRoute struct {
	tileset string
	tile    maptile.Tile
	err     error
}

func (indexRoute) route()    {}
func (tileJSONRoute) route() {}
func (tileRoute) route()     {}

var (
	tileJSONPattern = regexp.MustCompile(`^/([\w.]*)\.json$`)
	tilePattern     = regexp.MustCompile(`^/([\w.]*)/(\d*)/(\d*)/(\d*)\.pbf$`)
)

// matchRoute 按顺序匹配路由, 未匹配时返回 nil
func matchRoute(path string) route {
	if path == "/index.json" {
		return indexRoute{}
	}
	if m := tileJSONPattern.FindStringSubmatch(path); m != nil {
		return tileJSONRoute{tileset: m[1]}
	}
	if m := tilePattern.FindStringSubmatch(path); m != nil {
		t, err := parseTile(m[2], m[3], m[4])
		return tileRoute{tileset: m[1], tile: t, err: err}
	}
	return nil
}
