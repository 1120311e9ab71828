package main

import (
	"net/http"
	"strings"
)

// TileJSON 瓦片集元数据文档 (TileJSON 2.2.0)
type TileJSON struct {
	TileJSON    string     `json:"tilejson"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Attribution string     `json:"attribution,omitempty"`
	Scheme      string     `json:"scheme"`
	Format      string     `json:"format"`
	Tiles       []string   `json:"tiles"`
	MinZoom     int        `json:"minzoom"`
	MaxZoom     int        `json:"maxzoom"`
	Bounds      [4]float64 `json:"bounds"`
	Center      [3]float64 `json:"center"`
}

func newTileJSON(ts Tileset, baseURL string) TileJSON {
	return TileJSON{
		TileJSON:    "2.2.0",
		Name:        ts.Name,
		Description: ts.Description,
		Attribution: ts.Attribution,
		Scheme:      "xyz",
		Format:      PBF,
		Tiles:       []string{tileURLTemplate(baseURL, ts.Name)},
		MinZoom:     ts.MinZoom,
		MaxZoom:     ts.MaxZoom,
		Bounds:      [4]float64{ts.Bounds.Min.X(), ts.Bounds.Min.Y(), ts.Bounds.Max.X(), ts.Bounds.Max.Y()},
		Center:      ts.Center(),
	}
}

// tileURLTemplate 瓦片 URL 模板, 如 http://host/name/{z}/{x}/{y}.pbf
func tileURLTemplate(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + "/" + name + "/{z}/{x}/{y}." + PBF
}

// requestBaseURL 由请求本身推导 scheme://host, 支持反向代理头
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.TrimSpace(strings.Split(p, ",")[0])
	}
	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host = strings.TrimSpace(strings.Split(h, ",")[0])
	}
	return scheme + "://" + host
}
