package main

import (
	"crypto/tls"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestBaseURL(t *testing.T) {
	req := httptest.NewRequest("GET", "http://localhost:3000/roads.json", nil)
	assert.Equal(t, "http://localhost:3000", requestBaseURL(req))

	req.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https://localhost:3000", requestBaseURL(req))

	req = httptest.NewRequest("GET", "/roads.json", nil)
	req.Header.Set("X-Forwarded-Proto", "https, http")
	req.Header.Set("X-Forwarded-Host", "tiles.example.com, proxy.internal")
	assert.Equal(t, "https://tiles.example.com", requestBaseURL(req))
}

func TestNewTileJSON(t *testing.T) {
	ts, _ := testTilesets(t).Get("public.buildings")
	doc := newTileJSON(ts, "http://localhost:3000/")

	assert.Equal(t, "2.2.0", doc.TileJSON)
	assert.Equal(t, "xyz", doc.Scheme)
	assert.Equal(t, PBF, doc.Format)
	assert.Equal(t, [4]float64{116.2, 39.8, 116.6, 40.1}, doc.Bounds)
	assert.Equal(t, []string{"http://localhost:3000/public.buildings/{z}/{x}/{y}.pbf"}, doc.Tiles)
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		assert.True(t, strings.Contains(doc.Tiles[0], p))
	}
}
