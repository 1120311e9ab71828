package main

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
)

var ginModeOnce sync.Once

// defaultAcquireTimeout 未配置时获取连接的等待上限
const defaultAcquireTimeout = 5 * time.Second

// Server 瓦片服务, 注册表与连接池在创建前已就绪
type Server struct {
	tilesets *Tilesets
	executor *tileExecutor
	baseURL  string
	engine   *gin.Engine
}

type ServerOptions struct {
	// BaseURL 非空时替代由请求推导的瓦片地址前缀
	BaseURL string
	// AcquireTimeout 获取连接的最长等待时间, 超时返回 503; 非正数时使用 defaultAcquireTimeout
	AcquireTimeout time.Duration
	QueryTimeout   time.Duration
}

func NewServer(tilesets *Tilesets, pool connPool, opts ServerOptions) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = defaultAcquireTimeout
	}

	s := &Server{
		tilesets: tilesets,
		executor: &tileExecutor{
			pool:           pool,
			acquireTimeout: opts.AcquireTimeout,
			queryTimeout:   opts.QueryTimeout,
		},
		baseURL: opts.BaseURL,
	}

	r := gin.New()
	r.Use(accessLog(), cors(), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Errorf("panic serving %s: %v", c.Request.URL.Path, recovered)
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	// 所有请求都经过 dispatch, 由 matchRoute 决定路由
	r.NoRoute(s.dispatch)
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) dispatch(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		c.AbortWithStatus(http.StatusNoContent)
		return
	default:
		c.String(http.StatusNotFound, "not found")
		return
	}

	switch rt := matchRoute(c.Request.URL.Path).(type) {
	case indexRoute:
		s.index(c)
	case tileJSONRoute:
		s.tileJSON(c, rt)
	case tileRoute:
		s.tile(c, rt)
	default:
		c.String(http.StatusNotFound, "not found")
	}
}

// index 固定返回 {}
func (s *Server) index(c *gin.Context) {
	c.Data(http.StatusOK, MimeJSON, []byte("{}"))
}

func (s *Server) tileJSON(c *gin.Context, rt tileJSONRoute) {
	ts, ok := s.tilesets.Get(rt.tileset)
	if !ok {
		c.String(http.StatusNotFound, errTilesetNotFound.Error())
		return
	}
	base := s.baseURL
	if base == "" {
		base = requestBaseURL(c.Request)
	}
	c.JSON(http.StatusOK, newTileJSON(ts, base))
}

func (s *Server) tile(c *gin.Context, rt tileRoute) {
	ts, ok := s.tilesets.Get(rt.tileset)
	if !ok {
		c.String(http.StatusNotFound, errTilesetNotFound.Error())
		return
	}
	if rt.err != nil {
		c.String(http.StatusBadRequest, rt.err.Error())
		return
	}
	if err := validTile(ts, rt.tile); err != nil {
		c.String(http.StatusNotFound, err.Error())
		return
	}

	data, err := s.executor.fetch(c.Request.Context(), ts, rt.tile)
	switch {
	case errors.Is(err, errPoolUnavailable):
		_ = c.Error(err)
		c.String(http.StatusServiceUnavailable, "service unavailable")
	case err != nil:
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "internal server error")
	case len(data) == 0:
		c.Header("Content-Type", MimePBF)
		c.Status(http.StatusNoContent)
	default:
		c.Data(http.StatusOK, MimePBF, data)
	}
}

// cors 为所有响应加上跨域头, 不改变状态码和响应体
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept")
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id, err := shortid.Generate()
		if err == nil {
			c.Header("X-Request-Id", id)
		}

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"id":      id,
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"latency": time.Since(start).String(),
		})
		switch {
		case len(c.Errors) > 0 && status >= http.StatusInternalServerError:
			entry.Error(c.Errors.String())
		case len(c.Errors) > 0:
			entry.Warn(c.Errors.String())
		default:
			entry.Debug("request")
		}
	}
}
