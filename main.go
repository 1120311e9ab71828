package main

import (
	"context"
	"errors"
	"net/http"
	"time"
)

func main() {
	// 初始化控制台
	InitFlag()
	// 开始安全退出任务
	InitSafeExit()
	// 初始化配置
	InitConf(configPath)
	// 初始化日志
	InitLog()
	// 连接数据库并加载瓦片集, 失败时不启动监听
	db, tilesets := InitDB()
	// 开始服务
	InitServer(db, tilesets)
}

func InitDB() (*DB, *Tilesets) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Infof("connecting to postgres, pool size %d", conf.Database.PoolSize)
	db, err := setupConnectionPool(ctx, conf.Database.URL, conf.Database.PoolSize, conf.Database.HealthCheckPeriod)
	if err != nil {
		log.Fatalf("error connecting to postgres: %s", err)
	}
	SafeExitInst.Register(db.Close)

	tilesets, err := loadTilesets(ctx, db, conf.Tilesets.Table)
	if err != nil {
		db.Close()
		log.Fatalf("error loading tilesets: %s", err)
	}
	log.Infof("loaded %d tilesets: %v", tilesets.Len(), tilesets.Names())
	return db, tilesets
}

func InitServer(db *DB, tilesets *Tilesets) {
	srv := NewServer(tilesets, db, ServerOptions{
		BaseURL:        conf.Server.BaseURL,
		AcquireTimeout: conf.Database.AcquireTimeout,
		QueryTimeout:   conf.Database.QueryTimeout,
	})
	hs := &http.Server{
		Addr:    conf.Server.Addr,
		Handler: srv.Handler(),
	}
	SafeExitInst.Register(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hs.Shutdown(ctx); err != nil {
			log.Warnf("http server shutdown error, details: %s", err)
		}
	})

	log.Infof("%s %s has been started on %s", conf.App.Title, conf.App.Version, hs.Addr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server error, details: %s", err)
	}
	<-SafeExitInst.Done()
}
