package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

var conf *Conf

// defaultConfigPath 默认配置文件, 不存在时仅使用默认值与环境变量
const defaultConfigPath = "./conf/conf.toml"

type Conf struct {
	App struct {
		Version string `mapstructure:"version"`
		Title   string `mapstructure:"title"`
	} `mapstructure:"app"`
	Server struct {
		Addr    string `mapstructure:"addr"`
		BaseURL string `mapstructure:"baseURL"`
	} `mapstructure:"server"`
	Output struct {
		LogDir         string `mapstructure:"logDir"`
		OutputTerminal bool   `mapstructure:"outputTerminal"`
	} `mapstructure:"output"`
	Database struct {
		URL               string        `mapstructure:"url"`
		PoolSize          int           `mapstructure:"poolSize"`
		AcquireTimeout    time.Duration `mapstructure:"acquireTimeout"`
		QueryTimeout      time.Duration `mapstructure:"queryTimeout"`
		HealthCheckPeriod time.Duration `mapstructure:"healthCheckPeriod"`
	} `mapstructure:"database"`
	Tilesets struct {
		Table string `mapstructure:"table"`
	} `mapstructure:"tilesets"`
}

// InitConf 初始化配置
func InitConf(cfgFile string) {
	c, err := loadConf(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	conf = c
}

func loadConf(cfgFile string) (*Conf, error) {
	v := viper.New()
	// 设置默认值
	v.SetDefault("app.version", "v 0.1.0")
	v.SetDefault("app.title", "MapCloud Tile Server")
	v.SetDefault("server.addr", "0.0.0.0:3000")
	v.SetDefault("server.baseURL", "")
	v.SetDefault("output.logDir", "")
	v.SetDefault("output.outputTerminal", true)
	v.SetDefault("database.poolSize", 10)
	v.SetDefault("database.acquireTimeout", defaultAcquireTimeout.String())
	v.SetDefault("database.queryTimeout", "0s")
	v.SetDefault("database.healthCheckPeriod", "1m")
	v.SetDefault("tilesets.table", "tilesets")

	v.AutomaticEnv()
	if err := v.BindEnv("database.url", "DATABASE_URL"); err != nil {
		return nil, err
	}

	path := cfgFile
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigType("toml")
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file(%s) error, details: %w", path, err)
		}
	} else if cfgFile != "" {
		return nil, fmt.Errorf("config file(%s) not exist", cfgFile)
	}

	var c Conf
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}
	if c.Database.PoolSize <= 0 {
		return nil, fmt.Errorf("database.poolSize must be positive, got %d", c.Database.PoolSize)
	}
	if c.Database.AcquireTimeout <= 0 {
		return nil, fmt.Errorf("database.acquireTimeout must be positive, got %s", c.Database.AcquireTimeout)
	}
	return &c, nil
}
