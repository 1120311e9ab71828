package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	hf         bool
	configPath string
	logLevel   string
)

func InitFlag() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&configPath, "c", "", "set config `file` (default: "+defaultConfigPath+")")
	flag.StringVar(&logLevel, "l", "info", "set log level (default: info)")
	flag.Usage = usage
	flag.Parse()

	if hf {
		flag.Usage()
		os.Exit(0)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `tileserver version: tileserver/v0.1.0
Usage: tileserver [-h] [-c filename] [-l logLevel]

Environment:
  DATABASE_URL  postgres connection string (required)

`)
	flag.PrintDefaults()
}
