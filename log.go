package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
)

// log 在 InitLog 之前使用 logrus 默认输出, 便于测试直接调用处理函数
var log = logrus.New()

// InitLog 初始化日志
func InitLog() {
	log = logrus.New()
	log.SetFormatter(&nested.Formatter{
		HideKeys:        false,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	logIO := make([]io.Writer, 0)
	if logDir := conf.Output.LogDir; logDir != "" {
		if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
			panic("create log dir: " + err.Error())
		}
		filename := filepath.Join(logDir, time.Now().Format("2006-01-02.log"))
		file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_RDWR, os.ModePerm)
		if err != nil {
			panic("open log file: " + err.Error())
		}
		logIO = append(logIO, file)
		SafeExitInst.Register(func() { file.Close() })
	}
	if conf.Output.OutputTerminal || len(logIO) == 0 {
		logIO = append(logIO, os.Stdout)
	}

	log.SetOutput(ansicolor.NewAnsiColorWriter(io.MultiWriter(logIO...)))

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetLevel(level)
	}
}
