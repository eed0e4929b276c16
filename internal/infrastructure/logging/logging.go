package logging

import (
	"io"
	"log"
	"os"

	"loyaltyledger/internal/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup 配置标准库 log 的输出：始终输出到 stdout，配置了文件时同时写入滚动日志
// 返回的 io.Closer 在进程退出前关闭
func Setup(cfg *config.LogConfig) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if cfg.File == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
