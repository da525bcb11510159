// Package logger 提供进程级 zap 日志，支持文件轮转与控制台双输出
package logger

import (
	"fmt"
	"os"
	"strings"

	"quota-exporter/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Log *zap.SugaredLogger

func init() {
	// 配置加载前的兜底 logger，级别可由 LOG_LEVEL 预先覆盖
	zcfg := zap.NewDevelopmentConfig()
	if lv := os.Getenv("LOG_LEVEL"); lv != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(lv)); err == nil {
			zcfg.Level.SetLevel(level)
		}
	}
	l, err := zcfg.Build()
	if err != nil {
		// 初始化失败时输出到 stderr 并退化为 no-op logger
		fmt.Fprintf(os.Stderr, "Failed to initialize default logger: %v\n", err)
		l = zap.NewNop()
	}
	Log = l.Sugar()
}

// Init 按配置重建全局 logger
func Init(cfg *config.LogConfig) {
	if cfg == nil {
		return
	}

	var outputs []zapcore.WriteSyncer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout", "console":
		outputs = append(outputs, zapcore.AddSync(os.Stdout))
	case "file":
		if cfg.File != nil && cfg.File.Path != "" {
			outputs = append(outputs, fileWriteSyncer(cfg.File))
		} else {
			// 文件路径缺失时回退到 stdout
			outputs = append(outputs, zapcore.AddSync(os.Stdout))
		}
	case "both":
		outputs = append(outputs, zapcore.AddSync(os.Stdout))
		if cfg.File != nil && cfg.File.Path != "" {
			outputs = append(outputs, fileWriteSyncer(cfg.File))
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(outputs...), level)

	l := zap.New(core, zap.AddCaller())
	zap.RedirectStdLog(l)
	Log = l.Sugar()
}

func fileWriteSyncer(cfg *config.FileLogConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
}

// Sync flushes any buffered log entries
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
