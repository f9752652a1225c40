package app

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aeell/HomeEyeView/internal/conf"
	"github.com/ixugo/goddd/pkg/system"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// SetupLog 同时输出到终端和按天切割的日志文件
func SetupLog(bc *conf.Bootstrap) (*slog.Logger, func(), error) {
	cfg := bc.Log
	dir := cfg.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(system.Getwd(), dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	r, err := rotatelogs.New(
		filepath.Join(dir, "%Y%m%d.log"),
		rotatelogs.WithMaxAge(cfg.MaxAge.Duration()),
		rotatelogs.WithRotationTime(cfg.RotationTime.Duration()),
	)
	if err != nil {
		return nil, nil, err
	}

	level := parseLevel(cfg.Level)
	if bc.Server.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stderr, r), &slog.HandlerOptions{
		AddSource: level == slog.LevelDebug,
		Level:     level,
	}))
	slog.SetDefault(log)
	return log, func() { _ = r.Close() }, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
