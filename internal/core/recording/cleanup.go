package recording

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ixugo/goddd/pkg/conc"
	"github.com/shirou/gopsutil/v4/disk"
)

// 磁盘使用率超过该值时告警
const diskWarnPercent = 90

// StartCleanupWorker 启动定时清理协程
// 程序启动时执行一次清理，随后按配置的间隔执行，阻塞直到 ctx 结束
func (c Core) StartCleanupWorker(ctx context.Context) {
	interval := c.conf.CleanupInterval.Duration()
	if interval <= 0 {
		interval = 60 * time.Minute
	}
	slog.Info("recording cleanup worker started",
		"retain_days", c.RetainDays(),
		"interval", interval,
		"storage_dir", c.conf.StorageDir,
	)

	c.runCleanup(ctx)
	conc.Timer(ctx, interval, interval, func() {
		c.runCleanup(ctx)
	})
}

func (c Core) runCleanup(ctx context.Context) {
	n, err := c.Cleanup(ctx, time.Now())
	if err != nil {
		slog.WarnContext(ctx, "recording cleanup failed", "err", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "expired recording cleanup completed", "retain_days", c.RetainDays(), "folders_deleted", n)
	}
	cleanupEmptyDirs(c.conf.StorageDir, time.Now())

	if usage, err := c.DiskUsage(); err == nil && usage.UsedPercent >= diskWarnPercent {
		slog.WarnContext(ctx, "recording disk almost full", "used_percent", usage.UsedPercent, "free_bytes", usage.Free)
	}
}

// DiskUsage 存储目录所在磁盘的使用情况
func (c Core) DiskUsage() (*disk.UsageStat, error) {
	dir := c.conf.StorageDir
	if _, err := os.Stat(dir); err != nil {
		dir = filepath.Dir(dir)
	}
	return disk.Usage(dir)
}

// 刚创建的日期目录在编码器写出文件前是空的
const emptyDirGrace = 10 * time.Minute

// cleanupEmptyDirs 删除空的日期目录
// 当天目录以及最近修改过的目录可能正要写入，跳过
func cleanupEmptyDirs(dir string, now time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	today := now.Format(dateLayout)
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == today {
			continue
		}
		if fi, err := entry.Info(); err != nil || now.Sub(fi.ModTime()) < emptyDirGrace {
			continue
		}
		subDir := filepath.Join(dir, entry.Name())
		subEntries, err := os.ReadDir(subDir)
		if err == nil && len(subEntries) == 0 {
			if err := os.Remove(subDir); err == nil {
				slog.Debug("removed empty directory", "path", subDir)
			}
		}
	}
}
