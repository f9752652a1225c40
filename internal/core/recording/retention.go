package recording

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Sweep 删除日期早于 now-maxAge 的日期目录，返回删除的目录数
// 非日期命名的条目直接跳过，重复执行不会多删
func Sweep(root string, now time.Time, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := now.Add(-maxAge)
	var deleted int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		date, err := time.ParseInLocation(dateLayout, e.Name(), now.Location())
		if err != nil {
			continue
		}
		if !date.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			slog.Warn("failed to delete recording folder", "dir", e.Name(), "err", err)
			continue
		}
		slog.Info("deleted old recordings folder", "dir", e.Name())
		deleted++
	}
	return deleted, nil
}

// Cleanup 按当前保留天数清理存储目录和历史记录，保留天数 <= 0 时不清理
func (c Core) Cleanup(ctx context.Context, now time.Time) (int, error) {
	days := c.RetainDays()
	if days <= 0 {
		return 0, nil
	}
	maxAge := time.Duration(days) * 24 * time.Hour
	n, err := Sweep(c.conf.StorageDir, now, maxAge)
	if err != nil {
		return n, err
	}

	if c.store != nil {
		rows, err := c.store.Recording().DeleteStartedBefore(ctx, now.Add(-maxAge))
		if err != nil {
			slog.WarnContext(ctx, "failed to delete recording history", "err", err)
		} else if rows > 0 {
			slog.InfoContext(ctx, "recording history deleted", "rows", rows, "retain_days", days)
		}
	}
	return n, nil
}
