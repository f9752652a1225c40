package recording

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

var videoExts = []string{".mp4", ".avi", ".mov"}

// ListVideos 按日期目录列出录像文件
// 单个文件读取失败不影响整体，时长读取失败时为 0
func (c Core) ListVideos(ctx context.Context) (map[string][]Video, error) {
	out := make(map[string][]Video)
	dates, err := os.ReadDir(c.conf.StorageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}

	for _, d := range dates {
		if !d.IsDir() {
			continue
		}
		videos, err := c.listDate(ctx, d.Name())
		if err != nil {
			slog.WarnContext(ctx, "read recording dir", "dir", d.Name(), "err", err)
			continue
		}
		if len(videos) > 0 {
			out[d.Name()] = videos
		}
	}
	return out, nil
}

// listDate 列出单个日期目录下的录像
func (c Core) listDate(ctx context.Context, date string) ([]Video, error) {
	files, err := os.ReadDir(filepath.Join(c.conf.StorageDir, date))
	if err != nil {
		return nil, err
	}
	videos := make([]Video, 0, len(files))
	for _, f := range files {
		if f.IsDir() || !slices.Contains(videoExts, strings.ToLower(filepath.Ext(f.Name()))) {
			continue
		}
		fi, err := f.Info()
		if err != nil {
			continue
		}
		videos = append(videos, Video{
			Filename: f.Name(),
			Path:     path.Join(date, f.Name()),
			Size:     fi.Size(),
			Created:  fi.ModTime().Format(time.RFC3339),
			Duration: probeDuration(ctx, filepath.Join(c.conf.StorageDir, date, f.Name())),
		})
	}
	return videos, nil
}

// probeDuration 返回视频时长（秒），保留两位小数
func probeDuration(ctx context.Context, file string) float64 {
	var sec float64
	if strings.EqualFold(filepath.Ext(file), ".avi") {
		sec = aviDuration(file)
	} else {
		sec = ffprobeDuration(ctx, file)
	}
	return math.Round(sec*100) / 100
}

// aviDuration 读取 avih 头中的每帧微秒数与总帧数
func aviDuration(file string) float64 {
	f, err := os.Open(file)
	if err != nil {
		return 0
	}
	defer f.Close()

	var hdr [56]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return 0
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "AVI " || string(hdr[24:28]) != "avih" {
		return 0
	}
	usPerFrame := binary.LittleEndian.Uint32(hdr[32:36])
	total := binary.LittleEndian.Uint32(hdr[48:52])
	return float64(total) * float64(usPerFrame) / 1e6
}

func ffprobeDuration(ctx context.Context, file string) float64 {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		file,
	).Output()
	if err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
