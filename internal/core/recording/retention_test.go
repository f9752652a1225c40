package recording

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Aeell/HomeEyeView/internal/conf"
)

func newTestCore(t *testing.T, days int) Core {
	t.Helper()
	cfg := conf.DefaultConfig().Recording
	cfg.StorageDir = t.TempDir()
	cfg.RetainDays = days
	return NewCore(nil, WithConfig(&cfg))
}

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "2024-01-01", "2024-01-10", "thumbnails")
	if err := os.WriteFile(filepath.Join(root, "2024-01-01", "a.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.Local)
	n, err := Sweep(root, now, 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted %d", n)
	}
	if _, err := os.Stat(filepath.Join(root, "2024-01-01")); !os.IsNotExist(err) {
		t.Fatal("expected 2024-01-01 deleted")
	}
	for _, keep := range []string{"2024-01-10", "thumbnails"} {
		if _, err := os.Stat(filepath.Join(root, keep)); err != nil {
			t.Fatalf("%s should be kept: %v", keep, err)
		}
	}

	n, err = Sweep(root, now, 7*24*time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("second sweep n=%d err=%v", n, err)
	}
}

func TestSweepMissingRoot(t *testing.T) {
	n, err := Sweep(filepath.Join(t.TempDir(), "none"), time.Now(), time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestCleanupDisabled(t *testing.T) {
	c := newTestCore(t, 0)
	mkdirs(t, c.StorageDir(), "2000-01-01")
	n, err := c.Cleanup(context.Background(), time.Now())
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}

	c.SetRetainDays(1)
	if c.RetainDays() != 1 {
		t.Fatalf("retain days %d", c.RetainDays())
	}
	n, err = c.Cleanup(context.Background(), time.Now())
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestResolvePath(t *testing.T) {
	c := newTestCore(t, 7)
	root, _ := filepath.Abs(c.StorageDir())

	full, err := c.ResolvePath("2024-01-15/manual_20240115_083000.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(full, root) {
		t.Fatalf("full %s", full)
	}

	for _, bad := range []string{"", "../etc/passwd", "2024-01-15/../../secret", "/"} {
		if _, err := c.ResolvePath(bad); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("%q: expected ErrInvalidPath, got %v", bad, err)
		}
	}
}

func TestListVideosAndPlaylist(t *testing.T) {
	c := newTestCore(t, 7)
	root := c.StorageDir()
	mkdirs(t, root, "2024-01-15", "2024-01-16", "empty")
	files := map[string]time.Time{
		"2024-01-15/manual_20240115_080000.mp4": time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC),
		"2024-01-15/motion_20240115_090000.mp4": time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		"2024-01-15/notes.txt":                  time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		"2024-01-16/manual_20240116_070000.mp4": time.Date(2024, 1, 16, 7, 0, 0, 0, time.UTC),
	}
	for name, mt := range files {
		p := filepath.Join(root, name)
		if err := os.WriteFile(p, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatal(err)
		}
	}

	all, err := c.ListVideos(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || len(all["2024-01-15"]) != 2 || len(all["2024-01-16"]) != 1 {
		t.Fatalf("videos %+v", all)
	}
	for _, v := range all["2024-01-15"] {
		if v.Size != 4 || !strings.HasPrefix(v.Path, "2024-01-15/") {
			t.Fatalf("video %+v", v)
		}
	}

	pl, err := c.Playlist(context.Background(), "2024-01-15", "/api/video")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(pl, "#EXTM3U") || !strings.Contains(pl, "#EXT-X-ENDLIST") {
		t.Fatalf("playlist %s", pl)
	}
	first := strings.Index(pl, "manual_20240115_080000.mp4")
	second := strings.Index(pl, "motion_20240115_090000.mp4")
	if first < 0 || second < first {
		t.Fatalf("playlist order %s", pl)
	}
	if !strings.Contains(pl, "#EXT-X-DISCONTINUITY") {
		t.Fatalf("missing discontinuity %s", pl)
	}
	if strings.Contains(pl, "2024-01-16") {
		t.Fatalf("playlist includes another day %s", pl)
	}
	if _, err := c.Playlist(context.Background(), "../2024-01-15", "/api/video"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}

	if _, err := c.Playlist(context.Background(), "2023-01-01", "/api/video"); err == nil {
		t.Fatal("expected error for empty day")
	}
}

func TestCleanupEmptyDirs(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 1, 15, 0, 0, 30, 0, time.Local)
	mkdirs(t, root, "2024-01-12", "2024-01-13", "2024-01-14", "2024-01-15")
	if err := os.WriteFile(filepath.Join(root, "2024-01-12", "a.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	mtimes := map[string]time.Time{
		"2024-01-12": now.Add(-time.Hour),
		"2024-01-13": now.Add(-time.Hour),
		"2024-01-14": now.Add(-10 * time.Second), // 跨零点刚创建，文件尚未写出
		"2024-01-15": now.Add(-time.Hour),
	}
	for name, mt := range mtimes {
		if err := os.Chtimes(filepath.Join(root, name), mt, mt); err != nil {
			t.Fatal(err)
		}
	}

	cleanupEmptyDirs(root, now)

	for name, keep := range map[string]bool{
		"2024-01-12": true,
		"2024-01-13": false,
		"2024-01-14": true,
		"2024-01-15": true,
	} {
		_, err := os.Stat(filepath.Join(root, name))
		if exists := err == nil; exists != keep {
			t.Fatalf("%s exists=%v want %v", name, exists, keep)
		}
	}
}
