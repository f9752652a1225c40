package camera

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aeell/HomeEyeView/pkg/ffwork"
)

// GenericAdapter 通过 ffmpeg 读取 v4l2 设备，输出 BGR
type GenericAdapter struct {
	device        string
	width, height int

	capture  *ffwork.FrameCapture
	latest   atomic.Pointer[Frame]
	lastSeq  atomic.Uint64
	release  sync.Once
	released atomic.Bool
}

var (
	_ Adapter = (*GenericAdapter)(nil)
)

// GenericConfig 通用采集参数
type GenericConfig struct {
	Device            string
	Width, Height     int
	FPS               int
	FirstFrameTimeout time.Duration
}

// NewGenericAdapter 打开设备并等待首帧，超时视为不可用
func NewGenericAdapter(ctx context.Context, cfg GenericConfig) (*GenericAdapter, error) {
	if _, err := os.Stat(cfg.Device); err != nil {
		return nil, fmt.Errorf("camera device %s: %w", cfg.Device, err)
	}
	if !ffwork.Available() {
		return nil, ffwork.ErrNotFound
	}

	g := GenericAdapter{device: cfg.Device, width: cfg.Width, height: cfg.Height}
	first := make(chan struct{})
	var once sync.Once

	fc, err := ffwork.NewFrameCapture(ffwork.Config{
		Name:   "generic",
		Width:  cfg.Width,
		Height: cfg.Height,
		FPS:    cfg.FPS,
		Input: []string{
			"-f", "v4l2",
			"-framerate", strconv.Itoa(cfg.FPS),
			"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"-i", cfg.Device,
		},
		OnFrame: func(fd *ffwork.FrameData) {
			g.latest.Store(&Frame{
				Width:      cfg.Width,
				Height:     cfg.Height,
				Pix:        fd.Data,
				Order:      OrderBGR,
				Seq:        fd.FrameNum,
				CapturedAt: fd.Timestamp,
			})
			once.Do(func() { close(first) })
		},
	})
	if err != nil {
		return nil, err
	}
	if err := fc.Start(); err != nil {
		return nil, err
	}
	g.capture = fc

	timeout := cfg.FirstFrameTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	select {
	case <-first:
	case err := <-fc.Error():
		_ = fc.Stop()
		return nil, fmt.Errorf("%w, log: %v", err, fc.Log())
	case <-time.After(timeout):
		_ = fc.Stop()
		return nil, fmt.Errorf("no frame from %s within %s", cfg.Device, timeout)
	case <-ctx.Done():
		_ = fc.Stop()
		return nil, ctx.Err()
	}
	return &g, nil
}

func (g *GenericAdapter) Name() string { return "generic" }

func (g *GenericAdapter) ChannelOrder() ChannelOrder { return OrderBGR }

// Capture 返回自上次调用以来的新帧
func (g *GenericAdapter) Capture() (*Frame, error) {
	if g.released.Load() {
		return nil, ErrNotAvailable
	}
	f := g.latest.Load()
	if f == nil || f.Seq == g.lastSeq.Load() {
		return nil, ErrNotAvailable
	}
	g.lastSeq.Store(f.Seq)
	return f, nil
}

func (g *GenericAdapter) Release() error {
	var err error
	g.release.Do(func() {
		g.released.Store(true)
		err = g.capture.Stop()
		stats := g.capture.GetStats()
		slog.Info("generic camera released", "device", g.device, "frames", stats.FrameCount, "skipped", stats.SkipCount)
	})
	return err
}
