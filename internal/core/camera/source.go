package camera

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher 帧的接收方
type Publisher interface {
	Publish(*Frame)
}

// Source 唯一调用 Adapter.Capture 的角色，按帧率轮询并发布到帧总线
type Source struct {
	adapter  Adapter
	pub      Publisher
	interval time.Duration

	frames  atomic.Uint64
	misses  atomic.Uint64
	release sync.Once
}

// NewSource fps <= 0 时按 30 处理
func NewSource(adapter Adapter, pub Publisher, fps int) *Source {
	if fps <= 0 {
		fps = 30
	}
	return &Source{
		adapter:  adapter,
		pub:      pub,
		interval: time.Second / time.Duration(fps),
	}
}

func (s *Source) Adapter() Adapter {
	return s.adapter
}

// Run 阻塞直到 ctx 结束
func (s *Source) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "camera source started", "backend", s.adapter.Name(), "interval", s.interval)
	missing := false
	for {
		select {
		case <-ctx.Done():
			slog.Info("camera source stopped", "frames", s.frames.Load(), "misses", s.misses.Load())
			return
		case <-ticker.C:
		}

		f, err := s.capture()
		if err != nil || !f.Valid() {
			s.misses.Add(1)
			if !missing {
				missing = true
				slog.DebugContext(ctx, "camera frame not available", "backend", s.adapter.Name(), "err", err)
			}
			continue
		}
		missing = false
		s.frames.Add(1)
		s.pub.Publish(f)
	}
}

func (s *Source) capture() (f *Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("camera capture panic", "backend", s.adapter.Name(), "err", r)
			f, err = nil, ErrNotAvailable
		}
	}()
	return s.adapter.Capture()
}

// Stats 已发布帧数与空轮询次数
func (s *Source) Stats() (frames, misses uint64) {
	return s.frames.Load(), s.misses.Load()
}

// Close 释放摄像头，只执行一次
func (s *Source) Close() error {
	var err error
	s.release.Do(func() {
		err = s.adapter.Release()
	})
	return err
}
