// Package live 实时预览，将帧总线上的最新帧编码为 JPEG
package live

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Aeell/HomeEyeView/internal/conf"
	"github.com/Aeell/HomeEyeView/internal/core/camera"
)

// FrameSource 帧总线的读取端
type FrameSource interface {
	Latest() *camera.Frame
	Wait(ctx context.Context, after uint64) (*camera.Frame, uint64, error)
}

// Publisher 多个请求可并发调用
type Publisher struct {
	frames   FrameSource
	fps      int
	maxWidth int
	quality  int

	m    sync.Mutex
	last *camera.Frame
	data []byte
}

func NewPublisher(frames FrameSource, cfg conf.Live) *Publisher {
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 85
	}
	return &Publisher{
		frames:   frames,
		fps:      cfg.FPS,
		maxWidth: cfg.MaxWidth,
		quality:  cfg.Quality,
	}
}

// Snapshot 最新帧的 JPEG，还没有帧时 ok 为 false
func (p *Publisher) Snapshot() (data []byte, ok bool, err error) {
	f := p.frames.Latest()
	if f == nil {
		return nil, false, nil
	}
	data, err = p.encode(f)
	return data, err == nil, err
}

// encode 同一帧只编码一次
func (p *Publisher) encode(f *camera.Frame) ([]byte, error) {
	p.m.Lock()
	if p.last == f {
		data := p.data
		p.m.Unlock()
		return data, nil
	}
	p.m.Unlock()

	src := f
	if p.maxWidth > 0 && f.Width > p.maxWidth {
		h := f.Height * p.maxWidth / f.Width
		src = f.Resize(p.maxWidth, max(h&^1, 2))
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src.RGBA(), &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	data := buf.Bytes()

	p.m.Lock()
	p.last, p.data = f, data
	p.m.Unlock()
	return data, nil
}

// ServeSnapshot 返回单张 JPEG，没有帧时 503
func (p *Publisher) ServeSnapshot(w http.ResponseWriter, r *http.Request) {
	data, ok, err := p.Snapshot()
	if err != nil {
		slog.ErrorContext(r.Context(), "snapshot", "err", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no frame available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

// ServeMJPEG multipart/x-mixed-replace 推流，只推送新帧，且不超过配置帧率
func (p *Publisher) ServeMJPEG(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	slog.DebugContext(ctx, "mjpeg client connected", "remote", r.RemoteAddr)
	defer slog.DebugContext(ctx, "mjpeg client disconnected", "remote", r.RemoteAddr)

	interval := time.Second / time.Duration(p.fps)
	var seq uint64
	var last time.Time
	for {
		f, next, err := p.frames.Wait(ctx, seq)
		if err != nil {
			return
		}
		seq = next
		if wait := interval - time.Since(last); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			// 等待期间可能有更新的帧
			if lf, n, err := p.frames.Wait(ctx, seq-1); err == nil {
				f, seq = lf, n
			}
		}
		last = time.Now()

		data, err := p.encode(f)
		if err != nil {
			slog.WarnContext(ctx, "mjpeg encode", "err", err)
			continue
		}
		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
		if _, err := w.Write(data); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")
		flusher.Flush()
	}
}
