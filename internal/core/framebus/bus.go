// Package framebus 单写多读的最新帧广播
// 读者只拿到最近一次发布的帧，不排队、不反压，慢读者不会阻塞写者
package framebus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Aeell/HomeEyeView/internal/core/camera"
)

type Bus struct {
	latest atomic.Pointer[camera.Frame]
	seq    atomic.Uint64

	m      sync.Mutex
	notify chan struct{}
}

func New() *Bus {
	return &Bus{notify: make(chan struct{})}
}

var _ camera.Publisher = (*Bus)(nil)

// Publish 帧必须已完整写入，发布后不可再修改
func (b *Bus) Publish(f *camera.Frame) {
	if f == nil {
		return
	}
	b.latest.Store(f)
	b.seq.Add(1)

	b.m.Lock()
	close(b.notify)
	b.notify = make(chan struct{})
	b.m.Unlock()
}

// Latest 首次发布之前返回 nil
func (b *Bus) Latest() *camera.Frame {
	return b.latest.Load()
}

// Seq 已发布的帧数
func (b *Bus) Seq() uint64 {
	return b.seq.Load()
}

// Wait 等待序号大于 after 的帧
func (b *Bus) Wait(ctx context.Context, after uint64) (*camera.Frame, uint64, error) {
	for {
		b.m.Lock()
		ch := b.notify
		b.m.Unlock()

		if seq := b.seq.Load(); seq > after {
			if f := b.latest.Load(); f != nil {
				return f, seq, nil
			}
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, after, ctx.Err()
		}
	}
}
