// Package motion 运动检测触发录像
// 边沿来源（PIR 传感器或开发接口）只负责投递，是否开始录像由 Trigger 决定
package motion

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Aeell/HomeEyeView/internal/core/recording"
)

// Starter 录像器的启动端
type Starter interface {
	Start(ctx context.Context, duration time.Duration, origin recording.Origin) (*recording.Session, error)
	IsRecording() bool
}

var _ Starter = (*recording.Recorder)(nil)

// Trigger 收到边沿且处于布防、空闲状态时开始一段定长录像
type Trigger struct {
	starter  Starter
	duration time.Duration
	armed    atomic.Bool
	edges    chan struct{}
}

// NewTrigger duration 为每次运动录像的时长
func NewTrigger(starter Starter, duration time.Duration, armed bool) *Trigger {
	t := Trigger{
		starter:  starter,
		duration: duration,
		edges:    make(chan struct{}, 1),
	}
	t.armed.Store(armed)
	return &t
}

// Edge 非阻塞投递，已有待处理的边沿时丢弃
func (t *Trigger) Edge() {
	select {
	case t.edges <- struct{}{}:
	default:
	}
}

// Run 阻塞直到 ctx 结束
func (t *Trigger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.edges:
			t.OnEdge(ctx)
		}
	}
}

// OnEdge 返回是否开始了新的录像
func (t *Trigger) OnEdge(ctx context.Context) bool {
	if !t.armed.Load() {
		slog.DebugContext(ctx, "motion ignored, detection disabled")
		return false
	}
	if t.starter.IsRecording() {
		slog.DebugContext(ctx, "motion ignored, already recording")
		return false
	}

	slog.InfoContext(ctx, "motion detected")
	if _, err := t.starter.Start(ctx, t.duration, recording.OriginMotion); err != nil {
		if !errors.Is(err, recording.ErrAlreadyRecording) {
			slog.ErrorContext(ctx, "motion recording failed to start", "err", err)
		}
		return false
	}
	return true
}

func (t *Trigger) Arm() {
	t.armed.Store(true)
}

func (t *Trigger) Disarm() {
	t.armed.Store(false)
}

// Toggle 切换布防状态，返回切换后的状态
func (t *Trigger) Toggle() bool {
	for {
		old := t.armed.Load()
		if t.armed.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (t *Trigger) Armed() bool {
	return t.armed.Load()
}
