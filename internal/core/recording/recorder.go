package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aeell/HomeEyeView/internal/core/camera"
	"github.com/google/uuid"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not currently recording")
	ErrSinkOpen         = errors.New("open video sink failed")
	ErrSinkWrite        = errors.New("write video sink failed")
	ErrRecorderClosed   = errors.New("recorder closed")
)

// Origin 录像触发来源
type Origin string

const (
	OriginManual Origin = "manual"
	OriginMotion Origin = "motion"
)

// Outcome 录像结束方式
type Outcome string

const (
	OutcomeCompleted Outcome = "completed" // 达到时长上限
	OutcomeStopped   Outcome = "stopped"
	OutcomeFailed    Outcome = "failed"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "20060102_150405"
)

// FrameSource 帧总线的读取端
type FrameSource interface {
	Latest() *camera.Frame
}

// Session 一次录像
type Session struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	StartedAt time.Time     `json:"started_at"`
	Origin    Origin        `json:"origin"`
	Duration  time.Duration `json:"-"`        // 0 表示不限时长
	Seconds   float64       `json:"duration"` // 同 Duration，单位秒
	Active    bool          `json:"active"`
}

// Result 录像结束后的结果
type Result struct {
	Session
	EndedAt time.Time `json:"ended_at"`
	Frames  int64     `json:"frames"`
	Outcome Outcome   `json:"outcome"`
	Err     error     `json:"-"`
}

// Status 录像器当前状态
type Status struct {
	Recording bool     `json:"is_recording"`
	Session   *Session `json:"session,omitempty"`
	Frames    int64    `json:"frames"`
	Last      *Result  `json:"last,omitempty"`
}

// RecorderConfig 写入参数
type RecorderConfig struct {
	StorageDir    string
	Width, Height int
	FPS           int
	StopTimeout   time.Duration
}

type RecorderOption func(*Recorder)

// WithFinishHook 每次录像结束（包括失败）后回调
func WithFinishHook(fn func(Result)) RecorderOption {
	return func(r *Recorder) {
		r.onFinish = fn
	}
}

// WithClock 用于测试中固定文件名的时间
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// Recorder 同一时刻最多只有一个录像会话
// 状态迁移 Idle -> Recording -> Idle 在 mu 保护下完成
type Recorder struct {
	cfg      RecorderConfig
	frames   FrameSource
	newSink  SinkFactory
	ext      string
	onFinish func(Result)
	now      func() time.Time

	mu     sync.Mutex
	active *run
	last   *Result
	closed bool
}

// run 一次录像的运行时状态
type run struct {
	session  Session
	sink     Sink
	cancel   context.CancelFunc
	done     chan struct{}
	frames   atomic.Int64
	stopping atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// closeSink 无论从哪条路径退出，写入器只关闭一次
// 不与 Write 互斥，阻塞中的 Write 由 Close 打断
func (r *run) closeSink() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.sink.Close()
	})
	return r.closeErr
}

func NewRecorder(cfg RecorderConfig, frames FrameSource, newSink SinkFactory, ext string, opts ...RecorderOption) *Recorder {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	r := Recorder{cfg: cfg, frames: frames, newSink: newSink, ext: ext, now: time.Now}
	for _, opt := range opts {
		opt(&r)
	}
	return &r
}

// Start 检查与置位在同一把锁内完成，并发调用只有一个成功
// duration <= 0 表示不限时长，由 Stop 结束
func (r *Recorder) Start(ctx context.Context, duration time.Duration, origin Origin) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRecorderClosed
	}
	if r.active != nil {
		return nil, ErrAlreadyRecording
	}

	now := r.now()
	path, err := r.nextPath(now, origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkOpen, err)
	}
	sink, err := r.newSink(path, r.cfg.FPS, r.cfg.Width, r.cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkOpen, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	ru := run{
		session: Session{
			ID:        uuid.NewString(),
			Path:      path,
			StartedAt: now,
			Origin:    origin,
			Duration:  max(duration, 0),
			Seconds:   max(duration, 0).Seconds(),
			Active:    true,
		},
		sink:   sink,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.active = &ru
	go r.loop(loopCtx, &ru)

	slog.InfoContext(ctx, "recording started", "path", path, "origin", origin, "duration", ru.session.Duration)
	s := ru.session
	return &s, nil
}

// nextPath <root>/<YYYY-MM-DD>/<origin>_<YYYYMMDD_HHMMSS>.<ext>
// 同一秒内重复时追加序号
func (r *Recorder) nextPath(now time.Time, origin Origin) (string, error) {
	dir := filepath.Join(r.cfg.StorageDir, now.Format(dateLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := fmt.Sprintf("%s_%s", origin, now.Format(timestampLayout))
	path := filepath.Join(dir, base+r.ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, r.ext))
	}
}

func (r *Recorder) loop(ctx context.Context, ru *run) {
	outcome := OutcomeStopped
	var loopErr error
	defer func() {
		if p := recover(); p != nil {
			outcome, loopErr = OutcomeFailed, fmt.Errorf("recording panic: %v", p)
		}
		r.finish(ru, outcome, loopErr)
	}()

	ticker := time.NewTicker(time.Second / time.Duration(r.cfg.FPS))
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if d := ru.session.Duration; d > 0 && time.Since(start) >= d {
			outcome = OutcomeCompleted
			return
		}

		f := r.frames.Latest()
		if f == nil {
			continue
		}
		f = f.Resize(r.cfg.Width, r.cfg.Height).To(SinkOrder)
		if err := ru.sink.Write(f); err != nil {
			if ctx.Err() != nil {
				return
			}
			outcome, loopErr = OutcomeFailed, fmt.Errorf("%w: %w", ErrSinkWrite, err)
			return
		}
		ru.frames.Add(1)
	}
}

// finish 关闭写入器并清除会话
func (r *Recorder) finish(ru *run, outcome Outcome, loopErr error) {
	defer close(ru.done)

	closeErr := ru.closeSink()
	if closeErr != nil && loopErr == nil {
		outcome, loopErr = OutcomeFailed, fmt.Errorf("%w: close: %w", ErrSinkWrite, closeErr)
	}

	res := Result{
		Session: ru.session,
		EndedAt: time.Now(),
		Frames:  ru.frames.Load(),
		Outcome: outcome,
		Err:     loopErr,
	}
	res.Active = false

	r.mu.Lock()
	if r.active == ru {
		r.active = nil
	}
	r.last = &res
	r.mu.Unlock()

	if loopErr != nil {
		slog.Error("recording failed", "path", res.Path, "frames", res.Frames, "err", loopErr)
	} else {
		slog.Info("recording saved", "path", res.Path, "frames", res.Frames, "outcome", outcome)
	}
	if r.onFinish != nil {
		r.onFinish(res)
	}
}

// Stop 通知写入协程退出并等待，等待有上限
// 超时后仍视为停止成功：清除会话、尽力关闭写入器并记录告警
func (r *Recorder) Stop(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	ru := r.active
	if ru == nil || !ru.stopping.CompareAndSwap(false, true) {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	ru.cancel()
	r.mu.Unlock()

	select {
	case <-ru.done:
	case <-time.After(r.cfg.StopTimeout):
		slog.WarnContext(ctx, "recording loop did not exit in time", "path", ru.session.Path, "timeout", r.cfg.StopTimeout)
		r.mu.Lock()
		if r.active == ru {
			r.active = nil
		}
		r.mu.Unlock()
		go func() {
			if err := ru.closeSink(); err != nil {
				slog.Warn("close video sink after timeout", "path", ru.session.Path, "err", err)
			}
		}()
	}

	s := ru.session
	s.Active = false
	return &s, nil
}

// Status 当前会话与上一次的结果
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st Status
	if ru := r.active; ru != nil {
		s := ru.session
		st.Recording = true
		st.Session = &s
		st.Frames = ru.frames.Load()
	}
	if r.last != nil {
		last := *r.last
		st.Last = &last
	}
	return st
}

// IsRecording 是否有进行中的录像
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Close 进程退出时停止进行中的录像，之后 Start 返回 ErrRecorderClosed
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	_, err := r.Stop(context.Background())
	if errors.Is(err, ErrNotRecording) {
		return nil
	}
	return err
}
