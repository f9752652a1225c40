// Package surveillance 组装摄像头、帧总线、录像、移动侦测与实时预览
package surveillance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aeell/HomeEyeView/internal/conf"
	"github.com/Aeell/HomeEyeView/internal/core/camera"
	"github.com/Aeell/HomeEyeView/internal/core/framebus"
	"github.com/Aeell/HomeEyeView/internal/core/live"
	"github.com/Aeell/HomeEyeView/internal/core/motion"
	"github.com/Aeell/HomeEyeView/internal/core/recording"
)

var (
	ErrInvalidRetention = errors.New("auto delete days must be at least 1")
	ErrVideoNotFound    = errors.New("video not found")
	ErrGPIOPresent      = errors.New("not available on hardware with a motion sensor")
)

type options struct {
	cameraOpts []camera.Option
	newSink    recording.SinkFactory
	ext        string
	gpio       bool
}

type Option func(*options)

// WithCameraOptions 透传给 camera.Open
func WithCameraOptions(opts ...camera.Option) Option {
	return func(o *options) {
		o.cameraOpts = append(o.cameraOpts, opts...)
	}
}

// WithSinkFactory 替换录像写入器
func WithSinkFactory(fn recording.SinkFactory, ext string) Option {
	return func(o *options) {
		o.newSink, o.ext = fn, ext
	}
}

// WithoutGPIO 不探测 PIR 传感器
func WithoutGPIO() Option {
	return func(o *options) {
		o.gpio = false
	}
}

// System 进程内唯一的监控系统
type System struct {
	conf     *conf.Bootstrap
	confMu   sync.Mutex
	adapter  camera.Adapter
	source   *camera.Source
	bus      *framebus.Bus
	settings *camera.Settings
	recorder *recording.Recorder
	trigger  *motion.Trigger
	gpio     *motion.GPIOSource
	core     recording.Core
	live     *live.Publisher

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New 打开摄像头并启动后台协程，调用方负责 Close
func New(bc *conf.Bootstrap, core recording.Core, opts ...Option) (*System, error) {
	o := options{gpio: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.newSink == nil {
		o.newSink, o.ext = recording.NewSinkFactory(bc.Recording.Codec, bc.Recording.JPEGQuality)
	}
	if err := os.MkdirAll(bc.Recording.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := System{
		conf:     bc,
		bus:      framebus.New(),
		settings: camera.NewSettings(bc.Settings),
		core:     core,
		cancel:   cancel,
	}

	s.adapter = camera.Open(ctx, bc.Camera, bc.Settings, o.cameraOpts...)
	s.settings.Bind(s.adapter)
	s.source = camera.NewSource(s.adapter, s.bus, bc.Camera.FPS)
	s.live = live.NewPublisher(s.bus, bc.Live)

	s.recorder = recording.NewRecorder(recording.RecorderConfig{
		StorageDir:  bc.Recording.StorageDir,
		Width:       bc.Camera.Width,
		Height:      bc.Camera.Height,
		FPS:         30,
		StopTimeout: bc.Recording.StopTimeout.Duration(),
	}, s.bus, o.newSink, o.ext, recording.WithFinishHook(core.SaveResult))
	s.trigger = motion.NewTrigger(s.recorder, bc.Recording.MotionDuration.Duration(), bc.Motion.ArmOnStart)

	if o.gpio && bc.Motion.GPIOPin != "" {
		gpio, err := motion.OpenGPIO(bc.Motion.GPIOPin, bc.Motion.Debounce.Duration(), s.trigger)
		if err != nil {
			slog.Info("motion sensor unavailable, simulate endpoint enabled", "err", err)
		} else {
			s.gpio = gpio
		}
	}

	s.goRun(func() { s.source.Run(ctx) })
	s.goRun(func() { s.trigger.Run(ctx) })
	s.goRun(func() { core.StartCleanupWorker(ctx) })
	if s.gpio != nil {
		s.goRun(func() { s.gpio.Run(ctx) })
	}

	slog.Info("surveillance system started",
		"camera", s.adapter.Name(),
		"storage_dir", bc.Recording.StorageDir,
		"gpio", s.gpio != nil,
		"motion_detection", s.trigger.Armed(),
	)
	return &s, nil
}

func (s *System) goRun(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Close 停止录像、后台协程并释放摄像头，可重复调用
func (s *System) Close() {
	s.closeOnce.Do(func() {
		// 先停止触发源，避免关闭过程中再开始新的录像
		s.trigger.Disarm()
		s.cancel()
		s.wg.Wait()
		if err := s.recorder.Close(); err != nil {
			slog.Warn("stop recording on close", "err", err)
		}
		if err := s.source.Close(); err != nil {
			slog.Warn("release camera", "err", err)
		}
		slog.Info("surveillance system stopped")
	})
}

// Live 实时预览
func (s *System) Live() *live.Publisher {
	return s.live
}

// Frames 帧总线
func (s *System) Frames() *framebus.Bus {
	return s.bus
}

// CameraAvailable 合成后端也视为可用
func (s *System) CameraAvailable() bool {
	return s.adapter != nil
}

// GPIOAvailable 是否接入了 PIR 传感器
func (s *System) GPIOAvailable() bool {
	return s.gpio != nil
}

// Core 录像历史与存储目录
func (s *System) Core() recording.Core {
	return s.core
}

// DiskStatus 存储目录所在磁盘
type DiskStatus struct {
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// Status 当前系统状态
type Status struct {
	CameraAvailable bool               `json:"camera_available"`
	CameraBackend   string             `json:"camera_backend"`
	IsRecording     bool               `json:"is_recording"`
	Recording       *recording.Session `json:"recording,omitempty"`
	LastRecording   *recording.Result  `json:"last_recording,omitempty"`
	Frames          int64              `json:"frames"`
	MotionDetection bool               `json:"motion_detection"`
	Settings        map[string]any     `json:"settings"`
	AutoDeleteDays  int                `json:"auto_delete_days"`
	GPIOAvailable   bool               `json:"gpio_available"`
	Disk            *DiskStatus        `json:"disk,omitempty"`
}

func (s *System) Status() Status {
	rs := s.recorder.Status()
	st := Status{
		CameraAvailable: s.CameraAvailable(),
		CameraBackend:   s.adapter.Name(),
		IsRecording:     rs.Recording,
		Recording:       rs.Session,
		LastRecording:   rs.Last,
		Frames:          rs.Frames,
		MotionDetection: s.trigger.Armed(),
		Settings:        s.settings.Snapshot(),
		AutoDeleteDays:  s.core.RetainDays(),
		GPIOAvailable:   s.GPIOAvailable(),
	}
	if usage, err := s.core.DiskUsage(); err == nil {
		st.Disk = &DiskStatus{Total: usage.Total, Free: usage.Free, UsedPercent: usage.UsedPercent}
	}
	return st
}

// StartRecording 手动录像，duration <= 0 时一直录到 StopRecording
func (s *System) StartRecording(ctx context.Context, duration time.Duration) (*recording.Session, error) {
	return s.recorder.Start(ctx, duration, recording.OriginManual)
}

func (s *System) StopRecording(ctx context.Context) (*recording.Session, error) {
	return s.recorder.Stop(ctx)
}

// ToggleMotion 返回切换后的状态
func (s *System) ToggleMotion() bool {
	armed := s.trigger.Toggle()
	slog.Info("motion detection toggled", "enabled", armed)
	return armed
}

func (s *System) UpdateSetting(key string, value any) error {
	return s.settings.Update(key, value)
}

func (s *System) ListVideos(ctx context.Context) (map[string][]recording.Video, error) {
	return s.core.ListVideos(ctx)
}

// ResolveVideo 返回存储目录内录像文件的完整路径
func (s *System) ResolveVideo(rel string) (string, error) {
	full, err := s.core.ResolvePath(rel)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(full)
	if err != nil || fi.IsDir() {
		return "", ErrVideoNotFound
	}
	return full, nil
}

// Cleanup 立即按保留天数清理，返回删除的日期目录数
func (s *System) Cleanup(ctx context.Context) (int, error) {
	return s.core.Cleanup(ctx, time.Now())
}

// SetRetentionDays 修改保留天数并写回配置文件，写入失败只记录日志
func (s *System) SetRetentionDays(days int) error {
	if days < 1 {
		return ErrInvalidRetention
	}
	s.confMu.Lock()
	defer s.confMu.Unlock()
	s.core.SetRetainDays(days)
	if err := conf.WriteConfig(s.conf, s.conf.ConfigPath); err != nil {
		slog.Warn("persist auto delete days", "path", filepath.Base(s.conf.ConfigPath), "err", err)
	}
	slog.Info("auto delete days updated", "days", days)
	return nil
}

// SimulateMotion 开发环境模拟一次传感器触发，返回是否开始了录像
func (s *System) SimulateMotion(ctx context.Context) (bool, error) {
	if s.gpio != nil {
		return false, ErrGPIOPresent
	}
	return s.trigger.OnEdge(ctx), nil
}
