package camera

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aeell/HomeEyeView/internal/conf"
)

type openOptions struct {
	backends []Backend
}

type Option func(*openOptions)

// WithBackends 替换默认的后端列表，合成后端始终排在最后
func WithBackends(backends ...Backend) Option {
	return func(o *openOptions) {
		o.backends = backends
	}
}

// DefaultBackends 硬件摄像头优先，其次通用采集设备
func DefaultBackends(cfg conf.Camera, settings conf.CameraSettings) []Backend {
	backends := make([]Backend, 0, 2)
	if cfg.Hardware {
		backends = append(backends, Backend{
			Name: "hardware",
			Open: func(ctx context.Context) (Adapter, error) {
				return NewHardwareAdapter(ctx, HardwareConfig{
					Width:             cfg.Width,
					Height:            cfg.Height,
					FPS:               cfg.FPS,
					FirstFrameTimeout: cfg.FirstFrameTimeout.Duration(),
					Brightness:        settings.Brightness,
					Contrast:          settings.Contrast,
					WhiteBalance:      settings.WhiteBalance,
				})
			},
		})
	}
	backends = append(backends, Backend{
		Name: "generic",
		Open: func(ctx context.Context) (Adapter, error) {
			return NewGenericAdapter(ctx, GenericConfig{
				Device:            cfg.Device,
				Width:             cfg.Width,
				Height:            cfg.Height,
				FPS:               cfg.FPS,
				FirstFrameTimeout: cfg.FirstFrameTimeout.Duration(),
			})
		},
	})
	return backends
}

// Open 依次尝试各个后端，第一个成功的胜出
// 构造失败或 panic 都在此处消化，最差返回合成后端
func Open(ctx context.Context, cfg conf.Camera, settings conf.CameraSettings, opts ...Option) Adapter {
	o := openOptions{backends: DefaultBackends(cfg, settings)}
	for _, opt := range opts {
		opt(&o)
	}

	for _, b := range o.backends {
		a, err := tryOpen(ctx, b)
		if err != nil {
			slog.InfoContext(ctx, "camera backend unavailable", "backend", b.Name, "err", err)
			continue
		}
		slog.InfoContext(ctx, "camera backend selected", "backend", a.Name())
		return a
	}

	slog.WarnContext(ctx, "no camera found, using synthetic frames", "width", cfg.Width, "height", cfg.Height)
	return NewSyntheticAdapter(cfg.Width, cfg.Height)
}

func tryOpen(ctx context.Context, b Backend) (a Adapter, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	a, err = b.Open(ctx)
	if err == nil && a == nil {
		err = fmt.Errorf("backend returned no adapter")
	}
	return a, err
}
