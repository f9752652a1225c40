package camera

import (
	"context"
	"errors"
)

// ErrNotAvailable 当前没有可用的帧，调用方跳过本次即可
var ErrNotAvailable = errors.New("camera: frame not available")

// Adapter 摄像头后端
// Capture 只允许 Source 调用，其它组件通过帧总线取帧
type Adapter interface {
	Name() string
	Capture() (*Frame, error)
	ChannelOrder() ChannelOrder
	Release() error
}

// Controller 支持实时调整参数的后端
type Controller interface {
	ApplySetting(key string, value any) error
}

// Backend 按顺序尝试的后端构造器
type Backend struct {
	Name string
	Open func(ctx context.Context) (Adapter, error)
}
