package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"

	"github.com/Aeell/HomeEyeView/internal/conf"
)

// ErrInvalidSetting 未知的参数名或参数类型错误
var ErrInvalidSetting = errors.New("invalid setting")

const (
	KeyBrightness   = "brightness"
	KeyContrast     = "contrast"
	KeyZoom         = "zoom"
	KeyWhiteBalance = "white_balance"
	KeyExposureMode = "exposure_mode"
	KeyFocus        = "focus"
)

// 固定的参数集合，true 表示数值型
var settingKeys = map[string]bool{
	KeyBrightness:   true,
	KeyContrast:     true,
	KeyZoom:         true,
	KeyWhiteBalance: false,
	KeyExposureMode: false,
	KeyFocus:        false,
}

// Settings 摄像头参数，进程内唯一
type Settings struct {
	m      sync.Mutex
	values map[string]any
	ctrl   Controller
}

// NewSettings 以配置中的初始值创建
func NewSettings(c conf.CameraSettings) *Settings {
	return &Settings{values: map[string]any{
		KeyBrightness:   c.Brightness,
		KeyContrast:     c.Contrast,
		KeyZoom:         c.Zoom,
		KeyWhiteBalance: c.WhiteBalance,
		KeyExposureMode: c.ExposureMode,
		KeyFocus:        c.Focus,
	}}
}

// Bind 绑定支持实时调整的后端，不支持时参数只保存
func (s *Settings) Bind(a Adapter) {
	ctrl, _ := a.(Controller)
	s.m.Lock()
	s.ctrl = ctrl
	s.m.Unlock()
}

// Update 更新参数，失败时不产生任何修改
func (s *Settings) Update(key string, value any) error {
	numeric, ok := settingKeys[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidSetting, key)
	}
	var v any
	if numeric {
		f, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("%w: %s expects a number, got %v", ErrInvalidSetting, key, value)
		}
		v = f
	} else {
		str, ok := value.(string)
		if !ok || str == "" {
			return fmt.Errorf("%w: %s expects a string, got %v", ErrInvalidSetting, key, value)
		}
		v = str
	}

	s.m.Lock()
	s.values[key] = v
	ctrl := s.ctrl
	s.m.Unlock()

	if ctrl != nil {
		if err := ctrl.ApplySetting(key, v); err != nil {
			slog.Warn("apply camera setting failed", "key", key, "value", v, "err", err)
		}
	}
	return nil
}

// Get 读取单个参数
func (s *Settings) Get(key string) (any, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Snapshot 返回副本
func (s *Settings) Snapshot() map[string]any {
	s.m.Lock()
	defer s.m.Unlock()
	return maps.Clone(s.values)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}
