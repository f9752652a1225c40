package recording

import (
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/Aeell/HomeEyeView/internal/conf"
)

// ErrInvalidPath 路径不在存储目录内
var ErrInvalidPath = errors.New("invalid video path")

// Storer data persistence
type Storer interface {
	Recording() RecordingStorer
}

// Core 录像历史、存储目录浏览与过期清理
type Core struct {
	store      Storer
	conf       *conf.Recording
	retainDays *atomic.Int64
}

type Option func(*Core)

// WithConfig 注入录像配置
func WithConfig(conf *conf.Recording) Option {
	return func(c *Core) {
		c.conf = conf
	}
}

// NewCore create business domain
func NewCore(store Storer, opts ...Option) Core {
	c := Core{store: store, conf: &conf.DefaultConfig().Recording, retainDays: new(atomic.Int64)}
	for _, opt := range opts {
		opt(&c)
	}
	c.retainDays.Store(int64(c.conf.RetainDays))
	return c
}

// StorageDir 录像根目录
func (c Core) StorageDir() string {
	return c.conf.StorageDir
}

// RetainDays 当前保留天数
func (c Core) RetainDays() int {
	return int(c.retainDays.Load())
}

// SetRetainDays 修改保留天数，下一次清理即生效
func (c Core) SetRetainDays(days int) {
	c.retainDays.Store(int64(days))
	c.conf.RetainDays = days
}

// ResolvePath 将相对路径转换为存储目录内的完整路径，拒绝越界访问
func (c Core) ResolvePath(rel string) (string, error) {
	rel = filepath.FromSlash(strings.TrimPrefix(rel, "/"))
	if rel == "" {
		return "", ErrInvalidPath
	}
	root, err := filepath.Abs(c.conf.StorageDir)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, rel)
	if !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}
